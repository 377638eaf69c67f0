package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ines/audigest/internal/api/middleware"
	"github.com/ines/audigest/internal/apperr"
)

// respondError writes the classified status and user-safe message for err.
// The full error chain goes to the log only; responses never carry
// internal detail.
func respondError(c *gin.Context, err error) {
	status := apperr.StatusCode(err)
	if status >= 500 {
		middleware.GetLogger(c).WithError(err).Error("request failed")
	} else {
		middleware.GetLogger(c).WithError(err).Warn("request rejected")
	}
	c.JSON(status, gin.H{"error": apperr.UserMessage(err)})
}
