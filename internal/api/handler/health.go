package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// dependencyChecker reports whether one backing service is reachable.
type dependencyChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db          *gorm.DB
	vectors     dependencyChecker
	chat        dependencyChecker
	transcriber dependencyChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *gorm.DB, vectors, chat, transcriber dependencyChecker) *HealthHandler {
	return &HealthHandler{db: db, vectors: vectors, chat: chat, transcriber: transcriber}
}

// Health reports the service status and each dependency's reachability.
// The model endpoints are checked through their free models listing, so
// the check costs no tokens. Any unreachable dependency degrades the
// overall status to 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true

	if sqlDB, err := h.db.DB(); err != nil {
		checks["database"] = "error"
		healthy = false
	} else if err := sqlDB.PingContext(ctx); err != nil {
		checks["database"] = "unreachable"
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	for name, dep := range map[string]dependencyChecker{
		"vector_index": h.vectors,
		"chat_model":   h.chat,
		"transcriber":  h.transcriber,
	} {
		if err := dep.HealthCheck(ctx); err != nil {
			checks[name] = "unreachable"
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status": overall,
		"checks": checks,
	})
}
