package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ines/audigest/internal/api/middleware"
	"github.com/ines/audigest/internal/service"
)

// SourceHandler handles source listing and deletion.
type SourceHandler struct {
	library *service.LibraryService
}

// NewSourceHandler creates a new source handler.
func NewSourceHandler(library *service.LibraryService) *SourceHandler {
	return &SourceHandler{library: library}
}

// List returns the owner's sources, newest first.
func (h *SourceHandler) List(c *gin.Context) {
	sources, err := h.library.List(c.Request.Context(), middleware.OwnerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sources": sources,
		"count":   len(sources),
	})
}

// Get returns one source.
func (h *SourceHandler) Get(c *gin.Context) {
	src, err := h.library.Get(c.Request.Context(), middleware.OwnerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, src)
}

// Delete removes a source and all of its chunks and vectors.
func (h *SourceHandler) Delete(c *gin.Context) {
	if err := h.library.Delete(c.Request.Context(), middleware.OwnerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
