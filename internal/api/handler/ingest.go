package handler

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ines/audigest/internal/api/middleware"
	"github.com/ines/audigest/internal/logger"
	"github.com/ines/audigest/internal/service"
)

// IngestHandler handles ingestion endpoints.
type IngestHandler struct {
	ingest *service.IngestService
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

type processURLRequest struct {
	URL string `json:"url" binding:"required"`
}

type ingestResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	Kind       string `json:"kind"`
	ChunkCount int    `json:"chunk_count"`
	Transcript string `json:"transcript"`
	Summary    string `json:"summary,omitempty"`
}

// ProcessURL ingests a remote video or podcast URL.
func (h *IngestHandler) ProcessURL(c *gin.Context) {
	var req processURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	result, err := h.ingest.IngestURL(c.Request.Context(), middleware.OwnerID(c), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ingestResponse{
		ID:         result.Source.ID,
		Title:      result.Source.Title,
		URL:        result.Source.URL,
		Kind:       string(result.Source.Kind),
		ChunkCount: result.ChunkCount,
		Transcript: result.Transcript,
		Summary:    result.Summary,
	})
}

// ProcessAudio ingests an uploaded audio file.
func (h *IngestHandler) ProcessAudio(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}

	// Spool the upload to disk; the transcriber wants a file path.
	tmpPath := filepath.Join(os.TempDir(), uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		middleware.GetLogger(c).WithError(err).Error("failed to spool uploaded audio")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer func() {
		if err := os.Remove(tmpPath); err != nil {
			middleware.GetLogger(c).WithField(logger.FieldComponent, "upload").WithError(err).Warn("failed to remove spooled upload")
		}
	}()

	result, err := h.ingest.IngestUpload(c.Request.Context(), middleware.OwnerID(c), file.Filename, tmpPath)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ingestResponse{
		ID:         result.Source.ID,
		Title:      result.Source.Title,
		URL:        result.Source.URL,
		Kind:       string(result.Source.Kind),
		ChunkCount: result.ChunkCount,
		Transcript: result.Transcript,
		Summary:    result.Summary,
	})
}
