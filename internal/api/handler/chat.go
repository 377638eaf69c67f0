package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ines/audigest/internal/api/middleware"
	"github.com/ines/audigest/internal/apperr"
	"github.com/ines/audigest/internal/domain"
	"github.com/ines/audigest/internal/service"
)

// ChatHandler handles question answering over the owner's ingested sources.
type ChatHandler struct {
	retriever *service.Retriever
	chat      *service.ChatService
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(retriever *service.Retriever, chat *service.ChatService) *ChatHandler {
	return &ChatHandler{retriever: retriever, chat: chat}
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
	TopK    int    `json:"top_k"`
	Model   string `json:"model"`
}

// citation points an answer back at the chunk it drew from.
type citation struct {
	SourceID string  `json:"source_id"`
	Title    string  `json:"title"`
	Content  string  `json:"content"`
	Score    float32 `json:"score"`
}

// buildCitations keys citations by the 1-based excerpt number used inside
// the prompt context, so the UI can resolve an answer's references.
func buildCitations(chunks []domain.RetrievedChunk) map[int]citation {
	citations := make(map[int]citation, len(chunks))
	for i, chunk := range chunks {
		citations[i+1] = citation{
			SourceID: chunk.SourceID,
			Title:    chunk.Title,
			Content:  chunk.Content,
			Score:    chunk.Score,
		}
	}
	return citations
}

// Chat answers a question in one response, grounded in retrieved chunks.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	owner := middleware.OwnerID(c)
	chunks, err := h.retriever.Retrieve(c.Request.Context(), owner, req.Message, req.TopK)
	if err != nil {
		respondError(c, err)
		return
	}

	answer, err := h.chat.Answer(c.Request.Context(), req.Message, h.retriever.BuildContext(chunks), req.Model)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("chat completion failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not generate a response, please try again"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"response": answer,
		"sources":  buildCitations(chunks),
	})
}

// ChatStream answers a question over server-sent events: one "context"
// event with the citations, "message" events carrying answer deltas, and a
// final "done" event. Failures after the stream has started are reported
// as an "error" event since the status line is already gone.
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	owner := middleware.OwnerID(c)
	chunks, err := h.retriever.Retrieve(c.Request.Context(), owner, req.Message, req.TopK)
	if err != nil {
		respondError(c, err)
		return
	}

	stream, err := h.chat.AnswerStream(c.Request.Context(), req.Message, h.retriever.BuildContext(chunks), req.Model)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("chat stream failed to open")
		c.JSON(http.StatusBadGateway, gin.H{"error": apperr.UserMessage(err)})
		return
	}
	defer stream.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("context", gin.H{"sources": buildCitations(chunks)})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			c.SSEvent("done", gin.H{})
			return false
		}
		if err != nil {
			middleware.GetLogger(c).WithError(err).Error("chat stream broke mid-response")
			c.SSEvent("error", gin.H{"error": "could not generate a response, please try again"})
			return false
		}
		if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
			c.SSEvent("message", gin.H{"content": resp.Choices[0].Delta.Content})
		}
		return true
	})
}

// Models lists the model identifiers the chat endpoint serves; clients use
// them for the per-request model override.
func (h *ChatHandler) Models(c *gin.Context) {
	models, err := h.chat.ListModels(c.Request.Context())
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("failed to list chat models")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not fetch available models"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

type searchResult struct {
	Content       string  `json:"content"`
	SourceID      string  `json:"source_id"`
	Title         string  `json:"title"`
	SequenceIndex int     `json:"sequence_index"`
	Score         float32 `json:"score"`
}

// Search returns the owner's ranked chunks for a query without invoking
// the chat model.
func (h *ChatHandler) Search(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	k, _ := strconv.Atoi(c.DefaultQuery("k", "0"))

	chunks, err := h.retriever.Retrieve(c.Request.Context(), middleware.OwnerID(c), query, k)
	if err != nil {
		respondError(c, err)
		return
	}

	results := make([]searchResult, len(chunks))
	for i, chunk := range chunks {
		results[i] = searchResult{
			Content:       chunk.Content,
			SourceID:      chunk.SourceID,
			Title:         chunk.Title,
			SequenceIndex: chunk.SequenceIndex,
			Score:         chunk.Score,
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
