package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ines/audigest/internal/domain"
	"github.com/ines/audigest/internal/repository"
	"github.com/ines/audigest/internal/service"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (stubEmbedder) Model() string { return "all-minilm" }

type stubSearcher struct{ hits []repository.VectorHit }

func (s *stubSearcher) Search(ctx context.Context, ownerID string, vector []float32, embeddingModel string, topK int) ([]repository.VectorHit, error) {
	return s.hits, nil
}

type stubHydrator struct{ rows []domain.Chunk }

func (s *stubHydrator) GetByIDs(ctx context.Context, ownerID string, ids []string) ([]domain.Chunk, error) {
	return s.rows, nil
}

func newChatRouter(searcher *stubSearcher, hydrator *stubHydrator, chat *service.ChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	retriever := service.NewRetriever(stubEmbedder{}, searcher, hydrator,
		&service.RetrieverOptions{DefaultTopK: 5, MaxTopK: 20, ContextBudget: 2000})
	h := NewChatHandler(retriever, chat)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("owner_id", "owner-1") })
	r.GET("/search", h.Search)
	r.GET("/models", h.Models)
	return r
}

func TestSearchReturnsRankedChunks(t *testing.T) {
	searcher := &stubSearcher{hits: []repository.VectorHit{
		{ID: "c1", Score: 0.4},
		{ID: "c2", Score: 0.9},
	}}
	hydrator := &stubHydrator{rows: []domain.Chunk{
		{ID: "c1", SourceID: "s1", Content: "weaker match", Title: "Talk"},
		{ID: "c2", SourceID: "s1", Content: "stronger match", Title: "Talk", SequenceIndex: 3},
	}}
	r := newChatRouter(searcher, hydrator, service.NewChatService(&service.ChatOptions{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?query=anything", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []searchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "stronger match", resp.Results[0].Content)
	assert.Equal(t, 3, resp.Results[0].SequenceIndex)
	assert.Equal(t, "weaker match", resp.Results[1].Content)
}

func TestSearchRequiresQuery(t *testing.T) {
	r := newChatRouter(&stubSearcher{}, &stubHydrator{}, service.NewChatService(&service.ChatOptions{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModelsListsIdentifiers(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"llama3","object":"model"},{"id":"mistral","object":"model"}]}`))
	}))
	defer upstream.Close()

	chat := service.NewChatService(&service.ChatOptions{BaseURL: upstream.URL})
	r := newChatRouter(&stubSearcher{}, &stubHydrator{}, chat)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Models []string `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"llama3", "mistral"}, resp.Models)
}

func TestModelsUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	chat := service.NewChatService(&service.ChatOptions{BaseURL: upstream.URL})
	r := newChatRouter(&stubSearcher{}, &stubHydrator{}, chat)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/models", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
