package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ines/audigest/internal/apperr"
)

// embeddingTestServer answers /embeddings with one fixed-dimension vector
// per input and tracks how many requests are in flight at once.
func embeddingTestServer(t *testing.T, dims int, inFlight, maxInFlight *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(inFlight, 1)
		defer atomic.AddInt32(inFlight, -1)
		for {
			prev := atomic.LoadInt32(maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt32(maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)

		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float32, dims)
			data[i] = map[string]any{"embedding": vec, "index": i}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestEmbedAllSharedPoolBoundsConcurrency(t *testing.T) {
	var inFlight, maxInFlight int32
	srv := embeddingTestServer(t, 3, &inFlight, &maxInFlight)
	defer srv.Close()

	svc, err := NewEmbeddingService(&EmbeddingOptions{
		BaseURL:    srv.URL,
		Model:      "all-minilm",
		Dimensions: 3,
		BatchSize:  1,
		Workers:    2,
	})
	require.NoError(t, err)
	defer svc.Close()

	texts := make([]string, 8)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}
	vectors, err := svc.EmbedAll(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, vectors, 8)
	for _, vec := range vectors {
		assert.Len(t, vec, 3)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2),
		"fan-out must not exceed the configured worker count")
}

func TestEmbedAllPoolSurvivesAcrossCalls(t *testing.T) {
	var inFlight, maxInFlight int32
	srv := embeddingTestServer(t, 3, &inFlight, &maxInFlight)
	defer srv.Close()

	svc, err := NewEmbeddingService(&EmbeddingOptions{
		BaseURL:    srv.URL,
		Model:      "all-minilm",
		Dimensions: 3,
		BatchSize:  1,
		Workers:    2,
	})
	require.NoError(t, err)
	defer svc.Close()

	for run := 0; run < 2; run++ {
		vectors, err := svc.EmbedAll(context.Background(), []string{"a", "b", "c"})
		require.NoError(t, err, "run %d", run)
		require.Len(t, vectors, 3, "run %d", run)
	}
}

func TestEmbedAllDimensionMismatchFailsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2],"index":0}]}`))
	}))
	defer srv.Close()

	svc, err := NewEmbeddingService(&EmbeddingOptions{
		BaseURL:    srv.URL,
		Model:      "all-minilm",
		Dimensions: 3,
	})
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.EmbedAll(context.Background(), []string{"a"})
	require.ErrorIs(t, err, apperr.ErrEmbeddingBatch)
}
