package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/ines/audigest/internal/apperr"
)

// EmbeddingService generates embeddings through an OpenAI-compatible
// /embeddings endpoint. Large transcripts are split into batches and
// embedded concurrently; all-or-nothing semantics apply, a single failed
// batch rejects the whole set so no partially indexed source can exist.
type EmbeddingService struct {
	client     *resty.Client
	model      string
	dimensions int
	batchSize  int

	// One pool for the whole process; concurrent ingestions share the
	// same worker bound instead of multiplying it.
	pool *ants.Pool
}

// EmbeddingOptions holds configuration for the embedding service.
type EmbeddingOptions struct {
	BaseURL    string
	Model      string
	APIKey     string
	Dimensions int
	BatchSize  int
	Workers    int
}

// NewEmbeddingService creates a new embedding service.
func NewEmbeddingService(opts *EmbeddingOptions) (*EmbeddingService, error) {
	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetHeader("Content-Type", "application/json")
	if opts.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+opts.APIKey)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding worker pool: %w", err)
	}

	return &EmbeddingService{
		client:     client,
		model:      opts.Model,
		dimensions: opts.Dimensions,
		batchSize:  batchSize,
		pool:       pool,
	}, nil
}

// Close releases the worker pool.
func (s *EmbeddingService) Close() {
	s.pool.Release()
}

// Model returns the embedding model identifier. Stored alongside every
// vector so mixed-model search results can never happen.
func (s *EmbeddingService) Model() string {
	return s.model
}

// Dimensions returns the expected vector dimensionality.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed generates an embedding for a single text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", apperr.ErrEmbeddingBatch)
	}
	return embeddings[0], nil
}

// EmbedAll embeds every text, fanning batches out over a worker pool.
// Output order matches input order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - texts: chunk contents to embed.
// Returns:
//   - [][]float32: one vector per input, same order.
//   - error: ErrEmbeddingBatch if any batch fails; no partial results.
func (s *EmbeddingService) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) <= s.batchSize {
		return s.embedBatch(ctx, texts)
	}

	type batch struct {
		start int
		texts []string
	}
	var batches []batch
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, batch{start: start, texts: texts[start:end]})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]float32, len(texts))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, b := range batches {
		b := b
		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()
			vectors, err := s.embedBatch(ctx, b.texts)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel() // abandon remaining batches, the whole set is rejected
				}
				mu.Unlock()
				return
			}
			copy(results[b.start:], vectors)
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to submit embedding batch: %w", submitErr)
			}
			mu.Unlock()
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// embedBatch embeds one batch in a single API call.
func (s *EmbeddingService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{
		Model: s.model,
		Input: texts,
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrEmbeddingBatch, err)
	}
	if httpResp.IsError() {
		if resp.Error.Message != "" {
			return nil, fmt.Errorf("%w: %s", apperr.ErrEmbeddingBatch, resp.Error.Message)
		}
		return nil, fmt.Errorf("%w: status %d", apperr.ErrEmbeddingBatch, httpResp.StatusCode())
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings, expected %d", apperr.ErrEmbeddingBatch, len(resp.Data), len(texts))
	}

	// Sort by index to ensure correct order
	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index >= len(embeddings) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", apperr.ErrEmbeddingBatch, item.Index)
		}
		embeddings[item.Index] = item.Embedding
	}
	for i, emb := range embeddings {
		if len(emb) != s.dimensions {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, expected %d", apperr.ErrEmbeddingBatch, i, len(emb), s.dimensions)
		}
	}

	return embeddings, nil
}
