package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ines/audigest/internal/domain"
	"github.com/ines/audigest/internal/repository"
)

// vectorSearcher is the slice of the vector index the retriever needs.
type vectorSearcher interface {
	Search(ctx context.Context, ownerID string, vector []float32, embeddingModel string, topK int) ([]repository.VectorHit, error)
}

// chunkHydrator resolves vector hits back to chunk rows.
type chunkHydrator interface {
	GetByIDs(ctx context.Context, ownerID string, ids []string) ([]domain.Chunk, error)
}

// embedder produces a query vector.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Retriever answers "which chunks are relevant to this question" for one
// owner. The vector index nominates candidates; the relational store is the
// source of truth for content, so a hit whose row has since been deleted is
// silently dropped rather than served stale.
type Retriever struct {
	embedder embedder
	vectors  vectorSearcher
	chunks   chunkHydrator

	defaultTopK   int
	maxTopK       int
	contextBudget int
}

// RetrieverOptions holds retrieval tuning parameters.
type RetrieverOptions struct {
	DefaultTopK   int
	MaxTopK       int
	ContextBudget int
}

// NewRetriever creates a Retriever.
func NewRetriever(emb embedder, vectors vectorSearcher, chunks chunkHydrator, opts *RetrieverOptions) *Retriever {
	return &Retriever{
		embedder:      emb,
		vectors:       vectors,
		chunks:        chunks,
		defaultTopK:   opts.DefaultTopK,
		maxTopK:       opts.MaxTopK,
		contextBudget: opts.ContextBudget,
	}
}

// clampTopK applies the default and the upper bound.
func (r *Retriever) clampTopK(k int) int {
	if k <= 0 {
		return r.defaultTopK
	}
	if k > r.maxTopK {
		return r.maxTopK
	}
	return k
}

// Retrieve returns the owner's k most relevant chunks for a question,
// ordered by descending similarity. Ties keep insertion order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner; results never cross owners.
//   - question: the query text.
//   - k: requested result count; 0 means the default, values above the
//     maximum are clamped.
// Returns:
//   - []domain.RetrievedChunk: scored chunks, most similar first.
//   - error: non-nil if embedding or search fails.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, question string, k int) ([]domain.RetrievedChunk, error) {
	k = r.clampTopK(k)

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := r.vectors.Search(ctx, ownerID, vector, r.embedder.Model(), k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float32, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ID
		scores[hit.ID] = hit.Score
	}

	rows, err := r.chunks.GetByIDs(ctx, ownerID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to hydrate chunks: %w", err)
	}

	retrieved := make([]domain.RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		retrieved = append(retrieved, domain.RetrievedChunk{
			Chunk: row,
			Score: scores[row.ID],
		})
	}

	// Hydration may reorder; restore descending similarity. SliceStable
	// keeps equal scores in row order, which is insertion order.
	sort.SliceStable(retrieved, func(i, j int) bool {
		return retrieved[i].Score > retrieved[j].Score
	})

	return retrieved, nil
}

// BuildContext renders retrieved chunks into the prompt block handed to the
// chat model. Each excerpt is numbered so answers can cite them. Chunks are
// included in rank order until the character budget runs out; at least one
// excerpt always makes it in, truncated if it alone exceeds the budget.
// The budget counts characters, not bytes, so truncation never splits a
// multi-byte rune.
// Parameters:
//   - chunks: retrieval results in rank order.
// Returns:
//   - string: prompt block, empty when nothing was retrieved.
func (r *Retriever) BuildContext(chunks []domain.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Based on these relevant excerpts from the content:\n\n")
	used := 0
	for i, chunk := range chunks {
		excerpt := fmt.Sprintf("Relevant excerpt %d: %s", i+1, chunk.Content)
		length := utf8.RuneCountInString(excerpt)
		if used+length > r.contextBudget {
			if i == 0 {
				b.WriteString(string([]rune(excerpt)[:r.contextBudget]))
				b.WriteString("... [truncated]")
			}
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(excerpt)
		used += length
	}
	return b.String()
}
