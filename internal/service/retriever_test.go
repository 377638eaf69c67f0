package service

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ines/audigest/internal/domain"
	"github.com/ines/audigest/internal/repository"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, f.err
}

func (f *fakeEmbedder) Model() string { return "all-minilm" }

type fakeSearcher struct {
	hits     []repository.VectorHit
	gotOwner string
	gotModel string
	gotTopK  int
}

func (f *fakeSearcher) Search(ctx context.Context, ownerID string, vector []float32, embeddingModel string, topK int) ([]repository.VectorHit, error) {
	f.gotOwner = ownerID
	f.gotModel = embeddingModel
	f.gotTopK = topK
	return f.hits, nil
}

type fakeHydrator struct {
	rows []domain.Chunk
}

func (f *fakeHydrator) GetByIDs(ctx context.Context, ownerID string, ids []string) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for _, row := range f.rows {
		for _, id := range ids {
			if row.ID == id {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func newTestRetriever(searcher *fakeSearcher, hydrator *fakeHydrator) *Retriever {
	return NewRetriever(
		&fakeEmbedder{vector: []float32{0.1, 0.2}},
		searcher,
		hydrator,
		&RetrieverOptions{DefaultTopK: 5, MaxTopK: 20, ContextBudget: 200},
	)
}

func TestRetrieveOrdersByScoreDescending(t *testing.T) {
	searcher := &fakeSearcher{hits: []repository.VectorHit{
		{ID: "c1", Score: 0.42},
		{ID: "c2", Score: 0.91},
		{ID: "c3", Score: 0.77},
	}}
	hydrator := &fakeHydrator{rows: []domain.Chunk{
		{ID: "c1", Content: "first"},
		{ID: "c2", Content: "second"},
		{ID: "c3", Content: "third"},
	}}

	got, err := newTestRetriever(searcher, hydrator).Retrieve(context.Background(), "owner-1", "question", 3)

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "c2", got[0].ID)
	assert.Equal(t, "c3", got[1].ID)
	assert.Equal(t, "c1", got[2].ID)
}

func TestRetrieveTiesKeepInsertionOrder(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	searcher := &fakeSearcher{hits: []repository.VectorHit{
		{ID: "newer", Score: 0.5},
		{ID: "older", Score: 0.5},
	}}
	// Hydration returns rows in insertion order.
	hydrator := &fakeHydrator{rows: []domain.Chunk{
		{ID: "older", Content: "a", CreatedAt: early},
		{ID: "newer", Content: "b", CreatedAt: late},
	}}

	got, err := newTestRetriever(searcher, hydrator).Retrieve(context.Background(), "owner-1", "question", 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "older", got[0].ID)
	assert.Equal(t, "newer", got[1].ID)
}

func TestRetrieveDropsDanglingHits(t *testing.T) {
	searcher := &fakeSearcher{hits: []repository.VectorHit{
		{ID: "alive", Score: 0.9},
		{ID: "deleted", Score: 0.8},
	}}
	hydrator := &fakeHydrator{rows: []domain.Chunk{
		{ID: "alive", Content: "still here"},
	}}

	got, err := newTestRetriever(searcher, hydrator).Retrieve(context.Background(), "owner-1", "question", 2)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alive", got[0].ID)
}

func TestRetrieveTopKClamping(t *testing.T) {
	tests := []struct {
		name     string
		k        int
		wantTopK int
	}{
		{name: "zero uses default", k: 0, wantTopK: 5},
		{name: "negative uses default", k: -3, wantTopK: 5},
		{name: "in range passes through", k: 7, wantTopK: 7},
		{name: "above max clamps", k: 500, wantTopK: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &fakeSearcher{}
			_, err := newTestRetriever(searcher, &fakeHydrator{}).Retrieve(context.Background(), "owner-1", "q", tt.k)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTopK, searcher.gotTopK)
		})
	}
}

func TestRetrievePassesOwnerAndModelToSearch(t *testing.T) {
	searcher := &fakeSearcher{}

	_, err := newTestRetriever(searcher, &fakeHydrator{}).Retrieve(context.Background(), "owner-42", "q", 5)

	require.NoError(t, err)
	assert.Equal(t, "owner-42", searcher.gotOwner)
	assert.Equal(t, "all-minilm", searcher.gotModel)
}

func TestBuildContextNumbersExcerpts(t *testing.T) {
	r := newTestRetriever(&fakeSearcher{}, &fakeHydrator{})
	chunks := []domain.RetrievedChunk{
		{Chunk: domain.Chunk{Content: "alpha"}},
		{Chunk: domain.Chunk{Content: "beta"}},
	}

	got := r.BuildContext(chunks)

	assert.Contains(t, got, "Relevant excerpt 1: alpha")
	assert.Contains(t, got, "Relevant excerpt 2: beta")
}

func TestBuildContextRespectsBudget(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, &fakeSearcher{}, &fakeHydrator{},
		&RetrieverOptions{DefaultTopK: 5, MaxTopK: 20, ContextBudget: 80})
	chunks := []domain.RetrievedChunk{
		{Chunk: domain.Chunk{Content: strings.Repeat("x", 50)}},
		{Chunk: domain.Chunk{Content: strings.Repeat("y", 50)}},
	}

	got := r.BuildContext(chunks)

	assert.Contains(t, got, "excerpt 1")
	assert.NotContains(t, got, "excerpt 2")
}

func TestBuildContextTruncatesOversizedFirstChunk(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, &fakeSearcher{}, &fakeHydrator{},
		&RetrieverOptions{DefaultTopK: 5, MaxTopK: 20, ContextBudget: 40})
	chunks := []domain.RetrievedChunk{
		{Chunk: domain.Chunk{Content: strings.Repeat("z", 500)}},
	}

	got := r.BuildContext(chunks)

	assert.Contains(t, got, "[truncated]")
	assert.Less(t, len(got), 200)
}

func TestBuildContextTruncatesOnRuneBoundary(t *testing.T) {
	r := NewRetriever(&fakeEmbedder{}, &fakeSearcher{}, &fakeHydrator{},
		&RetrieverOptions{DefaultTopK: 5, MaxTopK: 20, ContextBudget: 40})
	chunks := []domain.RetrievedChunk{
		{Chunk: domain.Chunk{Content: strings.Repeat("日", 500)}},
	}

	got := r.BuildContext(chunks)

	assert.True(t, utf8.ValidString(got), "truncation must not split a rune")
	assert.Contains(t, got, "[truncated]")
	assert.NotContains(t, got, string(utf8.RuneError))
}

func TestBuildContextBudgetCountsRunes(t *testing.T) {
	// 30 three-byte runes fit a 60-character budget even though the
	// excerpt is far over 60 bytes.
	r := NewRetriever(&fakeEmbedder{}, &fakeSearcher{}, &fakeHydrator{},
		&RetrieverOptions{DefaultTopK: 5, MaxTopK: 20, ContextBudget: 60})
	content := strings.Repeat("語", 30)
	chunks := []domain.RetrievedChunk{
		{Chunk: domain.Chunk{Content: content}},
	}

	got := r.BuildContext(chunks)

	assert.Contains(t, got, content)
	assert.NotContains(t, got, "[truncated]")
}

func TestBuildContextEmptyResults(t *testing.T) {
	r := newTestRetriever(&fakeSearcher{}, &fakeHydrator{})

	assert.Empty(t, r.BuildContext(nil))
}
