package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ines/audigest/internal/apperr"
	"github.com/ines/audigest/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON")
	if err := db.AutoMigrate(&domain.Source{}, &domain.Chunk{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func makeSource(ownerID, url string, chunkCount int) *domain.Source {
	src := &domain.Source{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Title:   "Some Talk",
		URL:     url,
		Kind:    domain.SourceKindVideo,
	}
	for i := 0; i < chunkCount; i++ {
		src.Chunks = append(src.Chunks, domain.Chunk{
			ID:             uuid.New().String(),
			OwnerID:        ownerID,
			SourceID:       src.ID,
			Content:        fmt.Sprintf("chunk %d", i),
			SequenceIndex:  i,
			Title:          src.Title,
			EmbeddingModel: "all-minilm",
		})
	}
	return src
}

func TestCreateWithChunksAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewSourceRepository(db)
	ctx := context.Background()

	src := makeSource("owner-1", "https://youtu.be/a", 3)
	if err := repo.CreateWithChunks(ctx, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := repo.GetByID(ctx, "owner-1", src.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.URL != src.URL {
		t.Errorf("expected URL %q, got %q", src.URL, got.URL)
	}

	var chunkCount int64
	db.Model(&domain.Chunk{}).Where("source_id = ?", src.ID).Count(&chunkCount)
	if chunkCount != 3 {
		t.Errorf("expected 3 chunk rows, got %d", chunkCount)
	}
}

func TestCreateWithChunksRejectsEmpty(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))

	src := makeSource("owner-1", "https://youtu.be/a", 0)
	if err := repo.CreateWithChunks(context.Background(), src); err == nil {
		t.Fatal("expected error for zero chunks")
	}
}

func TestCreateWithChunksDuplicateURL(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.CreateWithChunks(ctx, makeSource("owner-1", "https://youtu.be/a", 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := repo.CreateWithChunks(ctx, makeSource("owner-1", "https://youtu.be/a", 1))
	if !errors.Is(err, apperr.ErrDuplicateSource) {
		t.Fatalf("expected ErrDuplicateSource, got %v", err)
	}
}

func TestSameURLDifferentOwnersAllowed(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))
	ctx := context.Background()

	if err := repo.CreateWithChunks(ctx, makeSource("owner-1", "https://youtu.be/a", 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.CreateWithChunks(ctx, makeSource("owner-2", "https://youtu.be/a", 1)); err != nil {
		t.Fatalf("same URL for another owner must be allowed, got %v", err)
	}
}

func TestGetByIDOwnerIsolation(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))
	ctx := context.Background()

	src := makeSource("owner-1", "https://youtu.be/a", 1)
	if err := repo.CreateWithChunks(ctx, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Another owner sees not-found, never someone else's data.
	if _, err := repo.GetByID(ctx, "owner-2", src.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestDeleteWithChunksCascades(t *testing.T) {
	db := newTestDB(t)
	repo := NewSourceRepository(db)
	ctx := context.Background()

	src := makeSource("owner-1", "https://youtu.be/a", 4)
	if err := repo.CreateWithChunks(ctx, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.DeleteWithChunks(ctx, "owner-1", src.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var chunkCount int64
	db.Model(&domain.Chunk{}).Where("source_id = ?", src.ID).Count(&chunkCount)
	if chunkCount != 0 {
		t.Errorf("expected no chunk rows after delete, got %d", chunkCount)
	}
	if _, err := repo.GetByID(ctx, "owner-1", src.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestDeleteWithChunksForeignOwner(t *testing.T) {
	db := newTestDB(t)
	repo := NewSourceRepository(db)
	ctx := context.Background()

	src := makeSource("owner-1", "https://youtu.be/a", 2)
	if err := repo.CreateWithChunks(ctx, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.DeleteWithChunks(ctx, "owner-2", src.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}

	var chunkCount int64
	db.Model(&domain.Chunk{}).Where("source_id = ?", src.ID).Count(&chunkCount)
	if chunkCount != 2 {
		t.Errorf("foreign delete must not remove chunks, got %d rows", chunkCount)
	}
}

func TestListWithChunkCounts(t *testing.T) {
	repo := NewSourceRepository(newTestDB(t))
	ctx := context.Background()

	first := makeSource("owner-1", "https://youtu.be/a", 2)
	second := makeSource("owner-1", "https://youtu.be/b", 5)
	foreign := makeSource("owner-2", "https://youtu.be/c", 1)
	for _, src := range []*domain.Source{first, second, foreign} {
		if err := repo.CreateWithChunks(ctx, src); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	summaries, err := repo.ListWithChunkCounts(ctx, "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 sources for owner-1, got %d", len(summaries))
	}

	counts := map[string]int64{}
	for _, s := range summaries {
		counts[s.ID] = s.ChunkCount
	}
	if counts[first.ID] != 2 || counts[second.ID] != 5 {
		t.Errorf("unexpected chunk counts: %v", counts)
	}
}

func TestChunkRepositoryGetByIDsDropsForeignAndMissing(t *testing.T) {
	db := newTestDB(t)
	sourceRepo := NewSourceRepository(db)
	chunkRepo := NewChunkRepository(db)
	ctx := context.Background()

	mine := makeSource("owner-1", "https://youtu.be/a", 2)
	theirs := makeSource("owner-2", "https://youtu.be/b", 1)
	if err := sourceRepo.CreateWithChunks(ctx, mine); err != nil {
		t.Fatal(err)
	}
	if err := sourceRepo.CreateWithChunks(ctx, theirs); err != nil {
		t.Fatal(err)
	}

	ids := []string{
		mine.Chunks[0].ID,
		mine.Chunks[1].ID,
		theirs.Chunks[0].ID, // foreign, must be dropped
		uuid.New().String(), // dangling, must be dropped
	}
	got, err := chunkRepo.GetByIDs(ctx, "owner-1", ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected only the 2 owned chunks, got %d", len(got))
	}
	for _, chunk := range got {
		if chunk.OwnerID != "owner-1" {
			t.Errorf("leaked foreign chunk %s", chunk.ID)
		}
	}
}

func TestChunkRepositoryGetByIDsInsertionOrder(t *testing.T) {
	db := newTestDB(t)
	sourceRepo := NewSourceRepository(db)
	chunkRepo := NewChunkRepository(db)
	ctx := context.Background()

	older := makeSource("owner-1", "https://youtu.be/a", 2)
	newer := makeSource("owner-1", "https://youtu.be/b", 2)
	// Insert the newer source's rows first so physical row order disagrees
	// with insertion time; the query must order explicitly, not rely on
	// whatever the driver's scan happens to produce.
	if err := sourceRepo.CreateWithChunks(ctx, newer); err != nil {
		t.Fatal(err)
	}
	if err := sourceRepo.CreateWithChunks(ctx, older); err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, chunk := range older.Chunks {
		db.Model(&domain.Chunk{}).Where("id = ?", chunk.ID).Update("created_at", base.Add(time.Duration(i)*time.Second))
	}
	for i, chunk := range newer.Chunks {
		db.Model(&domain.Chunk{}).Where("id = ?", chunk.ID).Update("created_at", base.Add(time.Hour).Add(time.Duration(i)*time.Second))
	}

	ids := []string{newer.Chunks[1].ID, older.Chunks[1].ID, newer.Chunks[0].ID, older.Chunks[0].ID}
	got, err := chunkRepo.GetByIDs(ctx, "owner-1", ids)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{older.Chunks[0].ID, older.Chunks[1].ID, newer.Chunks[0].ID, newer.Chunks[1].ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(got))
	}
	for i, chunk := range got {
		if chunk.ID != want[i] {
			t.Errorf("position %d: expected chunk %s, got %s", i, want[i], chunk.ID)
		}
	}
}

func TestChunkRepositoryReplaceForSource(t *testing.T) {
	db := newTestDB(t)
	sourceRepo := NewSourceRepository(db)
	chunkRepo := NewChunkRepository(db)
	ctx := context.Background()

	src := makeSource("owner-1", "https://youtu.be/a", 3)
	if err := sourceRepo.CreateWithChunks(ctx, src); err != nil {
		t.Fatal(err)
	}

	replacement := []domain.Chunk{
		{
			ID:             uuid.New().String(),
			OwnerID:        "owner-1",
			SourceID:       src.ID,
			Content:        "rebuilt",
			SequenceIndex:  0,
			Title:          src.Title,
			EmbeddingModel: "new-model",
		},
	}
	if err := chunkRepo.ReplaceForSource(ctx, "owner-1", src.ID, replacement); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := chunkRepo.ListBySource(ctx, "owner-1", src.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 chunk after replace, got %d", len(rows))
	}
	if rows[0].EmbeddingModel != "new-model" {
		t.Errorf("expected new model tag, got %q", rows[0].EmbeddingModel)
	}
}
