package repository

import (
	"context"
	"fmt"

	"github.com/ines/audigest/internal/domain"
	"gorm.io/gorm"
)

// ChunkRepository handles chunk row operations. Chunk writes happen through
// SourceRepository.CreateWithChunks; this repository covers the read side.
type ChunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository creates a new ChunkRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ChunkRepository: repository instance bound to db.
func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// GetByIDs retrieves the owner's chunks matching the given IDs. IDs that no
// longer exist (for example a source deleted mid-search) are silently
// dropped; the owner filter is a second enforcement of tenant isolation on
// top of the vector-side filter. Rows come back in insertion order
// (created_at, then sequence_index) on every driver; callers use that order
// to break similarity-score ties deterministically.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
//   - ids: chunk IDs from a vector search.
// Returns:
//   - []domain.Chunk: matching chunk rows in insertion order.
//   - error: non-nil if the query fails.
func (r *ChunkRepository) GetByIDs(ctx context.Context, ownerID string, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return []domain.Chunk{}, nil
	}
	var chunks []domain.Chunk
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Order("created_at ASC, sequence_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("failed to get chunks by IDs: %w", err)
	}
	return chunks, nil
}

// ListBySource retrieves a source's chunks in sequence order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
//   - sourceID: source whose chunks to list.
// Returns:
//   - []domain.Chunk: chunks ordered by sequence index.
//   - error: non-nil if the query fails.
func (r *ChunkRepository) ListBySource(ctx context.Context, ownerID, sourceID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND source_id = ?", ownerID, sourceID).
		Order("sequence_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// CountBySource counts a source's chunks.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
//   - sourceID: source whose chunks to count.
// Returns:
//   - int64: number of chunks.
//   - error: non-nil if the query fails.
func (r *ChunkRepository) CountBySource(ctx context.Context, ownerID, sourceID string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Chunk{}).
		Where("owner_id = ? AND source_id = ?", ownerID, sourceID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// ReplaceForSource swaps a source's entire chunk set in one transaction.
// Used by re-embedding; the new set must be non-empty.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
//   - sourceID: source whose chunks are replaced.
//   - chunks: replacement chunk rows.
// Returns:
//   - error: non-nil if the swap fails.
func (r *ChunkRepository) ReplaceForSource(ctx context.Context, ownerID, sourceID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("refusing to replace chunks of source %s with an empty set", sourceID)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ? AND owner_id = ?", sourceID, ownerID).Delete(&domain.Chunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete old chunks: %w", err)
		}
		if err := tx.Create(&chunks).Error; err != nil {
			return fmt.Errorf("failed to insert new chunks: %w", err)
		}
		return nil
	})
}
