package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ines/audigest/internal/apperr"
	"github.com/ines/audigest/internal/domain"
	"gorm.io/gorm"
)

// SourceRepository handles source metadata operations. Every request-path
// query is scoped by owner; ListAll is the single maintenance-only exception.
type SourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository creates a new SourceRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SourceRepository: repository instance bound to db.
func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// GetByID retrieves a source owned by the given owner.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
//   - id: source ID.
// Returns:
//   - *domain.Source: source record if found and owned.
//   - error: apperr.ErrNotFound when absent or owned by someone else.
func (r *SourceRepository) GetByID(ctx context.Context, ownerID, id string) (*domain.Source, error) {
	var src domain.Source
	err := r.db.WithContext(ctx).
		First(&src, "id = ? AND owner_id = ?", id, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &src, nil
}

// ExistsByURL checks whether the owner already ingested this URL.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
//   - url: origin URL.
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *SourceRepository) ExistsByURL(ctx context.Context, ownerID, url string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Source{}).
		Where("owner_id = ? AND url = ?", ownerID, url).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check source existence: %w", err)
	}
	return count > 0, nil
}

// ListWithChunkCounts retrieves the owner's sources newest first, each with
// its chunk count.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
// Returns:
//   - []domain.SourceSummary: sources with chunk counts.
//   - error: non-nil if the query fails.
func (r *SourceRepository) ListWithChunkCounts(ctx context.Context, ownerID string) ([]domain.SourceSummary, error) {
	var summaries []domain.SourceSummary
	err := r.db.WithContext(ctx).Model(&domain.Source{}).
		Select("sources.id, sources.title, sources.url, sources.kind, sources.created_at AS added_at, COUNT(chunks.id) AS chunk_count").
		Joins("LEFT JOIN chunks ON chunks.source_id = sources.id").
		Where("sources.owner_id = ?", ownerID).
		Group("sources.id").
		Order("sources.created_at DESC").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return summaries, nil
}

// ListAll retrieves every source across all owners, oldest first. This is
// the one deliberately unscoped read, reserved for offline maintenance
// jobs; request paths never call it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.Source: all sources without chunks preloaded.
//   - error: non-nil if the query fails.
func (r *SourceRepository) ListAll(ctx context.Context) ([]domain.Source, error) {
	var sources []domain.Source
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&sources).Error; err != nil {
		return nil, fmt.Errorf("failed to list all sources: %w", err)
	}
	return sources, nil
}

// CreateWithChunks inserts a source and its full chunk set in one transaction.
// The batch is all-or-nothing; a unique violation on (owner, url) surfaces as
// apperr.ErrDuplicateSource.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - src: source record; src.Chunks must be populated and non-empty.
// Returns:
//   - error: non-nil if the insert fails.
func (r *SourceRepository) CreateWithChunks(ctx context.Context, src *domain.Source) error {
	if len(src.Chunks) == 0 {
		return fmt.Errorf("refusing to create source %s with zero chunks", src.ID)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(src).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return apperr.ErrDuplicateSource
		}
		return fmt.Errorf("failed to create source with chunks: %w", err)
	}
	return nil
}

// DeleteWithChunks removes a source and every dependent chunk transactionally.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
//   - id: source ID to delete.
// Returns:
//   - error: apperr.ErrNotFound when absent or not owned; otherwise non-nil on failure.
func (r *SourceRepository) DeleteWithChunks(ctx context.Context, ownerID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&domain.Source{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete source: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNotFound
		}
		// Explicit chunk delete alongside the FK cascade so SQLite without
		// foreign_keys=ON behaves the same as Postgres
		if err := tx.Where("source_id = ? AND owner_id = ?", id, ownerID).Delete(&domain.Chunk{}).Error; err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		return nil
	})
}

// isUniqueViolation detects a unique-constraint failure across the sqlite and
// postgres drivers, which do not share a typed error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
