package service

import (
	"context"
	"fmt"

	"github.com/ines/audigest/internal/domain"
	"github.com/ines/audigest/internal/logger"
	"github.com/ines/audigest/internal/repository"
	"github.com/ines/audigest/internal/storage"
)

// vectorStore is the slice of the vector index the library needs.
type vectorStore interface {
	UpsertBatch(ctx context.Context, points []repository.ChunkPoint) error
	DeleteBySource(ctx context.Context, ownerID, sourceID string) error
}

// sourceStore is the slice of the relational store the library needs.
type sourceStore interface {
	GetByID(ctx context.Context, ownerID, id string) (*domain.Source, error)
	ExistsByURL(ctx context.Context, ownerID, url string) (bool, error)
	ListWithChunkCounts(ctx context.Context, ownerID string) ([]domain.SourceSummary, error)
	CreateWithChunks(ctx context.Context, src *domain.Source) error
	DeleteWithChunks(ctx context.Context, ownerID, id string) error
}

// LibraryService owns the source lifecycle: the all-or-nothing commit at
// the end of ingestion, listing, and cascading deletion. Writes are ordered
// so a crash at any point leaves either a fully visible source or garbage
// that no search can reach: vectors are written last and deleted first,
// because every search starts in the vector index.
type LibraryService struct {
	sources sourceStore
	vectors vectorStore
	archive storage.TranscriptArchive
	log     *logger.Logger
}

// NewLibraryService creates a LibraryService.
func NewLibraryService(sources sourceStore, vectors vectorStore, archive storage.TranscriptArchive, log *logger.Logger) *LibraryService {
	return &LibraryService{
		sources: sources,
		vectors: vectors,
		archive: archive,
		log:     log,
	}
}

// Commit persists a fully processed source: transcript to the archive,
// source and chunk rows in one transaction, then vectors. A vector upsert
// failure rolls the rows and the archived transcript back, so a source
// either exists completely or not at all.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - src: source with its chunks attached; at least one chunk required.
//   - transcript: full transcript text to archive.
//   - points: one vector per chunk, same order.
// Returns:
//   - error: non-nil if any stage failed; partial writes are undone.
func (s *LibraryService) Commit(ctx context.Context, src *domain.Source, transcript string, points []repository.ChunkPoint) error {
	if len(src.Chunks) == 0 {
		return fmt.Errorf("refusing to commit source %s with no chunks", src.ID)
	}
	if len(points) != len(src.Chunks) {
		return fmt.Errorf("point count %d does not match chunk count %d", len(points), len(src.Chunks))
	}

	if err := s.archive.PutTranscript(ctx, src.OwnerID, src.ID, transcript); err != nil {
		return fmt.Errorf("failed to archive transcript: %w", err)
	}

	if err := s.sources.CreateWithChunks(ctx, src); err != nil {
		s.rollbackArchive(ctx, src.OwnerID, src.ID)
		return err
	}

	if err := s.vectors.UpsertBatch(ctx, points); err != nil {
		// Compensate: pull the rows and the transcript back out so the
		// half-committed source is not visible to listing.
		if dbErr := s.sources.DeleteWithChunks(ctx, src.OwnerID, src.ID); dbErr != nil {
			s.log.WithFields(logger.Fields{
				logger.FieldSourceID: src.ID,
				logger.FieldOwnerID:  src.OwnerID,
			}).WithError(dbErr).Error("failed to roll back source rows after vector upsert failure")
		}
		s.rollbackArchive(ctx, src.OwnerID, src.ID)
		return fmt.Errorf("failed to index vectors: %w", err)
	}

	return nil
}

func (s *LibraryService) rollbackArchive(ctx context.Context, ownerID, sourceID string) {
	if err := s.archive.DeleteTranscript(ctx, ownerID, sourceID); err != nil {
		s.log.WithFields(logger.Fields{
			logger.FieldSourceID: sourceID,
			logger.FieldOwnerID:  ownerID,
		}).WithError(err).Error("failed to roll back archived transcript")
	}
}

// Delete removes a source and everything hanging off it. Vectors go first:
// once they are gone no search can surface the source, so a crash between
// the two deletes leaves unreachable rows rather than orphaned vectors.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - ownerID: authenticated owner.
//   - sourceID: source to delete.
// Returns:
//   - error: ErrNotFound if the source does not exist or belongs to
//     another owner.
func (s *LibraryService) Delete(ctx context.Context, ownerID, sourceID string) error {
	if _, err := s.sources.GetByID(ctx, ownerID, sourceID); err != nil {
		return err
	}

	if err := s.vectors.DeleteBySource(ctx, ownerID, sourceID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	if err := s.sources.DeleteWithChunks(ctx, ownerID, sourceID); err != nil {
		return err
	}

	// The archived transcript is unreachable now; losing this delete only
	// wastes storage, so it never fails the request.
	s.rollbackArchive(ctx, ownerID, sourceID)

	return nil
}

// Get returns one source with its chunks.
func (s *LibraryService) Get(ctx context.Context, ownerID, sourceID string) (*domain.Source, error) {
	return s.sources.GetByID(ctx, ownerID, sourceID)
}

// List returns the owner's sources, newest first, with chunk counts.
func (s *LibraryService) List(ctx context.Context, ownerID string) ([]domain.SourceSummary, error) {
	return s.sources.ListWithChunkCounts(ctx, ownerID)
}

// Exists reports whether the owner already ingested this URL.
func (s *LibraryService) Exists(ctx context.Context, ownerID, url string) (bool, error) {
	return s.sources.ExistsByURL(ctx, ownerID, url)
}
