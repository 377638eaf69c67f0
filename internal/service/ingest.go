package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ines/audigest/internal/acquire"
	"github.com/ines/audigest/internal/apperr"
	"github.com/ines/audigest/internal/domain"
	"github.com/ines/audigest/internal/logger"
	"github.com/ines/audigest/internal/repository"
)

// acquirer resolves a URL to a local asset.
type acquirer interface {
	Acquire(ctx context.Context, rawURL string) (*acquire.Asset, error)
}

// batchEmbedder embeds a whole chunk set.
type batchEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// summarizer produces a short summary of a transcript.
type summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// libraryCommitter is the slice of the library the pipeline needs.
type libraryCommitter interface {
	Exists(ctx context.Context, ownerID, url string) (bool, error)
	Commit(ctx context.Context, src *domain.Source, transcript string, points []repository.ChunkPoint) error
}

// IngestService runs the full pipeline: acquire, transcribe, chunk, embed,
// commit. Nothing is persisted until every stage has succeeded, so a
// failure anywhere leaves no trace of the source.
type IngestService struct {
	engine      acquirer
	transcriber Transcriber
	chunker     *Chunker
	embedder    batchEmbedder
	library     libraryCommitter
	chat        summarizer
	log         *logger.Logger
}

// NewIngestService creates an IngestService.
func NewIngestService(engine acquirer, transcriber Transcriber, chunker *Chunker, embedder batchEmbedder, library libraryCommitter, chat summarizer, log *logger.Logger) *IngestService {
	return &IngestService{
		engine:      engine,
		transcriber: transcriber,
		chunker:     chunker,
		embedder:    embedder,
		library:     library,
		chat:        chat,
		log:         log,
	}
}

// IngestResult is what a successful pipeline run reports back.
type IngestResult struct {
	Source     *domain.Source
	Transcript string
	Summary    string
	ChunkCount int
}

// IngestURL ingests a remote source. Duplicate (owner, URL) pairs are
// rejected before any network work starts.
// Parameters:
//   - ctx: context for cancellation; bounds the whole pipeline.
//   - ownerID: authenticated owner.
//   - rawURL: source URL.
// Returns:
//   - *IngestResult: the created source, its chunk count, and a summary.
//   - error: classified pipeline error; no source exists when non-nil.
func (s *IngestService) IngestURL(ctx context.Context, ownerID, rawURL string) (*IngestResult, error) {
	if _, err := acquire.Classify(rawURL); err != nil {
		return nil, err
	}

	exists, err := s.library.Exists(ctx, ownerID, rawURL)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", apperr.ErrDuplicateSource, rawURL)
	}

	asset, err := s.engine.Acquire(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer asset.Release()

	transcript := asset.Transcript
	if !asset.HasTranscript() {
		transcript, err = s.transcriber.Transcribe(ctx, asset.Path)
		if err != nil {
			return nil, err
		}
	}

	return s.finish(ctx, ownerID, asset.Title, rawURL, asset.Kind, transcript)
}

// IngestUpload ingests a locally uploaded audio file. Uploads have no
// origin URL, so each gets a synthetic unique one and dedup does not apply.
// Parameters:
//   - ctx: context for cancellation; bounds the whole pipeline.
//   - ownerID: authenticated owner.
//   - filename: original upload filename, used for the title.
//   - audioPath: local path to the uploaded audio.
// Returns:
//   - *IngestResult: the created source, its chunk count, and a summary.
//   - error: classified pipeline error; no source exists when non-nil.
func (s *IngestService) IngestUpload(ctx context.Context, ownerID, filename, audioPath string) (*IngestResult, error) {
	transcript, err := s.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if title == "" {
		title = "Uploaded audio"
	}
	syntheticURL := fmt.Sprintf("upload://%s/%s", uuid.New().String(), filename)

	return s.finish(ctx, ownerID, title, syntheticURL, domain.SourceKindUpload, transcript)
}

// finish runs the persistence half of the pipeline shared by both entry
// points: chunk, embed, commit, summarize.
func (s *IngestService) finish(ctx context.Context, ownerID, title, url string, kind domain.SourceKind, transcript string) (*IngestResult, error) {
	chunks := s.chunker.Split(transcript)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: transcript produced no chunks", apperr.ErrTranscription)
	}

	start := time.Now()
	vectors, err := s.embedder.EmbedAll(ctx, chunks)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logger.Fields{
		logger.FieldOwnerID:    ownerID,
		logger.FieldCount:      len(chunks),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Debug("embedded chunk batch")

	src := &domain.Source{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Title:   title,
		URL:     url,
		Kind:    kind,
	}

	model := s.embedder.Model()
	points := make([]repository.ChunkPoint, len(chunks))
	for i, content := range chunks {
		chunk := domain.Chunk{
			ID:             uuid.New().String(),
			OwnerID:        ownerID,
			SourceID:       src.ID,
			Content:        content,
			SequenceIndex:  i,
			Title:          title,
			EmbeddingModel: model,
		}
		src.Chunks = append(src.Chunks, chunk)
		points[i] = repository.ChunkPoint{
			Vector: vectors[i],
			Payload: repository.ChunkPayload{
				ChunkID:        chunk.ID,
				OwnerID:        ownerID,
				SourceID:       src.ID,
				SequenceIndex:  i,
				EmbeddingModel: model,
			},
		}
	}

	if err := s.library.Commit(ctx, src, transcript, points); err != nil {
		return nil, err
	}

	// The source is committed; a failed summary degrades the response, it
	// does not undo a finished pipeline.
	summary, err := s.chat.Summarize(ctx, transcript)
	if err != nil {
		s.log.WithFields(logger.Fields{
			logger.FieldSourceID: src.ID,
			logger.FieldOwnerID:  ownerID,
		}).WithError(err).Warn("summary generation failed after commit")
		summary = ""
	}

	return &IngestResult{
		Source:     src,
		Transcript: transcript,
		Summary:    summary,
		ChunkCount: len(chunks),
	}, nil
}
