package main

import (
	"context"
	"flag"

	"github.com/google/uuid"

	"github.com/ines/audigest/internal/config"
	"github.com/ines/audigest/internal/domain"
	"github.com/ines/audigest/internal/logger"
	"github.com/ines/audigest/internal/repository"
	"github.com/ines/audigest/internal/service"
	"github.com/ines/audigest/internal/storage"
)

// reembed rebuilds every source's chunks and vectors from the archived
// transcripts using the embedding model in the current configuration. Run
// it after changing embedding.model: until a source is rebuilt, search
// (which filters on the configured model) simply does not see it, so the
// job can run while the API serves traffic and can be rerun after a crash.
func main() {
	appLog := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "audigest-reembed",
	})
	logger.SetDefault(appLog)
	defer logger.Sync()

	configPath := flag.String("config", "", "Path to config file")
	dryRun := flag.Bool("dry-run", false, "List sources that would be rebuilt without touching anything")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}

	sourceRepo := repository.NewSourceRepository(db)
	chunkRepo := repository.NewChunkRepository(db)

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Embedding.Dimensions,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	ctx := context.Background()
	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	archive, err := storage.NewArchive(&storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize transcript archive")
	}

	embedder, err := service.NewEmbeddingService(&service.EmbeddingOptions{
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
		BatchSize:  cfg.Embedding.BatchSize,
		Workers:    cfg.Embedding.Workers,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize embedding service")
	}
	defer embedder.Close()
	chunker := service.NewChunker(cfg.Chunker.Size, cfg.Chunker.Overlap)

	sources, err := sourceRepo.ListAll(ctx)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to list sources")
	}

	appLog.WithFields(logger.Fields{
		logger.FieldCount: len(sources),
		"model":           cfg.Embedding.Model,
	}).Info("Starting re-embedding run")

	rebuilt, failed := 0, 0
	for _, src := range sources {
		srcLog := appLog.WithFields(logger.Fields{
			logger.FieldSourceID: src.ID,
			logger.FieldOwnerID:  src.OwnerID,
		})

		if *dryRun {
			srcLog.Info("Would rebuild source")
			continue
		}

		if err := rebuildSource(ctx, &src, cfg.Embedding.Model, archive, chunker, embedder, chunkRepo, qdrantRepo); err != nil {
			srcLog.WithError(err).Error("Failed to rebuild source, continuing")
			failed++
			continue
		}
		srcLog.Info("Rebuilt source")
		rebuilt++
	}

	appLog.WithFields(logger.Fields{
		"rebuilt": rebuilt,
		"failed":  failed,
	}).Info("Re-embedding run finished")
}

// rebuildSource replaces one source's chunk rows and vectors from its
// archived transcript. Old vectors are deleted before the new upsert; a
// crash in between leaves the source invisible to model-filtered search
// until the job reruns, which is safe.
func rebuildSource(
	ctx context.Context,
	src *domain.Source,
	model string,
	archive storage.TranscriptArchive,
	chunker *service.Chunker,
	embedder *service.EmbeddingService,
	chunkRepo *repository.ChunkRepository,
	qdrantRepo *repository.QdrantRepository,
) error {
	transcript, err := archive.GetTranscript(ctx, src.OwnerID, src.ID)
	if err != nil {
		return err
	}

	contents := chunker.Split(transcript)
	vectors, err := embedder.EmbedAll(ctx, contents)
	if err != nil {
		return err
	}

	chunks := make([]domain.Chunk, len(contents))
	points := make([]repository.ChunkPoint, len(contents))
	for i, content := range contents {
		chunks[i] = domain.Chunk{
			ID:             uuid.New().String(),
			OwnerID:        src.OwnerID,
			SourceID:       src.ID,
			Content:        content,
			SequenceIndex:  i,
			Title:          src.Title,
			EmbeddingModel: model,
		}
		points[i] = repository.ChunkPoint{
			Vector: vectors[i],
			Payload: repository.ChunkPayload{
				ChunkID:        chunks[i].ID,
				OwnerID:        src.OwnerID,
				SourceID:       src.ID,
				SequenceIndex:  i,
				EmbeddingModel: model,
			},
		}
	}

	if err := chunkRepo.ReplaceForSource(ctx, src.OwnerID, src.ID, chunks); err != nil {
		return err
	}
	if err := qdrantRepo.DeleteBySource(ctx, src.OwnerID, src.ID); err != nil {
		return err
	}
	return qdrantRepo.UpsertBatch(ctx, points)
}
