package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ines/audigest/internal/acquire"
	"github.com/ines/audigest/internal/api"
	"github.com/ines/audigest/internal/config"
	"github.com/ines/audigest/internal/logger"
	"github.com/ines/audigest/internal/repository"
	"github.com/ines/audigest/internal/service"
	"github.com/ines/audigest/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.New(nil)
	logger.SetDefault(appLog)
	defer logger.Sync()

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
	if err := archive.EnsureBucket(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to ensure archive bucket")
	}

	embeddingService, err := service.NewEmbeddingService(&service.EmbeddingOptions{
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
	defer embeddingService.Close()

	transcriber := service.NewWhisperTranscriber(&service.TranscriberOptions{
		BaseURL: cfg.Transcriber.BaseURL,
		Model:   cfg.Transcriber.Model,
		APIKey:  cfg.Transcriber.APIKey,
	})

	chatService := service.NewChatService(&service.ChatOptions{
		BaseURL:      cfg.Chat.BaseURL,
		Model:        cfg.Chat.Model,
		APIKey:       cfg.Chat.APIKey,
		SummaryLimit: cfg.Chat.SummaryLimit,
	})

	engine := acquire.NewEngine(&acquire.Config{
		Timeout:   cfg.Acquire.Timeout,
		YtDlpPath: cfg.Acquire.YtDlpPath,
		WorkDir:   cfg.Acquire.WorkDir,
	}, appLog)

	libraryService := service.NewLibraryService(sourceRepo, qdrantRepo, archive, appLog)

	ingestService := service.NewIngestService(
		engine,
		transcriber,
		service.NewChunker(cfg.Chunker.Size, cfg.Chunker.Overlap),
		embeddingService,
		libraryService,
		chatService,
		appLog,
	)

	retriever := service.NewRetriever(embeddingService, qdrantRepo, chunkRepo, &service.RetrieverOptions{
		DefaultTopK:   cfg.Retriever.TopK,
		MaxTopK:       cfg.Retriever.MaxTopK,
		ContextBudget: cfg.Retriever.ContextBudget,
	})

	router := api.SetupRouter(&api.RouterDeps{
		Config:      cfg,
		Log:         appLog,
		DB:          db,
		Vectors:     qdrantRepo,
		Ingest:      ingestService,
		Library:     libraryService,
		Retriever:   retriever,
		Chat:        chatService,
		Transcriber: transcriber,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLog.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Fatal("Server forced to shutdown")
	}

	appLog.Info("Server exited")
}
