package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ines/audigest/internal/api/handler"
	"github.com/ines/audigest/internal/api/middleware"
	"github.com/ines/audigest/internal/config"
	"github.com/ines/audigest/internal/logger"
	"github.com/ines/audigest/internal/repository"
	"github.com/ines/audigest/internal/service"
)

// RouterDeps bundles everything the router wires together.
type RouterDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	DB          *gorm.DB
	Vectors     *repository.QdrantRepository
	Ingest      *service.IngestService
	Library     *service.LibraryService
	Retriever   *service.Retriever
	Chat        *service.ChatService
	Transcriber *service.WhisperTranscriber
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(deps *RouterDeps) *gin.Engine {
	switch deps.Config.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  deps.Config.Server.CORS.AllowedOrigins,
		AllowAllOrigins: deps.Config.Server.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(deps.DB, deps.Vectors, deps.Chat, deps.Transcriber)
	ingestHandler := handler.NewIngestHandler(deps.Ingest)
	sourceHandler := handler.NewSourceHandler(deps.Library)
	chatHandler := handler.NewChatHandler(deps.Retriever, deps.Chat)

	// Health check, unauthenticated
	r.GET("/health", healthHandler.Health)

	// Everything else requires a bearer token
	authed := r.Group("/", middleware.Auth(deps.Config.Auth.JWTSecret))
	{
		// Ingestion
		authed.POST("/process-url", ingestHandler.ProcessURL)
		authed.POST("/process-audio", ingestHandler.ProcessAudio)

		// Chat and retrieval
		authed.POST("/chat", chatHandler.Chat)
		authed.POST("/chat/stream", chatHandler.ChatStream)
		authed.GET("/search", chatHandler.Search)
		authed.GET("/models", chatHandler.Models)

		// Sources
		authed.GET("/sources", sourceHandler.List)
		authed.GET("/sources/:id", sourceHandler.Get)
		authed.DELETE("/sources/:id", sourceHandler.Delete)
	}

	return r
}
