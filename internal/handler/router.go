package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CalilDrissi/virtus/internal/middleware"
)

type RouterDeps struct {
	DataSources *DataSourceHandler
	RAG         *RAGHandler
	Chat        *ChatHandler
	Health      *HealthHandler

	// UploadRateWindow throttles document uploads per client; zero disables.
	UploadRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Health.Check)

	models := api.Group("/models/:model_id")
	models.POST("/data-sources", deps.DataSources.Create)
	models.GET("/data-sources", deps.DataSources.List)
	models.GET("/data-sources/:id", deps.DataSources.Get)
	models.DELETE("/data-sources/:id", deps.DataSources.Delete)
	models.GET("/data-sources/:id/documents", deps.DataSources.ListDocuments)
	models.POST("/data-sources/:id/documents", middleware.RateLimit(deps.UploadRateWindow), deps.DataSources.UploadDocument)
	models.DELETE("/data-sources/:id/documents/:document_id", deps.DataSources.DeleteDocument)
	models.POST("/query", deps.RAG.Query)

	api.POST("/chat/completions", deps.Chat.Completions)
	api.POST("/chat/completions/stream", deps.Chat.StreamCompletions)
}
