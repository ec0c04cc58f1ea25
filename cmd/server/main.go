package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/CalilDrissi/virtus/internal/chunker"
	"github.com/CalilDrissi/virtus/internal/config"
	"github.com/CalilDrissi/virtus/internal/extract"
	"github.com/CalilDrissi/virtus/internal/filestore"
	"github.com/CalilDrissi/virtus/internal/handler"
	"github.com/CalilDrissi/virtus/internal/job"
	"github.com/CalilDrissi/virtus/internal/middleware"
	"github.com/CalilDrissi/virtus/internal/provider"
	"github.com/CalilDrissi/virtus/internal/repo"
	"github.com/CalilDrissi/virtus/internal/schedule"
	"github.com/CalilDrissi/virtus/internal/service"
	"github.com/CalilDrissi/virtus/internal/tokenizer"
	"github.com/CalilDrissi/virtus/internal/vectorstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "virtus",
		Short: "virtus rag server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run virtus server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			db, err := repo.Open(cfg.DSN)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := repo.ApplyMigrations(db, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, db)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

// buildProviders constructs every configured model backend eagerly so bad
// credentials or malformed configs fail startup instead of the first request.
func buildProviders(cfg *config.Config) (map[string]provider.Provider, error) {
	providers := make(map[string]provider.Provider, len(cfg.Models))
	for modelID, mc := range cfg.Models {
		args := mc.Data
		if data, ok := args.(map[string]interface{}); ok && cfg.Providers.Fallback != nil {
			if _, has := data["fallback"]; !has {
				data["fallback"] = cfg.Providers.Fallback
			}
			if _, has := data["timeout_seconds"]; !has && cfg.Providers.TimeoutSeconds > 0 {
				data["timeout_seconds"] = cfg.Providers.TimeoutSeconds
			}
		}
		backend, err := provider.New(mc.Kind, args)
		if err != nil {
			return nil, fmt.Errorf("init provider for model %s: %w", modelID, err)
		}
		providers[modelID] = backend
	}
	return providers, nil
}

func runServer(cfg *config.Config, db *sqlx.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Int("models", len(cfg.Models)),
	)

	dataSourceRepo := repo.NewDataSourceRepo(db)
	documentRepo := repo.NewDocumentRepo(db)

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	vectors, err := vectorstore.New(cfg.VectorStore, cfg.RAG.EmbeddingDimension)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	resolver := service.NewStaticResolver(providers)

	tok, err := tokenizer.New()
	if err != nil {
		logutil.GetLogger(context.Background()).Warn("tokenizer unavailable, falling back to character chunking", zap.Error(err))
		tok = nil
	}
	chunks := chunker.New(tok, cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)

	ingestService := service.NewIngestService(dataSourceRepo, documentRepo, files, vectors, resolver, chunks, extract.Extract)
	queryService := service.NewQueryService(documentRepo, vectors, resolver, cfg.RAG.TopK)
	chatService := service.NewChatService(queryService, resolver, service.NopLedger())

	deps := handler.RouterDeps{
		DataSources:      handler.NewDataSourceHandler(dataSourceRepo, documentRepo, ingestService),
		RAG:              handler.NewRAGHandler(queryService),
		Chat:             handler.NewChatHandler(chatService),
		Health:           handler.NewHealthHandler(providers),
		UploadRateWindow: time.Duration(cfg.UploadRateWindowSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var scheduler *schedule.Scheduler
	if cfg.Janitor.Enable {
		scheduler = schedule.New()
		janitor := job.NewVectorJanitor(dataSourceRepo, documentRepo, files, vectors)
		if err := scheduler.AddJob(janitor, cfg.Janitor.Spec); err != nil {
			return fmt.Errorf("schedule janitor: %w", err)
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
