package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	DSN           string           `json:"dsn"`
	MigrationsDir string           `json:"migrations_dir"`
	LogConfig     logger.LogConfig `json:"log_config"`
	RAG           RAGConfig        `json:"rag"`
	VectorStore   StoreConfig      `json:"vector_store"`
	FileStore     StoreConfig      `json:"file_store"`
	Providers     ProvidersConfig  `json:"providers"`
	Janitor       JanitorConfig    `json:"janitor"`

	// Models maps tenant model ids to their completion backend. Data is
	// decoded by the provider factory for the given kind.
	Models map[string]ModelConfig `json:"models"`

	CORSAllowlist           []string `json:"cors_allowlist"`
	UploadRateWindowSeconds int      `json:"upload_rate_window_seconds"`
}

type ModelConfig struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

// StoreConfig selects a registry backend; Data is decoded by the factory.
type StoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type RAGConfig struct {
	ChunkSize          int `json:"chunk_size"`
	ChunkOverlap       int `json:"chunk_overlap"`
	EmbeddingDimension int `json:"embedding_dimension"`
	TopK               int `json:"top_k"`
}

// ProvidersConfig holds the fallback used when a model's provider kind has no
// native embeddings endpoint, plus per-kind request timeouts in seconds.
type ProvidersConfig struct {
	Fallback       interface{} `json:"fallback"`
	TimeoutSeconds int         `json:"timeout_seconds"`
}

type JanitorConfig struct {
	Enable bool   `json:"enable"`
	Spec   string `json:"spec"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 512
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 50
	}
	if cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		return nil, fmt.Errorf("rag.chunk_overlap must be smaller than rag.chunk_size")
	}
	if cfg.RAG.EmbeddingDimension == 0 {
		cfg.RAG.EmbeddingDimension = 1536
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 5
	}
	if cfg.VectorStore.Type == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.Providers.TimeoutSeconds == 0 {
		cfg.Providers.TimeoutSeconds = 120
	}
	if cfg.Janitor.Spec == "" {
		cfg.Janitor.Spec = "0 * * * *"
	}
	for modelID, mc := range cfg.Models {
		if mc.Kind == "" {
			return nil, fmt.Errorf("models.%s.kind is required", modelID)
		}
	}
	return &cfg, nil
}
