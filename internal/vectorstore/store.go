package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/CalilDrissi/virtus/internal/config"
	"github.com/CalilDrissi/virtus/internal/model"
)

// Store is tenant-isolated nearest-neighbor storage over chunk embeddings.
// Isolation is structural: every tenant gets its own collection (or table),
// never a shared one behind a row filter.
type Store interface {
	// EnsureCollection is idempotent; creates the tenant collection sized to
	// the configured dimensionality with cosine distance.
	EnsureCollection(ctx context.Context, tenantID string) error
	// UpsertChunks writes chunk vectors in bounded batches. Point ids derive
	// deterministically from (documentID, chunk_index) so re-ingesting the
	// same document overwrites instead of duplicating.
	UpsertChunks(ctx context.Context, tenantID, documentID string, chunks []model.EmbeddedChunk) error
	// Search returns the top-k hits by similarity, descending. A missing
	// collection yields an empty result, not an error.
	Search(ctx context.Context, tenantID string, vector []float32, topK int, dataSourceIDs []string) ([]model.ScoredChunk, error)
	// DeleteByDocument removes every point whose payload document_id matches.
	DeleteByDocument(ctx context.Context, tenantID, documentID string) error
	// DeleteTenant drops the whole collection.
	DeleteTenant(ctx context.Context, tenantID string) error
}

// upsertBatchSize bounds request payloads under concurrent ingestion.
const upsertBatchSize = 100

type Factory func(args interface{}, dimension int) (Store, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.StoreConfig, dimension int) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("vector_store.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.Type)
	}
	return factory(cfg.Data, dimension)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("vector store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode vector store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode vector store config: %w", err)
	}
	return nil
}

// CollectionName maps a tenant id to its collection name. Every "-" becomes
// "_" so UUID tenants produce valid, reproducible, collision-free names.
func CollectionName(tenantID string) string {
	return "tenant_" + strings.ReplaceAll(tenantID, "-", "_")
}

var pointNamespace = uuid.MustParse("9e6c1d1a-6f6b-4c6e-9d30-5a2f6b7c8d9e")

// PointID derives a stable UUID for a chunk from its document id and ordinal
// index, making repeated ingestion of the same document idempotent.
func PointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s:%d", documentID, chunkIndex))).String()
}

func chunkIndexOf(c model.EmbeddedChunk, fallback int) int {
	if v, ok := c.Metadata["chunk_index"]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return fallback
}
