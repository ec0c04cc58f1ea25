package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
	"github.com/CalilDrissi/virtus/internal/vectorstore"
)

type QueryResult struct {
	Chunks []model.RAGChunk `json:"chunks"`
	Query  string           `json:"query"`
}

// QueryService embeds the query text, searches the tenant's collection and
// resolves each hit back to the document it came from. Provider and index
// failures propagate to the caller; only a tenant with no indexed data yields
// an empty result.
type QueryService struct {
	documents DocumentStore
	vectors   vectorstore.Store
	providers ProviderResolver
	topK      int
	cache     *expirable.LRU[string, []float32]
}

func NewQueryService(documents DocumentStore, vectors vectorstore.Store, providers ProviderResolver, topK int) *QueryService {
	if topK <= 0 {
		topK = 5
	}
	return &QueryService{
		documents: documents,
		vectors:   vectors,
		providers: providers,
		topK:      topK,
		cache:     expirable.NewLRU[string, []float32](10000, nil, 2*time.Hour),
	}
}

func queryCacheKey(modelID, text string) string {
	hash := sha256.Sum256([]byte(text))
	return "query:" + modelID + ":" + hex.EncodeToString(hash[:])
}

func (s *QueryService) embedQuery(ctx context.Context, modelID, text string) ([]float32, error) {
	key := queryCacheKey(modelID, text)
	if cached, ok := s.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("query embedding cache hit", zap.String("model_id", modelID))
		return cached, nil
	}
	backend, err := s.providers.Resolve(modelID)
	if err != nil {
		return nil, err
	}
	vectors, err := backend.Embeddings(ctx, []string{text}, "")
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: embedding count mismatch: 1 text, %d vectors", apperr.ErrProvider, len(vectors))
	}
	s.cache.Add(key, vectors[0])
	return vectors[0], nil
}

// Query runs a top-k similarity search over the model's indexed chunks. An
// empty dataSourceIDs slice searches everything the model has indexed.
func (s *QueryService) Query(ctx context.Context, modelID, text string, topK int, dataSourceIDs []string) (*QueryResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty query", apperr.ErrInvalid)
	}
	if topK <= 0 {
		topK = s.topK
	}

	vector, err := s.embedQuery(ctx, modelID, text)
	if err != nil {
		return nil, err
	}
	hits, err := s.vectors.Search(ctx, modelID, vector, topK, dataSourceIDs)
	if err != nil {
		return nil, err
	}

	chunks := make([]model.RAGChunk, 0, len(hits))
	for _, hit := range hits {
		chunks = append(chunks, model.RAGChunk{
			Content:      hit.Content,
			DocumentID:   hit.DocumentID,
			DocumentName: s.documentName(ctx, hit.DocumentID),
			Score:        hit.Score,
			Metadata:     hit.Metadata,
		})
	}
	return &QueryResult{Chunks: chunks, Query: text}, nil
}

func (s *QueryService) documentName(ctx context.Context, documentID string) string {
	if documentID == "" {
		return "Unknown"
	}
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		// Stale points can outlive their rows; keep the hit usable.
		if !apperr.IsNotFound(err) {
			logutil.GetLogger(ctx).Warn("resolve document name failed", zap.String("document_id", documentID), zap.Error(err))
		}
		return "Unknown"
	}
	return doc.OriginalFilename
}

// FormatContext renders retrieved chunks into the context block injected
// ahead of the user's question.
func FormatContext(chunks []model.RAGChunk) string {
	if len(chunks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(chunks)+2)
	parts = append(parts, "Here is relevant context from the knowledge base:\n")
	for i, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("[Source %d: %s]\n%s\n", i+1, chunk.DocumentName, chunk.Content))
	}
	parts = append(parts, "\nUse this context to help answer the user's question.")
	return strings.Join(parts, "\n")
}
