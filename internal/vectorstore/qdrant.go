package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

type qdrantConfig struct {
	URL            string `json:"url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// qdrantStore is a minimal REST client to Qdrant with one collection per
// tenant, cosine distance.
type qdrantStore struct {
	url       string
	apiKey    string
	dimension int
	client    *http.Client
}

func createQdrantStore(args interface{}, dimension int) (Store, error) {
	cfg := &qdrantConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 60
	}
	return &qdrantStore{
		url:       strings.TrimRight(cfg.URL, "/"),
		apiKey:    cfg.APIKey,
		dimension: dimension,
		client:    &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

func init() {
	Register("qdrant", createQdrantStore)
}

func (s *qdrantStore) EnsureCollection(ctx context.Context, tenantID string) error {
	name := CollectionName(tenantID)
	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, "/collections/"+name, body, nil)
}

func (s *qdrantStore) collectionExists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/collections/"+name, nil)
	if err != nil {
		return false, err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", apperr.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: get collection %s: %s", apperr.ErrIndexUnavailable, name, resp.Status)
	}
	return true, nil
}

func (s *qdrantStore) UpsertChunks(ctx context.Context, tenantID, documentID string, chunks []model.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.EnsureCollection(ctx, tenantID); err != nil {
		return err
	}
	name := CollectionName(tenantID)

	points := make([]map[string]any, 0, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{
			"content":     chunk.Content,
			"document_id": documentID,
			"tenant_id":   tenantID,
		}
		for k, v := range chunk.Metadata {
			payload[k] = v
		}
		points = append(points, map[string]any{
			"id":      PointID(documentID, chunkIndexOf(chunk, i)),
			"vector":  chunk.Vector,
			"payload": payload,
		})
	}
	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		body := map[string]any{"points": points[start:end]}
		if err := s.do(ctx, http.MethodPut, "/collections/"+name+"/points?wait=true", body, nil); err != nil {
			return err
		}
	}
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float32        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

func (s *qdrantStore) Search(ctx context.Context, tenantID string, vector []float32, topK int, dataSourceIDs []string) ([]model.ScoredChunk, error) {
	name := CollectionName(tenantID)
	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		// Nothing ingested yet for this tenant.
		return []model.ScoredChunk{}, nil
	}
	if topK <= 0 {
		topK = 5
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if len(dataSourceIDs) > 0 {
		body["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key":   "data_source_id",
					"match": map[string]any{"any": dataSourceIDs},
				},
			},
		}
	}
	var resp qdrantSearchResponse
	if err := s.do(ctx, http.MethodPost, "/collections/"+name+"/points/search", body, &resp); err != nil {
		return nil, err
	}
	results := make([]model.ScoredChunk, 0, len(resp.Result))
	for _, hit := range resp.Result {
		chunk := model.ScoredChunk{
			Score:    hit.Score,
			Metadata: map[string]interface{}{},
		}
		for k, v := range hit.Payload {
			switch k {
			case "content":
				chunk.Content, _ = v.(string)
			case "document_id":
				chunk.DocumentID, _ = v.(string)
			case "tenant_id":
				// structural key, not caller metadata
			default:
				chunk.Metadata[k] = v
			}
		}
		results = append(results, chunk)
	}
	return results, nil
}

func (s *qdrantStore) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	name := CollectionName(tenantID)
	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "document_id",
					"match": map[string]any{"value": documentID},
				},
			},
		},
	}
	return s.do(ctx, http.MethodPost, "/collections/"+name+"/points/delete?wait=true", body, nil)
}

func (s *qdrantStore) DeleteTenant(ctx context.Context, tenantID string) error {
	return s.do(ctx, http.MethodDelete, "/collections/"+CollectionName(tenantID), nil, nil)
}

func (s *qdrantStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

func (s *qdrantStore) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrIndexUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: qdrant %s %s: %s: %s", apperr.ErrIndexUnavailable, method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
