package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

type pgvectorConfig struct {
	DSN string `json:"dsn"`
}

// pgvectorStore keeps one table per tenant in Postgres with a vector column,
// searched by cosine distance. Structural isolation matches the per-tenant
// collection guarantee of the qdrant backend.
type pgvectorStore struct {
	db        *sqlx.DB
	dimension int
}

func createPgvectorStore(args interface{}, dimension int) (Store, error) {
	cfg := &pgvectorConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("pgvector dsn is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open pgvector db: %w", err)
	}
	return &pgvectorStore{db: db, dimension: dimension}, nil
}

func init() {
	Register("pgvector", createPgvectorStore)
}

func (s *pgvectorStore) EnsureCollection(ctx context.Context, tenantID string) error {
	table := CollectionName(tenantID)
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, table, s.dimension),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_document_id_idx ON %s (document_id)", table, table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure collection %s: %v", apperr.ErrIndexUnavailable, table, err)
		}
	}
	return nil
}

func (s *pgvectorStore) UpsertChunks(ctx context.Context, tenantID, documentID string, chunks []model.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.EnsureCollection(ctx, tenantID); err != nil {
		return err
	}
	table := CollectionName(tenantID)
	query := fmt.Sprintf(`INSERT INTO %s (id, document_id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`, table)

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin upsert: %v", apperr.ErrIndexUnavailable, err)
		}
		for i := start; i < end; i++ {
			chunk := chunks[i]
			meta, err := json.Marshal(chunk.Metadata)
			if err != nil {
				tx.Rollback()
				return err
			}
			id := PointID(documentID, chunkIndexOf(chunk, i))
			if _, err := tx.ExecContext(ctx, query, id, documentID, chunk.Content, meta, pgvector.NewVector(chunk.Vector)); err != nil {
				tx.Rollback()
				return fmt.Errorf("%w: upsert chunk: %v", apperr.ErrIndexUnavailable, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit upsert: %v", apperr.ErrIndexUnavailable, err)
		}
	}
	return nil
}

func (s *pgvectorStore) Search(ctx context.Context, tenantID string, vector []float32, topK int, dataSourceIDs []string) ([]model.ScoredChunk, error) {
	table := CollectionName(tenantID)
	if topK <= 0 {
		topK = 5
	}
	query := fmt.Sprintf(`SELECT content, document_id, metadata, 1 - (embedding <=> $1) AS score FROM %s`, table)
	args := []interface{}{pgvector.NewVector(vector)}
	if len(dataSourceIDs) > 0 {
		query += " WHERE metadata->>'data_source_id' = ANY($2)"
		args = append(args, pq.Array(dataSourceIDs))
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT %d", topK)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isMissingTable(err) {
			return []model.ScoredChunk{}, nil
		}
		return nil, fmt.Errorf("%w: search %s: %v", apperr.ErrIndexUnavailable, table, err)
	}
	defer rows.Close()

	var results []model.ScoredChunk
	for rows.Next() {
		var chunk model.ScoredChunk
		var meta []byte
		if err := rows.Scan(&chunk.Content, &chunk.DocumentID, &meta, &chunk.Score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &chunk.Metadata); err != nil {
			return nil, err
		}
		results = append(results, chunk)
	}
	if results == nil {
		results = []model.ScoredChunk{}
	}
	return results, rows.Err()
}

func (s *pgvectorStore) DeleteByDocument(ctx context.Context, tenantID, documentID string) error {
	table := CollectionName(tenantID)
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", table), documentID)
	if err != nil {
		if isMissingTable(err) {
			return nil
		}
		return fmt.Errorf("%w: delete document %s: %v", apperr.ErrIndexUnavailable, documentID, err)
	}
	return nil
}

func (s *pgvectorStore) DeleteTenant(ctx context.Context, tenantID string) error {
	table := CollectionName(tenantID)
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("%w: drop %s: %v", apperr.ErrIndexUnavailable, table, err)
	}
	return nil
}

func isMissingTable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01" // undefined_table
	}
	return errors.Is(err, sql.ErrNoRows)
}
