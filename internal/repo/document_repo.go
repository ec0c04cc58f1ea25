package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

var documentFields = []string{
	"id", "data_source_id", "filename", "original_filename", "content_type",
	"file_size", "storage_path", "chunk_count", "status", "error_message",
	"metadata", "created_at",
}

type DocumentRepo struct {
	db *sqlx.DB
}

func NewDocumentRepo(db *sqlx.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	if doc.CreatedAt == 0 {
		doc.CreatedAt = time.Now().Unix()
	}
	if doc.Metadata == "" {
		doc.Metadata = "{}"
	}
	data := map[string]interface{}{
		"id":                doc.ID,
		"data_source_id":    doc.DataSourceID,
		"filename":          doc.Filename,
		"original_filename": doc.OriginalFilename,
		"content_type":      doc.ContentType,
		"file_size":         doc.FileSize,
		"storage_path":      doc.StoragePath,
		"chunk_count":       doc.ChunkCount,
		"status":            string(doc.Status),
		"error_message":     doc.ErrorMessage,
		"metadata":          doc.Metadata,
		"created_at":        doc.CreatedAt,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *DocumentRepo) Get(ctx context.Context, id string) (*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", map[string]interface{}{"id": id}, documentFields)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, r.db.Rebind(sqlStr), args...)
	return scanDocument(row)
}

func (r *DocumentRepo) ListByDataSource(ctx context.Context, dataSourceID string) ([]*model.Document, error) {
	where := map[string]interface{}{
		"data_source_id": dataSourceID,
		"_orderby":       "created_at asc",
	}
	return r.list(ctx, where)
}

func (r *DocumentRepo) ListByStatus(ctx context.Context, status model.ProcessingStatus, limit int) ([]*model.Document, error) {
	where := map[string]interface{}{
		"status":   string(status),
		"_orderby": "created_at asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{uint(limit)}
	}
	return r.list(ctx, where)
}

func (r *DocumentRepo) list(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(sqlStr), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, rows.Err()
}

// MarkReady records the single terminal success transition for an upload.
func (r *DocumentRepo) MarkReady(ctx context.Context, id string, chunkCount int) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        string(model.StatusReady),
		"chunk_count":   chunkCount,
		"error_message": "",
	})
}

// MarkError records the single terminal failure transition for an upload.
func (r *DocumentRepo) MarkError(ctx context.Context, id string, message string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        string(model.StatusError),
		"error_message": message,
	})
}

func (r *DocumentRepo) update(ctx context.Context, id string, update map[string]interface{}) error {
	sqlStr, args, err := builder.BuildUpdate("documents", map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var status string
	err := row.Scan(
		&doc.ID, &doc.DataSourceID, &doc.Filename, &doc.OriginalFilename,
		&doc.ContentType, &doc.FileSize, &doc.StoragePath, &doc.ChunkCount,
		&status, &doc.ErrorMessage, &doc.Metadata, &doc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc.Status = model.ProcessingStatus(status)
	return &doc, nil
}
