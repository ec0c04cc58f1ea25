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

var dataSourceFields = []string{
	"id", "model_id", "subscription_id", "name", "description", "source_type",
	"config", "status", "error_message", "last_synced_at", "created_at",
}

type DataSourceRepo struct {
	db *sqlx.DB
}

func NewDataSourceRepo(db *sqlx.DB) *DataSourceRepo {
	return &DataSourceRepo{db: db}
}

func (r *DataSourceRepo) Create(ctx context.Context, ds *model.DataSource) error {
	if ds.CreatedAt == 0 {
		ds.CreatedAt = time.Now().Unix()
	}
	if ds.Status == "" {
		ds.Status = model.StatusPending
	}
	data := map[string]interface{}{
		"id":              ds.ID,
		"model_id":        ds.ModelID,
		"subscription_id": ds.SubscriptionID,
		"name":            ds.Name,
		"description":     ds.Description,
		"source_type":     string(ds.SourceType),
		"config":          ds.Config,
		"status":          string(ds.Status),
		"error_message":   ds.ErrorMessage,
		"last_synced_at":  ds.LastSyncedAt,
		"created_at":      ds.CreatedAt,
	}
	sqlStr, args, err := builder.BuildInsert("data_sources", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *DataSourceRepo) Get(ctx context.Context, id, modelID string) (*model.DataSource, error) {
	where := map[string]interface{}{
		"id":       id,
		"model_id": modelID,
	}
	sqlStr, args, err := builder.BuildSelect("data_sources", where, dataSourceFields)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, r.db.Rebind(sqlStr), args...)
	return scanDataSource(row)
}

// GetByID looks a data source up without tenant scoping. Background jobs use
// it to walk from a document back to its owning model.
func (r *DataSourceRepo) GetByID(ctx context.Context, id string) (*model.DataSource, error) {
	where := map[string]interface{}{
		"id": id,
	}
	sqlStr, args, err := builder.BuildSelect("data_sources", where, dataSourceFields)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, r.db.Rebind(sqlStr), args...)
	return scanDataSource(row)
}

func (r *DataSourceRepo) ListByModel(ctx context.Context, modelID string) ([]*model.DataSource, error) {
	where := map[string]interface{}{
		"model_id": modelID,
		"_orderby": "created_at asc",
	}
	sqlStr, args, err := builder.BuildSelect("data_sources", where, dataSourceFields)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(sqlStr), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*model.DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ds)
	}
	return result, rows.Err()
}

func (r *DataSourceRepo) UpdateStatus(ctx context.Context, id string, status model.ProcessingStatus, errorMessage string) error {
	update := map[string]interface{}{
		"status":        string(status),
		"error_message": errorMessage,
	}
	if status == model.StatusReady {
		update["last_synced_at"] = time.Now().Unix()
	}
	sqlStr, args, err := builder.BuildUpdate("data_sources", map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

func (r *DataSourceRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("data_sources", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(sqlStr), args...)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDataSource(row rowScanner) (*model.DataSource, error) {
	var ds model.DataSource
	var sourceType, status string
	err := row.Scan(
		&ds.ID, &ds.ModelID, &ds.SubscriptionID, &ds.Name, &ds.Description,
		&sourceType, &ds.Config, &status, &ds.ErrorMessage, &ds.LastSyncedAt, &ds.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ds.SourceType = model.SourceType(sourceType)
	ds.Status = model.ProcessingStatus(status)
	return &ds, nil
}
