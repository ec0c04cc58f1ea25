package job

import (
	"context"
	"errors"
	"io/fs"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/CalilDrissi/virtus/internal/filestore"
	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
	"github.com/CalilDrissi/virtus/internal/vectorstore"
)

const janitorBatchLimit = 200

type dataSourceResolver interface {
	GetByID(ctx context.Context, id string) (*model.DataSource, error)
}

type documentLister interface {
	ListByStatus(ctx context.Context, status model.ProcessingStatus, limit int) ([]*model.Document, error)
	Delete(ctx context.Context, id string) error
}

// VectorJanitor sweeps documents that finished in error state and removes the
// vector points a partial ingestion may have left behind. Documents whose
// stored file has disappeared lose their row as well.
type VectorJanitor struct {
	dataSources dataSourceResolver
	documents   documentLister
	files       filestore.Store
	vectors     vectorstore.Store
}

func NewVectorJanitor(dataSources dataSourceResolver, documents documentLister, files filestore.Store, vectors vectorstore.Store) *VectorJanitor {
	return &VectorJanitor{
		dataSources: dataSources,
		documents:   documents,
		files:       files,
		vectors:     vectors,
	}
}

func (j *VectorJanitor) Name() string {
	return "vector_janitor"
}

func (j *VectorJanitor) Run(ctx context.Context) error {
	docs, err := j.documents.ListByStatus(ctx, model.StatusError, janitorBatchLimit)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	for _, doc := range docs {
		if err := j.sweep(ctx, doc); err != nil {
			logger.Warn("janitor sweep failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return nil
}

func (j *VectorJanitor) sweep(ctx context.Context, doc *model.Document) error {
	ds, err := j.dataSources.GetByID(ctx, doc.DataSourceID)
	if err != nil {
		if apperr.IsNotFound(err) {
			// Orphaned row, nothing to scope the vector delete by.
			return j.documents.Delete(ctx, doc.ID)
		}
		return err
	}
	if err := j.vectors.DeleteByDocument(ctx, ds.ModelID, doc.ID); err != nil {
		return err
	}
	if j.fileGone(ctx, doc.StoragePath) {
		logutil.GetLogger(ctx).Info("pruning document without backing file", zap.String("document_id", doc.ID))
		return j.documents.Delete(ctx, doc.ID)
	}
	return nil
}

func (j *VectorJanitor) fileGone(ctx context.Context, key string) bool {
	rc, err := j.files.Open(ctx, key)
	if err != nil {
		return errors.Is(err, fs.ErrNotExist)
	}
	rc.Close()
	return false
}
