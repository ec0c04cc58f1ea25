package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/CalilDrissi/virtus/internal/chunker"
	"github.com/CalilDrissi/virtus/internal/filestore"
	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
	"github.com/CalilDrissi/virtus/internal/vectorstore"
)

// embedBatchSize bounds embedding request payloads; larger chunk sets are
// split into sequential calls.
const embedBatchSize = 100

type DataSourceStore interface {
	Get(ctx context.Context, id, modelID string) (*model.DataSource, error)
	Delete(ctx context.Context, id string) error
}

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id string) (*model.Document, error)
	ListByDataSource(ctx context.Context, dataSourceID string) ([]*model.Document, error)
	MarkReady(ctx context.Context, id string, chunkCount int) error
	MarkError(ctx context.Context, id string, message string) error
	Delete(ctx context.Context, id string) error
}

// Extractor turns stored bytes into plain text, keyed by content type.
type Extractor func(path string, contentType string) (string, error)

type UploadResult struct {
	DocumentID string                 `json:"document_id"`
	Status     model.ProcessingStatus `json:"status"`
	Message    string                 `json:"message"`
}

// IngestService owns the extract -> chunk -> embed -> upsert sequence and the
// per-document status machine. Each upload reaches exactly one terminal
// state: ready with an authoritative chunk count, or error with the failure
// message. Vector points written before a failure are left in place; cleanup
// happens on delete-and-retry.
type IngestService struct {
	dataSources DataSourceStore
	documents   DocumentStore
	files       filestore.Store
	vectors     vectorstore.Store
	providers   ProviderResolver
	chunks      *chunker.Chunker
	extract     Extractor
}

func NewIngestService(
	dataSources DataSourceStore,
	documents DocumentStore,
	files filestore.Store,
	vectors vectorstore.Store,
	providers ProviderResolver,
	chunks *chunker.Chunker,
	extract Extractor,
) *IngestService {
	return &IngestService{
		dataSources: dataSources,
		documents:   documents,
		files:       files,
		vectors:     vectors,
		providers:   providers,
		chunks:      chunks,
		extract:     extract,
	}
}

// UploadDocument stores the raw bytes, creates the document row in
// processing state and runs the pipeline synchronously. Pipeline failures are
// recorded on the row rather than returned, so one bad document never aborts
// the rest of a data source.
func (s *IngestService) UploadDocument(ctx context.Context, modelID, dataSourceID, filename, contentType string, content []byte) (*UploadResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("model_id", modelID), zap.String("data_source_id", dataSourceID))

	if _, err := s.dataSources.Get(ctx, dataSourceID, modelID); err != nil {
		return nil, fmt.Errorf("data source lookup: %w", err)
	}

	// Content-addressed storage key, collision-free by construction.
	uniqueName := uuid.NewString() + filepath.Ext(filename)
	storageKey := modelID + "/" + uniqueName
	if err := s.files.Save(ctx, storageKey, bytes.NewReader(content), int64(len(content))); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	doc := &model.Document{
		ID:               uuid.NewString(),
		DataSourceID:     dataSourceID,
		Filename:         uniqueName,
		OriginalFilename: filename,
		ContentType:      contentType,
		FileSize:         int64(len(content)),
		StoragePath:      storageKey,
		Status:           model.StatusProcessing,
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	chunkCount, err := s.process(ctx, doc, modelID, content)
	if err != nil {
		logger.Warn("document processing failed", zap.String("document_id", doc.ID), zap.Error(err))
		if markErr := s.documents.MarkError(ctx, doc.ID, err.Error()); markErr != nil {
			return nil, fmt.Errorf("record processing error: %w", markErr)
		}
		return &UploadResult{
			DocumentID: doc.ID,
			Status:     model.StatusError,
			Message:    fmt.Sprintf("Error processing document: %s", err),
		}, nil
	}

	if err := s.documents.MarkReady(ctx, doc.ID, chunkCount); err != nil {
		return nil, fmt.Errorf("record processing result: %w", err)
	}
	logger.Info("document ingested", zap.String("document_id", doc.ID), zap.Int("chunks", chunkCount))
	return &UploadResult{
		DocumentID: doc.ID,
		Status:     model.StatusReady,
		Message:    fmt.Sprintf("Document processed successfully. %d chunks created.", chunkCount),
	}, nil
}

func (s *IngestService) process(ctx context.Context, doc *model.Document, modelID string, content []byte) (int, error) {
	text, err := s.extractText(doc, content)
	if err != nil {
		return 0, err
	}

	chunks := s.chunks.Chunk(text, map[string]interface{}{
		"document_id":    doc.ID,
		"data_source_id": doc.DataSourceID,
		"filename":       doc.OriginalFilename,
	})
	if len(chunks) == 0 {
		return 0, nil
	}

	backend, err := s.providers.Resolve(modelID)
	if err != nil {
		return 0, err
	}

	embedded := make([]model.EmbeddedChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vectors, err := backend.Embeddings(ctx, texts, "")
		if err != nil {
			return 0, err
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("%w: embedding count mismatch: %d texts, %d vectors", apperr.ErrProvider, len(batch), len(vectors))
		}
		for i, c := range batch {
			embedded = append(embedded, model.EmbeddedChunk{Chunk: c, Vector: vectors[i]})
		}
	}

	// The tenant boundary for retrieval is the model, not the organization.
	if err := s.vectors.UpsertChunks(ctx, modelID, doc.ID, embedded); err != nil {
		return 0, err
	}
	return len(embedded), nil
}

// extractText spools the upload to a temporary file before handing it to the
// extractor. Extraction works on paths because the PDF reader seeks, and the
// backing file store may be remote.
func (s *IngestService) extractText(doc *model.Document, content []byte) (string, error) {
	tmp, err := os.CreateTemp("", "ingest-*"+filepath.Ext(doc.OriginalFilename))
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	return s.extract(tmp.Name(), doc.ContentType)
}

// DeleteDocument removes the vector points, the stored file and the row.
func (s *IngestService) DeleteDocument(ctx context.Context, modelID, documentID string) error {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if err := s.vectors.DeleteByDocument(ctx, modelID, documentID); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := s.files.Delete(ctx, doc.StoragePath); err != nil {
		logutil.GetLogger(ctx).Warn("delete stored file failed", zap.String("key", doc.StoragePath), zap.Error(err))
	}
	return s.documents.Delete(ctx, documentID)
}

// DeleteDataSource cascades to every contained document and its vectors.
func (s *IngestService) DeleteDataSource(ctx context.Context, modelID, dataSourceID string) error {
	if _, err := s.dataSources.Get(ctx, dataSourceID, modelID); err != nil {
		return err
	}
	docs, err := s.documents.ListByDataSource(ctx, dataSourceID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if err := s.DeleteDocument(ctx, modelID, doc.ID); err != nil {
			return err
		}
	}
	return s.dataSources.Delete(ctx, dataSourceID)
}
