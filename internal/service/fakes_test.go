package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
	"github.com/CalilDrissi/virtus/internal/provider"
	"github.com/CalilDrissi/virtus/internal/vectorstore"
)

type fakeDataSourceStore struct {
	sources map[string]*model.DataSource
	deleted []string
}

func newFakeDataSourceStore(sources ...*model.DataSource) *fakeDataSourceStore {
	s := &fakeDataSourceStore{sources: map[string]*model.DataSource{}}
	for _, ds := range sources {
		s.sources[ds.ID] = ds
	}
	return s
}

func (s *fakeDataSourceStore) Get(_ context.Context, id, modelID string) (*model.DataSource, error) {
	ds, ok := s.sources[id]
	if !ok || ds.ModelID != modelID {
		return nil, apperr.ErrNotFound
	}
	return ds, nil
}

func (s *fakeDataSourceStore) Delete(_ context.Context, id string) error {
	delete(s.sources, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeDocumentStore struct {
	docs map[string]*model.Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: map[string]*model.Document{}}
}

func (s *fakeDocumentStore) Create(_ context.Context, doc *model.Document) error {
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *fakeDocumentStore) Get(_ context.Context, id string) (*model.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return doc, nil
}

func (s *fakeDocumentStore) ListByDataSource(_ context.Context, dataSourceID string) ([]*model.Document, error) {
	var out []*model.Document
	for _, doc := range s.docs {
		if doc.DataSourceID == dataSourceID {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *fakeDocumentStore) MarkReady(_ context.Context, id string, chunkCount int) error {
	doc, ok := s.docs[id]
	if !ok {
		return apperr.ErrNotFound
	}
	doc.Status = model.StatusReady
	doc.ChunkCount = chunkCount
	doc.ErrorMessage = ""
	return nil
}

func (s *fakeDocumentStore) MarkError(_ context.Context, id string, message string) error {
	doc, ok := s.docs[id]
	if !ok {
		return apperr.ErrNotFound
	}
	doc.Status = model.StatusError
	doc.ErrorMessage = message
	return nil
}

func (s *fakeDocumentStore) Delete(_ context.Context, id string) error {
	delete(s.docs, id)
	return nil
}

type fakeFileStore struct {
	files map[string][]byte
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: map[string][]byte{}}
}

func (s *fakeFileStore) Save(_ context.Context, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.files[key] = data
	return nil
}

func (s *fakeFileStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.files[key]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeFileStore) Delete(_ context.Context, key string) error {
	delete(s.files, key)
	return nil
}

type storedPoint struct {
	tenantID   string
	documentID string
	chunk      model.EmbeddedChunk
}

// fakeVectorStore keys points the way the real backends do, so re-ingesting a
// document overwrites instead of duplicating.
type fakeVectorStore struct {
	points      map[string]storedPoint
	searchHits  []model.ScoredChunk
	searchCalls int
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: map[string]storedPoint{}}
}

func (s *fakeVectorStore) EnsureCollection(context.Context, string) error { return nil }

func (s *fakeVectorStore) UpsertChunks(_ context.Context, tenantID, documentID string, chunks []model.EmbeddedChunk) error {
	for i, chunk := range chunks {
		index := i
		if v, ok := chunk.Metadata["chunk_index"].(int); ok {
			index = v
		}
		key := tenantID + "/" + vectorstore.PointID(documentID, index)
		s.points[key] = storedPoint{tenantID: tenantID, documentID: documentID, chunk: chunk}
	}
	return nil
}

func (s *fakeVectorStore) Search(_ context.Context, _ string, _ []float32, _ int, _ []string) ([]model.ScoredChunk, error) {
	s.searchCalls++
	return s.searchHits, nil
}

func (s *fakeVectorStore) DeleteByDocument(_ context.Context, tenantID, documentID string) error {
	for key, point := range s.points {
		if point.tenantID == tenantID && point.documentID == documentID {
			delete(s.points, key)
		}
	}
	return nil
}

func (s *fakeVectorStore) DeleteTenant(_ context.Context, tenantID string) error {
	for key, point := range s.points {
		if point.tenantID == tenantID {
			delete(s.points, key)
		}
	}
	return nil
}

type fakeStream struct {
	fragments []string
	pos       int
	closed    bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	fragment := s.fragments[s.pos]
	s.pos++
	return fragment, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeProvider struct {
	embedCalls  int
	embedErr    error
	completion  *provider.CompletionResult
	completeErr error
	stream      *fakeStream
	lastReq     provider.CompletionRequest
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(_ context.Context, req provider.CompletionRequest) (*provider.CompletionResult, error) {
	p.lastReq = req
	if p.completeErr != nil {
		return nil, p.completeErr
	}
	return p.completion, nil
}

func (p *fakeProvider) Stream(_ context.Context, req provider.CompletionRequest) (provider.Stream, error) {
	p.lastReq = req
	return p.stream, nil
}

func (p *fakeProvider) CountTokens(_ context.Context, text string, _ string) (int, error) {
	// One token per byte keeps assertions simple.
	return len(text), nil
}

func (p *fakeProvider) Embeddings(_ context.Context, texts []string, _ string) ([][]float32, error) {
	p.embedCalls++
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1}
	}
	return vectors, nil
}

func (p *fakeProvider) HealthCheck(context.Context) bool { return true }

type fakeLedger struct {
	mu      sync.Mutex
	records []Usage
}

func (l *fakeLedger) Record(_ context.Context, _ string, usage Usage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, usage)
	return nil
}

func failExtract(string, string) (string, error) {
	return "", fmt.Errorf("%w: application/x-unknown", apperr.ErrUnsupportedFormat)
}
