package job

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

type fakeResolver struct {
	sources map[string]*model.DataSource
}

func (r *fakeResolver) GetByID(_ context.Context, id string) (*model.DataSource, error) {
	ds, ok := r.sources[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return ds, nil
}

type fakeLister struct {
	errored []*model.Document
	deleted []string
}

func (l *fakeLister) ListByStatus(_ context.Context, status model.ProcessingStatus, _ int) ([]*model.Document, error) {
	if status != model.StatusError {
		return nil, nil
	}
	return l.errored, nil
}

func (l *fakeLister) Delete(_ context.Context, id string) error {
	l.deleted = append(l.deleted, id)
	return nil
}

type fakeFiles struct {
	present map[string]bool
}

func (f *fakeFiles) Save(context.Context, string, io.Reader, int64) error { return nil }

func (f *fakeFiles) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if !f.present[key] {
		return nil, fmt.Errorf("open %s: %w", key, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeFiles) Delete(context.Context, string) error { return nil }

type deletedVectors struct {
	tenantID   string
	documentID string
}

type fakeVectors struct {
	deleted []deletedVectors
}

func (v *fakeVectors) EnsureCollection(context.Context, string) error { return nil }
func (v *fakeVectors) UpsertChunks(context.Context, string, string, []model.EmbeddedChunk) error {
	return nil
}
func (v *fakeVectors) Search(context.Context, string, []float32, int, []string) ([]model.ScoredChunk, error) {
	return nil, nil
}
func (v *fakeVectors) DeleteByDocument(_ context.Context, tenantID, documentID string) error {
	v.deleted = append(v.deleted, deletedVectors{tenantID: tenantID, documentID: documentID})
	return nil
}
func (v *fakeVectors) DeleteTenant(context.Context, string) error { return nil }

func TestJanitorSweepsErroredDocuments(t *testing.T) {
	resolver := &fakeResolver{sources: map[string]*model.DataSource{
		"ds-1": {ID: "ds-1", ModelID: "model-1"},
	}}
	lister := &fakeLister{errored: []*model.Document{
		{ID: "doc-1", DataSourceID: "ds-1", StoragePath: "model-1/a.txt", Status: model.StatusError},
	}}
	files := &fakeFiles{present: map[string]bool{"model-1/a.txt": true}}
	vectors := &fakeVectors{}

	janitor := NewVectorJanitor(resolver, lister, files, vectors)
	require.NoError(t, janitor.Run(context.Background()))

	require.Equal(t, []deletedVectors{{tenantID: "model-1", documentID: "doc-1"}}, vectors.deleted)
	// File still exists, row stays for operator inspection.
	require.Empty(t, lister.deleted)
}

func TestJanitorPrunesRowsWithoutBackingFile(t *testing.T) {
	resolver := &fakeResolver{sources: map[string]*model.DataSource{
		"ds-1": {ID: "ds-1", ModelID: "model-1"},
	}}
	lister := &fakeLister{errored: []*model.Document{
		{ID: "doc-1", DataSourceID: "ds-1", StoragePath: "model-1/gone.txt", Status: model.StatusError},
	}}
	files := &fakeFiles{present: map[string]bool{}}
	vectors := &fakeVectors{}

	janitor := NewVectorJanitor(resolver, lister, files, vectors)
	require.NoError(t, janitor.Run(context.Background()))

	require.Len(t, vectors.deleted, 1)
	require.Equal(t, []string{"doc-1"}, lister.deleted)
}

func TestJanitorDeletesOrphanedRows(t *testing.T) {
	resolver := &fakeResolver{sources: map[string]*model.DataSource{}}
	lister := &fakeLister{errored: []*model.Document{
		{ID: "doc-1", DataSourceID: "ds-missing", Status: model.StatusError},
	}}
	vectors := &fakeVectors{}

	janitor := NewVectorJanitor(resolver, lister, &fakeFiles{}, vectors)
	require.NoError(t, janitor.Run(context.Background()))

	require.Empty(t, vectors.deleted)
	require.Equal(t, []string{"doc-1"}, lister.deleted)
}

func TestJanitorName(t *testing.T) {
	janitor := NewVectorJanitor(&fakeResolver{}, &fakeLister{}, &fakeFiles{}, &fakeVectors{})
	require.Equal(t, "vector_janitor", janitor.Name())
}
