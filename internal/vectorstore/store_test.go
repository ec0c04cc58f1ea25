package vectorstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/CalilDrissi/virtus/internal/config"
)

func TestCollectionName(t *testing.T) {
	require.Equal(t, "tenant_a1b2_c3d4", CollectionName("a1b2-c3d4"))
	require.Equal(t, "tenant_plain", CollectionName("plain"))
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("doc-1", 0)
	b := PointID("doc-1", 0)
	require.Equal(t, a, b)

	_, err := uuid.Parse(a)
	require.NoError(t, err)

	require.NotEqual(t, a, PointID("doc-1", 1))
	require.NotEqual(t, a, PointID("doc-2", 0))
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(config.StoreConfig{Type: "nosuch"}, 8)
	require.Error(t, err)
}

func TestNewRequiresType(t *testing.T) {
	_, err := New(config.StoreConfig{}, 8)
	require.Error(t, err)
}
