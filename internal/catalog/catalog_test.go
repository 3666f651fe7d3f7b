package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
	"github.com/vectordb-io/vectordb/internal/wal"
)

func testOpts(t *testing.T) Options {
	return Options{
		DataDir:         t.TempDir(),
		WAL:             wal.Options{SyncMode: wal.SyncPerWrite},
		InitialCapacity: 64,
		FilterOverfetch: 2.0,
	}
}

func testCollectionConfig(name string) CollectionConfig {
	return CollectionConfig{
		Name:      name,
		Dimension: 3,
		Metric:    "euclidean",
		HNSW:      HNSWConfig{M: 8, EfConstruction: 32, EfSearchDefault: 16, MaxLayer: 4},
		Seed:      1,
	}
}

func TestCreateCollection_ThenOpenCollection_ReturnsSameHandle(t *testing.T) {
	cat, err := Open(testOpts(t))
	require.NoError(t, err)
	defer cat.Close()

	col, err := cat.CreateCollection(testCollectionConfig("docs"))
	require.NoError(t, err)

	reopened, err := cat.OpenCollection("docs")
	require.NoError(t, err)
	assert.Same(t, col, reopened)
}

func TestCreateCollection_DuplicateName_AlreadyExists(t *testing.T) {
	cat, err := Open(testOpts(t))
	require.NoError(t, err)
	defer cat.Close()

	_, err = cat.CreateCollection(testCollectionConfig("docs"))
	require.NoError(t, err)

	_, err = cat.CreateCollection(testCollectionConfig("docs"))
	require.Error(t, err)
	assert.Equal(t, vdberrors.ErrCodeAlreadyExists, vdberrors.GetCode(err))
}

func TestOpenCollection_Unregistered_NotFound(t *testing.T) {
	cat, err := Open(testOpts(t))
	require.NoError(t, err)
	defer cat.Close()

	_, err = cat.OpenCollection("missing")
	require.Error(t, err)
	assert.Equal(t, vdberrors.ErrCodeNotFound, vdberrors.GetCode(err))
}

func TestDropCollection_RemovesFromListAndDisk(t *testing.T) {
	cat, err := Open(testOpts(t))
	require.NoError(t, err)
	defer cat.Close()

	_, err = cat.CreateCollection(testCollectionConfig("docs"))
	require.NoError(t, err)

	require.NoError(t, cat.DropCollection("docs"))
	assert.Empty(t, cat.ListCollections())

	_, err = cat.OpenCollection("docs")
	assert.Equal(t, vdberrors.ErrCodeNotFound, vdberrors.GetCode(err))
}

func TestSecondOpen_SameDataDir_IsLocked(t *testing.T) {
	opts := testOpts(t)
	cat, err := Open(opts)
	require.NoError(t, err)
	defer cat.Close()

	_, err = Open(opts)
	require.Error(t, err)
	assert.Equal(t, vdberrors.ErrCodeCatalogLocked, vdberrors.GetCode(err))
}

func TestReopenCatalog_AfterClose_RestoresManifest(t *testing.T) {
	opts := testOpts(t)
	cat, err := Open(opts)
	require.NoError(t, err)

	_, err = cat.CreateCollection(testCollectionConfig("docs"))
	require.NoError(t, err)
	require.NoError(t, cat.Close())

	reopened, err := Open(opts)
	require.NoError(t, err)
	defer reopened.Close()

	names := make([]string, 0)
	for _, cfg := range reopened.ListCollections() {
		names = append(names, cfg.Name)
	}
	assert.Contains(t, names, "docs")

	col, err := reopened.OpenCollection("docs")
	require.NoError(t, err)

	id := uuid.New()
	require.NoError(t, col.Insert(id, []float32{1, 2, 3}, nil))
	vec, _, err := col.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}
