package vectordb

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vdbconfig "github.com/vectordb-io/vectordb/internal/config"
)

func testConfig(t *testing.T) *vdbconfig.Config {
	cfg := vdbconfig.NewConfig()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestOpen_CreateInsertSearch_EndToEnd(t *testing.T) {
	db, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()

	col, err := db.CreateCollection(CreateCollectionConfig{
		Name:      "docs",
		Dimension: 3,
		Metric:    "euclidean",
	}, testConfig(t))
	require.NoError(t, err)

	a, b := uuid.New(), uuid.New()
	require.NoError(t, col.Insert(a, []float32{1, 0, 0}, map[string]any{"lang": "go"}))
	require.NoError(t, col.Insert(b, []float32{0, 1, 0}, nil))

	hits, err := col.Search(context.Background(), []float32{1, 0, 0}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, a, hits[0].ID)

	stats := col.Stats()
	assert.Equal(t, 2, stats.LiveCount)
}

func TestListCollections_ReflectsCreated(t *testing.T) {
	db, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateCollection(CreateCollectionConfig{Name: "docs", Dimension: 2, Metric: "cosine"}, testConfig(t))
	require.NoError(t, err)

	names := make([]string, 0)
	for _, c := range db.ListCollections() {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "docs")
}

func TestDropCollection_MakesCollectionUnreachable(t *testing.T) {
	db, err := Open(testConfig(t), nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.CreateCollection(CreateCollectionConfig{Name: "docs", Dimension: 2, Metric: "cosine"}, testConfig(t))
	require.NoError(t, err)
	require.NoError(t, db.DropCollection("docs"))

	_, err = db.OpenCollection("docs")
	assert.Error(t, err)
}
