// Package vectordb is the public in-process API: the surface that the REST
// collaborator and the CLI both build on. It is a thin facade over
// internal/catalog and internal/collection — no logic lives here beyond
// translating engine configuration into the shapes those packages expect.
package vectordb

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vectordb-io/vectordb/internal/catalog"
	"github.com/vectordb-io/vectordb/internal/collection"
	vdbconfig "github.com/vectordb-io/vectordb/internal/config"
	"github.com/vectordb-io/vectordb/internal/wal"
)

// DB is a handle to one data_dir's catalog, the entry point for every
// operation described in spec.md §6's in-process API.
type DB struct {
	cat *catalog.Catalog
}

// CreateCollectionConfig describes a new collection. HNSW fields left zero
// take the defaults from the config passed to CreateCollection.
type CreateCollectionConfig struct {
	Name            string
	Dimension       int
	Metric          string
	M               int
	EfConstruction  int
	EfSearchDefault int
	MaxLayer        int
	Seed            int64
}

// SearchHit mirrors collection.SearchHit at the public API boundary.
type SearchHit struct {
	ID         uuid.UUID
	Distance   float32
	Attributes map[string]any
}

// Stats mirrors collection.Stats at the public API boundary.
type Stats struct {
	LiveCount      int
	TombstoneCount int
	BytesResident  uint64
	LayerHistogram map[int]int
}

// Open opens (or creates) the catalog rooted at cfg.DataDir, applying cfg's
// WAL, store-capacity and filter-overfetch settings to every collection it
// subsequently opens. HNSW defaults are taken at CreateCollection instead.
func Open(cfg *vdbconfig.Config, logger *slog.Logger) (*DB, error) {
	walOpts := wal.Options{SyncMode: wal.SyncPerWrite}
	if cfg.WAL.SyncMode == vdbconfig.WalSyncBatched {
		walOpts.SyncMode = wal.SyncBatched
		walOpts.FlushInterval = time.Duration(cfg.WAL.FsyncIntervalMs) * time.Millisecond
	}

	cat, err := catalog.Open(catalog.Options{
		DataDir:         cfg.DataDir,
		WAL:             walOpts,
		InitialCapacity: uint64(cfg.Store.InitialCapacity),
		FilterOverfetch: cfg.Search.FilterOverfetch,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	return &DB{cat: cat}, nil
}

func (db *DB) defaultsFrom(cfg *vdbconfig.Config) catalog.HNSWConfig {
	return catalog.HNSWConfig{
		M:               cfg.HNSW.M,
		EfConstruction:  cfg.HNSW.EfConstruction,
		EfSearchDefault: cfg.HNSW.EfSearchDefault,
		MaxLayer:        cfg.HNSW.MaxLayer,
	}
}

// CreateCollection registers and opens a new collection, applying defaults
// from cfg wherever ccfg leaves a field at its zero value.
func (db *DB) CreateCollection(ccfg CreateCollectionConfig, cfg *vdbconfig.Config) (*Collection, error) {
	hnswCfg := db.defaultsFrom(cfg)
	if ccfg.M > 0 {
		hnswCfg.M = ccfg.M
	}
	if ccfg.EfConstruction > 0 {
		hnswCfg.EfConstruction = ccfg.EfConstruction
	}
	if ccfg.EfSearchDefault > 0 {
		hnswCfg.EfSearchDefault = ccfg.EfSearchDefault
	}
	if ccfg.MaxLayer > 0 {
		hnswCfg.MaxLayer = ccfg.MaxLayer
	}

	col, err := db.cat.CreateCollection(catalog.CollectionConfig{
		Name:      ccfg.Name,
		Dimension: ccfg.Dimension,
		Metric:    ccfg.Metric,
		HNSW:      hnswCfg,
		Seed:      ccfg.Seed,
	})
	if err != nil {
		return nil, err
	}
	return &Collection{inner: col}, nil
}

// OpenCollection returns a handle to an already-registered collection.
func (db *DB) OpenCollection(name string) (*Collection, error) {
	col, err := db.cat.OpenCollection(name)
	if err != nil {
		return nil, err
	}
	return &Collection{inner: col}, nil
}

// DropCollection permanently removes a collection and its data.
func (db *DB) DropCollection(name string) error {
	return db.cat.DropCollection(name)
}

// ListCollections returns the name, dimension, and metric of every
// registered collection.
func (db *DB) ListCollections() []CreateCollectionConfig {
	cfgs := db.cat.ListCollections()
	out := make([]CreateCollectionConfig, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, CreateCollectionConfig{
			Name:            c.Name,
			Dimension:       c.Dimension,
			Metric:          c.Metric,
			M:               c.HNSW.M,
			EfConstruction:  c.HNSW.EfConstruction,
			EfSearchDefault: c.HNSW.EfSearchDefault,
			MaxLayer:        c.HNSW.MaxLayer,
			Seed:            c.Seed,
		})
	}
	return out
}

// Close closes every open collection and releases the catalog lock.
func (db *DB) Close() error {
	return db.cat.Close()
}

// Collection is a handle to one open collection, exposing the eight
// coordinator operations from spec.md §4.6.
type Collection struct {
	inner *collection.Collection
}

// Insert adds a new live vector under id.
func (c *Collection) Insert(id uuid.UUID, vector []float32, attributes map[string]any) error {
	return c.inner.Insert(id, vector, attributes)
}

// Update replaces the vector and attributes for an already-live id.
func (c *Collection) Update(id uuid.UUID, vector []float32, attributes map[string]any) error {
	return c.inner.Update(id, vector, attributes)
}

// Delete tombstones id.
func (c *Collection) Delete(id uuid.UUID) error {
	return c.inner.Delete(id)
}

// Get returns the current vector and attributes for a live id.
func (c *Collection) Get(id uuid.UUID) ([]float32, map[string]any, error) {
	return c.inner.Get(id)
}

// Search runs an ANN query for the K closest live vectors to query. ef <= 0
// uses the collection's configured default.
func (c *Collection) Search(ctx context.Context, query []float32, k int, ef int, filter map[string]any) ([]SearchHit, error) {
	hits, err := c.inner.Search(ctx, query, k, ef, filter)
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, len(hits))
	for i, h := range hits {
		out[i] = SearchHit{ID: h.ExternalID, Distance: h.Distance, Attributes: h.Attributes}
	}
	return out, nil
}

// Stats reports the collection's current size and graph shape.
func (c *Collection) Stats() Stats {
	s := c.inner.Stats()
	return Stats{
		LiveCount:      s.LiveCount,
		TombstoneCount: s.TombstoneCount,
		BytesResident:  s.BytesResident,
		LayerHistogram: s.LayerHistogram,
	}
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.inner.Name() }

// Dimension returns the collection's configured vector dimension.
func (c *Collection) Dimension() int { return c.inner.Dimension() }
