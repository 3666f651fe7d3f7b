// Package catalog implements the top-level registry of collections within
// one data directory: an advisory process lock plus the create/drop/
// list/open operations that hand out collection coordinators. Each
// collection owns its own immutable manifest file (spec.md §6); the
// catalog itself persists nothing beyond the lock file, discovering
// registered collections by scanning data_dir for subdirectories that
// carry one.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"

	"github.com/vectordb-io/vectordb/internal/collection"
	"github.com/vectordb-io/vectordb/internal/distance"
	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
	"github.com/vectordb-io/vectordb/internal/hnsw"
	"github.com/vectordb-io/vectordb/internal/wal"
)

const (
	lockFileName     = ".catalog.lock"
	manifestFileName = "manifest.json"
)

// CollectionConfig is the configuration a caller supplies to CreateCollection.
type CollectionConfig struct {
	Name      string
	Dimension int
	Metric    string
	HNSW      HNSWConfig
	Seed      int64
}

// HNSWConfig is the JSON-shaped mirror of hnsw.Params stored in a
// collection's manifest (kept separate so the manifest's wire shape
// doesn't couple to the graph package's internal struct layout).
type HNSWConfig struct {
	M               int `json:"m"`
	EfConstruction  int `json:"ef_construction"`
	EfSearchDefault int `json:"ef_search_default"`
	MaxLayer        int `json:"max_layer"`
}

func (c HNSWConfig) toParams() hnsw.Params {
	return hnsw.Params{M: c.M, EfConstruction: c.EfConstruction, EfSearchDefault: c.EfSearchDefault, MaxLayer: c.MaxLayer}
}

// collectionManifest is the immutable, per-collection manifest.json
// described in spec.md §6: written once at create_collection time and
// never rewritten. Seed is carried alongside the schema's named fields so
// recovery can reseed the same per-collection RNG used for HNSW layer
// assignment (spec.md §9's debuggable-replay note).
type collectionManifest struct {
	Version     int        `json:"version"`
	Name        string     `json:"name"`
	Dimension   int        `json:"dimension"`
	Metric      string     `json:"metric"`
	IndexParams HNSWConfig `json:"index_params"`
	Seed        int64      `json:"seed"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (m collectionManifest) toConfig() CollectionConfig {
	return CollectionConfig{Name: m.Name, Dimension: m.Dimension, Metric: m.Metric, HNSW: m.IndexParams, Seed: m.Seed}
}

// Catalog owns one data_dir for the lifetime of the process; only one
// Catalog per data_dir may be open at a time, enforced by an advisory lock
// file so two processes never write the same WAL concurrently.
type Catalog struct {
	mu sync.Mutex

	dataDir string
	lock    *flock.Flock

	walOpts         wal.Options
	initialCapacity uint64
	filterOverfetch float64
	logger          *slog.Logger

	collections map[string]CollectionConfig
	open        map[string]*collection.Collection
	breakers    map[string]*vdberrors.CircuitBreaker
}

// Options configures a Catalog's defaults for collections it opens.
type Options struct {
	DataDir         string
	WAL             wal.Options
	InitialCapacity uint64
	FilterOverfetch float64
	Logger          *slog.Logger
}

// lockRetryConfig governs how long Open retries acquiring the advisory
// catalog lock before giving up: a prior process that is itself mid-Close
// (e.g. a REST server reloading) typically releases the lock within
// milliseconds, so a short bounded backoff avoids a spurious CatalogLocked
// error under that ordinary handoff race.
var lockRetryConfig = vdberrors.RetryConfig{
	MaxRetries:   4,
	InitialDelay: 25 * time.Millisecond,
	MaxDelay:     200 * time.Millisecond,
	Multiplier:   2.0,
	Jitter:       true,
}

// Open acquires the data_dir's lock file and discovers every already
// registered collection by scanning for subdirectories carrying a
// manifest.json. Returns CatalogLockedError if another process still holds
// the lock after the retry budget above is exhausted.
func Open(opts Options) (*Catalog, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, vdberrors.StoreIOError("failed to create data directory", err).WithDetail("dir", opts.DataDir)
	}

	lockPath := filepath.Join(opts.DataDir, lockFileName)
	fl := flock.New(lockPath)
	acquired, err := vdberrors.RetryWithResult(context.Background(), lockRetryConfig, func() (bool, error) {
		ok, err := fl.TryLock()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, vdberrors.CatalogLockedError("data directory is locked by another process", nil).WithDetail("path", lockPath)
		}
		return true, nil
	})
	if err != nil || !acquired {
		if vdberrors.GetCode(err) == vdberrors.ErrCodeCatalogLocked {
			return nil, err
		}
		return nil, vdberrors.CatalogLockedError("failed to acquire catalog lock", err).WithDetail("path", lockPath)
	}

	collections, err := discoverCollections(opts.DataDir)
	if err != nil {
		_ = fl.Unlock()
		return nil, err
	}

	c := &Catalog{
		dataDir:         opts.DataDir,
		lock:            fl,
		walOpts:         opts.WAL,
		initialCapacity: opts.InitialCapacity,
		filterOverfetch: opts.FilterOverfetch,
		logger:          opts.Logger,
		collections:     collections,
		open:            make(map[string]*collection.Collection),
		breakers:        make(map[string]*vdberrors.CircuitBreaker),
	}
	return c, nil
}

// discoverCollections scans dataDir for immediate subdirectories that carry
// a manifest.json, the catalog's sole source of truth for what is
// registered (spec.md §6: the manifest is per collection, not catalog-wide).
func discoverCollections(dataDir string) (map[string]CollectionConfig, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, vdberrors.StoreIOError("failed to scan data directory", err).WithDetail("dir", dataDir)
	}

	collections := make(map[string]CollectionConfig, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m, err := readManifest(filepath.Join(dataDir, e.Name(), manifestFileName))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		collections[m.Name] = m.toConfig()
	}
	return collections, nil
}

func readManifest(path string) (*collectionManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m collectionManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, vdberrors.CorruptionFatalError("collection manifest is not valid json", err).WithDetail("path", path)
	}
	return &m, nil
}

// writeManifestOnce persists cfg's immutable manifest.json. Called exactly
// once, at CreateCollection time; the file is never rewritten afterward.
func writeManifestOnce(dir string, cfg CollectionConfig) error {
	m := collectionManifest{
		Version:     1,
		Name:        cfg.Name,
		Dimension:   cfg.Dimension,
		Metric:      cfg.Metric,
		IndexParams: cfg.HNSW,
		Seed:        cfg.Seed,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return vdberrors.InternalError("failed to marshal collection manifest", err)
	}
	path := filepath.Join(dir, manifestFileName)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return vdberrors.StoreIOError("failed to write collection manifest", err).WithDetail("path", path)
	}
	return nil
}

func (c *Catalog) collectionDir(name string) string {
	return filepath.Join(c.dataDir, name)
}

// breakerFor returns (creating if absent) the circuit breaker guarding
// repeated open attempts for a single collection name, so a collection
// whose WAL replay keeps failing (corrupt record, disk I/O) doesn't pay the
// full replay cost on every caller's retry once it is already known to be
// broken.
func (c *Catalog) breakerFor(name string) *vdberrors.CircuitBreaker {
	if cb, ok := c.breakers[name]; ok {
		return cb
	}
	cb := vdberrors.NewCircuitBreaker(name,
		vdberrors.WithMaxFailures(3),
		vdberrors.WithResetTimeout(10*time.Second),
	)
	c.breakers[name] = cb
	return cb
}

func (c *Catalog) openCollectionLocked(cfg CollectionConfig) (*collection.Collection, error) {
	cb := c.breakerFor(cfg.Name)
	var col *collection.Collection
	err := cb.Execute(func() error {
		var openErr error
		col, openErr = collection.Open(collection.Options{
			Name:            cfg.Name,
			Dir:             c.collectionDir(cfg.Name),
			Dimension:       cfg.Dimension,
			Metric:          distance.Metric(cfg.Metric),
			HNSW:            cfg.HNSW.toParams(),
			WAL:             c.walOpts,
			InitialCapacity: c.initialCapacity,
			FilterOverfetch: c.filterOverfetch,
			Seed:            cfg.Seed,
			Logger:          c.logger,
		})
		return openErr
	})
	if err != nil {
		if err == vdberrors.ErrCircuitOpen {
			return nil, vdberrors.CollectionUnavailableError("collection repeatedly failed to open; circuit open", err).WithDetail("name", cfg.Name)
		}
		return nil, err
	}
	return col, nil
}

// CreateCollection registers a new collection with the given configuration,
// writes its immutable manifest.json, and opens it. Fails with
// AlreadyExists if name is taken.
func (c *Catalog) CreateCollection(cfg CollectionConfig) (*collection.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg.Name == "" {
		return nil, vdberrors.ValidationError("collection name must not be empty", nil)
	}
	if _, exists := c.collections[cfg.Name]; exists {
		return nil, vdberrors.AlreadyExistsError("collection already exists", nil).WithDetail("name", cfg.Name)
	}
	if cfg.Dimension <= 0 {
		return nil, vdberrors.ValidationError("dimension must be positive", nil)
	}
	if _, err := distance.ForMetric(distance.Metric(cfg.Metric)); err != nil {
		return nil, err
	}

	dir := c.collectionDir(cfg.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vdberrors.StoreIOError("failed to create collection directory", err).WithDetail("dir", dir)
	}

	col, err := c.openCollectionLocked(cfg)
	if err != nil {
		return nil, err
	}

	if err := writeManifestOnce(dir, cfg); err != nil {
		_ = col.Close()
		return nil, err
	}

	c.collections[cfg.Name] = cfg
	c.open[cfg.Name] = col
	c.logger.Info("collection created", "name", cfg.Name, "dimension", cfg.Dimension, "metric", cfg.Metric)
	return col, nil
}

// OpenCollection returns the running coordinator for an already-registered
// collection, opening it from disk (replaying its WAL) if this is the first
// access since the catalog was opened. Fails with NotFound if name is not
// registered.
func (c *Catalog) OpenCollection(name string) (*collection.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if col, ok := c.open[name]; ok {
		return col, nil
	}
	cfg, ok := c.collections[name]
	if !ok {
		return nil, vdberrors.NotFoundError("collection not found", nil).WithDetail("name", name)
	}

	col, err := c.openCollectionLocked(cfg)
	if err != nil {
		return nil, err
	}
	c.open[name] = col
	return col, nil
}

// DropCollection closes (if open) and permanently removes a collection's
// directory, including its manifest. Fails with NotFound if name is not
// registered.
func (c *Catalog) DropCollection(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.collections[name]; !ok {
		return vdberrors.NotFoundError("collection not found", nil).WithDetail("name", name)
	}
	if col, ok := c.open[name]; ok {
		_ = col.Close()
		delete(c.open, name)
	}
	delete(c.collections, name)
	delete(c.breakers, name)
	if err := os.RemoveAll(c.collectionDir(name)); err != nil {
		return vdberrors.StoreIOError("failed to remove collection directory", err).WithDetail("name", name)
	}
	c.logger.Info("collection dropped", "name", name)
	return nil
}

// ListCollections returns the configuration of every registered collection.
func (c *Catalog) ListCollections() []CollectionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CollectionConfig, 0, len(c.collections))
	for _, cfg := range c.collections {
		out = append(out, cfg)
	}
	return out
}

// Close closes every open collection and releases the catalog lock.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, col := range c.open {
		if err := col.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing collection %q: %w", name, err)
		}
	}
	c.open = make(map[string]*collection.Collection)
	if err := c.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
