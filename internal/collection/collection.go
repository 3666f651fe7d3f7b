// Package collection implements the per-collection coordinator: the single
// owner of one WAL, vector store, metadata store, and HNSW graph. It
// serializes writers, lets readers run concurrently against the graph's own
// lock, and is the only place write ordering and recovery are decided.
package collection

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/vectordb-io/vectordb/internal/distance"
	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
	"github.com/vectordb-io/vectordb/internal/hnsw"
	"github.com/vectordb-io/vectordb/internal/metastore"
	"github.com/vectordb-io/vectordb/internal/vecstore"
	"github.com/vectordb-io/vectordb/internal/wal"
)

const walFileName = "wal.log"
const storeFileName = "vectors.bin"

// Options configures a collection at open/create time. Dimension, Metric,
// and HNSW are immutable once the collection's manifest has been written;
// the catalog is responsible for persisting and re-supplying them on reopen.
type Options struct {
	Name            string
	Dir             string
	Dimension       int
	Metric          distance.Metric
	HNSW            hnsw.Params
	WAL             wal.Options
	InitialCapacity uint64
	FilterOverfetch float64
	Seed            int64
	Logger          *slog.Logger
}

// SearchHit is a single result row returned by Search.
type SearchHit struct {
	ExternalID uuid.UUID
	Distance   float32
	Attributes map[string]any
}

// Stats summarizes a collection's current state, per spec.md §4.6 stats().
type Stats struct {
	LiveCount      int
	TombstoneCount int
	BytesResident  uint64
	LayerHistogram map[int]int
}

// Collection owns one WAL + vector store + metadata store + HNSW graph.
// Mutations are serialized by mu; reads only take the graph's own RWMutex
// and the metastore's, so concurrent searches never block on each other.
type Collection struct {
	mu sync.Mutex

	name            string
	dimension       int
	metric          distance.Metric
	filterOverfetch float64
	defaultEf       int

	wal   *wal.WAL
	store *vecstore.Store
	meta  *metastore.Store
	graph *hnsw.Graph

	logger *slog.Logger
}

// Open opens an existing collection directory or creates a new one if
// empty, replaying the WAL to reconstruct the metadata store and HNSW graph
// per spec.md §4.7. The vector store's own mmap file is its own durability
// path; replay re-applies vector writes too, since a crash between WAL
// durability and the vector-store write is possible under the coordinator's
// write ordering.
func Open(opts Options) (*Collection, error) {
	if opts.FilterOverfetch <= 0 {
		opts.FilterOverfetch = 2.0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, vdberrors.StoreIOError("failed to create collection directory", err).WithDetail("dir", opts.Dir)
	}

	store, err := vecstore.Open(filepath.Join(opts.Dir, storeFileName), opts.Dimension, opts.InitialCapacity)
	if err != nil {
		return nil, err
	}

	meta := metastore.New()
	graph, err := hnsw.New(opts.HNSW, opts.Metric, store, opts.Seed)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	walPath := filepath.Join(opts.Dir, walFileName)
	nextSeq, err := wal.Replay(walPath, func(rec *wal.Record) error {
		return applyRecord(rec, store, meta, graph)
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	w, err := wal.Open(walPath, nextSeq, opts.WAL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	opts.Logger.Info("collection opened",
		"name", opts.Name, "dimension", opts.Dimension, "next_seq", nextSeq)

	return &Collection{
		name:            opts.Name,
		dimension:       opts.Dimension,
		metric:          opts.Metric,
		filterOverfetch: opts.FilterOverfetch,
		defaultEf:       opts.HNSW.EfSearchDefault,
		wal:             w,
		store:           store,
		meta:            meta,
		graph:           graph,
		logger:          opts.Logger,
	}, nil
}

func applyRecord(rec *wal.Record, store *vecstore.Store, meta *metastore.Store, graph *hnsw.Graph) error {
	switch rec.Type {
	case wal.RecordInsert:
		attrs, err := decodeAttributes(rec.Attributes)
		if err != nil {
			return err
		}
		if err := store.Write(rec.Slot, rec.Vector); err != nil {
			return err
		}
		if err := meta.Put(rec.ExternalID, rec.Slot, attrs); err != nil {
			return err
		}
		return graph.Insert(rec.Slot, rec.Vector)
	case wal.RecordUpdate:
		attrs, err := decodeAttributes(rec.Attributes)
		if err != nil {
			return err
		}
		if err := store.Write(rec.Slot, rec.Vector); err != nil {
			return err
		}
		if err := meta.Update(rec.ExternalID, attrs); err != nil {
			return err
		}
		return graph.Update(rec.Slot, rec.Vector)
	case wal.RecordDelete:
		if err := meta.Tombstone(rec.ExternalID); err != nil {
			return err
		}
		graph.Delete(rec.Slot)
		return nil
	case wal.RecordCheckpoint:
		return nil
	default:
		return nil
	}
}

func decodeAttributes(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, vdberrors.CorruptRecordError("wal record attributes are not valid json", err)
	}
	return attrs, nil
}

func encodeAttributes(attrs map[string]any) ([]byte, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, vdberrors.ValidationError("attributes are not json-serializable", err)
	}
	return raw, nil
}

func (c *Collection) checkDimension(v []float32) error {
	if len(v) != c.dimension {
		return vdberrors.DimensionMismatchError("vector length does not match collection dimension", nil).
			WithDetail("expected", strconv.Itoa(c.dimension)).
			WithDetail("got", strconv.Itoa(len(v)))
	}
	return nil
}

// Insert adds a new live vector under external_id. Fails with AlreadyExists
// if external_id is already live, DimensionMismatch if the vector's length
// does not match the collection's dimension.
func (c *Collection) Insert(id uuid.UUID, vector []float32, attrs map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wal.Quiesced() {
		return vdberrors.CollectionUnavailableError("collection is quiesced after a prior io failure", nil)
	}
	if err := c.checkDimension(vector); err != nil {
		return err
	}
	if c.meta.IsLive(id) {
		return vdberrors.AlreadyExistsError("external id already exists", nil)
	}

	attrJSON, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}

	slot, err := c.store.Allocate()
	if err != nil {
		return err
	}

	rec := &wal.Record{Type: wal.RecordInsert, ExternalID: id, Slot: slot, Vector: vector, Attributes: attrJSON}
	if _, err := c.wal.Append(rec); err != nil {
		c.store.Free(slot)
		return err
	}

	// The mutation is now durable and will apply on replay even if this
	// process dies right here; from this point on we propagate failures
	// rather than roll back.
	if err := c.store.Write(slot, vector); err != nil {
		return err
	}
	if err := c.graph.Insert(slot, vector); err != nil {
		return err
	}
	if err := c.meta.Put(id, slot, attrs); err != nil {
		return err
	}
	return nil
}

// Update replaces vector and attrs for an already-live external_id, reusing
// its slot. Fails with NotFound if id is unknown or tombstoned.
func (c *Collection) Update(id uuid.UUID, vector []float32, attrs map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wal.Quiesced() {
		return vdberrors.CollectionUnavailableError("collection is quiesced after a prior io failure", nil)
	}
	if err := c.checkDimension(vector); err != nil {
		return err
	}
	slot, err := c.meta.Slot(id)
	if err != nil {
		return err
	}

	attrJSON, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}

	rec := &wal.Record{Type: wal.RecordUpdate, ExternalID: id, Slot: slot, Vector: vector, Attributes: attrJSON}
	if _, err := c.wal.Append(rec); err != nil {
		return err
	}

	if err := c.store.Write(slot, vector); err != nil {
		return err
	}
	if err := c.graph.Update(slot, vector); err != nil {
		return err
	}
	return c.meta.Update(id, attrs)
}

// Delete tombstones external_id. Fails with NotFound if id is unknown or
// already tombstoned. The underlying slot is not freed until a repair pass
// has redirected every in-edge to it.
func (c *Collection) Delete(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wal.Quiesced() {
		return vdberrors.CollectionUnavailableError("collection is quiesced after a prior io failure", nil)
	}
	slot, err := c.meta.Slot(id)
	if err != nil {
		return err
	}

	rec := &wal.Record{Type: wal.RecordDelete, ExternalID: id, Slot: slot}
	if _, err := c.wal.Append(rec); err != nil {
		return err
	}

	if err := c.meta.Tombstone(id); err != nil {
		return err
	}
	c.graph.Delete(slot)
	return nil
}

// Get returns the current vector and attributes for a live external_id.
// Fails with NotFound if id is unknown or tombstoned.
func (c *Collection) Get(id uuid.UUID) ([]float32, map[string]any, error) {
	slot, err := c.meta.Slot(id)
	if err != nil {
		return nil, nil, err
	}
	vector, err := c.store.Read(slot)
	if err != nil {
		return nil, nil, err
	}
	attrs, _ := c.meta.Attributes(slot)
	return vector, attrs, nil
}

// Search runs an ANN query for the K closest live vectors to query. ef
// defaults to the collection's configured ef_search_default when <= 0. When
// filter is non-empty, ef is widened by filterOverfetch before truncation to
// K, since post-filtering can otherwise starve the result set.
func (c *Collection) Search(ctx context.Context, query []float32, k int, ef int, filter map[string]any) ([]SearchHit, error) {
	if err := c.checkDimension(query); err != nil {
		return nil, err
	}
	if ef <= 0 {
		ef = c.defaultEf
	}
	if ef < k {
		ef = k
	}

	fetchK := k
	fetchEf := ef
	if len(filter) > 0 {
		fetchK = int(math.Ceil(float64(k) * c.filterOverfetch))
		fetchEf = int(math.Ceil(float64(ef) * c.filterOverfetch))
		if fetchEf < fetchK {
			fetchEf = fetchK
		}
	}

	results, err := c.graph.Search(ctx, query, fetchK, fetchEf)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, k)
	for _, r := range results {
		if len(filter) > 0 && !c.meta.MatchesFilter(r.Slot, filter) {
			continue
		}
		id, ok := c.meta.ExternalID(r.Slot)
		if !ok {
			continue
		}
		attrs, _ := c.meta.Attributes(r.Slot)
		hits = append(hits, SearchHit{ExternalID: id, Distance: r.Distance, Attributes: attrs})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Stats reports the collection's current size and graph shape.
func (c *Collection) Stats() Stats {
	live, tomb := c.meta.Count()
	return Stats{
		LiveCount:      live,
		TombstoneCount: tomb,
		BytesResident:  c.store.Capacity() * uint64(c.dimension*4),
		LayerHistogram: c.graph.LayerHistogram(),
	}
}

// RepairTombstones runs one repair pass over each tombstoned slot in
// tombstoned, redirecting in-edges away from it, and reclaims any slot whose
// in-edges have all been redirected. Nothing in this module calls it; the
// trigger is left to the caller (spec.md §9 leaves it implementation-defined).
func (c *Collection) RepairTombstones(tombstoned []uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	reclaimed := 0
	for _, slot := range tombstoned {
		ok, err := c.graph.RepairTombstone(slot)
		if err != nil {
			c.logger.Warn("tombstone repair failed", "slot", slot, "error", err)
			continue
		}
		if ok {
			c.graph.Reclaim(slot)
			c.store.Free(slot)
			reclaimed++
		}
	}
	return reclaimed
}

// Close releases the collection's WAL and vector store file handles.
func (c *Collection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	walErr := c.wal.Close()
	storeErr := c.store.Close()
	if walErr != nil {
		return walErr
	}
	return storeErr
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Dimension returns the collection's configured vector dimension.
func (c *Collection) Dimension() int { return c.dimension }

// Metric returns the collection's configured distance metric.
func (c *Collection) Metric() distance.Metric { return c.metric }
