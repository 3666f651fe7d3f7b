// Package hnsw implements the hierarchical navigable small-world graph
// index: layered insert, beam search, heuristic neighbor selection, and
// lazy-tombstone deletion. The graph is a pure in-memory structure — it
// performs no I/O beyond resolving vectors through its VectorSource, and
// fails only by invariant violation.
package hnsw

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/vectordb-io/vectordb/internal/distance"
	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
)

// Params are the immutable HNSW construction/search parameters for a
// collection.
type Params struct {
	M               int
	EfConstruction  int
	EfSearchDefault int
	MaxLayer        int
}

// VectorSource resolves a slot id to its vector payload. The graph never
// stores vectors itself — node records stay flat (slot id keyed), never
// pointer-based, per the cyclic-graph design constraint.
type VectorSource interface {
	Read(slot uint64) ([]float32, error)
}

type node struct {
	layer     int
	neighbors [][]uint64 // neighbors[l] for l in [0, layer]
}

// Graph is one collection's HNSW index.
type Graph struct {
	mu sync.RWMutex

	params Params
	dist   distance.Func
	source VectorSource
	rng    *rand.Rand
	ml     float64

	nodes          map[uint64]*node
	entryPoint     uint64
	hasEntry       bool
	maxActiveLayer int
	tombstones     *roaring64.Bitmap
}

// Result is a single search hit.
type Result struct {
	Slot     uint64
	Distance float32
}

// New creates an empty graph. seed must be stored in the collection manifest
// by the caller so that recovery can reconstruct an identical graph when
// replay order is identical.
func New(params Params, metric distance.Metric, source VectorSource, seed int64) (*Graph, error) {
	fn, err := distance.ForMetric(metric)
	if err != nil {
		return nil, err
	}
	if params.M <= 0 {
		return nil, vdberrors.ValidationError("hnsw.M must be positive", nil)
	}
	return &Graph{
		params:     params,
		dist:       fn,
		source:     source,
		rng:        rand.New(rand.NewSource(seed)),
		ml:         1.0 / math.Log(float64(params.M)),
		nodes:      make(map[uint64]*node),
		tombstones: roaring64.New(),
	}, nil
}

// M0 returns the layer-0 neighbor cap (2*M by convention).
func (g *Graph) M0() int { return g.params.M * 2 }

func (g *Graph) assignLayer() int {
	u := g.rng.Float64()
	for u <= 0 {
		u = g.rng.Float64()
	}
	layer := int(math.Floor(-math.Log(u) * g.ml))
	if layer > g.params.MaxLayer {
		layer = g.params.MaxLayer
	}
	return layer
}

func (g *Graph) distTo(query []float32, slot uint64) (float32, error) {
	vec, err := g.source.Read(slot)
	if err != nil {
		return 0, err
	}
	return g.dist(query, vec)
}

func (g *Graph) distSlots(a, b uint64) (float32, error) {
	va, err := g.source.Read(a)
	if err != nil {
		return 0, err
	}
	return g.distTo(va, b)
}

// Insert adds slot (already holding vector in the store) to the graph.
func (g *Graph) Insert(slot uint64, vector []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	layer := g.assignLayer()
	n := &node{layer: layer, neighbors: make([][]uint64, layer+1)}
	g.nodes[slot] = n

	if !g.hasEntry {
		g.entryPoint = slot
		g.hasEntry = true
		g.maxActiveLayer = layer
		return nil
	}

	entry := g.entryPoint
	for lc := g.maxActiveLayer; lc > layer; lc-- {
		nearest, err := g.searchLayerBest1(vector, entry, lc)
		if err != nil {
			return err
		}
		entry = nearest
	}

	currEntries := []uint64{entry}
	start := g.maxActiveLayer
	if layer < start {
		start = layer
	}
	for lc := start; lc >= 0; lc-- {
		m := g.params.M
		if lc == 0 {
			m = g.M0()
		}
		candidates, err := g.searchLayer(vector, currEntries, g.params.EfConstruction, lc)
		if err != nil {
			return err
		}
		neighbors, err := g.selectNeighborsHeuristic(vector, candidates, m)
		if err != nil {
			return err
		}
		n.neighbors[lc] = neighbors
		for _, nb := range neighbors {
			if err := g.addConnectionAndPrune(nb, slot, lc); err != nil {
				return err
			}
		}
		if len(neighbors) > 0 {
			currEntries = neighbors
		}
	}

	if layer > g.maxActiveLayer {
		g.entryPoint = slot
		g.maxActiveLayer = layer
	}
	return nil
}

func (g *Graph) addConnectionAndPrune(from, to uint64, layer int) error {
	fn := g.nodes[from]
	if fn == nil || layer >= len(fn.neighbors) {
		return nil
	}
	for _, existing := range fn.neighbors[layer] {
		if existing == to {
			return nil
		}
	}
	fn.neighbors[layer] = append(fn.neighbors[layer], to)

	maxConn := g.params.M
	if layer == 0 {
		maxConn = g.M0()
	}
	if len(fn.neighbors[layer]) <= maxConn {
		return nil
	}
	vec, err := g.source.Read(from)
	if err != nil {
		return err
	}
	pruned, err := g.selectNeighborsHeuristic(vec, fn.neighbors[layer], maxConn)
	if err != nil {
		return err
	}
	fn.neighbors[layer] = pruned
	return nil
}

// selectNeighborsHeuristic admits candidates in increasing distance-to-query
// order, keeping a candidate c only if no already-admitted neighbor n has
// dist(c,n) < dist(c,query) — the heuristic selector from spec.md §4.3.
func (g *Graph) selectNeighborsHeuristic(query []float32, candidates []uint64, m int) ([]uint64, error) {
	if len(candidates) <= m {
		out := make([]uint64, len(candidates))
		copy(out, candidates)
		return out, nil
	}

	type scored struct {
		slot uint64
		d    float32
	}
	pairs := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		d, err := g.distTo(query, c)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, scored{c, d})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].d != pairs[j].d {
			return pairs[i].d < pairs[j].d
		}
		return pairs[i].slot < pairs[j].slot
	})

	admitted := make([]uint64, 0, m)
	for _, cand := range pairs {
		if len(admitted) >= m {
			break
		}
		ok := true
		for _, already := range admitted {
			dn, err := g.distSlots(cand.slot, already)
			if err != nil {
				return nil, err
			}
			if dn < cand.d {
				ok = false
				break
			}
		}
		if ok {
			admitted = append(admitted, cand.slot)
		}
	}
	return admitted, nil
}

// Search returns up to K live slots closest to query, tie-broken by
// ascending slot id. ctx is checked cooperatively during the layer-0 beam
// search (every 64 candidate expansions); an already-cancelled ctx aborts
// before any work is done.
func (g *Graph) Search(ctx context.Context, query []float32, k int, ef int) ([]Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !g.hasEntry {
		return nil, nil
	}
	if ef < k {
		ef = k
	}

	entry := g.entryPoint
	for lc := g.maxActiveLayer; lc > 0; lc-- {
		nearest, err := g.searchLayerBest1(query, entry, lc)
		if err != nil {
			return nil, err
		}
		entry = nearest
	}

	candidates, err := g.searchLayerCtx(ctx, query, []uint64{entry}, ef, 0)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(candidates))
	for _, slot := range candidates {
		if g.tombstones.Contains(slot) {
			continue
		}
		d, err := g.distTo(query, slot)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Slot: slot, Distance: d})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Slot < results[j].Slot
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete lazily tombstones slot; edges are retained for connectivity until
// repair.
func (g *Graph) Delete(slot uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tombstones.Add(slot)
}

// Update rebuilds slot's edges at every layer up to its assigned layer using
// newVector, reusing the slot id. It is logically delete-then-insert but
// never changes which slot id represents the vector, so callers (and any
// other node's neighbor list) never have to learn a new slot. A tombstoned
// slot cannot be updated — it must be reinserted as a new slot instead.
func (g *Graph) Update(slot uint64, newVector []float32) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.tombstones.Contains(slot) {
		return vdberrors.InvariantViolationError("cannot update a tombstoned slot", nil)
	}
	n, ok := g.nodes[slot]
	if !ok {
		return vdberrors.NotFoundError("slot not present in graph", nil)
	}

	for layer, neighbors := range n.neighbors {
		for _, nb := range neighbors {
			g.removeNeighbor(nb, layer, slot)
		}
	}

	entry := g.entryPoint
	if entry == slot {
		for candidate := range g.nodes {
			if candidate != slot {
				entry = candidate
				break
			}
		}
	}

	layer := n.layer
	for lc := g.maxActiveLayer; lc > layer; lc-- {
		if entry == slot {
			break
		}
		nearest, err := g.searchLayerBest1(newVector, entry, lc)
		if err != nil {
			return err
		}
		entry = nearest
	}

	currEntries := []uint64{entry}
	if entry == slot {
		currEntries = nil
	}
	start := g.maxActiveLayer
	if layer < start {
		start = layer
	}
	rebuilt := make([][]uint64, layer+1)
	for lc := start; lc >= 0; lc-- {
		m := g.params.M
		if lc == 0 {
			m = g.M0()
		}
		var candidates []uint64
		if len(currEntries) > 0 {
			var err error
			candidates, err = g.searchLayer(newVector, currEntries, g.params.EfConstruction, lc)
			if err != nil {
				return err
			}
		}
		neighbors, err := g.selectNeighborsHeuristic(newVector, filterOut(candidates, slot), m)
		if err != nil {
			return err
		}
		rebuilt[lc] = neighbors
		for _, nb := range neighbors {
			if err := g.addConnectionAndPrune(nb, slot, lc); err != nil {
				return err
			}
		}
		if len(neighbors) > 0 {
			currEntries = neighbors
		}
	}
	n.neighbors = rebuilt
	return nil
}

func (g *Graph) removeNeighbor(at uint64, layer int, target uint64) {
	n := g.nodes[at]
	if n == nil || layer >= len(n.neighbors) {
		return
	}
	out := n.neighbors[layer][:0]
	for _, s := range n.neighbors[layer] {
		if s != target {
			out = append(out, s)
		}
	}
	n.neighbors[layer] = out
}

func filterOut(slots []uint64, exclude uint64) []uint64 {
	out := make([]uint64, 0, len(slots))
	for _, s := range slots {
		if s != exclude {
			out = append(out, s)
		}
	}
	return out
}

// IsTombstoned reports whether slot has been (lazily) deleted.
func (g *Graph) IsTombstoned(slot uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.tombstones.Contains(slot)
}

// Reclaim removes slot from the node table entirely; the caller must only
// do this once all in-edges have been repaired away from it.
func (g *Graph) Reclaim(slot uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, slot)
	g.tombstones.Remove(slot)
}

// NeighborsOf returns a copy of slot's neighbor list at layer, or nil if
// slot or layer doesn't exist.
func (g *Graph) NeighborsOf(slot uint64, layer int) []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[slot]
	if !ok || layer >= len(n.neighbors) {
		return nil
	}
	out := make([]uint64, len(n.neighbors[layer]))
	copy(out, n.neighbors[layer])
	return out
}

// ReplaceNeighbor swaps oldSlot for newSlot in every neighbor list at layer
// that references it; used by repair to redirect in-edges away from a
// tombstoned node.
func (g *Graph) ReplaceNeighbor(at uint64, layer int, oldSlot, newSlot uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[at]
	if !ok || layer >= len(n.neighbors) {
		return
	}
	for i, nb := range n.neighbors[layer] {
		if nb == oldSlot {
			n.neighbors[layer][i] = newSlot
		}
	}
}

// NodeCount returns the number of nodes (live and tombstoned) in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// TombstoneCount returns the number of tombstoned slots.
func (g *Graph) TombstoneCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return int(g.tombstones.GetCardinality())
}

// LayerHistogram returns a count of nodes per assigned layer.
func (g *Graph) LayerHistogram() map[int]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	hist := make(map[int]int)
	for _, n := range g.nodes {
		hist[n.layer]++
	}
	return hist
}

// EntryPoint returns the current entry point slot and whether one exists.
func (g *Graph) EntryPoint() (uint64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entryPoint, g.hasEntry
}

// MaxActiveLayer returns the graph's current maximum assigned layer.
func (g *Graph) MaxActiveLayer() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.maxActiveLayer
}
