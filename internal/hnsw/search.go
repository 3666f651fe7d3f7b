package hnsw

import (
	"container/heap"
	"context"
)

// cancelCheckInterval bounds how often a cancellable search checks ctx, per
// spec.md §5 ("honor it within a bounded number of candidate expansions,
// e.g. every 64").
const cancelCheckInterval = 64

// candidateHeap is a min-heap ordered by ascending distance, used as the
// frontier of nodes still to be expanded during beam search.
type candidateHeap []candidateItem

type candidateItem struct {
	slot uint64
	dist float32
}

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].slot < h[j].slot
}
func (h candidateHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)        { *h = append(*h, x.(candidateItem)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// resultHeap is a max-heap ordered by descending distance, used to hold the
// best-ef results seen so far (so the worst of the kept results sits at the
// root and can be evicted cheaply).
type resultHeap []candidateItem

func (h resultHeap) Len() int { return len(h) }
func (h resultHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	return h[i].slot > h[j].slot
}
func (h resultHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)   { *h = append(*h, x.(candidateItem)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer runs a candidate-list beam search of width ef at layer,
// starting from entryPoints, and returns up to ef slots ordered nearest
// first. Tombstoned nodes are traversed (they participate in connectivity)
// but are not excluded here — callers filter tombstones from the final
// result set, not from the search frontier, per spec.md §4.3 step 4.
func (g *Graph) searchLayer(query []float32, entryPoints []uint64, ef int, layer int) ([]uint64, error) {
	return g.searchLayerCtx(context.Background(), query, entryPoints, ef, layer)
}

// searchLayerCtx is searchLayer with cooperative cancellation; used directly
// by the top-level Search entry point (construction-time callers use the
// non-cancellable searchLayer since insert cannot be abandoned once
// underway).
func (g *Graph) searchLayerCtx(ctx context.Context, query []float32, entryPoints []uint64, ef int, layer int) ([]uint64, error) {
	visited := make(map[uint64]bool, ef*2)
	var frontier candidateHeap
	var results resultHeap

	for _, ep := range entryPoints {
		if visited[ep] {
			continue
		}
		visited[ep] = true
		d, err := g.distTo(query, ep)
		if err != nil {
			return nil, err
		}
		heap.Push(&frontier, candidateItem{ep, d})
		heap.Push(&results, candidateItem{ep, d})
	}

	expansions := 0
	for frontier.Len() > 0 {
		expansions++
		if expansions%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		current := heap.Pop(&frontier).(candidateItem)
		if results.Len() >= ef && current.dist > results[0].dist {
			break
		}

		n := g.nodes[current.slot]
		if n == nil || layer >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d, err := g.distTo(query, nb)
			if err != nil {
				return nil, err
			}
			if results.Len() < ef || d < results[0].dist {
				heap.Push(&frontier, candidateItem{nb, d})
				heap.Push(&results, candidateItem{nb, d})
				if results.Len() > ef {
					heap.Pop(&results)
				}
			}
		}
	}

	out := make([]uint64, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&results).(candidateItem).slot
	}
	return out, nil
}

// searchLayerBest1 returns the single closest node to query at layer,
// starting the greedy descent from entry.
func (g *Graph) searchLayerBest1(query []float32, entry uint64, layer int) (uint64, error) {
	best := entry
	bestDist, err := g.distTo(query, entry)
	if err != nil {
		return 0, err
	}

	improved := true
	for improved {
		improved = false
		n := g.nodes[best]
		if n == nil || layer >= len(n.neighbors) {
			break
		}
		for _, nb := range n.neighbors[layer] {
			d, err := g.distTo(query, nb)
			if err != nil {
				return 0, err
			}
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
	}
	return best, nil
}
