package hnsw

// RepairTombstone redirects every in-edge to a tombstoned slot. For each
// node that lists slot at some layer, it runs a beam search at that layer
// seeded at the node and replaces slot, in place, with the nearest live
// candidate other than slot and the node itself; the heuristic selector is
// not re-run. It returns true once every in-edge to slot (at every layer)
// has been redirected, at which point the caller may reclaim the slot.
func (g *Graph) RepairTombstone(slot uint64) (reclaimable bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.tombstones.Contains(slot) {
		return false, nil
	}
	if _, ok := g.nodes[slot]; !ok {
		return true, nil
	}

	allRepaired := true
	for neighbor, nn := range g.nodes {
		if neighbor == slot {
			continue
		}
		for layer := range nn.neighbors {
			if !g.referencesAt(nn, layer, slot) {
				continue
			}
			vec, err := g.source.Read(neighbor)
			if err != nil {
				return false, err
			}
			candidates, err := g.searchLayer(vec, []uint64{neighbor}, g.params.EfConstruction, layer)
			if err != nil {
				return false, err
			}
			replacement, found := firstLiveOtherThan(filterOut(candidates, neighbor), slot, g.tombstones)
			if !found {
				allRepaired = false
				continue
			}
			g.replaceInPlace(nn, layer, slot, replacement)
		}
	}
	return allRepaired, nil
}

func (g *Graph) referencesAt(n *node, layer int, target uint64) bool {
	for _, s := range n.neighbors[layer] {
		if s == target {
			return true
		}
	}
	return false
}

func (g *Graph) replaceInPlace(n *node, layer int, oldSlot, newSlot uint64) {
	for i, s := range n.neighbors[layer] {
		if s == oldSlot {
			n.neighbors[layer][i] = newSlot
		}
	}
}

func firstLiveOtherThan(candidates []uint64, exclude uint64, tombstones interface{ Contains(uint64) bool }) (uint64, bool) {
	for _, c := range candidates {
		if c == exclude {
			continue
		}
		if tombstones.Contains(c) {
			continue
		}
		return c, true
	}
	return 0, false
}
