// Package metastore implements the in-memory bidirectional mapping between
// a vector's external id and its internal slot, plus an opaque
// string-keyed attribute map used only for post-filter matching.
package metastore

import (
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
)

const attributeCacheSize = 4096

// Store holds the external_id <-> slot mapping and per-slot attributes for
// one collection. The map is always the source of truth; the LRU cache only
// accelerates repeated attribute reads.
type Store struct {
	mu sync.RWMutex

	idToSlot   map[uuid.UUID]uint64
	slotToID   map[uint64]uuid.UUID
	attributes map[uint64]map[string]any
	tombstoned map[uuid.UUID]bool

	attrCache *lru.Cache[uint64, map[string]any]
}

// New creates an empty metadata store.
func New() *Store {
	cache, _ := lru.New[uint64, map[string]any](attributeCacheSize)
	return &Store{
		idToSlot:   make(map[uuid.UUID]uint64),
		slotToID:   make(map[uint64]uuid.UUID),
		attributes: make(map[uint64]map[string]any),
		tombstoned: make(map[uuid.UUID]bool),
		attrCache:  cache,
	}
}

// Put records a new live mapping external_id -> slot with attrs. Returns
// AlreadyExists if external_id is already live.
func (s *Store) Put(id uuid.UUID, slot uint64, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingSlot, ok := s.idToSlot[id]; ok && !s.tombstoned[id] {
		return vdberrors.AlreadyExistsError("external id already exists", nil).
			WithDetail("slot", strconv.FormatUint(existingSlot, 10))
	}

	s.idToSlot[id] = slot
	s.slotToID[slot] = id
	s.attributes[slot] = attrs
	delete(s.tombstoned, id)
	s.attrCache.Remove(slot)
	return nil
}

// Slot returns the slot for a live external id. Returns NotFound if the id
// is unknown or tombstoned.
func (s *Store) Slot(id uuid.UUID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.idToSlot[id]
	if !ok || s.tombstoned[id] {
		return 0, vdberrors.NotFoundError("external id not found", nil)
	}
	return slot, nil
}

// Attributes returns the attribute map for slot, consulting the LRU cache
// first.
func (s *Store) Attributes(slot uint64) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cached, ok := s.attrCache.Get(slot); ok {
		return cached, true
	}
	attrs, ok := s.attributes[slot]
	if !ok {
		return nil, false
	}
	s.attrCache.Add(slot, attrs)
	return attrs, true
}

// ExternalID returns the external id currently mapped to slot.
func (s *Store) ExternalID(slot uint64) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.slotToID[slot]
	return id, ok
}

// Update replaces the attributes for an already-live id, keeping its slot.
func (s *Store) Update(id uuid.UUID, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.idToSlot[id]
	if !ok || s.tombstoned[id] {
		return vdberrors.NotFoundError("external id not found", nil)
	}
	s.attributes[slot] = attrs
	s.attrCache.Remove(slot)
	return nil
}

// Tombstone marks id as deleted without freeing its slot (the caller frees
// the slot only after graph repair, per the HNSW tombstone contract).
func (s *Store) Tombstone(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.idToSlot[id]; !ok || s.tombstoned[id] {
		return vdberrors.NotFoundError("external id not found", nil)
	}
	s.tombstoned[id] = true
	return nil
}

// IsLive reports whether id maps to a live (non-tombstoned) slot.
func (s *Store) IsLive(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.idToSlot[id]
	return ok && !s.tombstoned[id]
}

// Count returns the number of live and tombstoned entries.
func (s *Store) Count() (live, tombstoned int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.idToSlot {
		if s.tombstoned[id] {
			tombstoned++
		} else {
			live++
		}
	}
	return live, tombstoned
}

// MatchesFilter reports whether slot's attributes satisfy an equality
// filter (every key in filter must be present and equal in the attributes).
func (s *Store) MatchesFilter(slot uint64, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	attrs, ok := s.Attributes(slot)
	if !ok {
		return false
	}
	for k, v := range filter {
		av, present := attrs[k]
		if !present || av != v {
			return false
		}
	}
	return true
}
