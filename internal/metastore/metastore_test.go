package metastore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
)

func TestPut_Slot_RoundTrips(t *testing.T) {
	s := New()
	id := uuid.New()

	require.NoError(t, s.Put(id, 5, map[string]any{"lang": "go"}))

	slot, err := s.Slot(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), slot)

	attrs, ok := s.Attributes(5)
	require.True(t, ok)
	assert.Equal(t, "go", attrs["lang"])
}

func TestPut_DuplicateLiveID_AlreadyExists(t *testing.T) {
	s := New()
	id := uuid.New()
	require.NoError(t, s.Put(id, 1, nil))

	err := s.Put(id, 2, nil)
	require.Error(t, err)
	assert.Equal(t, vdberrors.ErrCodeAlreadyExists, vdberrors.GetCode(err))
}

func TestPut_AfterTombstone_Succeeds(t *testing.T) {
	s := New()
	id := uuid.New()
	require.NoError(t, s.Put(id, 1, nil))
	require.NoError(t, s.Tombstone(id))

	require.NoError(t, s.Put(id, 2, nil))
	slot, err := s.Slot(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), slot)
}

func TestSlot_UnknownID_NotFound(t *testing.T) {
	s := New()
	_, err := s.Slot(uuid.New())
	require.Error(t, err)
	assert.Equal(t, vdberrors.ErrCodeNotFound, vdberrors.GetCode(err))
}

func TestSlot_TombstonedID_NotFound(t *testing.T) {
	s := New()
	id := uuid.New()
	require.NoError(t, s.Put(id, 1, nil))
	require.NoError(t, s.Tombstone(id))

	_, err := s.Slot(id)
	require.Error(t, err)
	assert.Equal(t, vdberrors.ErrCodeNotFound, vdberrors.GetCode(err))
}

func TestTombstone_Unknown_NotFound(t *testing.T) {
	s := New()
	err := s.Tombstone(uuid.New())
	require.Error(t, err)
}

func TestUpdate_ReplacesAttributes(t *testing.T) {
	s := New()
	id := uuid.New()
	require.NoError(t, s.Put(id, 1, map[string]any{"a": 1}))

	require.NoError(t, s.Update(id, map[string]any{"a": 2}))

	attrs, ok := s.Attributes(1)
	require.True(t, ok)
	assert.Equal(t, 2, attrs["a"])
}

func TestCount_LiveAndTombstoned(t *testing.T) {
	s := New()
	id1, id2 := uuid.New(), uuid.New()
	require.NoError(t, s.Put(id1, 1, nil))
	require.NoError(t, s.Put(id2, 2, nil))
	require.NoError(t, s.Tombstone(id1))

	live, tomb := s.Count()
	assert.Equal(t, 1, live)
	assert.Equal(t, 1, tomb)
}

func TestMatchesFilter_EmptyFilterAlwaysMatches(t *testing.T) {
	s := New()
	require.NoError(t, s.Put(uuid.New(), 1, nil))
	assert.True(t, s.MatchesFilter(1, nil))
}

func TestMatchesFilter_EqualityOnAllKeys(t *testing.T) {
	s := New()
	require.NoError(t, s.Put(uuid.New(), 1, map[string]any{"lang": "go", "public": true}))

	assert.True(t, s.MatchesFilter(1, map[string]any{"lang": "go"}))
	assert.False(t, s.MatchesFilter(1, map[string]any{"lang": "rust"}))
	assert.False(t, s.MatchesFilter(1, map[string]any{"missing": "x"}))
}

func TestExternalID_ReverseLookup(t *testing.T) {
	s := New()
	id := uuid.New()
	require.NoError(t, s.Put(id, 9, nil))

	got, ok := s.ExternalID(9)
	require.True(t, ok)
	assert.Equal(t, id, got)
}
