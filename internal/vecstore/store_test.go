package vecstore

import (
	"path/filepath"
	"testing"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dimension int, capacity uint64) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.bin")
	s, err := Open(path, dimension, capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAllocate_WriteRead_RoundTrips(t *testing.T) {
	s := newTestStore(t, 4, 16)

	slot, err := s.Allocate()
	require.NoError(t, err)

	vec := []float32{1.5, -2.25, 0, 3.75}
	require.NoError(t, s.Write(slot, vec))

	got, err := s.Read(slot)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestAllocate_ReusesFreedSlots(t *testing.T) {
	s := newTestStore(t, 2, 16)

	slot1, err := s.Allocate()
	require.NoError(t, err)
	s.Free(slot1)

	slot2, err := s.Allocate()
	require.NoError(t, err)
	assert.Equal(t, slot1, slot2)
}

func TestAllocate_GrowsWhenCapacityExhausted(t *testing.T) {
	s := newTestStore(t, 1, 2)

	for i := 0; i < 2; i++ {
		_, err := s.Allocate()
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(2), s.Capacity())

	_, err := s.Allocate()
	require.NoError(t, err)
	assert.Greater(t, s.Capacity(), uint64(2))
}

func TestGrow_PreservesExistingSlotData(t *testing.T) {
	s := newTestStore(t, 2, 2)

	slot, err := s.Allocate()
	require.NoError(t, err)
	vec := []float32{7, 8}
	require.NoError(t, s.Write(slot, vec))

	for i := 0; i < 3; i++ {
		_, err := s.Allocate()
		require.NoError(t, err)
	}

	got, err := s.Read(slot)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestWrite_WrongLength_IsInvariantViolation(t *testing.T) {
	s := newTestStore(t, 4, 16)
	slot, err := s.Allocate()
	require.NoError(t, err)

	err = s.Write(slot, []float32{1, 2})
	require.Error(t, err)
	assert.Equal(t, vdberrors.ErrCodeInvariantViolation, vdberrors.GetCode(err))
}

func TestRead_UnallocatedSlot_NotFound(t *testing.T) {
	s := newTestStore(t, 4, 16)
	_, err := s.Read(99)
	require.Error(t, err)
	assert.Equal(t, vdberrors.ErrCodeNotFound, vdberrors.GetCode(err))
}

func TestReopen_PreservesHeaderAndData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	s, err := Open(path, 3, 16)
	require.NoError(t, err)

	slot, err := s.Allocate()
	require.NoError(t, err)
	vec := []float32{1, 2, 3}
	require.NoError(t, s.Write(slot, vec))
	require.NoError(t, s.Close())

	s2, err := Open(path, 3, 16)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Read(slot)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
	assert.Equal(t, uint64(16), s2.Capacity())
}

func TestReopen_DimensionMismatch_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.bin")
	s, err := Open(path, 3, 16)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, 4, 16)
	require.Error(t, err)
	assert.Equal(t, vdberrors.ErrCodeDimensionMismatch, vdberrors.GetCode(err))
}

func TestRebuildFreeList_ReplacesFreeSlots(t *testing.T) {
	s := newTestStore(t, 2, 16)
	for i := 0; i < 4; i++ {
		_, err := s.Allocate()
		require.NoError(t, err)
	}

	s.RebuildFreeList([]uint64{1, 3})
	assert.Equal(t, uint64(2), s.FreeCount())

	slot, err := s.Allocate()
	require.NoError(t, err)
	assert.Contains(t, []uint64{1, 3}, slot)
}
