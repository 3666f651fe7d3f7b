package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWAL(t *testing.T) (*WAL, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	w, err := Open(path, 1, Options{SyncMode: SyncPerWrite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, path
}

func TestAppend_AssignsIncreasingSeq(t *testing.T) {
	w, _ := newTestWAL(t)

	seq1, err := w.Append(&Record{Type: RecordInsert, ExternalID: uuid.New(), Slot: 1, Vector: []float32{1, 2, 3}})
	require.NoError(t, err)
	seq2, err := w.Append(&Record{Type: RecordInsert, ExternalID: uuid.New(), Slot: 2, Vector: []float32{4, 5, 6}})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), seq1)
	assert.Equal(t, uint64(2), seq2)
}

func TestReplay_ReturnsAllAppendedRecords(t *testing.T) {
	w, path := newTestWAL(t)

	id1, id2 := uuid.New(), uuid.New()
	_, err := w.Append(&Record{Type: RecordInsert, ExternalID: id1, Slot: 1, Vector: []float32{1, 2, 3}})
	require.NoError(t, err)
	_, err = w.Append(&Record{Type: RecordDelete, ExternalID: id1, Slot: 1})
	require.NoError(t, err)
	_, err = w.Append(&Record{Type: RecordInsert, ExternalID: id2, Slot: 2, Vector: []float32{4, 5, 6}})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var got []*Record
	nextSeq, err := Replay(path, func(r *Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, RecordInsert, got[0].Type)
	assert.Equal(t, id1, got[0].ExternalID)
	assert.Equal(t, []float32{1, 2, 3}, got[0].Vector)
	assert.Equal(t, RecordDelete, got[1].Type)
	assert.Equal(t, RecordInsert, got[2].Type)
	assert.Equal(t, uint64(4), nextSeq)
}

func TestReplay_EmptyLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.log")

	var calls int
	nextSeq, err := Replay(path, func(r *Record) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, uint64(0), nextSeq)
}

func TestReplay_TruncatedFinalRecord_TreatsAsNeverWritten(t *testing.T) {
	w, path := newTestWAL(t)

	_, err := w.Append(&Record{Type: RecordInsert, ExternalID: uuid.New(), Slot: 1, Vector: []float32{1, 2, 3}})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	validSize := info.Size()

	// Append a truncated second record (half a length prefix).
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var got []*Record
	nextSeq, err := Replay(path, func(r *Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, uint64(2), nextSeq)

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, validSize, info.Size(), "replay should truncate the partial tail")
}

func TestReplay_CorruptCRC_TruncatesAtThatRecord(t *testing.T) {
	w, path := newTestWAL(t)

	_, err := w.Append(&Record{Type: RecordInsert, ExternalID: uuid.New(), Slot: 1, Vector: []float32{1, 2, 3}})
	require.NoError(t, err)
	firstSize, err := os.Stat(path)
	require.NoError(t, err)

	_, err = w.Append(&Record{Type: RecordInsert, ExternalID: uuid.New(), Slot: 2, Vector: []float32{4, 5, 6}})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Corrupt the last byte (part of the second record's CRC).
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	info, err := f.Stat()
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, info.Size()-1)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var got []*Record
	_, err = Replay(path, func(r *Record) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, firstSize.Size(), info.Size())
}

func TestAppend_QuiescesAfterIOFailure(t *testing.T) {
	w, _ := newTestWAL(t)
	_ = w.f.Close() // force subsequent writes to fail

	_, err := w.Append(&Record{Type: RecordInsert, ExternalID: uuid.New(), Slot: 1, Vector: []float32{1}})
	require.Error(t, err)
	assert.True(t, w.Quiesced())

	_, err = w.Append(&Record{Type: RecordInsert, ExternalID: uuid.New(), Slot: 2, Vector: []float32{1}})
	require.Error(t, err)
}

func TestAppend_BatchedSyncMode_ReturnsAfterFlush(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batched.log")
	w, err := Open(path, 1, Options{SyncMode: SyncBatched, FlushInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	start := time.Now()
	seq, err := w.Append(&Record{Type: RecordInsert, ExternalID: uuid.New(), Slot: 1, Vector: []float32{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestCheckpointRecord_RoundTrips(t *testing.T) {
	w, path := newTestWAL(t)

	_, err := w.Append(&Record{
		Type:             RecordCheckpoint,
		MaxSeq:           42,
		StoreLen:         1024,
		FreeListSnapshot: []byte{1, 2, 3, 4},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var got *Record
	_, err = Replay(path, func(r *Record) error {
		got = r
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, RecordCheckpoint, got.Type)
	assert.Equal(t, uint64(42), got.MaxSeq)
	assert.Equal(t, uint64(1024), got.StoreLen)
	assert.Equal(t, []byte{1, 2, 3, 4}, got.FreeListSnapshot)
}
