// Package vecstore implements the memory-mapped, fixed-size vector payload
// store: a header followed by a packed array of slots, addressed by a
// 64-bit slot id, with geometric growth and a reclaimed-slot free list.
package vecstore

import (
	"encoding/binary"
	"os"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/blevesearch/mmap-go"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
)

const (
	magic       uint32 = 0x56454342 // "VECB"
	headerSize         = 4 + 4 + 4 + 4 + 8 + 8
	minGrowth          = 4096
)

// Store is a memory-mapped, fixed-size-slot vector payload file.
type Store struct {
	mu sync.RWMutex

	f         *os.File
	data      mmap.MMap
	dimension uint32
	slotSize  uint32
	capacity  uint64
	used      uint64
	freeList  *roaring64.Bitmap

	// generation increments on every remap; readers that captured an older
	// generation must not dereference data captured before a remap.
	generation uint64
}

// Open opens or creates the vector store file at path for vectors of the
// given dimension, with an initial slot capacity of initialCapacity.
func Open(path string, dimension int, initialCapacity uint64) (*Store, error) {
	if initialCapacity == 0 {
		initialCapacity = minGrowth
	}
	slotSize := uint32(4 * dimension)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, vdberrors.StoreIOError("failed to open vector store file", err).WithDetail("path", path)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, vdberrors.StoreIOError("failed to stat vector store file", err)
	}

	s := &Store{f: f, dimension: uint32(dimension), slotSize: slotSize, freeList: roaring64.New()}

	if info.Size() == 0 {
		if err := s.initNew(initialCapacity); err != nil {
			_ = f.Close()
			return nil, err
		}
	} else {
		if err := s.loadExisting(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) initNew(capacity uint64) error {
	total := int64(headerSize) + int64(capacity)*int64(s.slotSize)
	if err := s.f.Truncate(total); err != nil {
		return vdberrors.StoreIOError("failed to allocate vector store file", err)
	}
	s.capacity = capacity
	s.used = 0
	if err := s.remap(); err != nil {
		return err
	}
	s.writeHeader()
	return nil
}

func (s *Store) loadExisting() error {
	hdr := make([]byte, headerSize)
	if _, err := s.f.ReadAt(hdr, 0); err != nil {
		return vdberrors.CorruptionFatalError("failed to read vector store header", err)
	}
	gotMagic := binary.LittleEndian.Uint32(hdr[0:4])
	if gotMagic != magic {
		return vdberrors.CorruptionFatalError("vector store header has wrong magic", nil)
	}
	dimension := binary.LittleEndian.Uint32(hdr[8:12])
	if dimension != s.dimension {
		return vdberrors.DimensionMismatchError("vector store dimension does not match collection config", nil)
	}
	slotSize := binary.LittleEndian.Uint32(hdr[12:16])
	if slotSize != s.slotSize {
		return vdberrors.CorruptionFatalError("vector store slot size does not match dimension", nil)
	}
	s.capacity = binary.LittleEndian.Uint64(hdr[16:24])
	s.used = binary.LittleEndian.Uint64(hdr[24:32])
	return s.remap()
}

func (s *Store) remap() error {
	if s.data != nil {
		if err := s.data.Unmap(); err != nil {
			return vdberrors.StoreIOError("failed to unmap vector store", err)
		}
	}
	data, err := mmap.Map(s.f, mmap.RDWR, 0)
	if err != nil {
		return vdberrors.StoreIOError("failed to mmap vector store", err)
	}
	s.data = data
	s.generation++
	return nil
}

func (s *Store) writeHeader() {
	binary.LittleEndian.PutUint32(s.data[0:4], magic)
	binary.LittleEndian.PutUint32(s.data[4:8], 1) // version
	binary.LittleEndian.PutUint32(s.data[8:12], s.dimension)
	binary.LittleEndian.PutUint32(s.data[12:16], s.slotSize)
	binary.LittleEndian.PutUint64(s.data[16:24], s.capacity)
	binary.LittleEndian.PutUint64(s.data[24:32], s.used)
}

// Allocate reserves a slot, reusing a freed one when available, and returns
// its id.
func (s *Store) Allocate() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.freeList.IsEmpty() {
		slot := s.freeList.Minimum()
		s.freeList.Remove(slot)
		return slot, nil
	}

	if s.used == s.capacity {
		if err := s.grow(); err != nil {
			return 0, err
		}
	}
	slot := s.used
	s.used++
	s.writeHeader()
	return slot, nil
}

func (s *Store) grow() error {
	newCapacity := s.capacity * 2
	if newCapacity-s.capacity < minGrowth {
		newCapacity = s.capacity + minGrowth
	}
	total := int64(headerSize) + int64(newCapacity)*int64(s.slotSize)
	if err := s.f.Truncate(total); err != nil {
		return vdberrors.StoreIOError("failed to grow vector store file", err)
	}
	s.capacity = newCapacity
	if err := s.remap(); err != nil {
		return err
	}
	s.writeHeader()
	return nil
}

func (s *Store) slotOffset(slot uint64) int64 {
	return int64(headerSize) + int64(slot)*int64(s.slotSize)
}

// Write copies vector into slot. Does not fsync; durability is the WAL's
// responsibility.
func (s *Store) Write(slot uint64, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if uint32(len(vector))*4 != s.slotSize {
		return vdberrors.InvariantViolationError("vector blob length does not equal 4*D", nil).
			WithDetail("expected_bytes", strconv.Itoa(int(s.slotSize))).
			WithDetail("got_bytes", strconv.Itoa(len(vector)*4))
	}
	if slot >= s.used {
		return vdberrors.InvariantViolationError("write to unallocated slot", nil)
	}
	off := s.slotOffset(slot)
	for i, f := range vector {
		binary.LittleEndian.PutUint32(s.data[off+int64(i)*4:], float32bits(f))
	}
	return nil
}

// Read returns a freshly copied vector for slot (copied out of the mapping
// so it remains valid after a concurrent remap).
func (s *Store) Read(slot uint64) ([]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if slot >= s.used {
		return nil, vdberrors.NotFoundError("slot not allocated", nil)
	}
	off := s.slotOffset(slot)
	n := int(s.dimension)
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32frombits(binary.LittleEndian.Uint32(s.data[off+int64(i)*4:]))
	}
	return out, nil
}

// Free returns slot to the free list without zeroing its bytes.
func (s *Store) Free(slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeList.Add(slot)
}

// RebuildFreeList replaces the free list wholesale. Recovery does not call
// it: a reopened store starts with an empty free list.
func (s *Store) RebuildFreeList(slots []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeList = roaring64.New()
	s.freeList.AddMany(slots)
}

// Used returns the high-water mark of allocated slots (including freed
// ones not yet reused).
func (s *Store) Used() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.used
}

// Capacity returns the current slot capacity.
func (s *Store) Capacity() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity
}

// FreeCount returns the number of slots currently on the free list.
func (s *Store) FreeCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.freeList.GetCardinality()
}

// Close unmaps the store and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data != nil {
		if err := s.data.Unmap(); err != nil {
			return vdberrors.StoreIOError("failed to unmap vector store on close", err)
		}
	}
	return s.f.Close()
}
