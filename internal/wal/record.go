// Package wal implements the per-collection write-ahead log: framed,
// checksummed mutation records, durable append, and sequential replay with
// truncate-on-corrupt-tail recovery.
package wal

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"

	"github.com/google/uuid"
)

var (
	errShortPayload = errors.New("wal: payload shorter than declared fields")
	errUnknownType  = errors.New("wal: unknown record type")
)

// RecordType identifies the kind of mutation a record carries.
type RecordType uint8

const (
	RecordInsert RecordType = iota + 1
	RecordUpdate
	RecordDelete
	RecordCheckpoint
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// headerSize is length(4) + type(1) + seq(8).
const headerSize = 4 + 1 + 8

// crcSize is the trailing CRC-32C.
const crcSize = 4

// Record is a single decoded WAL entry.
type Record struct {
	Seq  uint64
	Type RecordType

	// Insert / Update fields.
	ExternalID uuid.UUID
	Slot       uint64
	Vector     []float32
	Attributes []byte // JSON-encoded attribute map, or nil

	// Delete fields reuse ExternalID and Slot above.

	// Checkpoint fields.
	MaxSeq           uint64
	StoreLen         uint64
	FreeListSnapshot []byte
}

// encodePayload serializes a Record's payload (without the length/type/seq header
// or trailing CRC, which Append/encodeFrame handle).
func encodePayload(r *Record) []byte {
	switch r.Type {
	case RecordInsert, RecordUpdate:
		buf := make([]byte, 16+8+4+len(r.Vector)*4+4+len(r.Attributes))
		off := 0
		copy(buf[off:], r.ExternalID[:])
		off += 16
		binary.LittleEndian.PutUint64(buf[off:], r.Slot)
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Vector)))
		off += 4
		for _, f := range r.Vector {
			binary.LittleEndian.PutUint32(buf[off:], float32bits(f))
			off += 4
		}
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(r.Attributes)))
		off += 4
		copy(buf[off:], r.Attributes)
		return buf
	case RecordDelete:
		buf := make([]byte, 16+8)
		copy(buf[0:], r.ExternalID[:])
		binary.LittleEndian.PutUint64(buf[16:], r.Slot)
		return buf
	case RecordCheckpoint:
		buf := make([]byte, 8+8+4+len(r.FreeListSnapshot))
		binary.LittleEndian.PutUint64(buf[0:], r.MaxSeq)
		binary.LittleEndian.PutUint64(buf[8:], r.StoreLen)
		binary.LittleEndian.PutUint32(buf[16:], uint32(len(r.FreeListSnapshot)))
		copy(buf[20:], r.FreeListSnapshot)
		return buf
	default:
		return nil
	}
}

func decodePayload(typ RecordType, seq uint64, payload []byte) (*Record, error) {
	r := &Record{Seq: seq, Type: typ}
	switch typ {
	case RecordInsert, RecordUpdate:
		if len(payload) < 16+8+4 {
			return nil, errShortPayload
		}
		off := 0
		copy(r.ExternalID[:], payload[off:off+16])
		off += 16
		r.Slot = binary.LittleEndian.Uint64(payload[off:])
		off += 8
		n := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if len(payload) < off+n*4+4 {
			return nil, errShortPayload
		}
		r.Vector = make([]float32, n)
		for i := 0; i < n; i++ {
			r.Vector[i] = float32frombits(binary.LittleEndian.Uint32(payload[off:]))
			off += 4
		}
		attrLen := int(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
		if len(payload) < off+attrLen {
			return nil, errShortPayload
		}
		if attrLen > 0 {
			r.Attributes = make([]byte, attrLen)
			copy(r.Attributes, payload[off:off+attrLen])
		}
		return r, nil
	case RecordDelete:
		if len(payload) < 16+8 {
			return nil, errShortPayload
		}
		copy(r.ExternalID[:], payload[0:16])
		r.Slot = binary.LittleEndian.Uint64(payload[16:])
		return r, nil
	case RecordCheckpoint:
		if len(payload) < 8+8+4 {
			return nil, errShortPayload
		}
		r.MaxSeq = binary.LittleEndian.Uint64(payload[0:])
		r.StoreLen = binary.LittleEndian.Uint64(payload[8:])
		n := int(binary.LittleEndian.Uint32(payload[16:]))
		if len(payload) < 20+n {
			return nil, errShortPayload
		}
		if n > 0 {
			r.FreeListSnapshot = make([]byte, n)
			copy(r.FreeListSnapshot, payload[20:20+n])
		}
		return r, nil
	default:
		return nil, errUnknownType
	}
}

// encodeFrame builds the complete on-wire frame for a record:
// length:u32, type:u8, seq:u64, payload, crc32:u32 (CRC over everything
// preceding it).
func encodeFrame(r *Record) []byte {
	payload := encodePayload(r)
	frameLen := 1 + 8 + len(payload) // type + seq + payload, excluding the length field itself
	buf := make([]byte, 4+frameLen+crcSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(frameLen))
	buf[4] = byte(r.Type)
	binary.LittleEndian.PutUint64(buf[5:13], r.Seq)
	copy(buf[13:], payload)
	crc := crc32.Checksum(buf[0:13+len(payload)], castagnoli)
	binary.LittleEndian.PutUint32(buf[13+len(payload):], crc)
	return buf
}

func float32bits(f float32) uint32 {
	return math.Float32bits(f)
}

func float32frombits(b uint32) float32 {
	return math.Float32frombits(b)
}
