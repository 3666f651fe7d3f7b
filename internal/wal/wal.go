package wal

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"

	vdberrors "github.com/vectordb-io/vectordb/internal/errors"
)

// SyncMode controls when appended records become durable.
type SyncMode int

const (
	// SyncPerWrite fsyncs after every append.
	SyncPerWrite SyncMode = iota
	// SyncBatched fsyncs on a timer, amortizing fsync cost across concurrent
	// appends within the same interval.
	SyncBatched
)

// Options configures a WAL instance.
type Options struct {
	SyncMode      SyncMode
	FlushInterval time.Duration // only used when SyncMode == SyncBatched
}

// WAL is a single append-only log file for one collection. It is safe for
// concurrent use; appends are serialized internally.
type WAL struct {
	mu       sync.Mutex
	f        *os.File
	opts     Options
	nextSeq  uint64
	quiesced bool

	// batching state: syncedCh is closed and replaced every time flushLoop
	// completes an fsync, so a pending Append can wait on "the next sync"
	// without polling.
	syncedCh chan struct{}
	closeCh  chan struct{}
	wg       sync.WaitGroup
}

// Open opens (creating if absent) the WAL file at path and prepares it for
// appends starting at startSeq (the caller determines this from replay).
func Open(path string, startSeq uint64, opts Options) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, vdberrors.WalIOError("failed to open wal file", err).WithDetail("path", path)
	}
	w := &WAL{
		f:       f,
		opts:    opts,
		nextSeq: startSeq,
	}
	if opts.SyncMode == SyncBatched {
		if opts.FlushInterval <= 0 {
			opts.FlushInterval = 100 * time.Millisecond
			w.opts.FlushInterval = opts.FlushInterval
		}
		w.syncedCh = make(chan struct{})
		w.closeCh = make(chan struct{})
		w.wg.Add(1)
		go w.flushLoop()
	}
	return w, nil
}

func (w *WAL) flushLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			if !w.quiesced {
				_ = w.f.Sync()
			}
			done := w.syncedCh
			w.syncedCh = make(chan struct{})
			w.mu.Unlock()
			close(done)
		case <-w.closeCh:
			return
		}
	}
}

// Append durably writes record and returns its assigned sequence number.
// Under SyncPerWrite it blocks until fsync returns. Under SyncBatched it
// blocks until the batch containing this record has been synced by the
// flush goroutine.
func (w *WAL) Append(r *Record) (uint64, error) {
	w.mu.Lock()
	if w.quiesced {
		w.mu.Unlock()
		return 0, vdberrors.CollectionUnavailableError("wal is quiesced after a prior io failure", nil)
	}
	r.Seq = w.nextSeq
	w.nextSeq++
	frame := encodeFrame(r)

	if _, err := w.f.Write(frame); err != nil {
		w.quiesced = true
		w.mu.Unlock()
		return 0, vdberrors.WalIOError("wal append failed", err)
	}

	if w.opts.SyncMode == SyncPerWrite {
		if err := w.f.Sync(); err != nil {
			w.quiesced = true
			w.mu.Unlock()
			return 0, vdberrors.WalIOError("wal fsync failed", err)
		}
		w.mu.Unlock()
		return r.Seq, nil
	}

	// Batched: wait for the flush goroutine to close the channel that was
	// current when this append was written, i.e. the next tick's sync.
	wait := w.syncedCh
	w.mu.Unlock()
	<-wait

	w.mu.Lock()
	quiesced := w.quiesced
	w.mu.Unlock()
	if quiesced {
		return 0, vdberrors.WalIOError("wal fsync failed during batch", nil)
	}
	return r.Seq, nil
}

// AwaitDurability blocks until any pending batched writes are flushed.
func (w *WAL) AwaitDurability() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.quiesced {
		return vdberrors.CollectionUnavailableError("wal is quiesced", nil)
	}
	return w.f.Sync()
}

// Quiesced reports whether the WAL has stopped accepting writes after an
// I/O failure.
func (w *WAL) Quiesced() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.quiesced
}

// NextSeq returns the sequence number the next Append will receive.
func (w *WAL) NextSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSeq
}

// Close stops the flush goroutine (if any) and closes the underlying file.
func (w *WAL) Close() error {
	if w.closeCh != nil {
		close(w.closeCh)
		w.wg.Wait()
	}
	return w.f.Close()
}

// Replay reads every valid record from path in seq order, invoking fn for
// each. On a partial tail record (short read or bad CRC) it truncates the
// file to the last valid record boundary and stops; this is the only
// destructive action replay takes. It returns the sequence number to resume
// appending from (max replayed seq + 1, or 0 if the log was empty).
func Replay(path string, fn func(*Record) error) (uint64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return 0, vdberrors.WalIOError("failed to open wal file for replay", err).WithDetail("path", path)
	}
	defer f.Close()

	var (
		offset  int64
		lastSeq uint64
		hasSeq  bool
	)

	for {
		rec, consumed, err := readFrame(f, offset)
		if err == io.EOF {
			break
		}
		if err != nil {
			// Partial or corrupt tail record: truncate and stop.
			if truncErr := f.Truncate(offset); truncErr != nil {
				return 0, vdberrors.WalIOError("failed to truncate corrupt wal tail", truncErr)
			}
			break
		}
		if applyErr := fn(rec); applyErr != nil {
			return 0, applyErr
		}
		offset += consumed
		lastSeq = rec.Seq
		hasSeq = true
	}

	if !hasSeq {
		return 0, nil
	}
	return lastSeq + 1, nil
}

// readFrame reads one frame starting at offset. It returns io.EOF when the
// file is exactly exhausted at a frame boundary, and a non-EOF error for any
// short or corrupt frame (the caller treats this as "partial tail").
func readFrame(f *os.File, offset int64) (*Record, int64, error) {
	lenBuf := make([]byte, 4)
	n, err := f.ReadAt(lenBuf, offset)
	if n == 0 && err == io.EOF {
		return nil, 0, io.EOF
	}
	if n < 4 {
		return nil, 0, io.ErrUnexpectedEOF
	}
	frameLen := binary.LittleEndian.Uint32(lenBuf)

	rest := make([]byte, int(frameLen)+crcSize)
	n, err = f.ReadAt(rest, offset+4)
	if n < len(rest) {
		return nil, 0, io.ErrUnexpectedEOF
	}
	_ = err

	body := rest[:frameLen]
	gotCRC := binary.LittleEndian.Uint32(rest[frameLen:])
	wantCRC := crc32.Checksum(append(lenBuf, body...), castagnoli)
	if gotCRC != wantCRC {
		return nil, 0, errBadCRC
	}

	typ := RecordType(body[0])
	seq := binary.LittleEndian.Uint64(body[1:9])
	payload := body[9:]
	rec, err := decodePayload(typ, seq, payload)
	if err != nil {
		return nil, 0, err
	}
	return rec, 4 + int64(frameLen) + crcSize, nil
}

var errBadCRC = vdberrors.CorruptRecordError("wal record failed crc check", nil)
