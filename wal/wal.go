// Package wal implements the write-ahead log: a length-prefixed,
// CRC-checked append log with configurable fsync policy and bounded crash
// recovery.
package wal

import (
	"hash/crc32"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/chrntypes"
	"github.com/muddysheep/chronicle/internal/endian"
)

// SyncMode controls how aggressively Append/AppendBatch durably flush to
// disk.
type SyncMode int

const (
	// SyncEveryWrite fsyncs after every single append.
	SyncEveryWrite SyncMode = iota
	// SyncBatched fsyncs once bytes-since-last-sync crosses a threshold.
	SyncBatched
	// SyncNone only flushes the userspace buffer; never fsyncs on its own.
	SyncNone
)

// maxRecordLength is the sanity cap applied during recovery: a length
// field larger than this is treated as a corrupt/torn tail, not trusted.
const maxRecordLength = 1 << 20 // 1 MiB

// DefaultBatchThresholdBytes matches the original engine's WAL batching
// window.
const DefaultBatchThresholdBytes = 64 * 1024

// WAL is a single append-only log file of length-prefixed, CRC32-checked
// sample records.
type WAL struct {
	path           string
	file           *os.File
	entryCount     int
	bytesSinceSync int
	syncMode       SyncMode
	thresholdBytes int
	log            *zap.Logger
}

// Open opens or creates the WAL file at path, counting existing
// (well-formed) records so EntryCount reflects what a subsequent Recover
// would return.
func Open(path string, mode SyncMode, thresholdBytes int, log *zap.Logger) (*WAL, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if thresholdBytes <= 0 {
		thresholdBytes = DefaultBatchThresholdBytes
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "wal.Open", err)
	}

	w := &WAL{path: path, file: f, syncMode: mode, thresholdBytes: thresholdBytes, log: log}
	count, err := w.countEntries()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.entryCount = count

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, chrnerr.New(chrnerr.KindIO, "wal.Open", err)
	}

	return w, nil
}

func (w *WAL) countEntries() (int, error) {
	n := 0
	it, err := NewIterator(w.path, w.log)
	if err != nil {
		return 0, err
	}
	defer it.Close()
	for {
		_, ok, err := it.Next()
		if err != nil {
			return n, err
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}

// EntryCount reports the number of records currently appended (reset to
// zero by Truncate).
func (w *WAL) EntryCount() int { return w.entryCount }

// Append serializes sample and writes one length-prefixed, CRC-checked
// record, honoring the configured sync policy.
func (w *WAL) Append(s chrntypes.Sample) error {
	return w.appendRecord(encodeSample(s), true)
}

// AppendBatch writes one record per sample with at most one fsync at the
// end, regardless of sync mode (except SyncNone, which never fsyncs).
func (w *WAL) AppendBatch(samples []chrntypes.Sample) error {
	for i, s := range samples {
		last := i == len(samples)-1
		if err := w.appendRecord(encodeSample(s), last); err != nil {
			return err
		}
	}
	return nil
}

func (w *WAL) appendRecord(payload []byte, maybeSyncNow bool) error {
	record := make([]byte, 4+len(payload)+4)
	endian.LE.PutUint32(record[:4], uint32(len(payload)))
	copy(record[4:], payload)
	crc := crc32.ChecksumIEEE(record[:4+len(payload)])
	endian.LE.PutUint32(record[4+len(payload):], crc)

	if _, err := w.file.Write(record); err != nil {
		return chrnerr.New(chrnerr.KindIO, "wal.Append", err)
	}
	w.entryCount++
	w.bytesSinceSync += len(record)

	if !maybeSyncNow {
		return nil
	}
	return w.maybeSync()
}

func (w *WAL) maybeSync() error {
	switch w.syncMode {
	case SyncEveryWrite:
		return w.Sync()
	case SyncBatched:
		if w.bytesSinceSync >= w.thresholdBytes {
			return w.Sync()
		}
	case SyncNone:
		// flush is implicit: we write directly to *os.File, no userspace
		// buffering layer to flush separately.
	}
	return nil
}

// Sync fsyncs the underlying file and resets the batching byte counter.
func (w *WAL) Sync() error {
	if err := w.file.Sync(); err != nil {
		return chrnerr.New(chrnerr.KindIO, "wal.Sync", err)
	}
	w.bytesSinceSync = 0
	return nil
}

// Recover reads records sequentially from the start of the file, stopping
// at EOF or the first corrupt/oversized record. A tail corruption is
// logged, not returned as an error: recovery semantically truncates there.
func (w *WAL) Recover() ([]chrntypes.Sample, error) {
	it, err := NewIterator(w.path, w.log)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []chrntypes.Sample
	for {
		s, ok, err := it.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

// Truncate fsyncs current state, then shrinks the file to zero bytes and
// repositions for append. Must only be called after the dependent flush
// has made the buffered samples durable in a segment block.
func (w *WAL) Truncate() error {
	if err := w.Sync(); err != nil {
		return err
	}
	if err := w.file.Truncate(0); err != nil {
		return chrnerr.New(chrnerr.KindIO, "wal.Truncate", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return chrnerr.New(chrnerr.KindIO, "wal.Truncate", err)
	}
	w.entryCount = 0
	w.bytesSinceSync = 0
	return nil
}

// Close closes the underlying file without truncating it.
func (w *WAL) Close() error {
	if err := w.file.Close(); err != nil {
		return chrnerr.New(chrnerr.KindIO, "wal.Close", err)
	}
	return nil
}
