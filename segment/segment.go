package segment

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/muddysheep/chronicle/chrnerr"
	"github.com/muddysheep/chronicle/chrntypes"
	"github.com/muddysheep/chronicle/codec"
	"github.com/muddysheep/chronicle/internal/endian"
)

// Segment is an open handle on one immutable-once-rotated segment file.
type Segment struct {
	path   string
	file   *os.File
	header Header
	blocks []BlockMeta
}

// Create initializes a brand-new, empty segment file at path: a header
// with zero blocks, immediately followed by an empty footer. Every block
// later appended to this segment is compressed with compression.
func Create(path string, compression CompressionType) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "segment.Create", err)
	}
	s := &Segment{path: path, file: f, header: Header{Compression: compression}}
	if err := s.writeHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := s.writeFooter(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing segment file, verifying the header and footer
// before returning a handle.
func Open(path string) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "segment.Open", err)
	}

	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, headerBuf); err != nil {
		_ = f.Close()
		return nil, chrnerr.New(chrnerr.KindCorruption, "segment.Open", err)
	}
	header, err := HeaderFromBytes(headerBuf)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	s := &Segment{path: path, file: f, header: header}
	if err := s.readFooter(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the segment's filename.
func (s *Segment) Path() string { return s.path }

// Header returns a copy of the current segment header.
func (s *Segment) Header() Header { return s.header }

// BlockCount returns the number of blocks appended so far.
func (s *Segment) BlockCount() int { return len(s.blocks) }

// PointCount sums point_count across every block.
func (s *Segment) PointCount() int {
	n := 0
	for _, b := range s.blocks {
		n += int(b.PointCount)
	}
	return n
}

// Overlaps reports whether the segment's time span could contain a sample
// in [start, end).
func (s *Segment) Overlaps(start, end int64) bool {
	if len(s.blocks) == 0 {
		return false
	}
	return s.header.MinTimestamp < end && s.header.MaxTimestamp >= start
}

// Size returns the current on-disk file size.
func (s *Segment) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, chrnerr.New(chrnerr.KindIO, "segment.Size", err)
	}
	return info.Size(), nil
}

// AppendBlock compresses samples into a block, appends it at the position
// following the last known block, and rewrites the footer and header to
// reflect the new state. On any failure partway through, a subsequent Open
// will see the last successfully-flushed footer, and the partial write at
// the tail is invisible to readers.
func (s *Segment) AppendBlock(samples []chrntypes.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	minTS, maxTS := samples[0].Timestamp, samples[0].Timestamp
	for _, sm := range samples[1:] {
		if sm.Timestamp < minTS {
			minTS = sm.Timestamp
		}
		if sm.Timestamp > maxTS {
			maxTS = sm.Timestamp
		}
	}

	payload, err := codec.Compress(samples, codec.CompressionType(s.header.Compression))
	if err != nil {
		return err
	}

	offset := uint64(HeaderSize)
	if n := len(s.blocks); n > 0 {
		last := s.blocks[n-1]
		offset = last.Offset + uint64(last.Size) + 8
	}

	if _, err := s.file.Seek(int64(offset), io.SeekStart); err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.AppendBlock", err)
	}

	record := make([]byte, 4+len(payload)+4)
	endian.LE.PutUint32(record[:4], uint32(len(payload)))
	copy(record[4:], payload)
	crc := crc32.ChecksumIEEE(payload)
	endian.LE.PutUint32(record[4+len(payload):], crc)

	if _, err := s.file.Write(record); err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.AppendBlock", err)
	}

	meta := BlockMeta{
		Offset:       offset,
		Size:         uint32(len(payload)),
		PointCount:   uint32(len(samples)),
		MinTimestamp: minTS,
		MaxTimestamp: maxTS,
	}
	s.blocks = append(s.blocks, meta)

	if s.header.BlockCount == 0 {
		s.header.MinTimestamp = minTS
		s.header.MaxTimestamp = maxTS
	} else {
		if minTS < s.header.MinTimestamp {
			s.header.MinTimestamp = minTS
		}
		if maxTS > s.header.MaxTimestamp {
			s.header.MaxTimestamp = maxTS
		}
	}
	s.header.BlockCount = uint32(len(s.blocks))

	if err := s.writeFooter(); err != nil {
		return err
	}
	if err := s.writeHeader(); err != nil {
		return err
	}
	return s.file.Sync()
}

// ReadBlock reads, verifies, and decompresses block i.
func (s *Segment) ReadBlock(i int) ([]chrntypes.Sample, error) {
	if i < 0 || i >= len(s.blocks) {
		return nil, chrnerr.New(chrnerr.KindInvalidSegment, "segment.ReadBlock", nil)
	}
	meta := s.blocks[i]

	if _, err := s.file.Seek(int64(meta.Offset), io.SeekStart); err != nil {
		return nil, chrnerr.New(chrnerr.KindIO, "segment.ReadBlock", err)
	}

	var sizeBuf [4]byte
	if _, err := io.ReadFull(s.file, sizeBuf[:]); err != nil {
		return nil, chrnerr.New(chrnerr.KindCorruption, "segment.ReadBlock", err)
	}
	size := endian.LE.Uint32(sizeBuf[:])
	if size != meta.Size {
		return nil, chrnerr.New(chrnerr.KindCorruption, "segment.ReadBlock", nil)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(s.file, payload); err != nil {
		return nil, chrnerr.New(chrnerr.KindCorruption, "segment.ReadBlock", err)
	}

	var crcBuf [4]byte
	if _, err := io.ReadFull(s.file, crcBuf[:]); err != nil {
		return nil, chrnerr.New(chrnerr.KindCorruption, "segment.ReadBlock", err)
	}
	want := endian.LE.Uint32(crcBuf[:])
	got := crc32.ChecksumIEEE(payload)
	if want != got {
		return nil, chrnerr.New(chrnerr.KindCorruption, "segment.ReadBlock", nil)
	}

	return codec.Decompress(payload, codec.CompressionType(s.header.Compression))
}

// ReadRange reads every block overlapping [start, end), then filters to
// samples strictly within range, concatenated in block order.
func (s *Segment) ReadRange(start, end int64) ([]chrntypes.Sample, error) {
	var out []chrntypes.Sample
	for i, meta := range s.blocks {
		if !meta.overlaps(start, end) {
			continue
		}
		samples, err := s.ReadBlock(i)
		if err != nil {
			return out, err
		}
		for _, sm := range samples {
			if sm.Timestamp >= start && sm.Timestamp < end {
				out = append(out, sm)
			}
		}
	}
	return out, nil
}

// Close releases the underlying file handle.
func (s *Segment) Close() error {
	if err := s.file.Close(); err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.Close", err)
	}
	return nil
}

func (s *Segment) writeHeader() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.writeHeader", err)
	}
	if _, err := s.file.Write(s.header.ToBytes()); err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.writeHeader", err)
	}
	return nil
}

func (s *Segment) writeFooter() error {
	var offset int64 = HeaderSize
	if n := len(s.blocks); n > 0 {
		last := s.blocks[n-1]
		offset = int64(last.Offset) + int64(last.Size) + 8
	}
	if _, err := s.file.Seek(offset, io.SeekStart); err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.writeFooter", err)
	}

	metaBytes := make([]byte, len(s.blocks)*BlockMetaSize)
	for i, m := range s.blocks {
		m.toBytes(metaBytes[i*BlockMetaSize : (i+1)*BlockMetaSize])
	}

	footerSize := uint32(len(metaBytes))
	tail := make([]byte, 4)
	endian.LE.PutUint32(tail, footerSize)

	crc := crc32.ChecksumIEEE(append(append([]byte{}, metaBytes...), tail...))
	crcBytes := make([]byte, 4)
	endian.LE.PutUint32(crcBytes, crc)

	footer := append(append(metaBytes, tail...), crcBytes...)
	if _, err := s.file.Write(footer); err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.writeFooter", err)
	}
	if err := s.file.Truncate(offset + int64(len(footer))); err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.writeFooter", err)
	}
	return nil
}

func (s *Segment) readFooter() error {
	info, err := s.file.Stat()
	if err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.readFooter", err)
	}
	if int64(s.header.BlockCount)*BlockMetaSize+8 > info.Size() {
		return chrnerr.New(chrnerr.KindInvalidSegment, "segment.readFooter", nil)
	}

	footerSize := int64(s.header.BlockCount) * BlockMetaSize
	tailOffset := info.Size() - footerSize - 8

	if _, err := s.file.Seek(tailOffset, io.SeekStart); err != nil {
		return chrnerr.New(chrnerr.KindIO, "segment.readFooter", err)
	}

	buf := make([]byte, footerSize+8)
	if _, err := io.ReadFull(s.file, buf); err != nil {
		return chrnerr.New(chrnerr.KindCorruption, "segment.readFooter", err)
	}

	metaBytes := buf[:footerSize]
	declaredSize := endian.LE.Uint32(buf[footerSize : footerSize+4])
	if int64(declaredSize) != footerSize {
		return chrnerr.New(chrnerr.KindInvalidSegment, "segment.readFooter", nil)
	}
	wantCRC := endian.LE.Uint32(buf[footerSize+4 : footerSize+8])
	gotCRC := crc32.ChecksumIEEE(buf[:footerSize+4])
	if wantCRC != gotCRC {
		return chrnerr.New(chrnerr.KindCorruption, "segment.readFooter", nil)
	}

	blocks := make([]BlockMeta, s.header.BlockCount)
	for i := range blocks {
		blocks[i] = blockMetaFromBytes(metaBytes[i*BlockMetaSize : (i+1)*BlockMetaSize])
	}
	s.blocks = blocks
	return nil
}

var segmentIDPattern = regexp.MustCompile(`segment_(\d+)\.dat$`)

// FileName returns the canonical zero-padded filename for segment id.
func FileName(id uint32) string {
	return fmt.Sprintf("segment_%06d.dat", id)
}

// ID parses the zero-padded numeric id out of a segment file path.
func ID(path string) (uint32, error) {
	m := segmentIDPattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, chrnerr.New(chrnerr.KindInvalidSegment, "segment.ID", nil)
	}
	n, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, chrnerr.New(chrnerr.KindInvalidSegment, "segment.ID", err)
	}
	return uint32(n), nil
}
