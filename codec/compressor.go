package codec

import "github.com/muddysheep/chronicle/chrnerr"

// CompressionType selects the block compressor. Its numeric values mirror
// segment.CompressionType byte-for-byte; callers convert between the two
// rather than this package importing segment (which imports codec).
type CompressionType uint8

const (
	CompressionNone CompressionType = 0
	CompressionLZ4  CompressionType = 1
	CompressionS2   CompressionType = 2
	CompressionZstd CompressionType = 3
)

// compressor compresses and decompresses one block payload. Compress and
// Decompress are the only methods a storage format needs; splitting them
// into one interface (rather than separate Compressor/Decompressor
// interfaces) keeps the registry in this file simple, since every built-in
// implementation here handles both directions.
type compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// compressorFor returns the registered compressor for t, or a
// Serialization-kind error if t is not a known CompressionType.
func compressorFor(t CompressionType) (compressor, error) {
	switch t {
	case CompressionNone:
		return noopCompressor{}, nil
	case CompressionLZ4:
		return lz4Compressor{}, nil
	case CompressionS2:
		return s2Compressor{}, nil
	case CompressionZstd:
		return zstdCompressor{}, nil
	default:
		return nil, chrnerr.New(chrnerr.KindSerialization, "codec.compressorFor", nil)
	}
}
