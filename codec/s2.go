package codec

import "github.com/klauspost/compress/s2"

// s2Compressor trades compression ratio for speed relative to LZ4; useful
// for write-heavy workloads where CPU is scarcer than disk.
type s2Compressor struct{}

func (s2Compressor) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return s2.Encode(nil, data), nil
}

func (s2Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return s2.Decode(nil, data)
}
