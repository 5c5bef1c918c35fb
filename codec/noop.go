package codec

// noopCompressor bypasses compression entirely. Useful for benchmarking
// overhead or when the payload is already incompressible.
type noopCompressor struct{}

func (noopCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (noopCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
