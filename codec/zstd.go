package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/muddysheep/chronicle/chrnerr"
)

// zstdDecoderPool and zstdEncoderPool reuse warmed-up zstd encoders/decoders:
// klauspost/compress/zstd documents that reuse avoids allocation overhead
// after the first call.
var zstdDecoderPool = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		return d
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		e, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(err)
		}
		return e
	},
}

// zstdCompressor favors ratio over speed; suited for segments that are
// written once and read rarely, such as older rotated segments.
type zstdCompressor struct{}

func (zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(data, nil), nil
}

func (zstdCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(dec)
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, chrnerr.New(chrnerr.KindCompression, "codec.zstdCompressor.Decompress", err)
	}
	return out, nil
}
