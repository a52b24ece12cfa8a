package codec

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Zstd is a Codec backed by one shared zstd encoder and decoder. Both are
// used through the stateless EncodeAll/DecodeAll entry points, which are
// safe for concurrent use.
type Zstd struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd creates a zstd codec at the default speed level.
func NewZstd(maxDecoded int) (*Zstd, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd encoder: %w", err)
	}
	dopts := []zstd.DOption{zstd.WithDecoderConcurrency(0)}
	if maxDecoded > 0 {
		dopts = append(dopts, zstd.WithDecoderMaxMemory(uint64(maxDecoded)))
	}
	dec, err := zstd.NewReader(nil, dopts...)
	if err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("codec: zstd decoder: %w", err)
	}
	return &Zstd{enc: enc, dec: dec}, nil
}

func (*Zstd) Name() string { return NameZstd }

func (z *Zstd) Encode(dst, src []byte) ([]byte, error) {
	return z.enc.EncodeAll(src, dst[:0]), nil
}

func (z *Zstd) Decode(src []byte, rawSize int) ([]byte, error) {
	out, err := z.dec.DecodeAll(src, make([]byte, 0, rawSize))
	if err != nil {
		return nil, corrupt("zstd: %v", err)
	}
	if len(out) != rawSize {
		return nil, corrupt("zstd: decoded %d bytes, want %d", len(out), rawSize)
	}
	return out, nil
}

// Close releases the decoder's goroutines.
func (z *Zstd) Close() error {
	z.dec.Close()
	return z.enc.Close()
}
