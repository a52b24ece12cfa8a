// Package codec provides the value compressors used by the store.
//
// A Codec must be safe for concurrent use. Encode and Decode never retain
// the input slices.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCorrupt is returned by Decode when the payload cannot be decoded or
// does not decode to the expected length.
var ErrCorrupt = errors.New("codec: corrupt payload")

// Codec names accepted by New.
const (
	NameZstd = "zstd"
	NameS2   = "s2"
	NameNone = "none"
)

// Codec compresses and decompresses values.
type Codec interface {
	// Name reports the configuration name of the codec.
	Name() string
	// Encode appends the compressed form of src to dst[:0].
	Encode(dst, src []byte) ([]byte, error)
	// Decode returns the decompressed form of src, which must be exactly
	// rawSize bytes long.
	Decode(src []byte, rawSize int) ([]byte, error)
}

// New builds the codec registered under name. "none" returns a nil Codec,
// which disables compression. maxDecoded bounds the memory a decoder may
// allocate for one value; zero keeps the codec default.
func New(name string, maxDecoded int) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameZstd:
		return NewZstd(maxDecoded)
	case NameS2:
		return S2{}, nil
	case NameNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
