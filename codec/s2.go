package codec

import "github.com/klauspost/compress/s2"

// S2 is a Codec using the S2 block format. It trades ratio for speed.
type S2 struct{}

func (S2) Name() string { return NameS2 }

func (S2) Encode(dst, src []byte) ([]byte, error) {
	return s2.Encode(dst[:cap(dst)], src), nil
}

func (S2) Decode(src []byte, rawSize int) ([]byte, error) {
	n, err := s2.DecodedLen(src)
	if err != nil {
		return nil, corrupt("s2: %v", err)
	}
	if n != rawSize {
		return nil, corrupt("s2: header says %d bytes, want %d", n, rawSize)
	}
	out, err := s2.Decode(make([]byte, n), src)
	if err != nil {
		return nil, corrupt("s2: %v", err)
	}
	return out, nil
}
