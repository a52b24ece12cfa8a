package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func compressible(n int) []byte {
	return bytes.Repeat([]byte("flux-cache "), n/11+1)[:n]
}

func TestNew(t *testing.T) {
	t.Parallel()

	c, err := New("", 0)
	require.NoError(t, err)
	require.Equal(t, NameZstd, c.Name())

	c, err = New("S2", 0)
	require.NoError(t, err)
	require.Equal(t, NameS2, c.Name())

	c, err = New("none", 0)
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = New("lz4", 0)
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	zc, err := NewZstd(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = zc.Close() })

	for _, c := range []Codec{zc, S2{}} {
		c := c
		t.Run(c.Name(), func(t *testing.T) {
			t.Parallel()

			raw := compressible(4096)
			enc, err := c.Encode(nil, raw)
			require.NoError(t, err)
			require.Less(t, len(enc), len(raw))

			dec, err := c.Decode(enc, len(raw))
			require.NoError(t, err)
			require.Equal(t, raw, dec)
		})
	}
}

func TestDecodeRejectsCorruption(t *testing.T) {
	t.Parallel()

	zc, err := NewZstd(0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = zc.Close() })

	for _, c := range []Codec{zc, S2{}} {
		raw := compressible(2048)
		enc, err := c.Encode(nil, raw)
		require.NoError(t, err)

		_, err = c.Decode(enc, len(raw)+1)
		require.True(t, errors.Is(err, ErrCorrupt), "%s: wrong length must be corrupt, got %v", c.Name(), err)

		_, err = c.Decode([]byte("definitely not compressed"), len(raw))
		require.True(t, errors.Is(err, ErrCorrupt), "%s: garbage must be corrupt, got %v", c.Name(), err)
	}
}
