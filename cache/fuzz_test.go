package cache

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/IvanBrykalov/fluxcache/codec"
)

// Fuzz basic Put/Get/Delete semantics under arbitrary byte inputs, with
// compression switched on for anything longer than a few bytes.
func FuzzStore_PutGetDelete(f *testing.F) {
	f.Add([]byte(""), []byte(""))
	f.Add([]byte("a"), []byte("1"))
	f.Add([]byte("αβγ"), []byte("δ"))
	f.Add([]byte("emoji🙂"), []byte("🙂🙂"))
	f.Add([]byte("long"), []byte(strings.Repeat("x", 1024)))

	zc, err := codec.NewZstd(1 << 16)
	if err != nil {
		f.Fatal(err)
	}

	f.Fuzz(func(t *testing.T, k, v []byte) {
		const limit = 1 << 12
		if len(k) > limit {
			k = k[:limit]
		}
		if len(v) > limit {
			v = v[:limit]
		}

		st := mustNew(t, Options{CapacityBytes: 1 << 16, Shards: 2, Codec: zc, CompressionThreshold: 8})

		buf := bytes.Clone(v)
		if err := st.Put(k, buf, 0); err != nil {
			t.Fatalf("Put: %v", err)
		}
		got, err := st.Get(k)
		if err != nil || !bytes.Equal(got, v) {
			t.Fatalf("after Put/Get: want %q, got %q err=%v", v, got, err)
		}
		// The store must own its copy.
		if len(buf) > 0 {
			buf[0] ^= 0xff
			if got2, _ := st.Get(k); !bytes.Equal(got2, v) {
				t.Fatalf("store aliases the caller's buffer")
			}
		}

		if err := st.Delete(k); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := st.Get(k); !errors.Is(err, ErrNotFound) {
			t.Fatalf("key must be absent after Delete, got %v", err)
		}
		checkAccounting(t, st)
	})
}
