package cache

import (
	"bytes"
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/IvanBrykalov/fluxcache/codec"
	"github.com/IvanBrykalov/fluxcache/monitor"
	"github.com/IvanBrykalov/fluxcache/policy/twoq"
)

// A mixed workload of concurrent Put/Get/Delete/sweeps on random keys with
// compression enabled. Should pass under `-race` without detector reports.
func TestRace_Mixed(t *testing.T) {
	zc, err := codec.NewZstd(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = zc.Close() })

	st := mustNew(t, Options{
		CapacityBytes:        1 << 20,
		Shards:               32,
		Codec:                zc,
		CompressionThreshold: 256,
		Policy:               twoq.New(0, 0),
		ElevatedFraction:     0.05,
		CriticalFraction:     0.2,
	})

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 5_000
	deadline := time.Now().Add(time.Second)
	payload := bytes.Repeat([]byte("abcd"), 256)

	var wg sync.WaitGroup
	wg.Add(workers + 1)
	go func() {
		defer wg.Done()
		for time.Now().Before(deadline) {
			st.ReapExpired()
			st.RelievePressure(monitor.TierElevated)
			_ = st.Stats()
			time.Sleep(5 * time.Millisecond)
		}
	}()
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := []byte("k:" + strconv.Itoa(r.Intn(keyspace)))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% Delete
					_ = st.Delete(k)
				case 5, 6, 7, 8, 9: // ~5% Put with TTL
					_ = st.Put(k, []byte("x"), time.Duration(10+r.Intn(20))*time.Millisecond)
				case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19: // ~10% compressible Put
					_ = st.Put(k, payload[:r.Intn(len(payload))], 0)
				default: // ~80% Get
					v, err := st.Get(k)
					if err == nil && len(v) > 1 && !bytes.Equal(v, payload[:len(v)]) {
						t.Errorf("garbage value for %s", k)
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()
	checkAccounting(t, st)
}

// Concurrent readers of one compressed entry all see the stored bytes.
func TestRace_SharedDecompression(t *testing.T) {
	zc, err := codec.NewZstd(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = zc.Close() })
	st := mustNew(t, Options{CapacityBytes: 1 << 20, Shards: 4, Codec: zc, CompressionThreshold: 64})

	raw := bytes.Repeat([]byte("0123456789"), 10_000)
	if err := st.Put([]byte("hot"), raw, 0); err != nil {
		t.Fatal(err)
	}

	const goroutines = 64
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := st.GetContext(context.Background(), []byte("hot"))
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			if !bytes.Equal(v, raw) {
				t.Errorf("unexpected value of len %d", len(v))
			}
		}()
	}
	close(start)
	wg.Wait()

	if s := st.Stats(); s.Hits != goroutines {
		t.Fatalf("hits = %d, want %d", s.Hits, goroutines)
	}
}
