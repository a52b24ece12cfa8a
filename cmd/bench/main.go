// Command bench runs a synthetic workload against an in-process store, or
// against a running server with -addr, and exposes optional pprof/Prometheus
// endpoints.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IvanBrykalov/fluxcache/cache"
	"github.com/IvanBrykalov/fluxcache/codec"
	pmet "github.com/IvanBrykalov/fluxcache/metrics/prom"
	"github.com/IvanBrykalov/fluxcache/protocol"
)

// target is what the workers drive: the store directly or a connection.
type target interface {
	get(key []byte) (hit bool, err error)
	put(key, value []byte) error
}

func main() {
	// ---- Flags ----
	var (
		capacity  = flag.Int64("cap", 256<<20, "store capacity (bytes)")
		shards    = flag.Int("shards", 0, "number of shards (0=auto)")
		policy    = flag.String("policy", "lru", "eviction policy: lru | lfu | 2q")
		codecName = flag.String("codec", "zstd", "compression codec: zstd | s2 | none")
		threshold = flag.Int("threshold", 1024, "compression threshold (bytes)")

		addr = flag.String("addr", "", "benchmark a running server at addr instead of an in-process store")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys      = flag.Int("keys", 1_000_000, "keyspace size")
		valueSize = flag.Int("value", 512, "value size (bytes)")
		redundant = flag.Float64("redundancy", 0.5, "share of each value that is repetitive [0..1]")
		zipfS     = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV     = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload   = flag.Int("preload", 0, "preload entries (0 = keys/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "fluxcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	workersN := max(*workers, 1)

	// ---- Build targets ----
	var (
		targets = make([]target, workersN)
		store   *cache.Store
	)
	if *addr == "" {
		c, err := codec.New(*codecName, *valueSize)
		if err != nil {
			log.Fatal(err)
		}
		pol, err := cache.PolicyByName(*policy)
		if err != nil {
			log.Fatal(err)
		}
		store, err = cache.New(cache.Options{
			CapacityBytes:        *capacity,
			Shards:               *shards,
			Codec:                c,
			CompressionThreshold: *threshold,
			Policy:               pol,
			Metrics:              metrics,
		})
		if err != nil {
			log.Fatal(err)
		}
		defer func() { _ = store.Close() }()
		for i := range targets {
			targets[i] = storeTarget{store}
		}
	} else {
		for i := range targets {
			rt, err := dialTarget(*addr)
			if err != nil {
				log.Fatal(err)
			}
			defer rt.conn.Close()
			targets[i] = rt
		}
	}

	// ---- Preload to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = *keys / 2
	}
	pr := rand.New(rand.NewSource(*seed))
	for i := 0; i < pl; i++ {
		if err := targets[0].put(benchKey(uint64(i)), makeValue(pr, *valueSize, *redundant)); err != nil {
			log.Fatalf("preload: %v", err)
		}
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	valueSizeVal := *valueSize
	redundantVal := *redundant

	// ---- Load generation ----
	var reads, writes, hits, misses, errs, total atomic.Uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int, t target) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				total.Add(1)
				key := benchKey(localZipf.Uint64())
				if int(localR.Int31n(100)) < readPctVal {
					reads.Add(1)
					hit, err := t.get(key)
					switch {
					case err != nil:
						errs.Add(1)
					case hit:
						hits.Add(1)
					default:
						misses.Add(1)
					}
				} else {
					writes.Add(1)
					if err := t.put(key, makeValue(localR, valueSizeVal, redundantVal)); err != nil {
						errs.Add(1)
					}
				}
			}
		}(w, targets[w])
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := total.Load()
	readsN := reads.Load()
	hitsN := hits.Load()

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("policy=%s codec=%s cap=%d shards=%d workers=%d keys=%d value=%d dur=%v seed=%d\n",
		*policy, *codecName, *capacity, *shards, workersN, *keys, *valueSize, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  errors=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writes.Load(), errs.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, misses.Load(), hitRate)
	if store != nil {
		s := store.Stats()
		ratio := 1.0
		if s.RawBytes > 0 {
			ratio = float64(s.BytesUsed) / float64(s.RawBytes)
		}
		fmt.Printf("entries=%d  bytes=%d  raw=%d  ratio=%.2f  evictions=%+v\n",
			s.Entries, s.BytesUsed, s.RawBytes, ratio, s.Evictions)
	}
}

func benchKey(n uint64) []byte {
	return strconv.AppendUint([]byte("k:"), n, 10)
}

// makeValue returns size bytes whose first redundancy share repeats a
// short pattern and whose rest is random.
func makeValue(r *rand.Rand, size int, redundancy float64) []byte {
	v := make([]byte, size)
	rep := int(float64(size) * min(max(redundancy, 0), 1))
	copy(v, bytes.Repeat([]byte("flux"), rep/4+1)[:rep])
	_, _ = r.Read(v[rep:])
	return v
}

type storeTarget struct{ st *cache.Store }

func (t storeTarget) get(key []byte) (bool, error) {
	_, err := t.st.Get(key)
	if errors.Is(err, cache.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (t storeTarget) put(key, value []byte) error { return t.st.Put(key, value, 0) }

// remoteTarget speaks the wire protocol over one connection, one request
// at a time.
type remoteTarget struct {
	conn net.Conn
	out  []byte
	in   []byte
}

func dialTarget(addr string) (*remoteTarget, error) {
	c, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &remoteTarget{conn: c, in: make([]byte, 0, 64<<10)}, nil
}

func (t *remoteTarget) roundTrip(req protocol.Request) (protocol.Status, error) {
	t.out = protocol.AppendRequest(t.out[:0], req)
	if _, err := t.conn.Write(t.out); err != nil {
		return 0, err
	}
	t.in = t.in[:0]
	buf := make([]byte, 32<<10)
	for {
		resp, _, err := protocol.DecodeResponse(t.in, 0)
		if err == nil {
			return resp.Status, nil
		}
		if !errors.Is(err, protocol.ErrIncomplete) {
			return 0, err
		}
		n, err := t.conn.Read(buf)
		t.in = append(t.in, buf[:n]...)
		if n == 0 && err != nil {
			return 0, err
		}
	}
}

func (t *remoteTarget) get(key []byte) (bool, error) {
	st, err := t.roundTrip(protocol.Request{Verb: protocol.VerbGet, Key: key})
	if err != nil {
		return false, err
	}
	switch st {
	case protocol.StatusOK:
		return true, nil
	case protocol.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("get: %s", st)
	}
}

func (t *remoteTarget) put(key, value []byte) error {
	st, err := t.roundTrip(protocol.Request{Verb: protocol.VerbPut, Key: key, Value: value})
	if err != nil {
		return err
	}
	if st != protocol.StatusOK {
		return fmt.Errorf("put: %s", st)
	}
	return nil
}
