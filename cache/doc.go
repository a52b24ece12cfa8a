// Package cache is the flux-cache store engine: a sharded in-memory byte
// store with byte-based capacity, optional value compression, per-entry TTL
// and pluggable eviction.
//
// Design
//
//   - Concurrency: the store is split into N shards (fixed at construction),
//     each protected by a mutex. A key lives in shard hash(key) mod N.
//     Operations on different shards never contend.
//
//   - Capacity: each shard may hold ceil(CapacityBytes/N) stored bytes. A put
//     that would overflow its shard first evicts candidates ranked by the
//     shard's policy, never the key being written.
//
//   - Compression: values of at least CompressionThreshold bytes are
//     compressed before the shard lock is taken and kept compressed only when
//     strictly smaller. Reads decompress after the lock is released;
//     concurrent readers of the same entry version share one decompression.
//     A payload that fails to decode is evicted and reported as ErrCorrupted.
//
//   - Policies: see package policy. CLOCK (lru) is the default; lfu and 2q
//     are available.
//
//   - Expiry: lazy on access, plus ReapExpired for a periodic sweep.
//
//   - Pressure: RelievePressure frees a configured fraction of every shard
//     when memory is scarce. The Janitor calls it at most once per monitor
//     snapshot.
//
// Basic usage
//
//	st, err := cache.New(cache.Options{CapacityBytes: 64 << 20, Shards: 16})
//	if err != nil {
//	    return err
//	}
//	_ = st.Put([]byte("a"), []byte("1"), time.Minute)
//	v, err := st.Get([]byte("a"))
//
// With compression and a memory-pressure feed
//
//	zc, _ := codec.NewZstd(8 << 20)
//	st, _ := cache.New(cache.Options{
//	    CapacityBytes:        256 << 20,
//	    Codec:                zc,
//	    CompressionThreshold: 1024,
//	    Pressure:             mon,
//	    ElevatedFraction:     0.05,
//	    CriticalFraction:     0.20,
//	})
//	go cache.NewJanitor(st, cache.JanitorOptions{Source: mon}).Run(ctx)
package cache
