package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/fluxcache/internal/singleflight"
	"github.com/IvanBrykalov/fluxcache/internal/util"
	"github.com/IvanBrykalov/fluxcache/monitor"
	"github.com/IvanBrykalov/fluxcache/policy/lru"
)

// Store is a sharded in-memory byte store with byte-based capacity,
// transparent value compression and a pluggable eviction policy.
// All methods are safe for concurrent use by multiple goroutines.
type Store struct {
	shards []*shard
	hash   func([]byte) uint64
	seq    atomic.Uint64
	closed atomic.Bool

	opt Options
	log *slog.Logger

	// inflight decompressions, keyed by entry version (seq is store-wide)
	sf singleflight.Group[uint64, []byte]
}

// New validates opt and constructs a Store.
func New(opt Options) (*Store, error) {
	if opt.CapacityBytes <= 0 {
		return nil, fmt.Errorf("cache: capacity must be > 0, got %d", opt.CapacityBytes)
	}
	if opt.Shards <= 0 {
		opt.Shards = util.ReasonableShardCount()
	}
	share := util.ShareOf(opt.CapacityBytes, opt.Shards)
	if opt.MaxValueBytes <= 0 {
		opt.MaxValueBytes = int(share)
	}
	if int64(opt.MaxValueBytes) > share {
		return nil, fmt.Errorf("cache: max value %d exceeds per-shard capacity %d (%d bytes / %d shards)",
			opt.MaxValueBytes, share, opt.CapacityBytes, opt.Shards)
	}
	if opt.MaxKeyBytes <= 0 {
		opt.MaxKeyBytes = DefaultMaxKeyBytes
	}
	if opt.ElevatedFraction < 0 || opt.ElevatedFraction > 1 || opt.CriticalFraction < 0 || opt.CriticalFraction > 1 {
		return nil, fmt.Errorf("cache: pressure fractions must be within [0,1], got %v/%v",
			opt.ElevatedFraction, opt.CriticalFraction)
	}
	if opt.Policy == nil {
		opt.Policy = lru.New()
	}
	if opt.Hash == nil {
		opt.Hash = util.Fnv64a
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	st := &Store{
		shards: make([]*shard, opt.Shards),
		hash:   opt.Hash,
		opt:    opt,
		log:    log.With("component", "store"),
	}
	for i := range st.shards {
		st.shards[i] = newShard(share, opt.Policy, opt.Metrics)
	}
	return st, nil
}

// Get returns the value stored under key. The returned slice may be shared
// with the store or with concurrent readers and must not be modified.
func (st *Store) Get(key []byte) ([]byte, error) {
	return st.GetContext(context.Background(), key)
}

// GetContext is Get with a context bounding the wait for a decompression
// started by a concurrent reader of the same entry.
func (st *Store) GetContext(ctx context.Context, key []byte) ([]byte, error) {
	if st.closed.Load() {
		return nil, ErrClosed
	}
	sh := st.shardFor(key)
	h, ok := sh.get(key, st.now())
	if !ok {
		return nil, ErrNotFound
	}
	if !h.compressed {
		return h.val, nil
	}

	val, _, err := st.sf.Do(ctx, h.seq, func() ([]byte, error) {
		return st.opt.Codec.Decode(h.val, h.rawSize)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		if sh.evictVersion(key, h.seq, EvictCorrupted) {
			st.log.Warn("evicted corrupted entry", "key_len", len(key), "seq", h.seq, "error", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return val, nil
}

// Put stores value under key, replacing any previous value. A non-positive
// ttl means the entry never expires. The store keeps its own copy of value.
func (st *Store) Put(key, value []byte, ttl time.Duration) error {
	if st.closed.Load() {
		return ErrClosed
	}
	if len(key) > st.opt.MaxKeyBytes {
		return fmt.Errorf("%w: key is %d bytes, limit %d", ErrTooLarge, len(key), st.opt.MaxKeyBytes)
	}
	if len(value) > st.opt.MaxValueBytes {
		return fmt.Errorf("%w: value is %d bytes, limit %d", ErrTooLarge, len(value), st.opt.MaxValueBytes)
	}

	stored, compressed := st.encode(value)
	now := st.now()
	e := &entry{
		key:        string(key),
		val:        stored,
		rawSize:    len(value),
		created:    now,
		lastAccess: now,
		exp:        st.deadline(now, ttl),
		seq:        st.seq.Add(1),
		compressed: compressed,
	}
	st.shardFor(key).put(e, now)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (st *Store) Delete(key []byte) error {
	if st.closed.Load() {
		return ErrClosed
	}
	st.shardFor(key).remove(key)
	return nil
}

// Exists reports whether key is resident and not expired. It does not
// count as a hit and does not refresh the entry for the eviction policy.
func (st *Store) Exists(key []byte) bool {
	if st.closed.Load() {
		return false
	}
	return st.shardFor(key).exists(key, st.now())
}

// ReapExpired removes expired entries from every shard, one shard lock at
// a time, and returns how many were removed.
func (st *Store) ReapExpired() int {
	if st.closed.Load() {
		return 0
	}
	now := st.now()
	n := 0
	for _, sh := range st.shards {
		n += sh.reapExpired(now)
	}
	return n
}

// RelievePressure frees the tier's configured fraction of every shard's
// bytes and returns the number of evicted entries. Normal tier is a no-op.
func (st *Store) RelievePressure(tier monitor.Tier) int {
	if st.closed.Load() {
		return 0
	}
	var frac float64
	switch tier {
	case monitor.TierElevated:
		frac = st.opt.ElevatedFraction
	case monitor.TierCritical:
		frac = st.opt.CriticalFraction
	}
	if frac <= 0 {
		return 0
	}
	now := st.now()
	n := 0
	for _, sh := range st.shards {
		n += sh.relieve(frac, now)
	}
	return n
}

// Close marks the store closed. Subsequent operations fail with ErrClosed.
// Background workers (monitor, janitor) are owned and stopped by the caller.
func (st *Store) Close() error {
	st.closed.Store(true)
	return nil
}

// ---- helpers ----

func (st *Store) shardFor(key []byte) *shard {
	return st.shards[util.ShardIndex(st.hash(key), len(st.shards))]
}

// encode returns the bytes to store for value. Compression failures and
// results that are not strictly smaller fall back to a raw copy.
func (st *Store) encode(value []byte) ([]byte, bool) {
	c := st.opt.Codec
	if c == nil || st.opt.CompressionThreshold <= 0 || len(value) < st.opt.CompressionThreshold {
		return bytes.Clone(value), false
	}
	out, err := c.Encode(nil, value)
	if err != nil {
		st.log.Debug("compression failed, storing raw", "codec", c.Name(), "error", err)
		return bytes.Clone(value), false
	}
	if len(out) >= len(value) {
		return bytes.Clone(value), false
	}
	st.opt.Metrics.Compressed(len(value), len(out))
	return out, true
}

func (st *Store) now() int64 {
	if st.opt.Clock != nil {
		return st.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// deadline converts a relative TTL into an absolute UnixNano deadline.
// A non-positive ttl returns 0 (no expiration).
func (st *Store) deadline(now int64, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now + int64(ttl)
}
