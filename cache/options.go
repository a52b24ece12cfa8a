package cache

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/IvanBrykalov/fluxcache/codec"
	"github.com/IvanBrykalov/fluxcache/monitor"
	"github.com/IvanBrykalov/fluxcache/policy"
	"github.com/IvanBrykalov/fluxcache/policy/lfu"
	"github.com/IvanBrykalov/fluxcache/policy/lru"
	"github.com/IvanBrykalov/fluxcache/policy/twoq"
)

// DefaultMaxKeyBytes is the key size limit used when Options.MaxKeyBytes is 0.
const DefaultMaxKeyBytes = 64 << 10

// EvictCause explains why an entry left the store other than by Delete.
type EvictCause int

const (
	// EvictCapacity — removed so a put could fit into its shard's share.
	EvictCapacity EvictCause = iota
	// EvictPressure — removed by a sweep triggered by memory pressure.
	EvictPressure
	// EvictExpired — deadline passed (lazy reap, sweep, or picked first by a policy).
	EvictExpired
	// EvictCorrupted — stored payload failed to decompress.
	EvictCorrupted

	numCauses
)

func (c EvictCause) String() string {
	switch c {
	case EvictCapacity:
		return "capacity"
	case EvictPressure:
		return "pressure"
	case EvictExpired:
		return "expired"
	case EvictCorrupted:
		return "corrupted"
	default:
		return fmt.Sprintf("cause(%d)", int(c))
	}
}

// Metrics exposes store-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
// Hooks may be called with a shard lock held; keep them cheap.
type Metrics interface {
	Hit()
	Miss()
	Evict(cause EvictCause)
	// Compressed reports a value stored in compressed form.
	Compressed(rawBytes, storedBytes int)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// SnapshotSource supplies the latest resource snapshot, typically a
// *monitor.Monitor.
type SnapshotSource interface {
	Latest() monitor.Snapshot
}

// Options configures a Store. Zero values are safe except CapacityBytes;
// defaults are applied in New():
//   - Shards <= 0         => util.ReasonableShardCount()
//   - MaxValueBytes <= 0  => one shard's share of CapacityBytes
//   - MaxKeyBytes <= 0    => DefaultMaxKeyBytes
//   - nil Policy          => CLOCK (lru)
//   - nil Hash            => FNV-1a
//   - nil Metrics         => NoopMetrics
type Options struct {
	// CapacityBytes bounds the sum of stored (possibly compressed) value
	// sizes. Each shard gets ceil(CapacityBytes/Shards).
	CapacityBytes int64

	// Shards is the number of independent partitions. Any positive count is
	// accepted; powers of two take a faster index path.
	Shards int

	// MaxValueBytes rejects larger values before any state is touched.
	// It must not exceed a shard's share of capacity.
	MaxValueBytes int
	// MaxKeyBytes rejects larger keys.
	MaxKeyBytes int

	// Codec compresses values of at least CompressionThreshold bytes.
	// A nil Codec or a non-positive threshold disables compression.
	Codec                codec.Codec
	CompressionThreshold int

	// Policy is the eviction policy factory; instantiated once per shard.
	Policy policy.Policy

	// Hash maps keys to shards.
	Hash func([]byte) uint64

	// ElevatedFraction and CriticalFraction are the share of each shard's
	// bytes freed by a pressure sweep at that tier. Zero disables the sweep
	// for the tier.
	ElevatedFraction float64
	CriticalFraction float64

	// Pressure reports the latest resource snapshot; included in Stats.
	Pressure SnapshotSource

	Metrics Metrics
	Logger  *slog.Logger

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}

// PolicyByName resolves a configured eviction policy name.
func PolicyByName(name string) (policy.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", lru.Name:
		return lru.New(), nil
	case lfu.Name:
		return lfu.New(), nil
	case twoq.Name:
		return twoq.New(twoq.DefaultInRatio, twoq.DefaultGhostRatio), nil
	default:
		return nil, fmt.Errorf("cache: unknown eviction policy %q", name)
	}
}
