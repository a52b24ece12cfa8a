package util

import (
	"math/bits"
	"runtime"
)

// ReasonableShardCount picks a practical default shard count based on CPU
// parallelism: nextPow2(2*GOMAXPROCS), clamped to [1..256].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	n := int(NextPow2(uint64(p * 2)))
	if n > 256 {
		n = 256
	}
	return n
}

// ShardIndex maps a 64-bit hash to a shard index in [0, shards).
// Power-of-two counts take the mask path; any other count uses modulo,
// so callers are free to configure an arbitrary number of shards.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if shards&(shards-1) == 0 {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}

// ShareOf splits total into n equal shares, rounding up so that
// n*ShareOf(total, n) >= total.
func ShareOf(total int64, n int) int64 {
	if n <= 1 {
		return total
	}
	return (total + int64(n) - 1) / int64(n)
}

// NextPow2 returns the smallest power of two >= x, 1 for x <= 1, and 1<<63
// when the next power does not fit in 64 bits.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	if x > 1<<63 {
		return 1 << 63
	}
	return 1 << bits.Len64(x-1)
}
