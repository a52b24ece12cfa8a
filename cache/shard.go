package cache

import (
	"sync"

	"github.com/IvanBrykalov/fluxcache/internal/util"
	"github.com/IvanBrykalov/fluxcache/policy"
)

// rankBatch is how many candidates are requested from the policy per round.
const rankBatch = 16

// shard is an independent partition of the store with its own lock, map,
// byte accounting and policy instance. Compression never happens under mu.
type shard struct {
	// ---- guarded by mu ----
	mu    sync.Mutex
	m     map[string]*entry
	size  int64 // Σ len(e.val)
	raw   int64 // Σ e.rawSize
	limit int64
	pol   policy.ShardPolicy
	ttl   expiryHeap

	metrics Metrics

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.Counter
	misses util.Counter
	evicts [numCauses]util.Counter
}

func newShard(limit int64, pol policy.Policy, m Metrics) *shard {
	s := &shard{
		m:       make(map[string]*entry),
		limit:   limit,
		metrics: m,
	}
	s.pol = pol.New(shardView{s})
	return s
}

// hit is what a successful lookup hands back to the store. The value slice
// is shared with the resident entry and must not be modified.
type hit struct {
	val        []byte
	rawSize    int
	seq        uint64
	compressed bool
}

// get looks key up, reaping it if expired, and records the access.
func (s *shard) get(key []byte, now int64) (hit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[string(key)]
	if ok && e.expired(now) {
		s.evictLocked(e, EvictExpired)
		ok = false
	}
	if !ok {
		s.misses.Inc()
		s.metrics.Miss()
		return hit{}, false
	}

	e.hits++
	e.lastAccess = now
	s.pol.OnAccess(e)
	s.hits.Inc()
	s.metrics.Hit()
	return hit{val: e.val, rawSize: e.rawSize, seq: e.seq, compressed: e.compressed}, true
}

// exists reports residency without counting a hit or touching recency.
func (s *shard) exists(key []byte, now int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[string(key)]
	if ok && e.expired(now) {
		s.evictLocked(e, EvictExpired)
		return false
	}
	return ok
}

// put admits e, replacing any previous version of the key. Ranked
// candidates other than e.key are evicted until e fits the shard limit.
// The caller has already checked that e alone fits.
func (s *shard) put(e *entry, now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, replacing := s.m[e.key]
	if replacing {
		s.unlinkLocked(old)
	}
	need := s.size + int64(len(e.val)) - s.limit
	if need > 0 {
		s.freeLocked(need, e.key, EvictCapacity, now)
	}

	s.m[e.key] = e
	s.size += int64(len(e.val))
	s.raw += int64(e.rawSize)
	s.ttl.add(e)
	if replacing {
		s.pol.OnReplace(old, e)
	} else {
		s.pol.OnInsert(e)
	}
}

// remove deletes key; it reports whether a resident entry was removed.
func (s *shard) remove(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[string(key)]
	if !ok {
		return false
	}
	s.removeLocked(e)
	return true
}

// evictVersion evicts key only while the resident version is still seq.
func (s *shard) evictVersion(key []byte, seq uint64, cause EvictCause) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[string(key)]
	if !ok || e.seq != seq {
		return false
	}
	s.evictLocked(e, cause)
	return true
}

// reapExpired removes every expired entry and returns how many it removed.
func (s *shard) reapExpired(now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for {
		e, ok := s.ttl.peekExpired(now)
		if !ok {
			return n
		}
		s.evictLocked(e, EvictExpired)
		n++
	}
}

// relieve frees at least fraction of the shard's current bytes, following
// the policy ranking. It returns the number of evicted entries.
func (s *shard) relieve(fraction float64, now int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fraction <= 0 || s.size == 0 {
		return 0
	}
	need := int64(fraction * float64(s.size))
	if need < 1 {
		need = 1
	}
	before := len(s.m)
	s.freeLocked(need, "", EvictPressure, now)
	return before - len(s.m)
}

// shardStats is one consistent reading of a shard.
type shardStats struct {
	entries int
	size    int64
	raw     int64
}

func (s *shard) stats() shardStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return shardStats{entries: len(s.m), size: s.size, raw: s.raw}
}

// -------------------- internals (mu held) --------------------

// freeLocked evicts ranked candidates, never skip, until need bytes are
// freed or the policy has nothing left to offer. Expired candidates are
// accounted as expired regardless of the trigger.
func (s *shard) freeLocked(need int64, skip string, cause EvictCause, now int64) int64 {
	var freed int64
	for freed < need && len(s.m) > 0 {
		progressed := false
		for _, k := range s.pol.Rank(now, rankBatch) {
			if k == skip {
				continue
			}
			e, ok := s.m[k]
			if !ok {
				continue
			}
			c := cause
			if e.expired(now) {
				c = EvictExpired
			}
			freed += int64(len(e.val))
			s.evictLocked(e, c)
			progressed = true
			if freed >= need {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return freed
}

// removeLocked unlinks e and notifies the policy.
func (s *shard) removeLocked(e *entry) {
	s.unlinkLocked(e)
	s.pol.OnRemove(e)
}

// unlinkLocked drops e from the map and the expiry index and keeps the byte
// accounting in step. The policy still tracks e.key afterwards.
func (s *shard) unlinkLocked(e *entry) {
	delete(s.m, e.key)
	s.ttl.remove(e)
	s.size -= int64(len(e.val))
	s.raw -= int64(e.rawSize)
}

// evictLocked removes e and records the cause.
func (s *shard) evictLocked(e *entry, cause EvictCause) {
	s.removeLocked(e)
	s.evicts[cause].Inc()
	s.metrics.Evict(cause)
}

// -------------------- policy view --------------------

// shardView adapts the shard map to policy.View. Policies only call it
// from inside ShardPolicy methods, i.e. with mu held.
type shardView struct{ s *shard }

func (v shardView) Len() int { return len(v.s.m) }

func (v shardView) Lookup(key string) (policy.Entry, bool) {
	e, ok := v.s.m[key]
	if !ok {
		return nil, false
	}
	return e, true
}

func (v shardView) Range(fn func(policy.Entry) bool) {
	for _, e := range v.s.m {
		if !fn(e) {
			return
		}
	}
}

func (v shardView) RangeExpired(now int64, fn func(policy.Entry) bool) {
	v.s.ttl.visitExpired(0, now, func(e *entry) bool { return fn(e) })
}
