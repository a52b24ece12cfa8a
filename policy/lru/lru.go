// Package lru implements an approximate LRU eviction policy using the
// CLOCK (second-chance) algorithm.
package lru

import "github.com/IvanBrykalov/fluxcache/policy"

// Name is the configuration name of this policy.
const Name = "lru"

// compactMin is the ring size below which dead slots are never compacted.
const compactMin = 64

type slot struct {
	key  string
	ref  bool
	live bool
}

// clock keeps resident keys on a ring in admission order. A read sets the
// slot's reference bit; the hand clears set bits and nominates slots whose
// bit is already clear.
type clock struct {
	v    policy.View
	ring []slot
	pos  map[string]int
	hand int
	dead int
}

type clockPolicy struct{}

// New returns a Policy factory that constructs per-shard CLOCK instances.
func New() policy.Policy { return clockPolicy{} }

func (clockPolicy) Name() string { return Name }

// New binds a shard view and returns a shard-local policy instance.
func (clockPolicy) New(v policy.View) policy.ShardPolicy {
	return &clock{v: v, pos: make(map[string]int)}
}

// OnInsert appends the entry behind the hand with a clear reference bit.
func (c *clock) OnInsert(e policy.Entry) {
	k := e.Key()
	if i, ok := c.pos[k]; ok {
		c.ring[i].ref = true
		return
	}
	c.pos[k] = len(c.ring)
	c.ring = append(c.ring, slot{key: k, live: true})
}

// OnReplace requeues the key behind the hand as a fresh admission.
func (c *clock) OnReplace(old, next policy.Entry) {
	c.OnRemove(old)
	c.OnInsert(next)
}

// OnAccess gives the entry a second chance.
func (c *clock) OnAccess(e policy.Entry) {
	if i, ok := c.pos[e.Key()]; ok {
		c.ring[i].ref = true
	}
}

// OnRemove tombstones the slot; tombstones are compacted once they
// outnumber live slots.
func (c *clock) OnRemove(e policy.Entry) {
	k := e.Key()
	i, ok := c.pos[k]
	if !ok {
		return
	}
	c.ring[i] = slot{}
	delete(c.pos, k)
	c.dead++
	if len(c.ring) >= compactMin && c.dead > len(c.ring)/2 {
		c.compact()
	}
}

// Rank nominates expired entries first, then advances the hand for at most
// two revolutions. Two revolutions are enough to nominate every live key.
func (c *clock) Rank(now int64, limit int) []string {
	if limit <= 0 || len(c.pos) == 0 {
		return nil
	}
	out := make([]string, 0, min(limit, len(c.pos)))

	var picked map[string]struct{}
	c.v.RangeExpired(now, func(e policy.Entry) bool {
		if picked == nil {
			picked = make(map[string]struct{})
		}
		picked[e.Key()] = struct{}{}
		out = append(out, e.Key())
		return len(out) < limit
	})

	n := len(c.ring)
	for steps := 0; len(out) < limit && steps < 2*n; steps++ {
		if c.hand >= len(c.ring) {
			c.hand = 0
		}
		s := &c.ring[c.hand]
		c.hand++
		if !s.live {
			continue
		}
		if s.ref {
			s.ref = false
			continue
		}
		if _, dup := picked[s.key]; dup {
			continue
		}
		if picked == nil {
			picked = make(map[string]struct{})
		}
		picked[s.key] = struct{}{}
		out = append(out, s.key)
	}
	return out
}

// compact drops tombstones, preserving ring order and the hand position.
func (c *clock) compact() {
	ring := make([]slot, 0, len(c.pos))
	hand := 0
	for i, s := range c.ring {
		if !s.live {
			continue
		}
		if i < c.hand {
			hand++
		}
		c.pos[s.key] = len(ring)
		ring = append(ring, s)
	}
	c.ring = ring
	c.hand = hand
	c.dead = 0
}
