package lru

import (
	"fmt"
	"testing"

	"github.com/IvanBrykalov/fluxcache/policy/policytest"
)

// Without any reads the hand nominates keys in admission order.
func TestCLOCK_RankFollowsAdmissionOrder(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	for i, k := range []string{"a", "b", "c"} {
		v.Insert(k, int64(i))
	}

	got := v.P.Rank(10, 2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Rank must nominate oldest unreferenced keys first, got %v", got)
	}
}

// A read sets the reference bit, so the key survives one pass of the hand.
func TestCLOCK_AccessGivesSecondChance(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	v.Insert("a", 1)
	v.Insert("b", 2)
	v.Insert("c", 3)
	v.Access("a", 4)

	got := v.Evict(5, 1)
	if len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected b to be evicted before referenced a, got %v", got)
	}
	// a lost its reference bit during the previous sweep; c is next in ring order.
	got = v.Evict(6, 1)
	if len(got) != 1 || got[0] != "c" {
		t.Fatalf("expected c next, got %v", got)
	}
	got = v.Evict(7, 1)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected a last, got %v", got)
	}
}

// Expired entries are nominated before any live entry.
func TestCLOCK_ExpiredFirst(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	v.Insert("old", 1)
	e := v.Insert("ttl", 2)
	e.Deadline = 50

	got := v.P.Rank(100, 1)
	if len(got) != 1 || got[0] != "ttl" {
		t.Fatalf("expired key must rank first, got %v", got)
	}
}

// Two revolutions are enough to nominate every key exactly once, even when
// every reference bit is set.
func TestCLOCK_RankCoversAllKeysOnce(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	for i := 0; i < 10; i++ {
		k := fmt.Sprintf("k%d", i)
		v.Insert(k, int64(i))
		v.Access(k, int64(i))
	}

	got := v.P.Rank(100, 100)
	if len(got) != 10 {
		t.Fatalf("expected 10 candidates, got %d (%v)", len(got), got)
	}
	seen := map[string]bool{}
	for _, k := range got {
		if seen[k] {
			t.Fatalf("duplicate candidate %q", k)
		}
		seen[k] = true
	}
}

// Heavy churn compacts tombstones without losing live keys.
func TestCLOCK_CompactionKeepsLiveKeys(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	for i := 0; i < 500; i++ {
		v.Insert(fmt.Sprintf("k%d", i), int64(i))
	}
	for i := 0; i < 450; i++ {
		v.Remove(fmt.Sprintf("k%d", i))
	}

	c := v.P.(*clock)
	if c.dead >= len(c.ring) {
		t.Fatalf("expected compaction, dead=%d ring=%d", c.dead, len(c.ring))
	}
	got := v.P.Rank(1000, 1000)
	if len(got) != 50 {
		t.Fatalf("expected 50 live candidates, got %d", len(got))
	}
	if got[0] != "k450" {
		t.Fatalf("admission order lost by compaction, first=%q", got[0])
	}
}

func TestCLOCK_EmptyAndZeroLimit(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	if got := v.P.Rank(1, 5); got != nil {
		t.Fatalf("empty shard must rank nothing, got %v", got)
	}
	v.Insert("a", 1)
	if got := v.P.Rank(1, 0); got != nil {
		t.Fatalf("zero limit must rank nothing, got %v", got)
	}
}
