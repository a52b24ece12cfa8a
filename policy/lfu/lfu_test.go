package lfu

import (
	"fmt"
	"testing"

	"github.com/IvanBrykalov/fluxcache/policy/policytest"
)

func TestLFU_RankOrder(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	v.Insert("hot", 1)
	v.Insert("warm", 2)
	v.Insert("cold", 3)
	v.Insert("dead", 4).Deadline = 10

	for i := 0; i < 5; i++ {
		v.Access("hot", int64(20+i))
	}
	v.Access("warm", 30)

	got := v.P.Rank(100, 4)
	want := []string{"dead", "cold", "warm", "hot"}
	if len(got) != len(want) {
		t.Fatalf("Rank len=%d want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Rank[%d]=%q want %q (full %v)", i, got[i], want[i], got)
		}
	}
}

// Equal counts fall back to the oldest last access, then admission order.
func TestLFU_TieBreaks(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	v.Insert("b", 5)
	v.Insert("a", 5)
	v.Insert("c", 1)

	got := v.P.Rank(10, 3)
	if got[0] != "c" || got[1] != "b" || got[2] != "a" {
		t.Fatalf("unexpected tie-break order %v", got)
	}
}

func TestLFU_LimitAndEmpty(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	if got := v.P.Rank(1, 3); got != nil {
		t.Fatalf("empty view must rank nothing, got %v", got)
	}
	v.Insert("a", 1)
	v.Insert("b", 2)
	if got := v.P.Rank(1, 1); len(got) != 1 || got[0] != "a" {
		t.Fatalf("Rank(1) = %v", got)
	}
}

// An overwrite starts the new version from its own counters.
func TestLFU_ReplaceResetsFrequency(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	v.Insert("a", 1)
	for i := 0; i < 5; i++ {
		v.Access("a", int64(2+i))
	}
	v.Insert("b", 10)
	v.Access("b", 11)
	v.Insert("a", 12)

	if got := v.P.Rank(20, 1); len(got) != 1 || got[0] != "a" {
		t.Fatalf("rewritten a must rank first, got %v", got)
	}
}

// Ranking does not consume candidates: repeated calls agree, and removals
// are reflected.
func TestLFU_RankIsRepeatable(t *testing.T) {
	t.Parallel()

	v := policytest.New(New())
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%02d", i)
		v.Insert(k, int64(i))
		for j := 0; j < i%7; j++ {
			v.Access(k, int64(100+i))
		}
	}

	first := v.P.Rank(1000, 10)
	second := v.P.Rank(1000, 10)
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Fatalf("rank changed between calls: %v vs %v", first, second)
	}
	v.Remove(first[0])
	third := v.P.Rank(1000, 9)
	if fmt.Sprint(third) != fmt.Sprint(first[1:]) {
		t.Fatalf("after removing %q got %v, want %v", first[0], third, first[1:])
	}
	if got := v.P.Rank(1000, 100); len(got) != 49 {
		t.Fatalf("rank covers %d keys, want 49", len(got))
	}
}
