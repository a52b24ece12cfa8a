// Package lfu implements an LFU/TTL hybrid eviction policy: expired entries
// go first, then the least frequently used, with recency and admission
// order breaking ties.
package lfu

import (
	"container/heap"

	"github.com/IvanBrykalov/fluxcache/policy"
)

// Name is the configuration name of this policy.
const Name = "lfu"

// item is a heap slot. The entry's counters are read live, so every change
// to them must be followed by a heap.Fix (OnAccess).
type item struct {
	e   policy.Entry
	idx int
}

// freqHeap is a min-heap ordered by (hits, last access, seq).
type freqHeap []*item

func (h freqHeap) Len() int { return len(h) }

func (h freqHeap) Less(i, j int) bool {
	a, b := h[i].e, h[j].e
	if x, y := a.AccessCount(), b.AccessCount(); x != y {
		return x < y
	}
	if x, y := a.LastAccess(), b.LastAccess(); x != y {
		return x < y
	}
	return a.Seq() < b.Seq()
}

func (h freqHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *freqHeap) Push(x any) {
	it := x.(*item)
	it.idx = len(*h)
	*h = append(*h, it)
}

func (h *freqHeap) Pop() any {
	old := *h
	n := len(old) - 1
	it := old[n]
	old[n] = nil
	*h = old[:n]
	it.idx = -1
	return it
}

type hybrid struct {
	v     policy.View
	h     freqHeap
	items map[string]*item
}

type hybridPolicy struct{}

// New returns a Policy factory that constructs per-shard LFU/TTL instances.
func New() policy.Policy { return hybridPolicy{} }

func (hybridPolicy) Name() string { return Name }

func (hybridPolicy) New(v policy.View) policy.ShardPolicy {
	return &hybrid{v: v, items: make(map[string]*item)}
}

func (p *hybrid) OnInsert(e policy.Entry) {
	if it, ok := p.items[e.Key()]; ok {
		it.e = e
		heap.Fix(&p.h, it.idx)
		return
	}
	it := &item{e: e}
	p.items[e.Key()] = it
	heap.Push(&p.h, it)
}

func (p *hybrid) OnReplace(_, next policy.Entry) { p.OnInsert(next) }

func (p *hybrid) OnAccess(e policy.Entry) {
	if it, ok := p.items[e.Key()]; ok {
		heap.Fix(&p.h, it.idx)
	}
}

func (p *hybrid) OnRemove(e policy.Entry) {
	k := e.Key()
	it, ok := p.items[k]
	if !ok || it.e != e {
		return
	}
	heap.Remove(&p.h, it.idx)
	delete(p.items, k)
}

// Rank returns expired keys first, then the limit least frequently used.
// The heap is popped for the candidates and restored before returning.
func (p *hybrid) Rank(now int64, limit int) []string {
	if limit <= 0 || len(p.items) == 0 {
		return nil
	}
	out := make([]string, 0, min(limit, len(p.items)))

	var picked map[string]struct{}
	p.v.RangeExpired(now, func(e policy.Entry) bool {
		if picked == nil {
			picked = make(map[string]struct{})
		}
		picked[e.Key()] = struct{}{}
		out = append(out, e.Key())
		return len(out) < limit
	})

	var popped []*item
	for len(out) < limit && p.h.Len() > 0 {
		it := heap.Pop(&p.h).(*item)
		popped = append(popped, it)
		if _, dup := picked[it.e.Key()]; dup {
			continue
		}
		out = append(out, it.e.Key())
	}
	for _, it := range popped {
		heap.Push(&p.h, it)
	}
	return out
}
