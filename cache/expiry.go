package cache

import "container/heap"

// expiryHeap indexes the entries of one shard that carry a TTL, earliest
// deadline first. Entries without a TTL are never in it. Guarded by the
// shard lock.
type expiryHeap []*entry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].exp < h[j].exp }

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].expIdx = i
	h[j].expIdx = j
}

func (h *expiryHeap) Push(x any) {
	e := x.(*entry)
	e.expIdx = len(*h)
	*h = append(*h, e)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old) - 1
	e := old[n]
	old[n] = nil
	*h = old[:n]
	e.expIdx = -1
	return e
}

func (h *expiryHeap) add(e *entry) {
	if e.exp != 0 {
		heap.Push(h, e)
	}
}

func (h *expiryHeap) remove(e *entry) {
	if e.exp != 0 && e.expIdx >= 0 {
		heap.Remove(h, e.expIdx)
	}
}

// peekExpired returns the earliest deadline entry if it has expired at now.
func (h expiryHeap) peekExpired(now int64) (*entry, bool) {
	if len(h) == 0 || !h[0].expired(now) {
		return nil, false
	}
	return h[0], true
}

// visitExpired calls fn for every entry expired at now, stopping early when
// fn returns false. Subtrees rooted at a live deadline are pruned, so the
// walk costs O(expired).
func (h expiryHeap) visitExpired(i int, now int64, fn func(*entry) bool) bool {
	if i >= len(h) || !h[i].expired(now) {
		return true
	}
	if !fn(h[i]) {
		return false
	}
	return h.visitExpired(2*i+1, now, fn) && h.visitExpired(2*i+2, now, fn)
}
