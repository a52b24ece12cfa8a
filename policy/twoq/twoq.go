// Package twoq implements the 2Q eviction policy on top of policy.View.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/fluxcache/policy"
)

// Name is the configuration name of this policy.
const Name = "2q"

// Default queue proportions relative to the number of resident entries.
const (
	DefaultInRatio    = 0.25
	DefaultGhostRatio = 0.50
)

// twoQ keeps two resident queues and one ghost queue:
//
//	A1in  first-time admissions, FIFO (front = newest)
//	Am    entries that were read at least once, LRU (front = MRU)
//	A1out keys recently dropped from A1in; a re-admitted ghost skips A1in
//
// Concurrency: all methods are called under the shard lock.
type twoQ struct {
	v policy.View

	inRatio    float64
	ghostRatio float64

	in    *list.List
	am    *list.List
	where map[string]*list.Element // resident key -> element in in or am
	inSet map[string]struct{}      // resident keys currently in A1in

	ghosts   *list.List
	ghostIdx map[string]*list.Element
}

type twoQPolicy struct {
	inRatio    float64
	ghostRatio float64
}

// New constructs a 2Q policy factory. Ratios are fractions of the shard's
// resident entry count; non-positive values select the defaults.
func New(inRatio, ghostRatio float64) policy.Policy {
	if inRatio <= 0 || inRatio >= 1 {
		inRatio = DefaultInRatio
	}
	if ghostRatio <= 0 {
		ghostRatio = DefaultGhostRatio
	}
	return twoQPolicy{inRatio: inRatio, ghostRatio: ghostRatio}
}

func (twoQPolicy) Name() string { return Name }

func (p twoQPolicy) New(v policy.View) policy.ShardPolicy {
	return &twoQ{
		v:          v,
		inRatio:    p.inRatio,
		ghostRatio: p.ghostRatio,
		in:         list.New(),
		am:         list.New(),
		where:      make(map[string]*list.Element),
		inSet:      make(map[string]struct{}),
		ghosts:     list.New(),
		ghostIdx:   make(map[string]*list.Element),
	}
}

// OnInsert admits ghosts straight into Am and everything else into A1in.
func (q *twoQ) OnInsert(e policy.Entry) {
	k := e.Key()
	if _, ok := q.where[k]; ok {
		return
	}
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghosts.Remove(ge)
		delete(q.ghostIdx, k)
		q.where[k] = q.am.PushFront(k)
		return
	}
	q.where[k] = q.in.PushFront(k)
	q.inSet[k] = struct{}{}
}

// OnReplace keeps an overwritten key in its queue, moved to the front.
// Unlike a removal it leaves no ghost, so a rewrite never counts as a
// re-reference.
func (q *twoQ) OnReplace(_, next policy.Entry) {
	k := next.Key()
	el, ok := q.where[k]
	if !ok {
		q.OnInsert(next)
		return
	}
	if _, young := q.inSet[k]; young {
		q.in.MoveToFront(el)
		return
	}
	q.am.MoveToFront(el)
}

// OnAccess promotes an A1in entry to Am, or refreshes it within Am.
func (q *twoQ) OnAccess(e policy.Entry) {
	k := e.Key()
	el, ok := q.where[k]
	if !ok {
		return
	}
	if _, young := q.inSet[k]; young {
		q.in.Remove(el)
		delete(q.inSet, k)
		q.where[k] = q.am.PushFront(k)
		return
	}
	q.am.MoveToFront(el)
}

// OnRemove forgets the entry. Entries leaving A1in are remembered as ghosts.
func (q *twoQ) OnRemove(e policy.Entry) {
	k := e.Key()
	el, ok := q.where[k]
	if !ok {
		return
	}
	delete(q.where, k)
	if _, young := q.inSet[k]; !young {
		q.am.Remove(el)
		return
	}
	q.in.Remove(el)
	delete(q.inSet, k)

	q.ghostIdx[k] = q.ghosts.PushFront(k)
	limit := max(1, int(q.ghostRatio*float64(q.v.Len()+1)))
	for q.ghosts.Len() > limit {
		tail := q.ghosts.Back()
		delete(q.ghostIdx, tail.Value.(string))
		q.ghosts.Remove(tail)
	}
}

// Rank nominates expired entries, then the oldest A1in entries while A1in
// is over its share, then Am from the LRU end.
func (q *twoQ) Rank(now int64, limit int) []string {
	if limit <= 0 || len(q.where) == 0 {
		return nil
	}
	out := make([]string, 0, min(limit, len(q.where)))

	picked := make(map[string]struct{})
	q.v.RangeExpired(now, func(e policy.Entry) bool {
		picked[e.Key()] = struct{}{}
		out = append(out, e.Key())
		return len(out) < limit
	})

	capIn := max(1, int(q.inRatio*float64(len(q.where))))
	inLen := q.in.Len()
	inEl, amEl := q.in.Back(), q.am.Back()
	for len(out) < limit && (inEl != nil || amEl != nil) {
		var k string
		if inEl != nil && (inLen > capIn || amEl == nil) {
			k = inEl.Value.(string)
			inEl = inEl.Prev()
			inLen--
		} else {
			k = amEl.Value.(string)
			amEl = amEl.Prev()
		}
		if _, dup := picked[k]; dup {
			continue
		}
		picked[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
