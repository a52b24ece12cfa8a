// Package policytest provides an in-memory policy.View for policy tests.
package policytest

import "github.com/IvanBrykalov/fluxcache/policy"

// Entry is a mutable policy.Entry.
type Entry struct {
	K        string
	N        uint64
	Hits     uint64
	Last     int64
	Deadline int64
	Size     int
}

func (e *Entry) Key() string         { return e.K }
func (e *Entry) Seq() uint64         { return e.N }
func (e *Entry) AccessCount() uint64 { return e.Hits }
func (e *Entry) LastAccess() int64   { return e.Last }
func (e *Entry) ExpiresAt() int64    { return e.Deadline }
func (e *Entry) StoredSize() int     { return e.Size }

// View is a map-backed policy.View that forwards admissions and removals
// to the bound ShardPolicy, the way a shard does.
type View struct {
	m   map[string]*Entry
	seq uint64
	P   policy.ShardPolicy
}

// New binds a fresh view to a shard-local instance of p.
func New(p policy.Policy) *View {
	v := &View{m: make(map[string]*Entry)}
	v.P = p.New(v)
	return v
}

func (v *View) Len() int { return len(v.m) }

func (v *View) Lookup(key string) (policy.Entry, bool) {
	e, ok := v.m[key]
	if !ok {
		return nil, false
	}
	return e, true
}

func (v *View) Range(fn func(policy.Entry) bool) {
	for _, e := range v.m {
		if !fn(e) {
			return
		}
	}
}

func (v *View) RangeExpired(now int64, fn func(policy.Entry) bool) {
	for _, e := range v.m {
		if policy.Expired(e, now) && !fn(e) {
			return
		}
	}
}

// Insert admits key with the given last-access time. Inserting a resident
// key replaces it.
func (v *View) Insert(key string, now int64) *Entry {
	v.seq++
	e := &Entry{K: key, N: v.seq, Last: now, Size: 1}
	old, ok := v.m[key]
	v.m[key] = e
	if ok {
		v.P.OnReplace(old, e)
	} else {
		v.P.OnInsert(e)
	}
	return e
}

// Access records a read of key.
func (v *View) Access(key string, now int64) {
	e, ok := v.m[key]
	if !ok {
		return
	}
	e.Hits++
	e.Last = now
	v.P.OnAccess(e)
}

// Remove drops key.
func (v *View) Remove(key string) {
	e, ok := v.m[key]
	if !ok {
		return
	}
	delete(v.m, key)
	v.P.OnRemove(e)
}

// Evict ranks up to limit candidates at now and removes them, returning
// the evicted keys in order.
func (v *View) Evict(now int64, limit int) []string {
	keys := v.P.Rank(now, limit)
	for _, k := range keys {
		v.Remove(k)
	}
	return keys
}
