// Package policy defines the contract between a shard and its eviction policy.
package policy

// Entry is the read-only view of a resident entry that a policy may inspect.
// Times are UnixNano; ExpiresAt is 0 when the entry never expires.
type Entry interface {
	Key() string
	Seq() uint64
	AccessCount() uint64
	LastAccess() int64
	ExpiresAt() int64
	StoredSize() int
}

// Expired reports whether e's deadline has passed at now.
func Expired(e Entry, now int64) bool {
	exp := e.ExpiresAt()
	return exp != 0 && now >= exp
}

// View gives a policy read access to the entries resident in its shard.
//
// Concurrency: views are only used under the shard lock, from inside
// ShardPolicy methods.
type View interface {
	Len() int
	Lookup(key string) (Entry, bool)
	// Range calls fn for each resident entry in unspecified order until fn
	// returns false.
	Range(fn func(Entry) bool)
	// RangeExpired is Range restricted to entries expired at now. Its cost
	// is proportional to the number of entries visited, not to Len.
	RangeExpired(now int64, fn func(Entry) bool)
}

// ShardPolicy is a per-shard eviction policy instance bound to a shard view.
// All methods are invoked under the shard lock.
//
// Semantics:
//   - OnInsert is called once per admission of a key that was not resident.
//   - OnReplace is called when a resident key is overwritten; old is no
//     longer resident and next takes its place. It is not a read.
//   - OnAccess records a successful read.
//   - OnRemove notifies that an entry left the shard for any reason.
//   - Rank returns up to limit keys, best eviction candidate first. It never
//     mutates the shard; the shard evicts and then calls OnRemove. Keys that
//     are no longer resident are skipped by the caller.
type ShardPolicy interface {
	OnInsert(Entry)
	OnReplace(old, next Entry)
	OnAccess(Entry)
	OnRemove(Entry)
	Rank(now int64, limit int) []string
}

// Policy is a factory that creates shard-local policy instances.
type Policy interface {
	Name() string
	New(View) ShardPolicy
}
