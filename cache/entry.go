package cache

import "github.com/IvanBrykalov/fluxcache/policy"

// entry is one resident key version. val is never mutated after insertion;
// readers may hold it after the shard lock is released.
type entry struct {
	key        string
	val        []byte
	rawSize    int
	created    int64 // UnixNano
	lastAccess int64 // UnixNano
	hits       uint64
	exp        int64 // UnixNano deadline; 0 = no TTL
	seq        uint64
	compressed bool
	expIdx     int // position in the shard's expiryHeap while exp != 0
}

var _ policy.Entry = (*entry)(nil)

func (e *entry) Key() string         { return e.key }
func (e *entry) Seq() uint64         { return e.seq }
func (e *entry) AccessCount() uint64 { return e.hits }
func (e *entry) LastAccess() int64   { return e.lastAccess }
func (e *entry) ExpiresAt() int64    { return e.exp }
func (e *entry) StoredSize() int     { return len(e.val) }

func (e *entry) expired(now int64) bool { return e.exp != 0 && now >= e.exp }
