package cache

import (
	"time"

	"github.com/IvanBrykalov/fluxcache/monitor"
)

// Evictions counts evicted entries by cause.
type Evictions struct {
	Capacity  uint64 `json:"capacity"`
	Pressure  uint64 `json:"pressure"`
	Expired   uint64 `json:"expired"`
	Corrupted uint64 `json:"corrupted"`
}

// Total sums all causes.
func (e Evictions) Total() uint64 { return e.Capacity + e.Pressure + e.Expired + e.Corrupted }

func (e *Evictions) add(cause EvictCause, n uint64) {
	switch cause {
	case EvictCapacity:
		e.Capacity += n
	case EvictPressure:
		e.Pressure += n
	case EvictExpired:
		e.Expired += n
	case EvictCorrupted:
		e.Corrupted += n
	}
}

// ShardStats is one shard's consistent reading.
type ShardStats struct {
	Entries   int   `json:"entries"`
	BytesUsed int64 `json:"bytes_used"`
	Limit     int64 `json:"limit_bytes"`
}

// Memory is the resource snapshot the store last observed.
type Memory struct {
	Seq            uint64    `json:"seq"`
	SampledAt      time.Time `json:"sampled_at"`
	AvailableBytes uint64    `json:"available_bytes"`
	TotalBytes     uint64    `json:"total_bytes"`
	ResidentBytes  uint64    `json:"resident_bytes"`
	Error          string    `json:"error,omitempty"`
}

// Stats is a point-in-time view of the store. Counters are monotonic;
// entry and byte totals are summed from per-shard readings taken one shard
// at a time, so the total is not a single atomic cut across shards.
type Stats struct {
	Entries       int          `json:"entry_count"`
	BytesUsed     int64        `json:"bytes_used"`
	RawBytes      int64        `json:"raw_bytes"`
	CapacityBytes int64        `json:"capacity_bytes"`
	Hits          uint64       `json:"hits"`
	Misses        uint64       `json:"misses"`
	Evictions     Evictions    `json:"evictions_by_cause"`
	Pressure      monitor.Tier `json:"pressure_tier"`
	Memory        *Memory      `json:"memory,omitempty"`
	Policy        string       `json:"eviction_policy"`
	Codec         string       `json:"codec"`
	Shards        []ShardStats `json:"shards"`
}

// Stats aggregates counters and per-shard readings.
func (st *Store) Stats() Stats {
	s := Stats{
		CapacityBytes: st.opt.CapacityBytes,
		Policy:        st.opt.Policy.Name(),
		Codec:         "none",
		Shards:        make([]ShardStats, len(st.shards)),
	}
	if st.opt.Codec != nil && st.opt.CompressionThreshold > 0 {
		s.Codec = st.opt.Codec.Name()
	}
	for i, sh := range st.shards {
		r := sh.stats()
		s.Shards[i] = ShardStats{Entries: r.entries, BytesUsed: r.size, Limit: sh.limit}
		s.Entries += r.entries
		s.BytesUsed += r.size
		s.RawBytes += r.raw

		s.Hits += sh.hits.Load()
		s.Misses += sh.misses.Load()
		for c := EvictCause(0); c < numCauses; c++ {
			s.Evictions.add(c, sh.evicts[c].Load())
		}
	}
	if st.opt.Pressure != nil {
		snap := st.opt.Pressure.Latest()
		s.Pressure = snap.Tier
		if snap.Seq > 0 {
			s.Memory = &Memory{
				Seq:            snap.Seq,
				SampledAt:      snap.Time,
				AvailableBytes: snap.AvailableBytes,
				TotalBytes:     snap.TotalBytes,
				ResidentBytes:  snap.ResidentBytes,
			}
			if snap.Err != nil {
				s.Memory.Error = snap.Err.Error()
			}
		}
	}
	return s
}
