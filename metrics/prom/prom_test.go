package prom

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/fluxcache/cache"
	"github.com/IvanBrykalov/fluxcache/protocol"
)

func TestAdapter_Counters(t *testing.T) {
	a := New(prometheus.NewRegistry(), "flux", "store", nil)

	a.Hit()
	a.Hit()
	a.Miss()
	a.Evict(cache.EvictPressure)
	a.Compressed(1000, 200)

	require.Equal(t, float64(2), testutil.ToFloat64(a.hits))
	require.Equal(t, float64(1), testutil.ToFloat64(a.misses))
	require.Equal(t, float64(1), testutil.ToFloat64(a.evicts.WithLabelValues("pressure")))
	require.Equal(t, float64(0), testutil.ToFloat64(a.evicts.WithLabelValues("capacity")))
	require.Equal(t, float64(1), testutil.ToFloat64(a.compressed))
	require.Equal(t, float64(1000), testutil.ToFloat64(a.rawIn))
	require.Equal(t, float64(200), testutil.ToFloat64(a.storedOut))
}

func TestAdapter_WiredIntoStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := New(reg, "flux", "store", prometheus.Labels{"instance": "test"})
	st, err := cache.New(cache.Options{CapacityBytes: 1 << 20, Shards: 2, Metrics: a})
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Put([]byte("k"), []byte("v"), 0))
	_, err = st.Get([]byte("k"))
	require.NoError(t, err)
	_, err = st.Get([]byte("nope"))
	require.ErrorIs(t, err, cache.ErrNotFound)

	require.Equal(t, float64(1), testutil.ToFloat64(a.hits))
	require.Equal(t, float64(1), testutil.ToFloat64(a.misses))

	// Five counters plus the four pre-created cause series.
	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 9, n)
}

func TestServerAdapter(t *testing.T) {
	a := NewServer(prometheus.NewRegistry(), "flux", "server", nil)

	a.ConnOpened()
	a.ConnOpened()
	a.ConnClosed()
	a.ConnRejected()
	a.Request(protocol.VerbGet, protocol.StatusNotFound, time.Millisecond)
	a.Request(protocol.VerbGet, protocol.StatusNotFound, time.Millisecond)
	a.ProtocolError("malformed")

	require.Equal(t, float64(1), testutil.ToFloat64(a.conns))
	require.Equal(t, float64(2), testutil.ToFloat64(a.accepted))
	require.Equal(t, float64(1), testutil.ToFloat64(a.rejected))
	require.Equal(t, float64(2), testutil.ToFloat64(a.requests.WithLabelValues("GET", "NOT_FOUND")))
	require.Equal(t, float64(1), testutil.ToFloat64(a.protoErrs.WithLabelValues("malformed")))
	require.Equal(t, 1, testutil.CollectAndCount(a.latency))
}

func TestStatsCollector(t *testing.T) {
	st, err := cache.New(cache.Options{CapacityBytes: 1 << 20, Shards: 2})
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Put([]byte("a"), []byte("1234"), 0))
	require.NoError(t, st.Put([]byte("b"), []byte("5678"), 0))

	c := NewStatsCollector("flux", "store", nil, st.Stats)

	// Five store gauges plus one per shard; no memory sample yet.
	require.Equal(t, 7, testutil.CollectAndCount(c))

	want := `
# HELP flux_store_entries Resident entries
# TYPE flux_store_entries gauge
flux_store_entries 2
# HELP flux_store_bytes_used Stored (possibly compressed) bytes
# TYPE flux_store_bytes_used gauge
flux_store_bytes_used 8
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(want),
		"flux_store_entries", "flux_store_bytes_used"))
}
