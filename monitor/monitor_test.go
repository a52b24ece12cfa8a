package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	th := Thresholds{ElevatedBelow: 0.20, CriticalBelow: 0.10}
	cases := []struct {
		avail, total uint64
		want         Tier
	}{
		{50, 100, TierNormal},
		{20, 100, TierNormal},
		{19, 100, TierElevated},
		{10, 100, TierElevated},
		{9, 100, TierCritical},
		{0, 100, TierCritical},
		{0, 0, TierNormal},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Classify(c.avail, c.total, th), "avail=%d total=%d", c.avail, c.total)
	}
}

func TestThresholdsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultThresholds.Validate())
	require.Error(t, Thresholds{ElevatedBelow: 0.1, CriticalBelow: 0.2}.Validate())
	require.Error(t, Thresholds{ElevatedBelow: 1.5, CriticalBelow: 0.2}.Validate())
	require.Error(t, Thresholds{ElevatedBelow: 0.5, CriticalBelow: 0}.Validate())
}

func TestTierText(t *testing.T) {
	t.Parallel()

	b, err := TierCritical.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "critical", string(b))
	require.Equal(t, "elevated", TierElevated.String())
}

type scriptedSampler struct {
	readings []Reading
	errs     []error
	i        int
}

func (s *scriptedSampler) Sample(context.Context) (Reading, error) {
	i := s.i
	s.i++
	if i >= len(s.readings) {
		i = len(s.readings) - 1
	}
	return s.readings[i], s.errs[i]
}

func TestSampleNowPublishes(t *testing.T) {
	t.Parallel()

	boom := errors.New("no procfs")
	s := &scriptedSampler{
		readings: []Reading{{AvailableBytes: 5, TotalBytes: 100}, {}, {AvailableBytes: 90, TotalBytes: 100}},
		errs:     []error{nil, boom, nil},
	}
	m, err := New(Options{Sampler: s})
	require.NoError(t, err)
	require.Equal(t, uint64(0), m.Latest().Seq)

	snap := m.SampleNow(context.Background())
	require.Equal(t, TierCritical, snap.Tier)
	require.Equal(t, uint64(1), m.Latest().Seq)

	snap = m.SampleNow(context.Background())
	require.ErrorIs(t, snap.Err, boom)
	require.Equal(t, TierNormal, snap.Tier, "failed samples must not drive pressure eviction")
	require.True(t, m.failing)

	snap = m.SampleNow(context.Background())
	require.NoError(t, snap.Err)
	require.Equal(t, TierNormal, snap.Tier)
	require.False(t, m.failing)
	require.Equal(t, uint64(3), m.Latest().Seq)
	require.InDelta(t, 0.9, m.Latest().AvailableFraction(), 1e-9)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	m, err := New(Options{
		Interval: time.Millisecond,
		Sampler: SamplerFunc(func(context.Context) (Reading, error) {
			return Reading{AvailableBytes: 50, TotalBytes: 100}, nil
		}),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Latest().Seq >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestUnavailableSampler(t *testing.T) {
	t.Parallel()

	boom := errors.New("unsupported")
	m, err := New(Options{Sampler: Unavailable(boom)})
	require.NoError(t, err)
	snap := m.SampleNow(context.Background())
	require.ErrorIs(t, snap.Err, boom)
	require.Equal(t, TierNormal, snap.Tier)
}

func TestNewRequiresSampler(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	require.Error(t, err)
}
