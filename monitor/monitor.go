// Package monitor samples host memory and publishes the latest pressure
// snapshot through a single atomic slot.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// Snapshot is an immutable resource reading plus its classification.
// Seq increases by one per published sample; the zero Snapshot (Seq 0)
// means nothing has been sampled yet.
type Snapshot struct {
	Seq            uint64
	Time           time.Time
	AvailableBytes uint64
	TotalBytes     uint64
	ResidentBytes  uint64
	Tier           Tier
	Err            error
}

// AvailableFraction returns AvailableBytes/TotalBytes, or 1 when unknown.
func (s Snapshot) AvailableFraction() float64 {
	if s.TotalBytes == 0 {
		return 1
	}
	return float64(s.AvailableBytes) / float64(s.TotalBytes)
}

// Options configure a Monitor.
type Options struct {
	// Interval between samples. Default: 1s.
	Interval time.Duration
	// Thresholds used to classify samples. Zero value selects DefaultThresholds.
	Thresholds Thresholds
	// Sampler takes the readings. Required.
	Sampler Sampler
	// Logger receives failure reports. Nil discards.
	Logger *slog.Logger
	// Now is the wall clock. Default: time.Now.
	Now func() time.Time
}

// Monitor owns the sampling goroutine. Latest may be called from any
// goroutine and never blocks the sampler.
type Monitor struct {
	opt  Options
	log  *slog.Logger
	slot atomic.Pointer[Snapshot]
	seq  uint64 // owned by the sampling goroutine

	failing bool
}

// New validates opt and returns a Monitor that has not sampled yet.
func New(opt Options) (*Monitor, error) {
	if opt.Sampler == nil {
		return nil, errors.New("monitor: sampler is required")
	}
	if opt.Interval <= 0 {
		opt.Interval = time.Second
	}
	if opt.Thresholds == (Thresholds{}) {
		opt.Thresholds = DefaultThresholds
	}
	if err := opt.Thresholds.Validate(); err != nil {
		return nil, err
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Monitor{opt: opt, log: log.With("component", "monitor")}, nil
}

// Latest returns the most recently published snapshot.
func (m *Monitor) Latest() Snapshot {
	if s := m.slot.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Run samples immediately and then every Interval until ctx is done.
// It always returns nil; sampling failures are published, not returned.
func (m *Monitor) Run(ctx context.Context) error {
	m.SampleNow(ctx)
	t := time.NewTicker(m.opt.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.SampleNow(ctx)
		}
	}
}

// SampleNow takes one sample and publishes it. It must not be called
// concurrently with itself or with Run.
func (m *Monitor) SampleNow(ctx context.Context) Snapshot {
	r, err := m.opt.Sampler.Sample(ctx)
	m.seq++
	s := &Snapshot{
		Seq:            m.seq,
		Time:           m.opt.Now(),
		AvailableBytes: r.AvailableBytes,
		TotalBytes:     r.TotalBytes,
		ResidentBytes:  r.ResidentBytes,
	}
	if err != nil {
		// Without a trustworthy reading only capacity limits apply.
		s.Err = err
		s.Tier = TierNormal
		if !m.failing {
			m.log.Warn("resource sampling failed, pressure eviction paused", "error", err)
		}
		m.failing = true
	} else {
		s.Tier = Classify(r.AvailableBytes, r.TotalBytes, m.opt.Thresholds)
		if m.failing {
			m.log.Info("resource sampling recovered", "tier", s.Tier)
		}
		m.failing = false
	}
	m.slot.Store(s)
	return *s
}
