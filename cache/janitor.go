package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/fluxcache/monitor"
)

// Maintainer is the part of the store the janitor drives.
type Maintainer interface {
	ReapExpired() int
	RelievePressure(tier monitor.Tier) int
}

// JanitorOptions configure a Janitor.
type JanitorOptions struct {
	// SweepInterval between expiry sweeps. Default: 1s.
	SweepInterval time.Duration
	// PressureInterval between snapshot checks. Default: 250ms.
	PressureInterval time.Duration
	// Source of pressure snapshots. Nil disables pressure sweeps.
	Source SnapshotSource
	Logger *slog.Logger
}

// Janitor runs the periodic expiry sweep and the pressure-driven sweep.
// A snapshot triggers at most one pressure sweep, however often it is read.
type Janitor struct {
	m       Maintainer
	opt     JanitorOptions
	log     *slog.Logger
	lastSeq uint64
}

// NewJanitor applies defaults and binds the janitor to m.
func NewJanitor(m Maintainer, opt JanitorOptions) *Janitor {
	if opt.SweepInterval <= 0 {
		opt.SweepInterval = time.Second
	}
	if opt.PressureInterval <= 0 {
		opt.PressureInterval = 250 * time.Millisecond
	}
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Janitor{m: m, opt: opt, log: log.With("component", "janitor")}
}

// Run sweeps until ctx is done. It always returns nil.
func (j *Janitor) Run(ctx context.Context) error {
	sweep := time.NewTicker(j.opt.SweepInterval)
	defer sweep.Stop()

	var pressure <-chan time.Time
	if j.opt.Source != nil {
		pt := time.NewTicker(j.opt.PressureInterval)
		defer pt.Stop()
		pressure = pt.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweep.C:
			j.sweep()
		case <-pressure:
			j.checkPressure()
		}
	}
}

func (j *Janitor) sweep() int {
	n := j.m.ReapExpired()
	if n > 0 {
		j.log.Debug("reaped expired entries", "count", n)
	}
	return n
}

// checkPressure acts on a snapshot it has not seen before.
func (j *Janitor) checkPressure() int {
	snap := j.opt.Source.Latest()
	if snap.Seq == 0 || snap.Seq == j.lastSeq {
		return 0
	}
	j.lastSeq = snap.Seq
	if snap.Tier == monitor.TierNormal {
		return 0
	}
	n := j.m.RelievePressure(snap.Tier)
	j.log.Info("pressure sweep",
		"tier", snap.Tier,
		"available_fraction", snap.AvailableFraction(),
		"evicted", n,
	)
	return n
}
