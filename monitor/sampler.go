package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/procfs"
)

// Reading is one raw resource sample.
type Reading struct {
	AvailableBytes uint64
	TotalBytes     uint64
	ResidentBytes  uint64
}

// Sampler takes resource readings. Implementations are called from a single
// goroutine.
type Sampler interface {
	Sample(ctx context.Context) (Reading, error)
}

// SamplerFunc adapts a function to Sampler.
type SamplerFunc func(ctx context.Context) (Reading, error)

func (f SamplerFunc) Sample(ctx context.Context) (Reading, error) { return f(ctx) }

// ErrNoMeminfo is returned when /proc/meminfo lacks the fields needed to
// judge pressure.
var ErrNoMeminfo = errors.New("monitor: meminfo has no MemTotal/MemAvailable")

// ProcSampler reads system memory from /proc/meminfo and the process RSS
// from /proc/self/stat.
type ProcSampler struct {
	fs procfs.FS
}

// NewProcSampler opens the proc filesystem at mount (procfs.DefaultMountPoint
// when empty).
func NewProcSampler(mount string) (*ProcSampler, error) {
	if mount == "" {
		mount = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(mount)
	if err != nil {
		return nil, fmt.Errorf("monitor: open procfs %q: %w", mount, err)
	}
	return &ProcSampler{fs: fs}, nil
}

func (p *ProcSampler) Sample(_ context.Context) (Reading, error) {
	mi, err := p.fs.Meminfo()
	if err != nil {
		return Reading{}, fmt.Errorf("monitor: read meminfo: %w", err)
	}
	if mi.MemTotal == nil || mi.MemAvailable == nil {
		return Reading{}, ErrNoMeminfo
	}
	r := Reading{
		TotalBytes:     *mi.MemTotal * 1024,
		AvailableBytes: *mi.MemAvailable * 1024,
	}

	self, err := p.fs.Self()
	if err != nil {
		return r, fmt.Errorf("monitor: open /proc/self: %w", err)
	}
	st, err := self.Stat()
	if err != nil {
		return r, fmt.Errorf("monitor: read /proc/self/stat: %w", err)
	}
	r.ResidentBytes = uint64(st.ResidentMemory())
	return r, nil
}

// Unavailable returns a Sampler that always fails with err. It lets the
// monitor run, and report the failure, on hosts without procfs.
func Unavailable(err error) Sampler {
	return SamplerFunc(func(context.Context) (Reading, error) { return Reading{}, err })
}
