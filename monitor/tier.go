package monitor

import "fmt"

// Tier classifies memory pressure.
type Tier uint8

const (
	TierNormal   Tier = iota // enough memory; capacity-only eviction
	TierElevated             // available memory below the elevated threshold
	TierCritical             // available memory below the critical threshold
)

func (t Tier) String() string {
	switch t {
	case TierNormal:
		return "normal"
	case TierElevated:
		return "elevated"
	case TierCritical:
		return "critical"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// MarshalText renders the tier name, so JSON stats carry "elevated" rather
// than a number.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Thresholds are available-memory fractions in (0,1). CriticalBelow must
// not exceed ElevatedBelow.
type Thresholds struct {
	ElevatedBelow float64
	CriticalBelow float64
}

// DefaultThresholds: elevated under 20% available, critical under 10%.
var DefaultThresholds = Thresholds{ElevatedBelow: 0.20, CriticalBelow: 0.10}

// Validate checks the ordering and range of the thresholds.
func (th Thresholds) Validate() error {
	if th.CriticalBelow <= 0 || th.ElevatedBelow >= 1 || th.CriticalBelow > th.ElevatedBelow {
		return fmt.Errorf("monitor: thresholds must satisfy 0 < critical (%v) <= elevated (%v) < 1",
			th.CriticalBelow, th.ElevatedBelow)
	}
	return nil
}

// Classify maps an available/total pair to a tier. A zero total cannot be
// judged and is reported as normal.
func Classify(available, total uint64, th Thresholds) Tier {
	if total == 0 {
		return TierNormal
	}
	frac := float64(available) / float64(total)
	switch {
	case frac < th.CriticalBelow:
		return TierCritical
	case frac < th.ElevatedBelow:
		return TierElevated
	default:
		return TierNormal
	}
}
