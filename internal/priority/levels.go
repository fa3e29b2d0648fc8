package priority

import (
	"errors"
	"fmt"
	"math"
)

// ErrLevelOrder is returned by Levels.Validate.
var ErrLevelOrder = errors.New("priority levels must be non-negative and ascending")

// Level is the badge shown next to an order.
type Level string

// Badge levels, lowest first.
const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Levels are the minimum scores for each badge above low.
type Levels struct {
	Medium   float64 `yaml:"medium" json:"medium"`
	High     float64 `yaml:"high" json:"high"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// DefaultLevels match DefaultWeights on typical shop values.
func DefaultLevels() Levels {
	return Levels{Medium: 25, High: 75, Critical: 150}
}

// Validate rejects negative thresholds and enabled thresholds out of order.
// A zero threshold disables its badge and is skipped in the ordering check.
func (l Levels) Validate() error {
	prevName, prev := "", 0.0
	for _, t := range []struct {
		name string
		v    float64
	}{{"medium", l.Medium}, {"high", l.High}, {"critical", l.Critical}} {
		if t.v < 0 || math.IsNaN(t.v) || math.IsInf(t.v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrLevelOrder, t.name, t.v)
		}
		if t.v == 0 {
			continue
		}
		if prevName != "" && t.v < prev {
			return fmt.Errorf("%w: %s=%v below %s=%v", ErrLevelOrder, t.name, t.v, prevName, prev)
		}
		prevName, prev = t.name, t.v
	}
	return nil
}

// Level returns the badge for score.
func (l Levels) Level(score float64) Level {
	switch {
	case l.Critical > 0 && score >= l.Critical:
		return LevelCritical
	case l.High > 0 && score >= l.High:
		return LevelHigh
	case l.Medium > 0 && score >= l.Medium:
		return LevelMedium
	default:
		return LevelLow
	}
}
