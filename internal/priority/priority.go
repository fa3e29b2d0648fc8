// Package priority computes advisory triage scores for repair orders.
//
// Scores order the board and pick badges; they are never persisted and never
// gate anything.
package priority

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/eduardojeem/repairboard/pkg/models"
)

// ErrNegativeWeight is returned by Weights.Validate.
var ErrNegativeWeight = errors.New("priority weight must be non-negative")

// Weights scale each order attribute in the weighted sum.
type Weights struct {
	Urgency             float64 `yaml:"urgency" json:"urgency"`
	WaitTime            float64 `yaml:"wait_time" json:"wait_time"`
	HistoricalValue     float64 `yaml:"historical_value" json:"historical_value"`
	TechnicalComplexity float64 `yaml:"technical_complexity" json:"technical_complexity"`
}

// DefaultWeights returns the stock weight set.
func DefaultWeights() Weights {
	return Weights{Urgency: 0.4, WaitTime: 0.3, HistoricalValue: 0.2, TechnicalComplexity: 0.1}
}

// Validate rejects negative or non-finite weights.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"urgency":              w.Urgency,
		"wait_time":            w.WaitTime,
		"historical_value":     w.HistoricalValue,
		"technical_complexity": w.TechnicalComplexity,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrNegativeWeight, name, v)
		}
	}
	return nil
}

// Condition decides whether a rule applies to an order at time now.
type Condition func(o models.RepairOrder, now time.Time) bool

// Rule adjusts the weighted sum when its condition holds.
type Rule struct {
	Name       string
	Condition  Condition
	Adjustment float64
}

// WaitDays is the order's age in fractional days, never negative.
func WaitDays(o models.RepairOrder, now time.Time) float64 {
	d := now.Sub(o.CreatedAt).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// Score returns the priority of o. Rules are applied in order after the weighted sum.
func Score(o models.RepairOrder, w Weights, rules []Rule, now time.Time) float64 {
	s := float64(o.Urgency)*w.Urgency +
		WaitDays(o, now)*w.WaitTime +
		o.HistoricalValue*w.HistoricalValue +
		float64(o.TechnicalComplexity)*w.TechnicalComplexity
	for _, r := range rules {
		if r.Condition != nil && r.Condition(o, now) {
			s += r.Adjustment
		}
	}
	return s
}

// Ranked is an order annotated with its score and 1-based rank.
type Ranked struct {
	Order models.RepairOrder
	Score float64
	Rank  int
}

// Rank scores every order and returns them best first. Ties break on
// CreatedAt (oldest first) then ID, so the result is stable across calls.
// The input slice is not modified.
func Rank(orders []models.RepairOrder, w Weights, rules []Rule, now time.Time) []Ranked {
	out := make([]Ranked, len(orders))
	for i, o := range orders {
		out[i] = Ranked{Order: o, Score: Score(o, w, rules, now)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Order.CreatedAt.Equal(b.Order.CreatedAt) {
			return a.Order.CreatedAt.Before(b.Order.CreatedAt)
		}
		return a.Order.ID < b.Order.ID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// Scorer bundles a weight and rule set.
type Scorer struct {
	Weights Weights
	Rules   []Rule
	Levels  Levels
}

// Score scores one order.
func (s Scorer) Score(o models.RepairOrder, now time.Time) float64 {
	return Score(o, s.Weights, s.Rules, now)
}

// Rank ranks a batch.
func (s Scorer) Rank(orders []models.RepairOrder, now time.Time) []Ranked {
	return Rank(orders, s.Weights, s.Rules, now)
}
