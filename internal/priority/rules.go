package priority

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

// RuleConfig is the declarative form of a Rule, as written in config.yaml:
//
//	rules:
//	  - name: vip backlog
//	    when: {min_value: 1000, min_wait_days: 3}
//	    adjustment: 50
type RuleConfig struct {
	Name       string    `yaml:"name" json:"name"`
	When       WhenBlock `yaml:"when" json:"when"`
	Adjustment float64   `yaml:"adjustment" json:"adjustment"`
}

// WhenBlock lists predicates that must all hold. Empty fields are ignored.
type WhenBlock struct {
	Stages       []string `yaml:"stages,omitempty" json:"stages,omitempty"`
	Columns      []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	MinUrgency   int      `yaml:"min_urgency,omitempty" json:"min_urgency,omitempty"`
	MaxUrgency   int      `yaml:"max_urgency,omitempty" json:"max_urgency,omitempty"`
	MinWaitDays  float64  `yaml:"min_wait_days,omitempty" json:"min_wait_days,omitempty"`
	MinValue     float64  `yaml:"min_value,omitempty" json:"min_value,omitempty"`
	DeviceType   string   `yaml:"device_type,omitempty" json:"device_type,omitempty"`
	TechnicianID string   `yaml:"technician_id,omitempty" json:"technician_id,omitempty"`
	PastPromised bool     `yaml:"past_promised,omitempty" json:"past_promised,omitempty"`
}

var errEmptyRuleName = errors.New("rule name required")

// Compile turns rule configs into rules, preserving order.
func Compile(cfgs []RuleConfig) ([]Rule, error) {
	out := make([]Rule, 0, len(cfgs))
	for i, c := range cfgs {
		r, err := c.Compile()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Compile validates the config and builds its condition.
func (c RuleConfig) Compile() (Rule, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Rule{}, errEmptyRuleName
	}
	w := c.When
	stages := make(map[models.Stage]bool, len(w.Stages))
	for _, raw := range w.Stages {
		s, err := stage.ParseStage(raw)
		if err != nil {
			return Rule{}, fmt.Errorf("%s: %w", c.Name, err)
		}
		stages[s] = true
	}
	columns := make(map[models.Column]bool, len(w.Columns))
	for _, raw := range w.Columns {
		col, err := stage.ParseColumn(raw)
		if err != nil {
			return Rule{}, fmt.Errorf("%s: %w", c.Name, err)
		}
		columns[col] = true
	}
	if w.MinUrgency != 0 && w.MaxUrgency != 0 && w.MinUrgency > w.MaxUrgency {
		return Rule{}, fmt.Errorf("%s: min_urgency %d > max_urgency %d", c.Name, w.MinUrgency, w.MaxUrgency)
	}

	cond := func(o models.RepairOrder, now time.Time) bool {
		if len(stages) > 0 && !stages[o.Stage] {
			return false
		}
		if len(columns) > 0 {
			col, err := stage.ToColumn(o.Stage)
			if err != nil || !columns[col] {
				return false
			}
		}
		if w.MinUrgency != 0 && o.Urgency < w.MinUrgency {
			return false
		}
		if w.MaxUrgency != 0 && o.Urgency > w.MaxUrgency {
			return false
		}
		if w.MinWaitDays > 0 && WaitDays(o, now) < w.MinWaitDays {
			return false
		}
		if w.MinValue > 0 && o.HistoricalValue < w.MinValue {
			return false
		}
		if w.DeviceType != "" && !strings.EqualFold(w.DeviceType, o.DeviceType) {
			return false
		}
		if w.TechnicianID != "" && o.TechnicianID() != w.TechnicianID {
			return false
		}
		if w.PastPromised && (o.PromisedAt == nil || !now.After(*o.PromisedAt)) {
			return false
		}
		return true
	}
	return Rule{Name: c.Name, Condition: cond, Adjustment: c.Adjustment}, nil
}
