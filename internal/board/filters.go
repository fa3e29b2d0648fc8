package board

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

// DateRange bounds CreatedAt: From inclusive, To exclusive. Zero ends are open.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Filters select which orders appear on the board. The zero value matches everything.
// MinUrgency and MaxUrgency of 0 mean unbounded.
type Filters struct {
	SearchTerm      string     `json:"search_term,omitempty"`
	MinUrgency      int        `json:"min_urgency,omitempty"`
	MaxUrgency      int        `json:"max_urgency,omitempty"`
	TechnicianID    string     `json:"technician_id,omitempty"`
	DeviceType      string     `json:"device_type,omitempty"`
	ShowOverdueOnly bool       `json:"show_overdue_only,omitempty"`
	ShowUrgentOnly  bool       `json:"show_urgent_only,omitempty"`
	DateRange       *DateRange `json:"date_range,omitempty"`
}

// ErrInvalidFilters is returned by Filters.Validate.
var ErrInvalidFilters = errors.New("invalid filters")

// Validate rejects inverted bounds.
func (f Filters) Validate() error {
	if f.MinUrgency != 0 && f.MaxUrgency != 0 && f.MinUrgency > f.MaxUrgency {
		return fmt.Errorf("%w: min_urgency %d > max_urgency %d", ErrInvalidFilters, f.MinUrgency, f.MaxUrgency)
	}
	if f.DateRange != nil && !f.DateRange.From.IsZero() && !f.DateRange.To.IsZero() && !f.DateRange.From.Before(f.DateRange.To) {
		return fmt.Errorf("%w: date range is empty", ErrInvalidFilters)
	}
	return nil
}

// Definitions configure what overdue and urgent mean.
type Definitions struct {
	// OverdueAfter is the age after which an open order is overdue. 0 disables age-based overdue.
	OverdueAfter time.Duration `yaml:"overdue_after" json:"overdue_after"`
	// UrgentMinUrgency is the lowest urgency counted as urgent. 0 disables urgent.
	UrgentMinUrgency int `yaml:"urgent_min_urgency" json:"urgent_min_urgency"`
}

// DefaultDefinitions: a week without completion is overdue; urgency 4 and up is urgent.
func DefaultDefinitions() Definitions {
	return Definitions{OverdueAfter: 7 * 24 * time.Hour, UrgentMinUrgency: 4}
}

// IsOverdue reports whether an open order is past its promised date or older than OverdueAfter.
// Orders in terminal columns are never overdue.
func (d Definitions) IsOverdue(o models.RepairOrder, now time.Time) bool {
	if stage.IsTerminal(o.Stage) {
		return false
	}
	if o.PromisedAt != nil && now.After(*o.PromisedAt) {
		return true
	}
	return d.OverdueAfter > 0 && now.Sub(o.CreatedAt) > d.OverdueAfter
}

// IsUrgent reports whether the order's urgency reaches UrgentMinUrgency.
func (d Definitions) IsUrgent(o models.RepairOrder) bool {
	return d.UrgentMinUrgency > 0 && o.Urgency >= d.UrgentMinUrgency
}

// Match reports whether o satisfies every active filter.
func (f Filters) Match(o models.RepairOrder, defs Definitions, now time.Time) bool {
	if term := strings.TrimSpace(f.SearchTerm); term != "" && !matchesText(o, term) {
		return false
	}
	if f.MinUrgency != 0 && o.Urgency < f.MinUrgency {
		return false
	}
	if f.MaxUrgency != 0 && o.Urgency > f.MaxUrgency {
		return false
	}
	if f.TechnicianID != "" && o.TechnicianID() != f.TechnicianID {
		return false
	}
	if f.DeviceType != "" && !strings.EqualFold(strings.TrimSpace(o.DeviceType), strings.TrimSpace(f.DeviceType)) {
		return false
	}
	if f.ShowOverdueOnly && !defs.IsOverdue(o, now) {
		return false
	}
	if f.ShowUrgentOnly && !defs.IsUrgent(o) {
		return false
	}
	if f.DateRange != nil && !f.DateRange.Contains(o.CreatedAt) {
		return false
	}
	return true
}

func matchesText(o models.RepairOrder, term string) bool {
	term = strings.ToLower(term)
	device := strings.TrimSpace(o.DeviceBrand + " " + o.DeviceModel)
	for _, field := range []string{o.CustomerName, device, o.DeviceType, o.Issue} {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
