// Package board derives the Kanban view of a repair order list: the filtered
// orders, one bucket per column, and per-column metrics.
//
// Derive is pure. It reads the order list it is given and never modifies it;
// callers pass the latest list from the order list holder on every change.
package board

import (
	"fmt"
	"sort"
	"time"

	"github.com/eduardojeem/repairboard/internal/priority"
	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

// Options configure a derivation.
type Options struct {
	Now         time.Time
	Definitions Definitions
	// Scoring, when set, ranks every filtered order and sorts each bucket best first.
	Scoring *priority.Scorer
}

// Metrics are the per-column aggregates plus a totals row.
type Metrics struct {
	Columns map[models.Column]models.ColumnMetrics
	Totals  models.ColumnMetrics
}

// Board is the derived view.
type Board struct {
	Filtered []models.RepairOrder
	// ByColumn has an entry for every column, empty when nothing matches.
	ByColumn map[models.Column][]models.RepairOrder
	Metrics  Metrics
	Scores   map[string]float64
	Levels   map[string]priority.Level
}

// Derive filters orders, buckets them by column and computes metrics.
// It fails on the first order whose stage is outside the closed set.
func Derive(orders []models.RepairOrder, f Filters, opts Options) (Board, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	b := Board{
		Filtered: make([]models.RepairOrder, 0, len(orders)),
		ByColumn: make(map[models.Column][]models.RepairOrder, len(stage.Columns())),
	}
	for _, c := range stage.Columns() {
		b.ByColumn[c] = []models.RepairOrder{}
	}

	for _, o := range orders {
		col, err := stage.ToColumn(o.Stage)
		if err != nil {
			return Board{}, fmt.Errorf("order %s: %w", o.ID, err)
		}
		if !f.Match(o, opts.Definitions, opts.Now) {
			continue
		}
		b.Filtered = append(b.Filtered, o)
		b.ByColumn[col] = append(b.ByColumn[col], o)
	}

	if opts.Scoring != nil {
		b.rank(*opts.Scoring, opts.Now)
	}
	b.Metrics = computeMetrics(b.ByColumn, opts.Definitions, opts.Now)
	return b, nil
}

func (b *Board) rank(s priority.Scorer, now time.Time) {
	ranked := s.Rank(b.Filtered, now)
	b.Scores = make(map[string]float64, len(ranked))
	b.Levels = make(map[string]priority.Level, len(ranked))
	pos := make(map[string]int, len(ranked))
	for _, r := range ranked {
		b.Scores[r.Order.ID] = r.Score
		b.Levels[r.Order.ID] = s.Levels.Level(r.Score)
		pos[r.Order.ID] = r.Rank
	}
	for _, items := range b.ByColumn {
		sort.SliceStable(items, func(i, j int) bool { return pos[items[i].ID] < pos[items[j].ID] })
	}
}

func computeMetrics(byColumn map[models.Column][]models.RepairOrder, defs Definitions, now time.Time) Metrics {
	m := Metrics{Columns: make(map[models.Column]models.ColumnMetrics, len(byColumn))}
	var all acc
	for _, c := range stage.Columns() {
		var a acc
		for _, o := range byColumn[c] {
			a.add(o, defs, now)
			all.add(o, defs, now)
		}
		m.Columns[c] = a.metrics()
	}
	m.Totals = all.metrics()
	return m
}

type acc struct {
	count, overdue, urgent int
	urgencySum             int
	value, waitDays        float64
}

func (a *acc) add(o models.RepairOrder, defs Definitions, now time.Time) {
	a.count++
	a.urgencySum += o.Urgency
	a.value += o.HistoricalValue
	a.waitDays += priority.WaitDays(o, now)
	if defs.IsOverdue(o, now) {
		a.overdue++
	}
	if defs.IsUrgent(o) {
		a.urgent++
	}
}

func (a acc) metrics() models.ColumnMetrics {
	m := models.ColumnMetrics{
		Count:        a.count,
		OverdueCount: a.overdue,
		UrgentCount:  a.urgent,
		TotalValue:   a.value,
	}
	if a.count > 0 {
		m.AverageUrgency = float64(a.urgencySum) / float64(a.count)
		m.AverageWaitDays = a.waitDays / float64(a.count)
	}
	return m
}

// Model converts the board to its API representation, columns in display order.
func (b Board) Model() models.Board {
	out := models.Board{
		Columns: make([]models.BoardColumn, 0, len(b.ByColumn)),
		Totals:  b.Metrics.Totals,
		Scores:  b.Scores,
	}
	for _, c := range stage.Columns() {
		out.Columns = append(out.Columns, models.BoardColumn{
			Key:     c,
			Title:   stage.Title(c),
			Orders:  b.ByColumn[c],
			Metrics: b.Metrics.Columns[c],
		})
	}
	if len(b.Levels) > 0 {
		out.Levels = make(map[string]string, len(b.Levels))
		for id, l := range b.Levels {
			out.Levels[id] = string(l)
		}
	}
	return out
}
