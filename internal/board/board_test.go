package board

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardojeem/repairboard/internal/priority"
	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func fixture() []models.RepairOrder {
	day := 24 * time.Hour
	promised := now.Add(-day)
	return []models.RepairOrder{
		{ID: "K-100", Stage: models.StageReceived, CustomerName: "Ana Torres", DeviceType: "phone", DeviceBrand: "Apple", DeviceModel: "iPhone 13", Issue: "cracked screen", Urgency: 5, HistoricalValue: 300, CreatedAt: now.Add(-2 * day)},
		{ID: "K-101", Stage: models.StageDiagnosing, CustomerName: "Luis Benítez", DeviceType: "laptop", DeviceBrand: "Lenovo", Issue: "no power", Urgency: 2, HistoricalValue: 900, CreatedAt: now.Add(-10 * day), Technician: &models.Technician{ID: "t1", Name: "Marta"}},
		{ID: "K-102", Stage: models.StageRepairing, CustomerName: "Carla Ruiz", DeviceType: "Phone", DeviceBrand: "Samsung", Issue: "battery swelling", Urgency: 4, HistoricalValue: 150, CreatedAt: now.Add(-day), PromisedAt: &promised, Technician: &models.Technician{ID: "t2"}},
		{ID: "K-103", Stage: models.StagePaused, CustomerName: "Diego Paz", DeviceType: "tablet", Issue: "customer unreachable", Urgency: 1, CreatedAt: now.Add(-20 * day)},
		{ID: "K-104", Stage: models.StageDelivered, CustomerName: "Eva Gómez", DeviceType: "phone", Issue: "charging port", Urgency: 3, HistoricalValue: 80, CreatedAt: now.Add(-30 * day)},
		{ID: "K-105", Stage: models.StageWaitingParts, CustomerName: "Fabio Rey", DeviceType: "laptop", Issue: "keyboard", Urgency: 3, CreatedAt: now.Add(-3 * day), Technician: &models.Technician{ID: "t1"}},
	}
}

func opts() Options {
	return Options{Now: now, Definitions: DefaultDefinitions()}
}

func ids(orders []models.RepairOrder) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	sort.Strings(out)
	return out
}

func filterCases() []Filters {
	return []Filters{
		{},
		{SearchTerm: "phone"},
		{SearchTerm: "APPLE IPHONE"},
		{MinUrgency: 3},
		{MaxUrgency: 2},
		{MinUrgency: 2, MaxUrgency: 4, DeviceType: "phone"},
		{TechnicianID: "t1"},
		{ShowOverdueOnly: true},
		{ShowUrgentOnly: true},
		{ShowOverdueOnly: true, ShowUrgentOnly: true},
		{DateRange: &DateRange{From: now.Add(-5 * 24 * time.Hour)}},
		{SearchTerm: "nothing matches this"},
	}
}

func TestDerive_totalBucketing(t *testing.T) {
	for _, f := range filterCases() {
		b, err := Derive(fixture(), f, opts())
		require.NoError(t, err)

		require.Len(t, b.ByColumn, len(stage.Columns()), "filters %+v", f)
		var union []models.RepairOrder
		for _, c := range stage.Columns() {
			items, ok := b.ByColumn[c]
			require.True(t, ok, "column %s missing for %+v", c, f)
			require.NotNil(t, items, "column %s nil for %+v", c, f)
			union = append(union, items...)
		}
		assert.Equal(t, ids(b.Filtered), ids(union), "filters %+v", f)
		assert.Equal(t, len(b.Filtered), b.Metrics.Totals.Count)
	}
}

func TestDerive_doesNotMutateInput(t *testing.T) {
	in := fixture()
	before := fixture()
	s := priority.Scorer{Weights: priority.DefaultWeights(), Levels: priority.DefaultLevels()}
	o := opts()
	o.Scoring = &s
	_, err := Derive(in, Filters{MinUrgency: 2}, o)
	require.NoError(t, err)
	if diff := cmp.Diff(before, in); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
}

func TestDerive_filterConjunction(t *testing.T) {
	f := Filters{MinUrgency: 3, DeviceType: "PHONE"}
	b, err := Derive(fixture(), f, opts())
	require.NoError(t, err)
	assert.Equal(t, []string{"K-100", "K-102", "K-104"}, ids(b.Filtered))

	for _, o := range b.Filtered {
		assert.GreaterOrEqual(t, o.Urgency, 3)
		assert.True(t, f.Match(o, DefaultDefinitions(), now))
	}
}

func TestDerive_relaxingNeverShrinks(t *testing.T) {
	full := Filters{
		SearchTerm:      "a",
		MinUrgency:      2,
		MaxUrgency:      5,
		TechnicianID:    "t2",
		DeviceType:      "phone",
		ShowOverdueOnly: true,
		ShowUrgentOnly:  true,
		DateRange:       &DateRange{From: now.Add(-3 * 24 * time.Hour), To: now},
	}
	relaxations := map[string]func(*Filters){
		"search":     func(f *Filters) { f.SearchTerm = "" },
		"min":        func(f *Filters) { f.MinUrgency = 0 },
		"max":        func(f *Filters) { f.MaxUrgency = 0 },
		"technician": func(f *Filters) { f.TechnicianID = "" },
		"device":     func(f *Filters) { f.DeviceType = "" },
		"overdue":    func(f *Filters) { f.ShowOverdueOnly = false },
		"urgent":     func(f *Filters) { f.ShowUrgentOnly = false },
		"dates":      func(f *Filters) { f.DateRange = nil },
	}
	base, err := Derive(fixture(), full, opts())
	require.NoError(t, err)
	require.Equal(t, []string{"K-102"}, ids(base.Filtered))

	for name, relax := range relaxations {
		f := full
		relax(&f)
		got, err := Derive(fixture(), f, opts())
		require.NoError(t, err)
		assert.Subset(t, ids(got.Filtered), ids(base.Filtered), name)
	}
}

func TestDerive_unknownStageFails(t *testing.T) {
	orders := append(fixture(), models.RepairOrder{ID: "K-999", Stage: "lost", CreatedAt: now})
	_, err := Derive(orders, Filters{}, opts())
	require.Error(t, err)
	assert.True(t, errors.Is(err, stage.ErrUnknownStage))
	assert.Contains(t, err.Error(), "K-999")
}

func TestDerive_metrics(t *testing.T) {
	b, err := Derive(fixture(), Filters{}, opts())
	require.NoError(t, err)

	want := map[models.Column]models.ColumnMetrics{
		models.ColumnPending:      {Count: 1, UrgentCount: 1, AverageUrgency: 5, TotalValue: 300, AverageWaitDays: 2},
		models.ColumnInProgress:   {Count: 2, OverdueCount: 2, UrgentCount: 1, AverageUrgency: 3, TotalValue: 1050, AverageWaitDays: 5.5},
		models.ColumnWaitingParts: {Count: 1, AverageUrgency: 3, AverageWaitDays: 3},
		models.ColumnOnHold:       {Count: 1, OverdueCount: 1, AverageUrgency: 1, AverageWaitDays: 20},
		models.ColumnCompleted:    {Count: 1, AverageUrgency: 3, TotalValue: 80, AverageWaitDays: 30},
		models.ColumnCancelled:    {},
	}
	if diff := cmp.Diff(want, b.Metrics.Columns, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 6, b.Metrics.Totals.Count)
	assert.Equal(t, 3, b.Metrics.Totals.OverdueCount)
}

func TestDefinitions_configurable(t *testing.T) {
	o := fixture()[0] // 2 days old, urgency 5
	strict := Definitions{OverdueAfter: 24 * time.Hour, UrgentMinUrgency: 5}
	lax := Definitions{}
	assert.True(t, strict.IsOverdue(o, now))
	assert.True(t, strict.IsUrgent(o))
	assert.False(t, lax.IsOverdue(o, now))
	assert.False(t, lax.IsUrgent(o))

	done := fixture()[4]
	assert.False(t, strict.IsOverdue(done, now), "terminal columns are never overdue")
}

func TestDerive_scoringSortsBuckets(t *testing.T) {
	s := priority.Scorer{Weights: priority.Weights{Urgency: 1}, Levels: priority.DefaultLevels()}
	o := opts()
	o.Scoring = &s
	b, err := Derive(fixture(), Filters{}, o)
	require.NoError(t, err)

	inProgress := b.ByColumn[models.ColumnInProgress]
	require.Len(t, inProgress, 2)
	assert.Equal(t, "K-102", inProgress[0].ID)
	assert.Equal(t, "K-101", inProgress[1].ID)
	assert.Equal(t, 5.0, b.Scores["K-100"])
	assert.Equal(t, priority.LevelLow, b.Levels["K-100"])
	assert.Len(t, b.Scores, 6)
}

func TestDerive_failedMoveLeavesOrderPending(t *testing.T) {
	orders := fixture()
	// A rejected stage change never touches the list; the next derivation sees the same stage.
	b, err := Derive(orders, Filters{}, opts())
	require.NoError(t, err)
	assert.Contains(t, ids(b.ByColumn[models.ColumnPending]), "K-100")
	assert.NotContains(t, ids(b.ByColumn[models.ColumnInProgress]), "K-100")
}

func TestFilters_validate(t *testing.T) {
	assert.NoError(t, Filters{MinUrgency: 2}.Validate())
	assert.ErrorIs(t, Filters{MinUrgency: 4, MaxUrgency: 2}.Validate(), ErrInvalidFilters)
	assert.ErrorIs(t, Filters{DateRange: &DateRange{From: now, To: now}}.Validate(), ErrInvalidFilters)
}

func TestModel_columnsInDisplayOrder(t *testing.T) {
	b, err := Derive(fixture(), Filters{}, opts())
	require.NoError(t, err)
	m := b.Model()
	require.Len(t, m.Columns, len(stage.Columns()))
	for i, c := range stage.Columns() {
		assert.Equal(t, c, m.Columns[i].Key)
		assert.Equal(t, stage.Title(c), m.Columns[i].Title)
	}
	assert.Nil(t, m.Levels)
}
