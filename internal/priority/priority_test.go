package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardojeem/repairboard/pkg/models"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func order(id string, urgency int, age time.Duration) models.RepairOrder {
	return models.RepairOrder{
		ID:                  id,
		Stage:               models.StageReceived,
		Urgency:             urgency,
		TechnicalComplexity: 3,
		HistoricalValue:     1200,
		CreatedAt:           now.Add(-age),
	}
}

func TestScore_example(t *testing.T) {
	w := Weights{Urgency: 0.4, WaitTime: 0.3, HistoricalValue: 0.2, TechnicalComplexity: 0.1}
	high := order("K-1", 5, 10*24*time.Hour)
	low := order("K-2", 1, 10*24*time.Hour)

	hs := Score(high, w, nil, now)
	ls := Score(low, w, nil, now)
	assert.InDelta(t, 5*0.4+10*0.3+1200*0.2+3*0.1, hs, 1e-9)
	assert.Greater(t, hs, ls)

	ranked := Rank([]models.RepairOrder{low, high}, w, nil, now)
	require.Len(t, ranked, 2)
	assert.Equal(t, "K-1", ranked[0].Order.ID)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, 2, ranked[1].Rank)
}

func TestScore_deterministic(t *testing.T) {
	w := DefaultWeights()
	o := order("K-3", 3, 36*time.Hour)
	rules := []Rule{{Name: "bump", Condition: func(models.RepairOrder, time.Time) bool { return true }, Adjustment: 7}}
	assert.Equal(t, Score(o, w, rules, now), Score(o, w, rules, now))
}

func TestScore_urgencyMonotonic(t *testing.T) {
	w := DefaultWeights()
	prev := -1.0
	for u := models.MinUrgency; u <= models.MaxUrgency; u++ {
		s := Score(order("K-4", u, 48*time.Hour), w, nil, now)
		assert.GreaterOrEqual(t, s, prev, "urgency %d", u)
		prev = s
	}
}

func TestScore_futureCreatedAtClampsWait(t *testing.T) {
	w := Weights{WaitTime: 1}
	o := order("K-5", 1, -48*time.Hour)
	assert.Zero(t, Score(o, w, nil, now))
}

func TestScore_rulesApplyInOrderWhenConditionHolds(t *testing.T) {
	w := Weights{}
	var seen []string
	rules := []Rule{
		{Name: "a", Adjustment: 10, Condition: func(models.RepairOrder, time.Time) bool { seen = append(seen, "a"); return true }},
		{Name: "b", Adjustment: 100, Condition: func(models.RepairOrder, time.Time) bool { seen = append(seen, "b"); return false }},
		{Name: "c", Adjustment: -3, Condition: func(models.RepairOrder, time.Time) bool { seen = append(seen, "c"); return true }},
		{Name: "nil condition", Adjustment: 1000},
	}
	assert.Equal(t, 7.0, Score(order("K-6", 1, 0), w, rules, now))
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestRank_idempotentAndDoesNotMutateInput(t *testing.T) {
	in := []models.RepairOrder{
		order("B", 2, 24*time.Hour),
		order("A", 2, 24*time.Hour),
		order("C", 5, time.Hour),
	}
	snapshot := append([]models.RepairOrder(nil), in...)
	first := Rank(in, DefaultWeights(), nil, now)
	second := Rank(in, DefaultWeights(), nil, now)
	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, in)
	// equal scores and created_at: ID breaks the tie
	assert.Equal(t, "A", first[1].Order.ID)
	assert.Equal(t, "B", first[2].Order.ID)
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())
	err := Weights{Urgency: -1}.Validate()
	assert.ErrorIs(t, err, ErrNegativeWeight)
}

func TestLevels(t *testing.T) {
	l := Levels{Medium: 10, High: 20, Critical: 30}
	assert.Equal(t, LevelLow, l.Level(9.9))
	assert.Equal(t, LevelMedium, l.Level(10))
	assert.Equal(t, LevelHigh, l.Level(25))
	assert.Equal(t, LevelCritical, l.Level(30))
	assert.Equal(t, LevelLow, Levels{}.Level(1e9))
}

func TestCompile(t *testing.T) {
	promised := now.Add(-time.Hour)
	rules, err := Compile([]RuleConfig{
		{Name: "stale phones", Adjustment: 5, When: WhenBlock{DeviceType: "phone", MinWaitDays: 2}},
		{Name: "late", Adjustment: 20, When: WhenBlock{PastPromised: true, Columns: []string{"pending", "in_progress"}}},
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)

	o := order("K-7", 3, 72*time.Hour)
	o.DeviceType = "Phone"
	assert.True(t, rules[0].Condition(o, now))
	assert.False(t, rules[1].Condition(o, now))

	o.PromisedAt = &promised
	assert.True(t, rules[1].Condition(o, now))
	o.Stage = models.StageReady
	assert.False(t, rules[1].Condition(o, now))
	assert.Equal(t, 5.0, Score(o, Weights{}, rules, now))
}

func TestCompile_rejectsBadConfig(t *testing.T) {
	_, err := Compile([]RuleConfig{{Name: ""}})
	assert.Error(t, err)
	_, err = Compile([]RuleConfig{{Name: "x", When: WhenBlock{Stages: []string{"on-hold"}}}})
	assert.Error(t, err)
	_, err = Compile([]RuleConfig{{Name: "x", When: WhenBlock{MinUrgency: 4, MaxUrgency: 2}}})
	assert.Error(t, err)
}

func TestLevels_validate(t *testing.T) {
	assert.NoError(t, DefaultLevels().Validate())
	assert.NoError(t, Levels{High: 50}.Validate(), "disabled levels are skipped")
	assert.NoError(t, Levels{Medium: 10, High: 10, Critical: 10}.Validate())
	assert.ErrorIs(t, Levels{Medium: 10, High: 80, Critical: 40}.Validate(), ErrLevelOrder)
	assert.ErrorIs(t, Levels{Medium: 30, Critical: 20}.Validate(), ErrLevelOrder)
	assert.ErrorIs(t, Levels{Medium: -1}.Validate(), ErrLevelOrder)
}
