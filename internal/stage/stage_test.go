package stage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardojeem/repairboard/pkg/models"
)

func TestToColumn_everyStageHasOneColumn(t *testing.T) {
	for _, s := range Stages() {
		c, err := ToColumn(s)
		require.NoError(t, err, "stage %s", s)
		assert.Contains(t, Columns(), c)
	}
}

func TestToStage_everyColumnIsDroppable(t *testing.T) {
	for _, c := range Columns() {
		s, err := ToStage(c)
		require.NoError(t, err, "column %s", c)
		got, err := ToColumn(s)
		require.NoError(t, err)
		assert.Equal(t, c, got, "canonical stage of %s must live in %s", c, c)
	}
}

func TestRoundTrip_nonAliasStages(t *testing.T) {
	for _, s := range Stages() {
		if IsAlias(s) {
			continue
		}
		c, err := ToColumn(s)
		require.NoError(t, err)
		back, err := ToStage(c)
		require.NoError(t, err)
		assert.Equal(t, s, back)
	}
}

func TestCanonicalResolution(t *testing.T) {
	cases := map[models.Column]models.Stage{
		models.ColumnPending:      models.StageReceived,
		models.ColumnInProgress:   models.StageDiagnosing,
		models.ColumnWaitingParts: models.StageWaitingParts,
		models.ColumnOnHold:       models.StagePaused,
		models.ColumnCompleted:    models.StageReady,
		models.ColumnCancelled:    models.StageCancelled,
	}
	for c, want := range cases {
		got, err := ToStage(c)
		require.NoError(t, err)
		assert.Equal(t, want, got, "column %s", c)
	}
	assert.True(t, IsAlias(models.StageRepairing))
	assert.True(t, IsAlias(models.StageDelivered))
	assert.False(t, IsAlias(models.StagePaused))
}

func TestPausedSharesStepButNotColumn(t *testing.T) {
	paused, err := Stage(models.StagePaused)
	require.NoError(t, err)
	repairing, err := Stage(models.StageRepairing)
	require.NoError(t, err)
	assert.Equal(t, repairing.Step, paused.Step)
	assert.NotEqual(t, repairing.Column, paused.Column)
}

func TestUnknownInputsFailFast(t *testing.T) {
	_, err := ToColumn("on-hold")
	assert.True(t, errors.Is(err, ErrUnknownStage))
	_, err = ToStage("archived")
	assert.True(t, errors.Is(err, ErrUnknownColumn))
	_, err = ParseStage("")
	assert.ErrorIs(t, err, ErrUnknownStage)
	_, err = ParseColumn("done")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestColumnsInDisplayOrder(t *testing.T) {
	assert.Equal(t, []models.Column{
		models.ColumnPending,
		models.ColumnInProgress,
		models.ColumnWaitingParts,
		models.ColumnOnHold,
		models.ColumnCompleted,
		models.ColumnCancelled,
	}, Columns())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(models.StageDelivered))
	assert.True(t, IsTerminal(models.StageCancelled))
	assert.False(t, IsTerminal(models.StagePaused))
	assert.Equal(t, "In Progress", Title(models.ColumnInProgress))
}
