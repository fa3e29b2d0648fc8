// Package stage maps repair order stages to board columns and back.
//
// Every stage belongs to exactly one column. Columns holding more than one
// stage reverse-map to the earliest stage of the lifecycle in that column:
//
//	pending       <- received
//	in_progress   <- diagnosing (canonical), repairing
//	waiting_parts <- waiting_parts
//	on_hold       <- paused
//	completed     <- ready (canonical), delivered
//	cancelled     <- cancelled
//
// paused shares progress step 2 with repairing for display, but it is its own
// stage in its own column.
package stage

import (
	"errors"
	"fmt"

	"github.com/eduardojeem/repairboard/pkg/models"
)

var (
	// ErrUnknownStage is returned for a stage outside the closed set.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrUnknownColumn is returned for a column key outside the closed set.
	ErrUnknownColumn = errors.New("unknown column")
)

// NoStep marks stages that are not part of the progress bar.
const NoStep = -1

// StageInfo describes how a stage is presented.
type StageInfo struct {
	Stage  models.Stage
	Label  string
	Column models.Column
	Step   int
}

// ColumnInfo describes how a board column is presented.
type ColumnInfo struct {
	Key       models.Column
	Title     string
	Icon      string
	Color     string
	Canonical models.Stage
	// Terminal columns hold orders that are no longer being worked.
	Terminal bool
}

var stages = []StageInfo{
	{Stage: models.StageReceived, Label: "Received", Column: models.ColumnPending, Step: 0},
	{Stage: models.StageDiagnosing, Label: "Diagnosing", Column: models.ColumnInProgress, Step: 1},
	{Stage: models.StageRepairing, Label: "Repairing", Column: models.ColumnInProgress, Step: 2},
	{Stage: models.StageWaitingParts, Label: "Waiting for parts", Column: models.ColumnWaitingParts, Step: 2},
	{Stage: models.StagePaused, Label: "Paused", Column: models.ColumnOnHold, Step: 2},
	{Stage: models.StageReady, Label: "Ready for pickup", Column: models.ColumnCompleted, Step: 3},
	{Stage: models.StageDelivered, Label: "Delivered", Column: models.ColumnCompleted, Step: 4},
	{Stage: models.StageCancelled, Label: "Cancelled", Column: models.ColumnCancelled, Step: NoStep},
}

var columns = []ColumnInfo{
	{Key: models.ColumnPending, Title: "Pending", Icon: "inbox", Color: "blue", Canonical: models.StageReceived},
	{Key: models.ColumnInProgress, Title: "In Progress", Icon: "wrench", Color: "yellow", Canonical: models.StageDiagnosing},
	{Key: models.ColumnWaitingParts, Title: "Waiting Parts", Icon: "package", Color: "magenta", Canonical: models.StageWaitingParts},
	{Key: models.ColumnOnHold, Title: "On Hold", Icon: "pause", Color: "cyan", Canonical: models.StagePaused},
	{Key: models.ColumnCompleted, Title: "Completed", Icon: "check", Color: "green", Canonical: models.StageReady, Terminal: true},
	{Key: models.ColumnCancelled, Title: "Cancelled", Icon: "x", Color: "red", Canonical: models.StageCancelled, Terminal: true},
}

var (
	stageIndex  = make(map[models.Stage]int, len(stages))
	columnIndex = make(map[models.Column]int, len(columns))
)

func init() {
	for i, s := range stages {
		stageIndex[s.Stage] = i
	}
	for i, c := range columns {
		columnIndex[c.Key] = i
	}
}

// ToColumn returns the board column for a stage.
func ToColumn(s models.Stage) (models.Column, error) {
	i, ok := stageIndex[s]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
	return stages[i].Column, nil
}

// ToStage returns the canonical stage an order gets when dropped into column c.
func ToStage(c models.Column) (models.Stage, error) {
	i, ok := columnIndex[c]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, c)
	}
	return columns[i].Canonical, nil
}

// IsAlias reports whether s shares its column with a different canonical stage,
// i.e. ToStage(ToColumn(s)) != s.
func IsAlias(s models.Stage) bool {
	c, err := ToColumn(s)
	if err != nil {
		return false
	}
	canonical, _ := ToStage(c)
	return canonical != s
}

// ParseStage validates a raw stage string.
func ParseStage(raw string) (models.Stage, error) {
	s := models.Stage(raw)
	if _, ok := stageIndex[s]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, raw)
	}
	return s, nil
}

// ParseColumn validates a raw column key.
func ParseColumn(raw string) (models.Column, error) {
	c := models.Column(raw)
	if _, ok := columnIndex[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, raw)
	}
	return c, nil
}

// Stages returns all stages in lifecycle order.
func Stages() []models.Stage {
	out := make([]models.Stage, len(stages))
	for i, s := range stages {
		out[i] = s.Stage
	}
	return out
}

// Columns returns all column keys in display order.
func Columns() []models.Column {
	out := make([]models.Column, len(columns))
	for i, c := range columns {
		out[i] = c.Key
	}
	return out
}

// Stage returns the descriptor for s.
func Stage(s models.Stage) (StageInfo, error) {
	i, ok := stageIndex[s]
	if !ok {
		return StageInfo{}, fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
	return stages[i], nil
}

// Column returns the descriptor for c.
func Column(c models.Column) (ColumnInfo, error) {
	i, ok := columnIndex[c]
	if !ok {
		return ColumnInfo{}, fmt.Errorf("%w: %q", ErrUnknownColumn, c)
	}
	return columns[i], nil
}

// Title returns the display title of c, or the raw key if c is unknown.
func Title(c models.Column) string {
	if info, err := Column(c); err == nil {
		return info.Title
	}
	return string(c)
}

// IsTerminal reports whether orders in stage s are no longer being worked.
func IsTerminal(s models.Stage) bool {
	c, err := ToColumn(s)
	if err != nil {
		return false
	}
	info, _ := Column(c)
	return info.Terminal
}
