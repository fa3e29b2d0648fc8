package models

// Stage is the persisted lifecycle status of a repair order.
type Stage string

// Repair order stages, in lifecycle order.
const (
	StageReceived     Stage = "received"
	StageDiagnosing   Stage = "diagnosing"
	StageRepairing    Stage = "repairing"
	StageWaitingParts Stage = "waiting_parts"
	StagePaused       Stage = "paused"
	StageReady        Stage = "ready"
	StageDelivered    Stage = "delivered"
	StageCancelled    Stage = "cancelled"
)

// Column is a board column key. Columns are computed from stages and never stored.
type Column string

// Board columns, in display order.
const (
	ColumnPending      Column = "pending"
	ColumnInProgress   Column = "in_progress"
	ColumnWaitingParts Column = "waiting_parts"
	ColumnOnHold       Column = "on_hold"
	ColumnCompleted    Column = "completed"
	ColumnCancelled    Column = "cancelled"
)

// EventType is the kind of change delivered by the order change feed.
type EventType string

// Change feed event kinds.
const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Default limits and values.
const (
	DefaultMaxRequestBodyBytes = 1 << 20 // 1 MiB
	DefaultOrderListLimit      = 1000
	DefaultSSEChannelBuffer    = 256
	DefaultTechComplexity      = 3
	MinUrgency                 = 1
	MaxUrgency                 = 5
)
