package store

import (
	"context"
	"errors"

	"github.com/eduardojeem/repairboard/pkg/models"
)

var (
	// ErrNotFound is returned when an order id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid wraps validation failures on order input.
	ErrInvalid = errors.New("invalid order")
	// ErrExists is returned when creating an order whose id is taken.
	ErrExists = errors.New("order already exists")
)

// ListOptions filter ListOrders. Zero values mean all stages and DefaultOrderListLimit.
type ListOptions struct {
	Stage models.Stage
	Limit int
}

// StageChange is the result of SetOrderStage.
type StageChange struct {
	Previous models.RepairOrder
	Order    models.RepairOrder
	// Changed is false when the order was already in the requested stage; nothing was written.
	Changed bool
}

// Store is the persistence interface for repair orders and board preferences.
// Implementations: the SQLite store in this package and *postgres.Store (PostgreSQL).
type Store interface {
	// Orders
	ListOrders(ctx context.Context, opts ListOptions) ([]models.RepairOrder, error)
	FetchOrders(ctx context.Context) ([]models.RepairOrder, error)
	GetOrder(ctx context.Context, id string) (models.RepairOrder, error)
	CreateOrder(ctx context.Context, in models.NewOrder) (models.RepairOrder, error)
	UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (prev, updated models.RepairOrder, err error)
	SetOrderStage(ctx context.Context, id string, stage models.Stage) (StageChange, error)
	DeleteOrder(ctx context.Context, id string) (models.RepairOrder, error)
	CountByStage(ctx context.Context) (map[models.Stage]int64, error)

	// Preferences
	LoadPreference(ctx context.Context, key string) (string, bool, error)
	SavePreference(ctx context.Context, key, value string) error

	// Lifecycle
	SeedDemo(ctx context.Context) error
	Close() error
}

// OpenOptions configures how to open the store (driver and location).
type OpenOptions struct {
	Driver string // "sqlite" (default) or "postgres"
	Home   string // for sqlite: the database is home/data/repairboard.db
	DSN    string // for postgres: connection string; or env DATABASE_URL
	// DefaultTechnicalComplexity is reported for orders stored without a complexity.
	// Zero uses models.DefaultTechComplexity.
	DefaultTechnicalComplexity int
}
