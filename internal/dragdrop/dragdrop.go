// Package dragdrop turns a drag-and-drop gesture on the board into a stage change.
//
// The gesture runs idle -> dragging(id) -> dropped(column) | cancelled -> idle.
// A drop is confirmed then refreshed: the order list is never edited locally,
// the controller waits for the store to accept the new stage and then reloads
// the whole list. Realtime events for the same order may arrive before or after
// that reload; whichever reload finishes last is what the board shows.
//
// At most one stage change per order is in flight, counting the reload that confirms it. A request that is in flight
// when the caller gives up, or when the controller is closed, still runs to
// completion; after Close its result is dropped without notifying or reloading.
package dragdrop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eduardojeem/repairboard/internal/notify"
	"github.com/eduardojeem/repairboard/internal/otel"
	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

var (
	// ErrNotDragging is returned by Drop when no DragStart preceded it.
	ErrNotDragging = errors.New("no drag in progress")
	// ErrInFlight is returned when the order already has a stage change or its reload running.
	ErrInFlight = errors.New("stage change already in flight for this order")
	// ErrUnknownOrder is returned when the dragged id is not in the loaded list.
	ErrUnknownOrder = errors.New("unknown order")
	// ErrClosed is returned by every gesture after Close.
	ErrClosed = errors.New("controller closed")
)

// DefaultTimeout bounds one stage change round trip.
const DefaultTimeout = 30 * time.Second

// Mutator is the single write path for stage changes. Setting the current stage again must be harmless.
type Mutator interface {
	SetOrderStage(ctx context.Context, id string, stage models.Stage) error
}

// OrderList is the read side: lookups come from the last fetched list, Reload fetches a new one.
type OrderList interface {
	Find(id string) (models.RepairOrder, bool)
	Reload(ctx context.Context) ([]models.RepairOrder, error)
}

// Outcome of a drop.
type Outcome string

const (
	OutcomeMoved Outcome = "moved"
	OutcomeNoop  Outcome = "noop"
)

// Result describes a completed drop.
type Result struct {
	OrderID string
	From    models.Column
	To      models.Column
	Stage   models.Stage
	Outcome Outcome
}

// Controller is safe for concurrent use.
type Controller struct {
	mutator Mutator
	list    OrderList
	sink    notify.Sink
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	dragging string
	pending  map[string]models.Column
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger replaces slog.Default for controller diagnostics.
func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithTimeout bounds each stage change; zero keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New returns an idle controller. sink may be nil.
func New(m Mutator, list OrderList, sink notify.Sink, opts ...Option) *Controller {
	if sink == nil {
		sink = notify.Discard
	}
	c := &Controller{
		mutator: m,
		list:    list,
		sink:    sink,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
		pending: make(map[string]models.Column),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DragStart records id as the dragged order.
func (c *Controller) DragStart(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrUnknownOrder)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.dragging = id
	return nil
}

// DragEnd clears the drag state whether or not a drop happened.
func (c *Controller) DragEnd() {
	c.mu.Lock()
	c.dragging = ""
	c.mu.Unlock()
}

// Cancel is DragEnd for an aborted gesture.
func (c *Controller) Cancel() { c.DragEnd() }

// Dragging returns the dragged order id, "" when idle.
func (c *Controller) Dragging() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dragging
}

// IsPending reports whether a stage change for id is in flight.
func (c *Controller) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Pending returns the in-flight stage changes as order id -> destination column.
func (c *Controller) Pending() map[string]models.Column {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.Column, len(c.pending))
	for id, col := range c.pending {
		out[id] = col
	}
	return out
}

// Move is DragStart(id) followed by Drop(ctx, column).
func (c *Controller) Move(ctx context.Context, id string, column models.Column) (Result, error) {
	if err := c.DragStart(id); err != nil {
		return Result{}, err
	}
	return c.Drop(ctx, column)
}

// Drop ends the gesture on column. It returns when the stage change and the reload finished,
// or when ctx is done; in the latter case the request keeps running and its outcome is
// still notified.
func (c *Controller) Drop(ctx context.Context, column models.Column) (Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrClosed
	}
	id := c.dragging
	c.dragging = ""
	c.mu.Unlock()
	if id == "" {
		return Result{}, ErrNotDragging
	}

	target, err := stage.ToStage(column)
	if err != nil {
		c.logger.Error("drop on unknown column", "order", id, "column", column, "err", err)
		return Result{}, err
	}
	order, ok := c.list.Find(id)
	if !ok {
		c.sink.Notify(ctx, notify.New(notify.LevelError, notify.KindStageFailed, id, "Order not found", "order "+id+" is not on the board"))
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	from, err := stage.ToColumn(order.Stage)
	if err != nil {
		c.logger.Error("order has unknown stage", "order", id, "stage", order.Stage, "err", err)
		return Result{}, fmt.Errorf("order %s: %w", id, err)
	}
	res := Result{OrderID: id, From: from, To: column, Stage: order.Stage}

	if from == column {
		res.Outcome = OutcomeNoop
		otel.RecordStageChange(ctx, string(from), string(column), "noop", 0)
		return res, nil
	}

	c.mu.Lock()
	if _, busy := c.pending[id]; busy {
		c.mu.Unlock()
		otel.RecordStageChange(ctx, string(from), string(column), "rejected", 0)
		c.sink.Notify(ctx, notify.New(notify.LevelWarning, notify.KindStageFailed, id, "Move already in progress", "wait for the previous move of "+id+" to finish"))
		return res, fmt.Errorf("%w: %s", ErrInFlight, id)
	}
	c.pending[id] = column
	c.wg.Add(1)
	c.mu.Unlock()

	res.Stage = target
	done := make(chan error, 1)
	go func() {
		defer c.wg.Done()
		done <- c.apply(context.WithoutCancel(ctx), res)
	}()
	select {
	case err := <-done:
		if err != nil {
			return res, err
		}
		res.Outcome = OutcomeMoved
		return res, nil
	case <-ctx.Done():
		return res, ctx.Err()
	}
}

func (c *Controller) apply(ctx context.Context, res Result) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.mutator.SetOrderStage(ctx, res.OrderID, res.Stage)
	elapsed := time.Since(start)

	c.mu.Lock()
	closed := c.closed
	if err != nil || closed {
		delete(c.pending, res.OrderID)
	}
	c.mu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
	}
	otel.RecordStageChange(ctx, string(res.From), string(res.To), result, elapsed)

	if closed {
		c.logger.Debug("discarding stage change result after close", "order", res.OrderID, "err", err)
		return err
	}
	if err != nil {
		c.logger.Warn("stage change failed", "order", res.OrderID, "stage", res.Stage, "err", err)
		c.sink.Notify(ctx, notify.New(notify.LevelError, notify.KindStageFailed, res.OrderID,
			"Could not move order", fmt.Sprintf("%s stays in %s: %v", res.OrderID, stage.Title(res.From), err)))
		return fmt.Errorf("set stage of %s: %w", res.OrderID, err)
	}

	// Pending until the reload lands: Find reports the old stage until then.
	defer func() {
		c.mu.Lock()
		delete(c.pending, res.OrderID)
		c.mu.Unlock()
	}()
	c.sink.Notify(ctx, notify.New(notify.LevelSuccess, notify.KindStageChanged, res.OrderID,
		"Order moved", fmt.Sprintf("%s moved to %s", res.OrderID, stage.Title(res.To))))
	if _, err := c.list.Reload(ctx); err != nil {
		c.logger.Warn("reload after stage change failed", "order", res.OrderID, "err", err)
		c.sink.Notify(ctx, notify.New(notify.LevelWarning, notify.KindStageChanged, res.OrderID,
			"Board may be out of date", "reload failed: "+err.Error()))
	}
	return nil
}

// Close stops accepting gestures. In-flight requests finish in the background and their
// results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.dragging = ""
	c.mu.Unlock()
}

// Wait blocks until every in-flight request has returned.
func (c *Controller) Wait() {
	c.wg.Wait()
}
