package dragdrop

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardojeem/repairboard/internal/board"
	"github.com/eduardojeem/repairboard/internal/notify"
	"github.com/eduardojeem/repairboard/internal/orderlist"
	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

type call struct {
	ID    string
	Stage models.Stage
}

// fakeStore is the authoritative store: a mutator and a fetcher over the same map.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]models.RepairOrder
	calls   []call
	fail    error
	gate    chan struct{}
	entered chan struct{}
	fetches int

	fetchGate    chan struct{}
	fetchEntered chan struct{}
}

func newFakeStore(orders ...models.RepairOrder) *fakeStore {
	s := &fakeStore{orders: map[string]models.RepairOrder{}, entered: make(chan struct{}, 16), fetchEntered: make(chan struct{}, 16)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) SetOrderStage(ctx context.Context, id string, st models.Stage) error {
	s.mu.Lock()
	s.calls = append(s.calls, call{id, st})
	gate, fail := s.gate, s.fail
	s.mu.Unlock()
	s.entered <- struct{}{}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail != nil {
		return fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	o.Stage = st
	s.orders[id] = o
	return nil
}

func (s *fakeStore) FetchOrders(ctx context.Context) ([]models.RepairOrder, error) {
	s.mu.Lock()
	gate := s.fetchGate
	s.mu.Unlock()
	if gate != nil {
		s.fetchEntered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	out := make([]models.RepairOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) snapshot() ([]call, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...), s.fetches
}

var created = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, orders ...models.RepairOrder) (*fakeStore, *orderlist.List, *notify.Recorder, *Controller) {
	t.Helper()
	if len(orders) == 0 {
		orders = []models.RepairOrder{
			{ID: "K-100", Stage: models.StageReceived, Urgency: 3, CreatedAt: created},
			{ID: "K-101", Stage: models.StageRepairing, Urgency: 2, CreatedAt: created},
		}
	}
	st := newFakeStore(orders...)
	list := orderlist.New(st)
	_, err := list.Refresh(context.Background())
	require.NoError(t, err)
	rec := notify.NewRecorder()
	c := New(st, list, rec)
	t.Cleanup(c.Wait)
	return st, list, rec, c
}

func TestDrop_K100_success(t *testing.T) {
	st, list, rec, c := setup(t)
	_, fetchesBefore := st.snapshot()

	require.NoError(t, c.DragStart("K-100"))
	res, err := c.Drop(context.Background(), models.ColumnInProgress)
	require.NoError(t, err)

	want, _ := stage.ToStage(models.ColumnInProgress)
	calls, fetches := st.snapshot()
	assert.Equal(t, []call{{"K-100", want}}, calls)
	assert.Equal(t, OutcomeMoved, res.Outcome)
	assert.Equal(t, models.ColumnPending, res.From)
	assert.Equal(t, fetchesBefore+1, fetches, "confirm-then-refresh reloads once")

	o, ok := list.Find("K-100")
	require.True(t, ok)
	assert.Equal(t, want, o.Stage)

	notes := rec.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelSuccess, notes[0].Level)
	assert.Contains(t, notes[0].Message, "In Progress")
	assert.Empty(t, c.Dragging())
	assert.False(t, c.IsPending("K-100"))
}

func TestDrop_K100_failureLeavesOrderPending(t *testing.T) {
	st, list, rec, c := setup(t)
	st.fail = errors.New("validation failed")
	_, fetchesBefore := st.snapshot()

	require.NoError(t, c.DragStart("K-100"))
	_, err := c.Drop(context.Background(), models.ColumnInProgress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	calls, fetches := st.snapshot()
	assert.Len(t, calls, 1, "setOrderStage called exactly once")
	assert.Equal(t, fetchesBefore, fetches, "no reload after a failed change")

	b, err := board.Derive(list.Orders(), board.Filters{}, board.Options{Now: created})
	require.NoError(t, err)
	require.Len(t, b.ByColumn[models.ColumnPending], 1)
	assert.Equal(t, "K-100", b.ByColumn[models.ColumnPending][0].ID)
	assert.Equal(t, models.StageReceived, b.ByColumn[models.ColumnPending][0].Stage)

	notes := rec.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.LevelError, notes[0].Level)

	// Retry is allowed after a failure.
	st.mu.Lock()
	st.fail = nil
	st.mu.Unlock()
	_, err = c.Move(context.Background(), "K-100", models.ColumnInProgress)
	require.NoError(t, err)
}

func TestDrop_selfDropIsNoop(t *testing.T) {
	st, _, rec, c := setup(t)
	for id, col := range map[string]models.Column{"K-100": models.ColumnPending, "K-101": models.ColumnInProgress} {
		res, err := c.Move(context.Background(), id, col)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoop, res.Outcome, id)
	}
	calls, _ := st.snapshot()
	assert.Empty(t, calls, "alias stage repairing already lives in in_progress")
	assert.Zero(t, rec.Len())
}

func TestDrop_singleInFlight(t *testing.T) {
	st, _, rec, c := setup(t)
	st.gate = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := c.Move(context.Background(), "K-100", models.ColumnInProgress)
		first <- err
	}()
	<-st.entered
	assert.True(t, c.IsPending("K-100"))
	assert.Equal(t, map[string]models.Column{"K-100": models.ColumnInProgress}, c.Pending())

	_, err := c.Move(context.Background(), "K-100", models.ColumnCompleted)
	assert.ErrorIs(t, err, ErrInFlight)

	close(st.gate)
	require.NoError(t, <-first)

	calls, _ := st.snapshot()
	assert.Len(t, calls, 1, "second drop must not be submitted")
	levels := []notify.Level{}
	for _, n := range rec.Notifications() {
		levels = append(levels, n.Level)
	}
	assert.ElementsMatch(t, []notify.Level{notify.LevelWarning, notify.LevelSuccess}, levels)
}

func TestDrop_pendingUntilReloadLands(t *testing.T) {
	st, list, rec, c := setup(t)
	st.mu.Lock()
	st.fetchGate = make(chan struct{})
	st.mu.Unlock()

	first := make(chan error, 1)
	go func() {
		_, err := c.Move(context.Background(), "K-100", models.ColumnInProgress)
		first <- err
	}()
	<-st.entered
	<-st.fetchEntered

	o, _ := list.Find("K-100")
	assert.Equal(t, models.StageReceived, o.Stage, "list is stale until the reload returns")
	assert.True(t, c.IsPending("K-100"))

	res, err := c.Move(context.Background(), "K-100", models.ColumnPending)
	assert.ErrorIs(t, err, ErrInFlight)
	assert.NotEqual(t, OutcomeNoop, res.Outcome)

	close(st.fetchGate)
	require.NoError(t, <-first)
	assert.False(t, c.IsPending("K-100"))

	o, _ = list.Find("K-100")
	want, _ := stage.ToStage(models.ColumnInProgress)
	assert.Equal(t, want, o.Stage)
	calls, _ := st.snapshot()
	assert.Equal(t, []call{{"K-100", want}}, calls)

	_, err = c.Move(context.Background(), "K-100", models.ColumnPending)
	require.NoError(t, err)
	o, _ = list.Find("K-100")
	assert.Equal(t, models.StageReceived, o.Stage)
	assert.Equal(t, 3, rec.Len(), "success, in-flight warning, success")
}

func TestDrop_callerCancelDoesNotCancelRequest(t *testing.T) {
	st, list, rec, c := setup(t)
	st.gate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Move(ctx, "K-100", models.ColumnWaitingParts)
		done <- err
	}()
	<-st.entered
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, c.IsPending("K-100"))

	close(st.gate)
	c.Wait()
	o, _ := list.Find("K-100")
	assert.Equal(t, models.StageWaitingParts, o.Stage)
	assert.Equal(t, 1, rec.Len())
}

func TestClose_discardsInFlightResult(t *testing.T) {
	st, _, rec, c := setup(t)
	st.gate = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _, _ = c.Move(ctx, "K-100", models.ColumnOnHold) }()
	<-st.entered
	_, fetchesBefore := st.snapshot()

	c.Close()
	close(st.gate)
	c.Wait()

	_, fetches := st.snapshot()
	assert.Equal(t, fetchesBefore, fetches, "no reload after close")
	assert.Zero(t, rec.Len(), "no notification after close")
	assert.ErrorIs(t, c.DragStart("K-101"), ErrClosed)
	_, err := c.Drop(context.Background(), models.ColumnPending)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDrop_errors(t *testing.T) {
	_, _, rec, c := setup(t)

	_, err := c.Drop(context.Background(), models.ColumnPending)
	assert.ErrorIs(t, err, ErrNotDragging)

	_, err = c.Move(context.Background(), "K-100", "archived")
	assert.ErrorIs(t, err, stage.ErrUnknownColumn)
	assert.Empty(t, c.Dragging(), "drop ends the gesture even when it fails")

	_, err = c.Move(context.Background(), "K-404", models.ColumnPending)
	assert.ErrorIs(t, err, ErrUnknownOrder)
	require.Equal(t, 1, rec.Len())
	assert.Equal(t, notify.LevelError, rec.Notifications()[0].Level)

	assert.ErrorIs(t, c.DragStart(""), ErrUnknownOrder)
}

func TestDrop_unknownStageIsMappingError(t *testing.T) {
	_, _, rec, c := setup(t, models.RepairOrder{ID: "K-1", Stage: "lost", CreatedAt: created})
	_, err := c.Move(context.Background(), "K-1", models.ColumnPending)
	assert.ErrorIs(t, err, stage.ErrUnknownStage)
	assert.Zero(t, rec.Len(), "mapping errors are logged, not surfaced")
}

func TestDragEnd_clearsState(t *testing.T) {
	_, _, _, c := setup(t)
	require.NoError(t, c.DragStart("K-100"))
	assert.Equal(t, "K-100", c.Dragging())
	c.DragEnd()
	assert.Empty(t, c.Dragging())
	require.NoError(t, c.DragStart("K-101"))
	c.Cancel()
	assert.Empty(t, c.Dragging())
}
