package orderlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardojeem/repairboard/pkg/models"
)

// gatedFetcher blocks call i until release(i) is called.
type gatedFetcher struct {
	mu    sync.Mutex
	gates []chan []models.RepairOrder
}

func (f *gatedFetcher) FetchOrders(ctx context.Context) ([]models.RepairOrder, error) {
	g := make(chan []models.RepairOrder, 1)
	f.mu.Lock()
	f.gates = append(f.gates, g)
	f.mu.Unlock()
	select {
	case orders := <-g:
		return orders, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *gatedFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.gates)
}

func (f *gatedFetcher) release(i int, orders []models.RepairOrder) {
	f.mu.Lock()
	g := f.gates[i]
	f.mu.Unlock()
	g <- orders
}

func orders(ids ...string) []models.RepairOrder {
	out := make([]models.RepairOrder, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.RepairOrder{ID: id, Stage: models.StageReceived})
	}
	return out
}

func waitCalls(t *testing.T, f *gatedFetcher, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.calls() >= n }, 2*time.Second, time.Millisecond)
}

func TestRefresh_coalesces(t *testing.T) {
	f := &gatedFetcher{}
	l := New(f)

	var wg sync.WaitGroup
	results := make([][]models.RepairOrder, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := l.Refresh(context.Background())
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}
	waitCalls(t, f, 1)
	time.Sleep(20 * time.Millisecond)
	f.release(0, orders("K-1", "K-2"))
	wg.Wait()

	assert.Equal(t, 1, f.calls())
	for _, r := range results {
		assert.Len(t, r, 2)
	}
	assert.False(t, l.LastRefreshed().IsZero())
}

func TestReload_latestStartWins(t *testing.T) {
	f := &gatedFetcher{}
	l := New(f)

	first := make(chan error, 1)
	go func() {
		_, err := l.Refresh(context.Background())
		first <- err
	}()
	waitCalls(t, f, 1)

	second := make(chan error, 1)
	go func() {
		_, err := l.Reload(context.Background())
		second <- err
	}()
	waitCalls(t, f, 2)

	f.release(1, orders("new"))
	require.NoError(t, <-second)
	f.release(0, orders("old"))
	require.NoError(t, <-first)

	_, ok := l.Find("new")
	assert.True(t, ok, "later-started fetch must win")
	_, ok = l.Find("old")
	assert.False(t, ok)
}

func TestRefresh_callerCancelDoesNotAbortFetch(t *testing.T) {
	f := &gatedFetcher{}
	l := New(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Refresh(ctx)
		done <- err
	}()
	waitCalls(t, f, 1)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	f.release(0, orders("K-7"))
	require.Eventually(t, func() bool { return !l.LastRefreshed().IsZero() }, 2*time.Second, time.Millisecond)
	o, ok := l.Find("K-7")
	require.True(t, ok)
	assert.Equal(t, models.StageReceived, o.Stage)
}

func TestRefresh_errorKeepsPreviousList(t *testing.T) {
	fail := false
	l := New(FetcherFunc(func(context.Context) ([]models.RepairOrder, error) {
		if fail {
			return nil, errors.New("store unavailable")
		}
		return orders("K-1"), nil
	}))
	_, err := l.Refresh(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = l.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, l.Orders(), 1)
}

func TestOrders_returnsCopy(t *testing.T) {
	l := New(FetcherFunc(func(context.Context) ([]models.RepairOrder, error) { return orders("K-1"), nil }))
	var seen []models.RepairOrder
	l.OnRefresh(func(o []models.RepairOrder) { seen = o })
	_, err := l.Refresh(context.Background())
	require.NoError(t, err)

	got := l.Orders()
	got[0].Stage = models.StageDelivered
	seen[0].Stage = models.StageCancelled
	o, _ := l.Find("K-1")
	assert.Equal(t, models.StageReceived, o.Stage)
}

func TestWithTimeout_boundsFetch(t *testing.T) {
	f := &gatedFetcher{}
	l := New(f, WithTimeout(10*time.Millisecond))
	_, err := l.Refresh(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
