// Package orderlist holds the latest copy of the authoritative order list.
//
// The list is refreshed from a Fetcher on demand; it is never edited locally.
// Concurrent refreshes coalesce into one fetch. When two fetches overlap, the
// one that started last wins regardless of finish order.
package orderlist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/eduardojeem/repairboard/pkg/models"
)

// DefaultFetchTimeout bounds one fetch.
const DefaultFetchTimeout = 30 * time.Second

const flightKey = "orders"

// Fetcher returns the current authoritative list.
type Fetcher interface {
	FetchOrders(ctx context.Context) ([]models.RepairOrder, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]models.RepairOrder, error)

func (f FetcherFunc) FetchOrders(ctx context.Context) ([]models.RepairOrder, error) { return f(ctx) }

// List is safe for concurrent use.
type List struct {
	fetcher Fetcher
	timeout time.Duration
	logger  *slog.Logger
	group   singleflight.Group

	mu        sync.RWMutex
	orders    []models.RepairOrder
	byID      map[string]int
	refreshed time.Time
	started   uint64
	applied   uint64
	listeners []func([]models.RepairOrder)
}

// Option configures a List.
type Option func(*List)

// WithTimeout bounds each fetch. Zero keeps DefaultFetchTimeout.
func WithTimeout(d time.Duration) Option {
	return func(l *List) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger for refresh failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *List) { l.logger = logger }
}

// New returns an empty list backed by f.
func New(f Fetcher, opts ...Option) *List {
	l := &List{fetcher: f, timeout: DefaultFetchTimeout, logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// OnRefresh registers fn to run after every successful refresh with a copy of the new list.
func (l *List) OnRefresh(fn func([]models.RepairOrder)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Refresh fetches the list, joining a fetch already in flight.
func (l *List) Refresh(ctx context.Context) ([]models.RepairOrder, error) {
	return l.do(ctx, false)
}

// Reload always starts a new fetch, so the result reflects every write that completed before the call.
func (l *List) Reload(ctx context.Context) ([]models.RepairOrder, error) {
	return l.do(ctx, true)
}

func (l *List) do(ctx context.Context, fresh bool) ([]models.RepairOrder, error) {
	if fresh {
		l.group.Forget(flightKey)
	}
	ch := l.group.DoChan(flightKey, func() (any, error) {
		l.mu.Lock()
		l.started++
		seq := l.started
		l.mu.Unlock()

		// The fetch outlives a cancelled caller so joined callers still get a result.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		orders, err := l.fetcher.FetchOrders(fctx)
		if err != nil {
			l.logger.Warn("refresh order list failed", "err", err)
			return nil, err
		}
		l.store(seq, orders)
		return nil, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return l.Orders(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *List) store(seq uint64, orders []models.RepairOrder) {
	l.mu.Lock()
	if seq < l.applied {
		l.mu.Unlock()
		return
	}
	l.applied = seq
	l.orders = append([]models.RepairOrder(nil), orders...)
	l.byID = make(map[string]int, len(orders))
	for i, o := range l.orders {
		l.byID[o.ID] = i
	}
	l.refreshed = time.Now()
	listeners := append([]func([]models.RepairOrder){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(append([]models.RepairOrder(nil), orders...))
	}
}

// Orders returns a copy of the last fetched list.
func (l *List) Orders() []models.RepairOrder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]models.RepairOrder(nil), l.orders...)
}

// Find returns the order with id from the last fetched list.
func (l *List) Find(id string) (models.RepairOrder, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byID[id]
	if !ok {
		return models.RepairOrder{}, false
	}
	return l.orders[i], true
}

// LastRefreshed is the time of the last applied refresh, zero before the first.
func (l *List) LastRefreshed() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.refreshed
}
