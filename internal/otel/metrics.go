package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce      sync.Once
	orderOpsCounter      metric.Int64Counter
	stageChangesCounter  metric.Int64Counter
	stageChangeDuration  metric.Float64Histogram
	notificationsCounter metric.Int64Counter
	feedEventsCounter    metric.Int64Counter
	feedResubscribes     metric.Int64Counter
	sseConnectionsGauge  metric.Int64ObservableGauge
	sseEventsCounter     metric.Int64Counter
	sseConnections       int64
	sseConnectionsMu     sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		orderOpsCounter, err = m.Int64Counter("repairboard_order_operations_total", metric.WithDescription("Total order store operations (create, update, delete)"))
		if err != nil {
			return
		}
		stageChangesCounter, err = m.Int64Counter("repairboard_stage_changes_total", metric.WithDescription("Stage change requests by destination column and result"))
		if err != nil {
			return
		}
		stageChangeDuration, err = m.Float64Histogram("repairboard_stage_change_duration_seconds", metric.WithDescription("Stage change round trip in seconds"))
		if err != nil {
			return
		}
		notificationsCounter, err = m.Int64Counter("repairboard_notifications_total", metric.WithDescription("User-facing notifications raised"))
		if err != nil {
			return
		}
		feedEventsCounter, err = m.Int64Counter("repairboard_feed_events_total", metric.WithDescription("Order change events received from the feed"))
		if err != nil {
			return
		}
		feedResubscribes, err = m.Int64Counter("repairboard_feed_resubscribes_total", metric.WithDescription("Change feed resubscribe attempts"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("repairboard_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("repairboard_sse_connections", metric.WithDescription("Current SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
	})
	return err
}

// RecordOrderOp records a store operation on an order.
func RecordOrderOp(ctx context.Context, op string, stage string) {
	if orderOpsCounter == nil {
		return
	}
	orderOpsCounter.Add(ctx, 1, metric.WithAttributes(AttrOperation.String(op), AttrStage.String(stage)))
}

// RecordStageChange records one stage change attempt. result is "ok", "error", "noop" or "rejected".
func RecordStageChange(ctx context.Context, from, to, result string, duration time.Duration) {
	attrs := metric.WithAttributes(AttrFromColumn.String(from), AttrColumn.String(to), AttrResult.String(result))
	if stageChangesCounter != nil {
		stageChangesCounter.Add(ctx, 1, attrs)
	}
	if stageChangeDuration != nil && duration > 0 {
		stageChangeDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordNotification records a notification by level.
func RecordNotification(ctx context.Context, level string) {
	if notificationsCounter != nil {
		notificationsCounter.Add(ctx, 1, metric.WithAttributes(AttrLevel.String(level)))
	}
}

// RecordFeedEvent records one event received from the change feed.
func RecordFeedEvent(ctx context.Context, event string) {
	if feedEventsCounter != nil {
		feedEventsCounter.Add(ctx, 1, metric.WithAttributes(AttrEvent.String(event)))
	}
}

// RecordFeedResubscribe records a resubscribe attempt after the feed dropped.
func RecordFeedResubscribe(ctx context.Context) {
	if feedResubscribes != nil {
		feedResubscribes.Add(ctx, 1)
	}
}

// RecordSSEEvent records one SSE event published.
func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}

// ColumnCountFunc returns the number of orders per column key. Used for the repairboard_orders gauge.
type ColumnCountFunc func(ctx context.Context) (map[string]int64, error)

// InitMetricsWithColumnCount creates instruments and optionally registers a callback for the per-column gauge.
// Call after InitMeterProvider. If count is nil, the gauge is not reported.
func InitMetricsWithColumnCount(ctx context.Context, count ColumnCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if count == nil {
		return nil
	}
	m := Meter()
	ordersGauge, err := m.Int64ObservableGauge("repairboard_orders", metric.WithDescription("Number of orders by board column"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		counts, err := count(ctx)
		if err != nil {
			return err
		}
		for col, n := range counts {
			o.ObserveInt64(ordersGauge, n, metric.WithAttributes(AttrColumn.String(col)))
		}
		return nil
	}, ordersGauge)
	return err
}
