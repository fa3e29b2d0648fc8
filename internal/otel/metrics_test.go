package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInitMetrics_RecordOrderOp(t *testing.T) {
	ctx := context.Background()
	_, err := InitMeterProvider(ctx, "metrics-test", "")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	RecordOrderOp(ctx, "create", "received")
	RecordOrderOp(ctx, "update", "repairing")
}

func TestAddSSEConnection_RemoveSSEConnection(t *testing.T) {
	AddSSEConnection()
	AddSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection() // should not go negative
	sseConnectionsMu.Lock()
	n := sseConnections
	sseConnectionsMu.Unlock()
	if n != 0 {
		t.Fatalf("sseConnections = %d, want 0", n)
	}
}

func TestRecordStageChange_RecordNotification_RecordFeed(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "record-test", "")
	_ = InitMetrics(ctx)
	RecordStageChange(ctx, "pending", "in_progress", "ok", 40*time.Millisecond)
	RecordStageChange(ctx, "pending", "pending", "noop", 0)
	RecordNotification(ctx, "success")
	RecordFeedEvent(ctx, "insert")
	RecordFeedResubscribe(ctx)
	RecordSSEEvent(ctx)
}

func TestInitMetricsWithColumnCount(t *testing.T) {
	ctx := context.Background()
	p, err := InitMeterProvider(ctx, "columncount-test", "")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	err = InitMetricsWithColumnCount(ctx, func(context.Context) (map[string]int64, error) {
		return map[string]int64{"pending": 2, "in_progress": 1}, nil
	})
	if err != nil {
		t.Fatalf("InitMetricsWithColumnCount: %v", err)
	}
	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "repairboard_orders") {
		t.Fatalf("/metrics missing repairboard_orders gauge:\n%s", rec.Body.String())
	}
}

func TestInitMetricsWithColumnCount_nilFunc(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "columncount-nil-test", "")
	if err := InitMetricsWithColumnCount(ctx, nil); err != nil {
		t.Fatalf("InitMetricsWithColumnCount(nil): %v", err)
	}
}

func TestInitMetricsWithColumnCount_callbackError(t *testing.T) {
	ctx := context.Background()
	p, _ := InitMeterProvider(ctx, "columncount-err-test", "")
	err := InitMetricsWithColumnCount(ctx, func(context.Context) (map[string]int64, error) {
		return nil, errors.New("store closed")
	})
	if err != nil {
		t.Fatalf("InitMetricsWithColumnCount: %v", err)
	}
	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status=%d", rec.Code)
	}
}
