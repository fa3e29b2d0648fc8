package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eduardojeem/repairboard/pkg/client"
	"github.com/eduardojeem/repairboard/pkg/models"
)

func newTestApp(t *testing.T, opts ServerOptions) (*App, *httptest.Server) {
	t.Helper()
	opts.Home = t.TempDir()
	app, err := NewApp(opts)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	ts := httptest.NewServer(app.Server.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = app.Store.Close()
	})
	return app, ts
}

func TestServerSmoke(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, ServerOptions{Seed: true})

	r1, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if r1.StatusCode != 200 {
		t.Fatalf("/health status=%d", r1.StatusCode)
	}

	resp, err := http.Post(ts.URL+"/orders", "application/json", strings.NewReader(`{"id":"K-900","customer_name":"Nia","urgency":4}`))
	if err != nil {
		t.Fatalf("POST /orders: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /orders status=%d", resp.StatusCode)
	}

	r2, err := http.Get(ts.URL + "/orders")
	if err != nil {
		t.Fatalf("GET /orders: %v", err)
	}
	var orders []models.RepairOrder
	if err := json.NewDecoder(r2.Body).Decode(&orders); err != nil {
		t.Fatalf("decode /orders: %v", err)
	}
	if len(orders) != 6 {
		t.Fatalf("expected 5 demo orders plus one, got %d", len(orders))
	}

	r3, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer func() { _ = r3.Body.Close() }()
	var buf strings.Builder
	_, _ = io.Copy(&buf, r3.Body)
	if !strings.Contains(buf.String(), `repairboard_orders{column="pending"} 2`) {
		t.Fatalf("/metrics missing pending gauge:\n%s", buf.String())
	}
}

func TestOrderErrors(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, ServerOptions{})
	c := client.New(ts.URL, "")
	ctx := context.Background()

	if _, err := c.GetOrder(ctx, "missing"); !client.IsNotFound(err) {
		t.Fatalf("GetOrder missing: want 404, got %v", err)
	}
	_, err := c.CreateOrder(ctx, models.NewOrder{CustomerName: ""})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("CreateOrder invalid: want 400, got %v", err)
	}
	if _, err := c.CreateOrder(ctx, models.NewOrder{ID: "K-1", CustomerName: "a"}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := c.CreateOrder(ctx, models.NewOrder{ID: "K-1", CustomerName: "b"}); !client.IsConflict(err) {
		t.Fatalf("CreateOrder duplicate: want 409, got %v", err)
	}
	if _, err := c.MoveOrder(ctx, "K-1", "shipped"); err == nil {
		t.Fatal("MoveOrder to unknown stage should fail")
	}
	if _, err := c.Board(ctx, client.BoardQuery{MinUrgency: 5, MaxUrgency: 1}); err == nil {
		t.Fatal("Board with inverted urgency bounds should fail")
	}
}

func TestBoardEndpoint(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, ServerOptions{Seed: true})
	c := client.New(ts.URL, "")
	ctx := context.Background()

	b, err := c.Board(ctx, client.BoardQuery{Ranked: true})
	if err != nil {
		t.Fatalf("Board: %v", err)
	}
	if len(b.Columns) != 6 {
		t.Fatalf("Board columns: got %d", len(b.Columns))
	}
	if b.Columns[0].Key != models.ColumnPending || b.Columns[0].Title != "Pending" {
		t.Fatalf("first column: %+v", b.Columns[0])
	}
	if b.Totals.Count != 5 || len(b.Scores) != 5 || len(b.Levels) != 5 {
		t.Fatalf("totals=%d scores=%d levels=%d", b.Totals.Count, len(b.Scores), len(b.Levels))
	}

	phones, err := c.Board(ctx, client.BoardQuery{DeviceType: "phone", MinUrgency: 5})
	if err != nil {
		t.Fatalf("Board filtered: %v", err)
	}
	if phones.Totals.Count != 1 || phones.Columns[0].Orders[0].ID != "K-100" {
		t.Fatalf("filtered board: %+v", phones.Totals)
	}
}

func TestStageChangePublishesEvent(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, ServerOptions{Seed: true})
	c := client.New(ts.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan models.OrderEvent, 4)
	sub, err := c.SubscribeToChanges(ctx, func(ev models.OrderEvent) { events <- ev })
	if err != nil {
		t.Fatalf("SubscribeToChanges: %v", err)
	}
	defer sub.Unsubscribe()

	// Same stage: nothing is published.
	if err := c.SetOrderStage(ctx, "K-100", models.StageReceived); err != nil {
		t.Fatalf("SetOrderStage same: %v", err)
	}
	o, err := c.MoveOrder(ctx, "K-100", models.StageDiagnosing)
	if err != nil {
		t.Fatalf("MoveOrder: %v", err)
	}
	if o.Stage != models.StageDiagnosing {
		t.Fatalf("MoveOrder stage=%s", o.Stage)
	}

	select {
	case ev := <-events:
		if ev.Type != models.EventUpdate || ev.Order.ID != "K-100" || ev.Previous == nil || ev.Previous.Stage != models.StageReceived {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no order_change event")
	}
}

func TestAPIKeyRequired(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, ServerOptions{APIKey: "secret"})
	ctx := context.Background()

	if _, err := client.New(ts.URL, "").FetchOrders(ctx); err == nil {
		t.Fatal("expected 401 without key")
	}
	if _, err := client.New(ts.URL, "secret").FetchOrders(ctx); err != nil {
		t.Fatalf("FetchOrders with key: %v", err)
	}
	if ok, err := client.New(ts.URL, "").Health(ctx); err != nil || !ok {
		t.Fatalf("health must not need a key: ok=%v err=%v", ok, err)
	}
}

func TestPreferencesEndpoint(t *testing.T) {
	t.Parallel()
	_, ts := newTestApp(t, ServerOptions{})
	c := client.New(ts.URL, "")
	ctx := context.Background()

	if _, ok, err := c.LoadPreference(ctx, "collapsed_columns"); err != nil || ok {
		t.Fatalf("LoadPreference unset: ok=%v err=%v", ok, err)
	}
	if err := c.SavePreference(ctx, "collapsed_columns", `["completed"]`); err != nil {
		t.Fatalf("SavePreference: %v", err)
	}
	v, ok, err := c.LoadPreference(ctx, "collapsed_columns")
	if err != nil || !ok || v != `["completed"]` {
		t.Fatalf("LoadPreference: v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestParseFilters(t *testing.T) {
	t.Parallel()
	q := client.BoardQuery{
		Search:       " screen ",
		MinUrgency:   2,
		UrgentOnly:   true,
		From:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		TechnicianID: "tech-1",
	}.Values()
	f, err := ParseFilters(q)
	if err != nil {
		t.Fatalf("ParseFilters: %v", err)
	}
	if f.SearchTerm != "screen" || f.MinUrgency != 2 || !f.ShowUrgentOnly || f.TechnicianID != "tech-1" {
		t.Fatalf("ParseFilters: %+v", f)
	}
	if f.DateRange == nil || !f.DateRange.To.IsZero() || f.DateRange.From.Day() != 1 {
		t.Fatalf("DateRange: %+v", f.DateRange)
	}
	q.Set("overdue", "maybe")
	if _, err := ParseFilters(q); err == nil {
		t.Fatal("expected error for bad boolean")
	}
}
