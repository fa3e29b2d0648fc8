package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status=%d", rec.Code)
	}
	return rec.Body.String()
}

func TestInitMeterProvider_servesRuntimeAndTargetInfo(t *testing.T) {
	ctx := context.Background()
	p, err := InitMeterProvider(ctx, "repairboard-test", "1.2.3")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(ctx) })

	body := scrape(t, p.Handler)
	if !strings.Contains(body, "go_goroutines") {
		t.Errorf("missing Go collector output:\n%s", body)
	}
	if !strings.Contains(body, `service_name="repairboard-test"`) || !strings.Contains(body, `service_version="1.2.3"`) {
		t.Errorf("target_info should carry the service attributes:\n%s", body)
	}
}

func TestInitMeterProvider_defaultServiceName(t *testing.T) {
	ctx := context.Background()
	p, err := InitMeterProvider(ctx, "", "")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(ctx) })
	if body := scrape(t, p.Handler); !strings.Contains(body, `service_name="repairboard"`) {
		t.Errorf("default service name missing:\n%s", body)
	}
}

func TestProvider_nilShutdown(t *testing.T) {
	var p *Provider
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil Shutdown: %v", err)
	}
}

func TestAttributeKeys(t *testing.T) {
	if kv := AttrColumn.String("pending"); kv.Value.AsString() != "pending" {
		t.Fatalf("AttrColumn value = %q", kv.Value.AsString())
	}
	if kv := AttrFromColumn.String("on_hold"); string(kv.Key) != "from_column" {
		t.Fatalf("AttrFromColumn key = %q", kv.Key)
	}
}
