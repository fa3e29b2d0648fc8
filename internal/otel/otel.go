// Package otel wires OpenTelemetry metrics to a Prometheus registry served at /metrics.
package otel

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const meterName = "github.com/eduardojeem/repairboard"

// Provider is the installed metrics pipeline.
type Provider struct {
	// Handler serves the registry in the Prometheus text and OpenMetrics formats.
	Handler http.Handler
	sdk     *sdkmetric.MeterProvider
}

// Shutdown flushes and stops the meter provider. Instruments become no-ops afterwards.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// InitMeterProvider installs a global MeterProvider exporting to a fresh Prometheus registry
// that also carries the Go runtime and process collectors. Call once at server startup;
// on error the caller can fall back to the plain text /metrics.
func InitMeterProvider(ctx context.Context, serviceName, version string) (*Provider, error) {
	if serviceName == "" {
		serviceName = "repairboard"
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, err
	}
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if version != "" {
		attrs = append(attrs, semconv.ServiceVersion(version))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, err
	}
	sdk := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter), sdkmetric.WithResource(res))
	otelglobal.SetMeterProvider(sdk)
	return &Provider{
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true, ErrorHandling: promhttp.ContinueOnError}),
		sdk:     sdk,
	}, nil
}

// Meter returns repairboard's meter from the global provider.
func Meter() metric.Meter {
	return otelglobal.Meter(meterName)
}

// Attribute keys shared by the instruments in metrics.go.
var (
	AttrOperation  = attribute.Key("operation")
	AttrStage      = attribute.Key("stage")
	AttrColumn     = attribute.Key("column")
	AttrFromColumn = attribute.Key("from_column")
	AttrResult     = attribute.Key("result")
	AttrLevel      = attribute.Key("level")
	AttrEvent      = attribute.Key("event")
)
