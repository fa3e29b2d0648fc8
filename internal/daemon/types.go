package daemon

import (
	"log/slog"

	"github.com/eduardojeem/repairboard/internal/config"
)

// StartOptions configures the daemon. Zero fields fall back to Config.
type StartOptions struct {
	Home       string
	Version    string // reported as service.version on /metrics
	Addr       string // HTTP listen address, e.g. 127.0.0.1:8765 (":0" picks a port)
	GRPCAddr   string // gRPC change feed listen address; empty disables it
	Dev        bool
	Seed       bool
	PprofAddr  string
	EnableOtel bool // enable OpenTelemetry metrics (Prometheus exporter + HTTP/SSE/stage instrumentation)
	// Watch reloads priority and board settings when config.yaml changes.
	Watch  bool
	Config config.Config
	Logger *slog.Logger
	// Ready, when set, receives the bound HTTP and gRPC addresses once both listeners are up.
	Ready func(httpAddr, grpcAddr string)
}

// StatusInfo describes a running server as recorded in home/run.
type StatusInfo struct {
	Running  bool
	PID      int
	Addr     string
	GRPCAddr string // empty when the gRPC feed is disabled
}
