package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eduardojeem/repairboard/internal/config"
	"github.com/eduardojeem/repairboard/internal/daemon"
)

func newServeCmd() *cobra.Command {
	var (
		addr       string
		grpcAddr   string
		background bool
		dev        bool
		seed       bool
		watch      bool
		pprofAddr  string
		envFile    string
		dbDriver   string
		dbURL      string
		enableOtel bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the repairboard API (HTTP + optional gRPC change feed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := loadEnvFile(envFile); err != nil {
					return err
				}
			}
			rt := sessionFrom(cmd)
			cfg := rt.cfg
			// Env files may carry REPAIRBOARD_API_KEY or DATABASE_URL.
			cfg.ApplyEnv()
			if dbDriver != "" {
				cfg.Database.Driver = dbDriver
			}
			if dbURL != "" {
				cfg.Database.DSN = dbURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts := daemon.StartOptions{
				Home:       sessionFrom(cmd).home,
				Addr:       addr,
				GRPCAddr:   grpcAddr,
				Dev:        dev,
				Seed:       seed,
				Watch:      watch,
				PprofAddr:  pprofAddr,
				EnableOtel: enableOtel,
				Version:    cmd.Root().Version,
				Config:     cfg,
				Logger:     rt.log,
			}
			if background {
				pid, err := daemon.StartBackground(cmd.Context(), opts)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "repairboard started (pid %d)\n", pid)
				return nil
			}
			opts.Ready = func(httpAddr, grpcAddr string) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", httpAddr)
				if grpcAddr != "" {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Change feed on grpc://%s\n", grpcAddr)
				}
			}
			return daemon.StartForeground(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default: server.addr in config.yaml, "+config.DefaultAddr+")")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC change feed listen address (default: server.grpc_addr; empty disables)")
	cmd.Flags().BoolVar(&background, "background", false, "Detach and run in the background")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable dev mode (CORS for a separately served board UI)")
	cmd.Flags().BoolVar(&seed, "seed", false, "Insert demo orders when the store is empty")
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload priority and board settings when config.yaml changes")
	cmd.Flags().StringVar(&pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load env vars from file (KEY=VALUE per line) before starting")
	cmd.Flags().StringVar(&dbDriver, "db-driver", "", "Store driver: sqlite or postgres (default: database.driver)")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics (Prometheus exporter, HTTP/SSE/stage instrumentation)")

	return cmd
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		_ = os.Setenv(key, strings.TrimSpace(value))
	}
	return sc.Err()
}
