package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/eduardojeem/repairboard/internal/config"
	"github.com/eduardojeem/repairboard/internal/feed/grpcfeed"
	"github.com/eduardojeem/repairboard/internal/httpapi"
	"github.com/eduardojeem/repairboard/internal/otel"
	"github.com/eduardojeem/repairboard/internal/store"
)

var errNotRunning = errors.New("repairboard is not running")

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 15 * time.Second

func boardSettings(cfg config.Config) (httpapi.BoardSettings, error) {
	scorer, err := cfg.Scorer()
	if err != nil {
		return httpapi.BoardSettings{}, err
	}
	return httpapi.BoardSettings{Scorer: scorer, Definitions: cfg.Definitions()}, nil
}

// StartForeground serves the API (and the gRPC feed when configured) until ctx is done.
func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg := opts.Config
	if opts.Addr == "" {
		opts.Addr = cfg.Server.Addr
	}
	if opts.Addr == "" {
		opts.Addr = config.DefaultAddr
	}
	if opts.GRPCAddr == "" {
		opts.GRPCAddr = cfg.Server.GRPCAddr
	}

	run := runDirOf(opts.Home)
	if err := run.ensure(); err != nil {
		return err
	}
	lock, err := acquireLock(run.lockFile())
	if err != nil {
		return err
	}
	defer lock.release()

	// SQLite only; Postgres migrates on connect.
	if cfg.Database.Driver != "postgres" {
		if err := store.EnsureSchema(opts.Home); err != nil {
			return err
		}
	}

	settings, err := boardSettings(cfg)
	if err != nil {
		return err
	}
	srvOpts := httpapi.ServerOptions{
		Home:                       opts.Home,
		Addr:                       opts.Addr,
		Dev:                        opts.Dev || cfg.Server.Dev,
		APIKey:                     cfg.Server.APIKey,
		DBDriver:                   cfg.Database.Driver,
		DBURL:                      cfg.Database.DSN,
		Seed:                       opts.Seed || cfg.Server.Seed,
		Board:                      settings,
		DefaultTechnicalComplexity: cfg.Board.DefaultTechnicalComplexity,
		Logger:                     log,
	}
	var metrics *otel.Provider
	if opts.EnableOtel {
		metrics, err = otel.InitMeterProvider(ctx, "repairboard", opts.Version)
		if err != nil {
			log.Warn("otel init failed, using text metrics", "err", err)
		} else {
			srvOpts.MetricsHandler = metrics.Handler
			srvOpts.UseOtelHTTP = true
		}
	}
	app, err := httpapi.NewApp(srvOpts)
	if err != nil {
		return err
	}
	if srvOpts.MetricsHandler != nil {
		if err := otel.InitMetricsWithColumnCount(ctx, app.ColumnCounts); err != nil {
			log.Warn("otel instruments failed", "err", err)
		}
	}

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		_ = app.Store.Close()
		return fmt.Errorf("listen %s: %w", opts.Addr, err)
	}
	var (
		gs     *grpc.Server
		grpcLn net.Listener
	)
	if opts.GRPCAddr != "" {
		grpcLn, err = net.Listen("tcp", opts.GRPCAddr)
		if err != nil {
			_ = ln.Close()
			_ = app.Store.Close()
			return fmt.Errorf("listen grpc %s: %w", opts.GRPCAddr, err)
		}
		gs = grpc.NewServer()
		grpcfeed.Register(gs, &grpcfeed.Server{Broker: app.Hub.Broker(), Logger: log})
	}

	httpAddr, grpcAddr := ln.Addr().String(), ""
	if grpcLn != nil {
		grpcAddr = grpcLn.Addr().String()
	}
	if err := run.writeState(os.Getpid(), httpAddr, grpcAddr); err != nil {
		_ = ln.Close()
		if grpcLn != nil {
			_ = grpcLn.Close()
		}
		_ = app.Store.Close()
		return err
	}
	defer run.clearState()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := app.Server.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, io.EOF) {
			return nil
		}
		return err
	})
	if gs != nil {
		g.Go(func() error { return gs.Serve(grpcLn) })
	}
	if opts.PprofAddr != "" {
		g.Go(func() error {
			servePprof(gctx, opts.PprofAddr, log)
			return nil
		})
	}
	if opts.Watch {
		g.Go(func() error {
			return config.Watch(gctx, opts.Home, log, func(c config.Config) {
				s, err := boardSettings(c)
				if err != nil {
					log.Error("config reload rejected", "err", err)
					return
				}
				app.SetBoardSettings(s)
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if gs != nil {
			gs.Stop()
		}
		err := app.Server.Shutdown(shutdownCtx)
		_ = app.Store.Close()
		_ = metrics.Shutdown(shutdownCtx)
		return err
	})

	log.Info("daemon starting", "addr", httpAddr, "grpc_addr", grpcAddr, "home", opts.Home, "driver", cfg.Database.Driver)
	if opts.Ready != nil {
		opts.Ready(httpAddr, grpcAddr)
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// StartBackground re-executes the binary as `serve` detached from the terminal.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	run := runDirOf(opts.Home)
	if err := run.ensure(); err != nil {
		return 0, err
	}
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("repairboard already running (pid %d)", st.PID)
	}

	logOut, err := os.OpenFile(run.logFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	defer logOut.Close()

	args := []string{"serve", "--home", opts.Home}
	if opts.Addr != "" {
		args = append(args, "--addr", opts.Addr)
	}
	if opts.GRPCAddr != "" {
		args = append(args, "--grpc-addr", opts.GRPCAddr)
	}
	if opts.Dev {
		args = append(args, "--dev")
	}
	if opts.Seed {
		args = append(args, "--seed")
	}
	args = append(args, fmt.Sprintf("--otel=%t", opts.EnableOtel), fmt.Sprintf("--watch=%t", opts.Watch))
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}

	if d := opts.Config.Database.Driver; d != "" {
		args = append(args, "--db-driver", d)
	}

	cmd := exec.Command(exe, args...)
	if dsn := opts.Config.Database.DSN; dsn != "" && opts.Config.Database.Driver == "postgres" {
		cmd.Env = append(os.Environ(), "DATABASE_URL="+dsn)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = logOut
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cmd.Process.Pid, nil
}

// StopTimeout is how long Stop waits for a graceful exit when ctx has no deadline.
const StopTimeout = 15 * time.Second

// Stop sends the server a termination signal and waits for its pid file to go away.
// The process is killed when ctx expires first. stopped is false if nothing was running.
func Stop(ctx context.Context, home string) (stopped bool, err error) {
	st, err := Status(ctx, home)
	if err != nil || !st.Running {
		return false, err
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, errNotRunning
	}
	if err := terminate(proc); err != nil {
		return false, fmt.Errorf("signal pid %d: %w", st.PID, err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, StopTimeout)
		defer cancel()
	}
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = proc.Kill()
			runDirOf(home).clearState()
			return true, nil
		case <-tick.C:
			if st, _ := Status(ctx, home); !st.Running {
				return true, nil
			}
		}
	}
}

// Status reads home/run; a pid file whose process is gone is removed.
func Status(ctx context.Context, home string) (StatusInfo, error) {
	run := runDirOf(home)
	pid, err := run.readPID()
	if err != nil {
		return StatusInfo{}, nil
	}
	if !alive(pid) {
		run.clearState()
		return StatusInfo{}, nil
	}
	st := StatusInfo{Running: true, PID: pid}
	st.Addr, st.GRPCAddr = run.readAddrs()
	if st.Addr == "" {
		st.Addr = "unknown"
	}
	return st, nil
}
