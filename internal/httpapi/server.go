package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/eduardojeem/repairboard/internal/board"
	"github.com/eduardojeem/repairboard/internal/feed"
	"github.com/eduardojeem/repairboard/internal/priority"
	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/internal/store"
	"github.com/eduardojeem/repairboard/internal/store/postgres"
	"github.com/eduardojeem/repairboard/pkg/models"
)

// limitBody wraps r.Body with http.MaxBytesReader so handlers cannot read more than maxBytes.
func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH to prevent OOM.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets CORS headers for dev mode (board UI served from a different origin).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP server (home dir, listen addr, API key, DB, metrics).
type ServerOptions struct {
	Home           string
	Addr           string
	Dev            bool
	APIKey         string       // if set, require X-API-Key header or query api_key
	DBDriver       string       // "sqlite" (default) or "postgres"
	DBURL          string       // for postgres: connection string (or set DATABASE_URL env)
	MetricsHandler http.Handler // if set, used for /metrics (e.g. OTel Prometheus handler)
	UseOtelHTTP    bool         // if true, wrap handler with otelhttp for request metrics
	Seed           bool         // insert demo orders into an empty store

	// Store overrides DBDriver/DBURL/Home when set; the App takes ownership.
	Store store.Store
	// Broker receives every order change. A new one is created when nil.
	Broker *feed.Broker
	// Board is the initial scoring and overdue/urgent configuration.
	Board BoardSettings
	// DefaultTechnicalComplexity is passed to the store for orders stored without one.
	DefaultTechnicalComplexity int
	Logger                     *slog.Logger
}

// BoardSettings drive GET /board. They can be swapped at runtime with App.SetBoardSettings.
type BoardSettings struct {
	Scorer      priority.Scorer
	Definitions board.Definitions
}

// DefaultBoardSettings uses the default weights, levels and definitions with no rules.
func DefaultBoardSettings() BoardSettings {
	return BoardSettings{
		Scorer:      priority.Scorer{Weights: priority.DefaultWeights(), Levels: priority.DefaultLevels()},
		Definitions: board.DefaultDefinitions(),
	}
}

// App holds the HTTP server, SSE hub, store and live board settings.
type App struct {
	Server *http.Server
	Hub    *SSEHub
	Store  store.Store
	Home   string

	settings atomic.Pointer[BoardSettings]
	log      *slog.Logger
	now      func() time.Time
}

// SetBoardSettings replaces the scoring and definitions used by later /board requests.
func (a *App) SetBoardSettings(s BoardSettings) {
	a.settings.Store(&s)
}

// BoardSettings returns the settings currently in effect.
func (a *App) BoardSettings() BoardSettings {
	return *a.settings.Load()
}

// NewApp opens the store (unless one is given), wires the routes and returns the app.
func NewApp(opts ServerOptions) (*App, error) {
	st := opts.Store
	if st == nil {
		var err error
		storeOpts := store.OpenOptions{
			Driver:                     opts.DBDriver,
			Home:                       opts.Home,
			DSN:                        opts.DBURL,
			DefaultTechnicalComplexity: opts.DefaultTechnicalComplexity,
		}
		if opts.DBDriver == "postgres" {
			st, err = postgres.OpenWithOptions(storeOpts)
		} else {
			storeOpts.DSN = ""
			st, err = store.OpenWithOptions(storeOpts)
		}
		if err != nil {
			return nil, err
		}
	}
	if opts.Seed {
		if err := st.SeedDemo(context.Background()); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("seed demo orders: %w", err)
		}
	}
	broker := opts.Broker
	if broker == nil {
		broker = feed.NewBroker(models.DefaultSSEChannelBuffer)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	app := &App{Hub: NewSSEHub(broker), Store: st, Home: opts.Home, log: log, now: time.Now}
	settings := opts.Board
	if settings.Scorer.Weights == (priority.Weights{}) {
		settings = DefaultBoardSettings()
	}
	app.SetBoardSettings(settings)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	} else {
		r.Get("/metrics", app.handleTextMetrics)
	}
	r.Get("/stream", app.Hub.Handler())

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", app.handleListOrders)
		r.Post("/", app.handleCreateOrder)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.handleGetOrder)
			r.Patch("/", app.handleUpdateOrder)
			r.Delete("/", app.handleDeleteOrder)
			r.Put("/stage", app.handleSetStage)
		})
	})
	r.Get("/board", app.handleBoard)
	r.Get("/preferences/{key}", app.handleGetPreference)
	r.Put("/preferences/{key}", app.handlePutPreference)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var handler http.Handler = r
	handler = bodyLimitMiddleware(models.DefaultMaxRequestBodyBytes, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = requestLogMiddleware(log, handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "repairboard")
	}
	app.Server = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Ending the broker ends every /stream handler so Shutdown can drain.
	app.Server.RegisterOnShutdown(broker.Close)
	return app, nil
}

// ColumnCounts reports how many stored orders fall into each column, for the orders gauge.
func (a *App) ColumnCounts(ctx context.Context) (map[string]int64, error) {
	byStage, err := a.Store.CountByStage(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(stage.Columns()))
	for _, c := range stage.Columns() {
		out[string(c)] = 0
	}
	for st, n := range byStage {
		col, err := stage.ToColumn(st)
		if err != nil {
			a.log.Warn("order with unknown stage in store", "stage", st, "err", err)
			continue
		}
		out[string(col)] += n
	}
	return out, nil
}

func (a *App) handleTextMetrics(w http.ResponseWriter, r *http.Request) {
	counts, err := a.ColumnCounts(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "# TYPE repairboard_orders gauge\n")
	for _, c := range stage.Columns() {
		_, _ = fmt.Fprintf(w, "repairboard_orders{column=%q} %d\n", string(c), counts[string(c)])
	}
}

// responseRecorder captures status code for logging and forwards Flusher if supported.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != apiKey {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		log.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

// writeStoreError maps store and board errors to a status code.
func writeStoreError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrExists):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalid), errors.Is(err, board.ErrInvalidFilters),
		errors.Is(err, stage.ErrUnknownStage), errors.Is(err, stage.ErrUnknownColumn):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &tooLarge):
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}
