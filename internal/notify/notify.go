// Package notify carries user-facing notifications from the board engine to
// whatever displays them: a terminal, the log, or a test recorder.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/oklog/ulid/v2"

	"github.com/eduardojeem/repairboard/internal/otel"
)

// Level is the severity shown to the user.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Kind categorizes what happened.
type Kind string

const (
	KindOrderAdded   Kind = "order_added"
	KindOrderUpdated Kind = "order_updated"
	KindOrderRemoved Kind = "order_removed"
	KindStageChanged Kind = "stage_changed"
	KindStageFailed  Kind = "stage_change_failed"
)

// Notification is one toast.
type Notification struct {
	ID        ulid.ULID `json:"id"`
	Level     Level     `json:"level"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// New returns a notification with a fresh sortable id.
func New(level Level, kind Kind, orderID, title, message string) Notification {
	return Notification{
		ID:        ulid.Make(),
		Level:     level,
		Kind:      kind,
		Title:     title,
		Message:   message,
		OrderID:   orderID,
		CreatedAt: time.Now().UTC(),
	}
}

// Sink receives notifications. Implementations must be safe for concurrent use.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification)

func (f SinkFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops every notification.
var Discard Sink = SinkFunc(func(context.Context, Notification) {})

type multi []Sink

func (m multi) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}

// Multi fans each notification out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Metered counts every notification in repairboard_notifications_total before passing it on.
func Metered(next Sink) Sink {
	return SinkFunc(func(ctx context.Context, n Notification) {
		otel.RecordNotification(ctx, string(n.Level))
		next.Notify(ctx, n)
	})
}

// Logger writes notifications to a slog.Logger. Errors log at error level, warnings at warn.
func Logger(l *slog.Logger) Sink {
	if l == nil {
		l = slog.Default()
	}
	return SinkFunc(func(ctx context.Context, n Notification) {
		lvl := slog.LevelInfo
		switch n.Level {
		case LevelWarning:
			lvl = slog.LevelWarn
		case LevelError:
			lvl = slog.LevelError
		}
		l.Log(ctx, lvl, n.Title, "kind", n.Kind, "order", n.OrderID, "message", n.Message, "id", n.ID.String())
	})
}

// Console prints one colored line per notification.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole writes to w. Color follows fatih/color's terminal detection.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

var levelColor = map[Level]*color.Color{
	LevelSuccess: color.New(color.FgGreen, color.Bold),
	LevelInfo:    color.New(color.FgCyan),
	LevelWarning: color.New(color.FgYellow),
	LevelError:   color.New(color.FgRed, color.Bold),
}

func (c *Console) Notify(_ context.Context, n Notification) {
	tag := fmt.Sprintf("[%s]", n.Level)
	if col, ok := levelColor[n.Level]; ok {
		tag = col.Sprint(tag)
	}
	line := fmt.Sprintf("%s %s %s", n.CreatedAt.Local().Format("15:04:05"), tag, n.Title)
	if n.Message != "" {
		line += ": " + n.Message
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	ch    chan struct{}
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{ch: make(chan struct{}, 1)}
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

// Notifications returns a copy of what was recorded, oldest first.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Len is the number of recorded notifications.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// WaitFor blocks until at least n notifications were recorded or ctx is done.
func (r *Recorder) WaitFor(ctx context.Context, n int) error {
	for {
		if r.Len() >= n {
			return nil
		}
		select {
		case <-r.ch:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d notifications, have %d: %w", n, r.Len(), ctx.Err())
		}
	}
}
