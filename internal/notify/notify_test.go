package notify

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_idsSortByCreation(t *testing.T) {
	a := New(LevelInfo, KindOrderAdded, "K-1", "New order added", "")
	b := New(LevelInfo, KindOrderAdded, "K-2", "New order added", "")
	assert.NotEqual(t, a.ID, b.ID)
	assert.LessOrEqual(t, a.ID.Time(), b.ID.Time())
	assert.Equal(t, "K-1", a.OrderID)
}

func TestMulti_fansOutInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	mk := func(name string) Sink {
		return SinkFunc(func(context.Context, Notification) {
			mu.Lock()
			got = append(got, name)
			mu.Unlock()
		})
	}
	s := Multi(mk("a"), nil, mk("b"))
	s.Notify(context.Background(), New(LevelInfo, KindOrderUpdated, "K-1", "t", ""))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestLogger_levels(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := Logger(l)
	s.Notify(context.Background(), New(LevelError, KindStageFailed, "K-100", "Could not move order", "boom"))
	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "order=K-100")
	assert.Contains(t, out, "message=boom")
}

func TestConsole_writesOneLine(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	c := NewConsole(&buf)
	c.Notify(context.Background(), New(LevelSuccess, KindStageChanged, "K-1", "Order moved", "to In Progress"))
	line := strings.TrimSpace(buf.String())
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, line, "[success] Order moved: to In Progress")
}

func TestRecorder_waitFor(t *testing.T) {
	r := NewRecorder()
	go func() {
		for i := 0; i < 3; i++ {
			r.Notify(context.Background(), New(LevelInfo, KindOrderAdded, "", "x", ""))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.WaitFor(ctx, 3))
	assert.Len(t, r.Notifications(), 3)

	short, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, r.WaitFor(short, 4), context.DeadlineExceeded)
}

func TestMetered_passesThrough(t *testing.T) {
	r := NewRecorder()
	Metered(r).Notify(context.Background(), New(LevelWarning, KindOrderRemoved, "K-9", "Order removed", ""))
	require.Equal(t, 1, r.Len())
	assert.Equal(t, LevelWarning, r.Notifications()[0].Level)
}
