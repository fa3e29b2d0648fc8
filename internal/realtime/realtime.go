// Package realtime turns order change events into user-facing notifications.
// It only translates: it never touches order state and never deduplicates, so
// every insert, update or delete yields exactly one notification.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eduardojeem/repairboard/internal/feed"
	"github.com/eduardojeem/repairboard/internal/notify"
	"github.com/eduardojeem/repairboard/internal/otel"
	"github.com/eduardojeem/repairboard/internal/stage"
	"github.com/eduardojeem/repairboard/pkg/models"
)

var errFeedEnded = errors.New("change feed ended")

// Notifier subscribes to Feed and raises one notification per event on Sink.
type Notifier struct {
	Feed    feed.Feed
	Sink    notify.Sink
	Backoff feed.Backoff
	Logger  *slog.Logger
}

// New returns a Notifier with DefaultBackoff.
func New(f feed.Feed, sink notify.Sink) *Notifier {
	return &Notifier{Feed: f, Sink: sink, Backoff: feed.DefaultBackoff()}
}

func (n *Notifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

// Run subscribes and keeps the subscription alive until ctx is done. A dropped or failed
// subscription is retried with exponential backoff; the backoff resets once a subscription
// has delivered an event. Run unsubscribes before returning and returns nil on cancellation.
func (n *Notifier) Run(ctx context.Context) error {
	if n.Feed == nil {
		return errors.New("realtime: feed not set")
	}
	var delivered atomic.Bool
	handler := func(ev models.OrderEvent) {
		delivered.Store(true)
		n.Handle(ctx, ev)
	}

	attempt := 0
	for {
		sub, err := n.Feed.Subscribe(ctx, handler)
		if err == nil {
			n.logger().Debug("change feed subscribed")
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return nil
			case <-sub.Done():
				if err = sub.Err(); err == nil {
					err = errFeedEnded
				}
				sub.Unsubscribe()
			}
			if delivered.Swap(false) {
				attempt = 0
			}
		}
		if ctx.Err() != nil {
			return nil
		}

		delay := n.Backoff.Delay(attempt)
		attempt++
		n.logger().Warn("change feed dropped, resubscribing", "err", err, "attempt", attempt, "delay", delay)
		otel.RecordFeedResubscribe(ctx)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Handle raises the notification for one event. Unknown event kinds are logged and dropped.
func (n *Notifier) Handle(ctx context.Context, ev models.OrderEvent) {
	otel.RecordFeedEvent(ctx, string(ev.Type))
	note, ok := Translate(ev)
	if !ok {
		n.logger().Warn("dropping change event of unknown kind", "event", ev.Type, "order", ev.Order.ID)
		return
	}
	if n.Sink != nil {
		n.Sink.Notify(ctx, note)
	}
}

// Translate maps an event to its notification. ok is false for unknown kinds.
func Translate(ev models.OrderEvent) (notify.Notification, bool) {
	o := ev.Order
	switch ev.Type {
	case models.EventInsert:
		return notify.New(notify.LevelInfo, notify.KindOrderAdded, o.ID, "New order", describe(o)), true
	case models.EventUpdate:
		if ev.Previous != nil && ev.Previous.Stage != o.Stage {
			return notify.New(notify.LevelInfo, notify.KindOrderUpdated, o.ID, "Order moved",
				fmt.Sprintf("%s moved to %s", o.ID, columnTitle(o.Stage))), true
		}
		return notify.New(notify.LevelInfo, notify.KindOrderUpdated, o.ID, "Order updated", describe(o)), true
	case models.EventDelete:
		return notify.New(notify.LevelWarning, notify.KindOrderRemoved, o.ID, "Order removed", describe(o)), true
	default:
		return notify.Notification{}, false
	}
}

func describe(o models.RepairOrder) string {
	parts := []string{o.ID}
	if o.CustomerName != "" {
		parts = append(parts, o.CustomerName)
	}
	if dev := strings.TrimSpace(o.DeviceBrand + " " + o.DeviceModel); dev != "" {
		parts = append(parts, dev)
	} else if o.DeviceType != "" {
		parts = append(parts, o.DeviceType)
	}
	return strings.Join(parts, " · ")
}

func columnTitle(s models.Stage) string {
	c, err := stage.ToColumn(s)
	if err != nil {
		return string(s)
	}
	return stage.Title(c)
}
