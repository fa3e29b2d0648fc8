package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eduardojeem/repairboard/internal/feed"
	"github.com/eduardojeem/repairboard/internal/otel"
	"github.com/eduardojeem/repairboard/pkg/models"
)

// KeepaliveInterval is how often an idle stream gets a comment line.
var KeepaliveInterval = 30 * time.Second

// SSEHub serves the broker's order changes as text/event-stream.
type SSEHub struct {
	broker *feed.Broker
}

func NewSSEHub(b *feed.Broker) *SSEHub {
	return &SSEHub{broker: b}
}

// Broker is the fan-out the hub reads from; the gRPC feed shares it.
func (h *SSEHub) Broker() *feed.Broker { return h.broker }

func (h *SSEHub) Publish(ev models.OrderEvent) {
	otel.RecordSSEEvent(context.Background())
	h.broker.Publish(ev)
}

func (h *SSEHub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		l := h.broker.Listen()
		defer l.Close()
		otel.AddSSEConnection()
		defer otel.RemoveSSEConnection()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		_, _ = fmt.Fprintf(w, "event: connected\ndata: %s\n\n", `{"type":"connected"}`)
		flusher.Flush()

		keepalive := time.NewTicker(KeepaliveInterval)
		defer keepalive.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepalive.C:
				_, _ = fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case ev, ok := <-l.C():
				if !ok {
					// Evicted or broker closed; the client reconnects.
					return
				}
				b, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				_, _ = fmt.Fprintf(w, "event: order_change\ndata: %s\n\n", b)
				flusher.Flush()
			}
		}
	}
}
