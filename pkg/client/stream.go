package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/eduardojeem/repairboard/pkg/models"
)

// SSE event names sent by GET /stream.
const (
	EventConnected   = "connected"
	EventOrderChange = "order_change"
)

// ErrStreamClosed ends a subscription when the server closes the stream.
var ErrStreamClosed = errors.New("change stream closed by server")

// sseEvent is one dispatched Server-Sent Event.
type sseEvent struct {
	Name string
	Data string
	ID   string
}

// sseReader splits a text/event-stream body into events. Comment lines and unknown fields are skipped.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader { return &sseReader{r: bufio.NewReader(r)} }

func (s *sseReader) next() (sseEvent, error) {
	var ev sseEvent
	var data []string
	for {
		line, err := s.r.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF && len(data) > 0 {
				ev.Data = strings.Join(data, "\n")
				return ev, nil
			}
			return sseEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(data) == 0 {
				ev = sseEvent{}
				continue
			}
			ev.Data = strings.Join(data, "\n")
			if ev.Name == "" {
				ev.Name = "message"
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		case "id":
			ev.ID = value
		}
	}
}

// Subscription is a live GET /stream connection.
type Subscription struct {
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	err     error
	stopped bool
}

// Done is closed when no more events will be delivered.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err is nil after Unsubscribe, otherwise why the stream ended.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe closes the stream and waits until the handler will not be called again.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	<-s.done
}

func (s *Subscription) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	if s.stopped {
		err = nil
	}
	s.err = err
	s.mu.Unlock()
	close(s.done)
}

// SubscribeToChanges opens GET /stream and calls handler for every order change, in order, on
// one goroutine. It returns once the server has acknowledged the stream. Cancelling ctx ends
// the subscription like Unsubscribe does, except Err reports the context error.
func (c *Client) SubscribeToChanges(ctx context.Context, handler func(models.OrderEvent)) (*Subscription, error) {
	sctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(sctx, http.MethodGet, c.BaseURL+"/stream", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		cancel()
		return nil, decodeError(http.MethodGet, "/stream", resp)
	}

	r := newSSEReader(resp.Body)
	first, err := r.next()
	if err != nil || first.Name != EventConnected {
		_ = resp.Body.Close()
		cancel()
		if err == nil {
			err = fmt.Errorf("unexpected first stream event %q", first.Name)
		}
		return nil, fmt.Errorf("open change stream: %w", err)
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer func() {
			_ = resp.Body.Close()
			cancel()
		}()
		for {
			ev, err := r.next()
			if err != nil {
				if err == io.EOF {
					err = ErrStreamClosed
				}
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				sub.finish(err)
				return
			}
			if ev.Name != EventOrderChange {
				continue
			}
			var oe models.OrderEvent
			if err := json.Unmarshal([]byte(ev.Data), &oe); err != nil {
				sub.finish(fmt.Errorf("decode order change: %w", err))
				return
			}
			if sub.isStopped() {
				continue
			}
			handler(oe)
		}
	}()
	return sub, nil
}
