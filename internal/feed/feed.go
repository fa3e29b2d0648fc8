// Package feed delivers order change events.
//
// A Feed pushes insert, update and delete events to a handler until the
// subscription ends. Subscriptions end either because the caller
// unsubscribed (Err is nil) or because the transport dropped (Err is set);
// consumers that want a continuous stream resubscribe with Backoff.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/eduardojeem/repairboard/pkg/models"
)

var (
	// ErrSlowSubscriber ends a subscription whose buffer overflowed.
	ErrSlowSubscriber = errors.New("feed: subscriber too slow")
	// ErrClosed ends subscriptions when their source shuts down.
	ErrClosed = errors.New("feed: closed")
)

// Handler receives events in order, one at a time.
type Handler func(models.OrderEvent)

// Feed is a push source of order changes.
type Feed interface {
	Subscribe(ctx context.Context, h Handler) (Subscription, error)
}

// Subscription is a live subscription.
type Subscription interface {
	// Done is closed once no more events will be delivered.
	Done() <-chan struct{}
	// Err reports why the subscription ended; nil after Unsubscribe.
	Err() error
	// Unsubscribe stops delivery and returns after the handler has returned for the last time.
	// It must not be called from inside the handler.
	Unsubscribe()
}

// Stream is a Subscription whose producer calls Finish when it stops delivering.
type Stream struct {
	stop   func()
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	closed bool
}

// NewStream returns a Stream. stop is invoked by Unsubscribe and must make the producer call Finish.
func NewStream(stop func()) *Stream {
	return &Stream{stop: stop, done: make(chan struct{})}
}

// Finish marks the stream as ended with err. Only the first call counts.
func (s *Stream) Finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		if s.closed {
			err = nil
		}
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Stream) Done() <-chan struct{} { return s.done }

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stopped reports whether Unsubscribe was called. Producers skip delivery once it is true.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Stream) Unsubscribe() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()
	<-s.done
}

// Func adapts a function to Feed.
type Func func(ctx context.Context, h Handler) (Subscription, error)

func (f Func) Subscribe(ctx context.Context, h Handler) (Subscription, error) { return f(ctx, h) }
