package feed

import (
	"context"
	"sync"

	"github.com/eduardojeem/repairboard/pkg/models"
)

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 256

// Broker fans published events out to every listener. A listener that falls a full
// buffer behind is evicted with ErrSlowSubscriber instead of blocking publishers.
type Broker struct {
	mu     sync.Mutex
	subs   map[*Listener]struct{}
	buffer int
	closed bool
}

// NewBroker returns a broker with the given per-listener buffer (DefaultBuffer if <= 0).
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{subs: make(map[*Listener]struct{}), buffer: buffer}
}

// Listener is a raw channel subscription to a Broker.
type Listener struct {
	b   *Broker
	ch  chan models.OrderEvent
	err error
}

// C yields events until the listener is closed or evicted.
func (l *Listener) C() <-chan models.OrderEvent { return l.ch }

// Err is why C was closed: nil after Close, ErrSlowSubscriber or ErrClosed otherwise.
func (l *Listener) Err() error {
	l.b.mu.Lock()
	defer l.b.mu.Unlock()
	return l.err
}

// Close detaches the listener. Safe to call more than once.
func (l *Listener) Close() {
	l.b.mu.Lock()
	defer l.b.mu.Unlock()
	l.b.remove(l, nil)
}

// remove must be called with b.mu held.
func (b *Broker) remove(l *Listener, err error) {
	if _, ok := b.subs[l]; !ok {
		return
	}
	delete(b.subs, l)
	l.err = err
	close(l.ch)
}

// Listen attaches a new listener. After Close the returned listener is already ended with ErrClosed.
func (b *Broker) Listen() *Listener {
	l := &Listener{b: b, ch: make(chan models.OrderEvent, b.buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		l.err = ErrClosed
		close(l.ch)
		return l
	}
	b.subs[l] = struct{}{}
	return l
}

// Publish delivers ev to every listener without blocking.
func (b *Broker) Publish(ev models.OrderEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for l := range b.subs {
		select {
		case l.ch <- ev:
		default:
			b.remove(l, ErrSlowSubscriber)
		}
	}
}

// Len is the number of attached listeners.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every listener with ErrClosed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for l := range b.subs {
		b.remove(l, ErrClosed)
	}
}

// Subscribe implements Feed. The handler runs on a dedicated goroutine; the subscription
// also ends when ctx is done.
func (b *Broker) Subscribe(ctx context.Context, h Handler) (Subscription, error) {
	l := b.Listen()
	s := NewStream(l.Close)
	go func() {
		for ev := range l.C() {
			if s.Stopped() {
				continue
			}
			h(ev)
		}
		s.Finish(l.Err())
	}()
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-s.Done():
		}
	}()
	return s, nil
}
