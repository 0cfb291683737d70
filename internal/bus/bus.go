// Package bus is an in-process publish/subscribe fan-out.
//
// Every subscriber owns a bounded queue. Publish never blocks: when a
// subscriber's queue is full the oldest queued item is discarded to make room
// for the new one (drop-oldest), so a slow consumer only loses its own
// backlog and never stalls the publisher or its siblings.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/paypulse/internal/metrics"
)

// DefaultBuffer is the maximum queue depth per subscriber.
const DefaultBuffer = 256

// Bus distributes every published value to all current subscribers.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[string]*Subscription[T]
	buffer int
	name   string
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*options)

type options struct {
	buffer int
	name   string
	logger *slog.Logger
}

// WithBuffer sets the per-subscriber queue depth. Values below 1 are ignored.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// WithName labels the bus in logs and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used for drop notices.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates an empty Bus.
func New[T any](opts ...Option) *Bus[T] {
	o := options{buffer: DefaultBuffer, name: "default", logger: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	return &Bus[T]{
		subs:   make(map[string]*Subscription[T]),
		buffer: o.buffer,
		name:   o.name,
		logger: o.logger,
	}
}

// Publish hands v to every registered subscriber without blocking.
// Publishes are serialized, so each subscriber observes them in call order.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.deliver(v) {
			metrics.BusDropped.WithLabelValues(b.name).Inc()
			b.logger.Debug("subscriber queue full, dropped oldest",
				"bus", b.name, "subscriber", s.id, "dropped_total", s.dropped.Load())
		}
	}
}

// Subscribe registers a new subscriber that receives every value published
// from now on.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		id:  uuid.NewString(),
		ch:  make(chan T, b.buffer),
		bus: b,
	}
	b.mu.Lock()
	b.subs[s.id] = s
	n := len(b.subs)
	b.mu.Unlock()
	metrics.BusSubscribers.WithLabelValues(b.name).Set(float64(n))
	return s
}

// Unsubscribe stops delivery to s and closes its channel. Values already
// queued stay readable. Calling it more than once is a no-op.
func (b *Bus[T]) Unsubscribe(s *Subscription[T]) {
	if s == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.subs[s.id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, s.id)
	close(s.ch)
	n := len(b.subs)
	b.mu.Unlock()
	metrics.BusSubscribers.WithLabelValues(b.name).Set(float64(n))
}

// Len returns the number of registered subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Buffer returns the per-subscriber queue depth.
func (b *Bus[T]) Buffer() int { return b.buffer }

// Close unsubscribes everyone.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
	b.mu.Unlock()
	metrics.BusSubscribers.WithLabelValues(b.name).Set(0)
}

// Subscription is a handle to one subscriber's queue.
type Subscription[T any] struct {
	id      string
	ch      chan T
	bus     *Bus[T]
	dropped atomic.Uint64
}

// ID returns the subscription's unique identifier.
func (s *Subscription[T]) ID() string { return s.id }

// C returns the delivery channel. It is closed on unsubscribe.
func (s *Subscription[T]) C() <-chan T { return s.ch }

// Dropped returns how many values were discarded because the queue was full.
func (s *Subscription[T]) Dropped() uint64 { return s.dropped.Load() }

// Close is shorthand for Unsubscribe on the owning bus.
func (s *Subscription[T]) Close() { s.bus.Unsubscribe(s) }

// deliver enqueues v, evicting the oldest queued value if needed.
// Must be called with the bus lock held. Returns true if a value was dropped.
func (s *Subscription[T]) deliver(v T) bool {
	dropped := false
	for {
		select {
		case s.ch <- v:
			return dropped
		default:
		}
		// Full: the consumer may have drained a slot meanwhile, so the
		// eviction is best effort and the send is retried either way.
		select {
		case <-s.ch:
			s.dropped.Add(1)
			dropped = true
		default:
		}
	}
}
