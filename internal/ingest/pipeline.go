// Package ingest validates incoming payment events, appends them to the
// event store and announces them on the event bus. Only events that were
// stored for the first time are published.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/paypulse/internal/bus"
	"github.com/gyaneshwarpardhi/paypulse/internal/config"
	"github.com/gyaneshwarpardhi/paypulse/internal/metrics"
	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
	"github.com/gyaneshwarpardhi/paypulse/internal/store"
)

var (
	// ErrQueueFull is returned when the ingest queue has no free slot.
	ErrQueueFull = errors.New("ingest queue full")
	// ErrTimeout is returned when a synchronous ingest does not finish in time.
	ErrTimeout = errors.New("ingest timeout")
)

// Appender is the write side of the event store.
type Appender interface {
	Append(ctx context.Context, p payment.Payment) error
}

// Result is the outcome of ingesting a single event.
type Result struct {
	PaymentID  string            `json:"paymentId"`
	Type       payment.EventType `json:"type"`
	DurationMs int64             `json:"durationMs"`
}

// Pipeline runs events through validate, append and publish on a bounded
// worker pool.
type Pipeline struct {
	store  Appender
	events *bus.Bus[payment.Event]
	pool   *workerPool[payment.Event, *Result]
	conf   config.IngestConf
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Pipeline using conf and starts its workers.
func New(ctx context.Context, st Appender, events *bus.Bus[payment.Event], conf config.IngestConf, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{store: st, events: events, conf: conf, logger: logger, now: time.Now}
	p.pool = newWorkerPool[payment.Event, *Result](ctx, conf.Workers, conf.QueueDepth, p.process)
	return p
}

// Normalize fills the fields a producer may leave out: a payment id, the
// event timestamp, the payment creation time and the event type.
func Normalize(ev *payment.Event, now time.Time) {
	if ev.Payment.ID == "" {
		ev.Payment.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	if ev.Payment.CreatedAt.IsZero() {
		ev.Payment.CreatedAt = ev.Timestamp
	}
	if ev.Type == "" {
		if typ, err := payment.TypeFor(ev.Payment.Status); err == nil {
			ev.Type = typ
		}
	}
}

// ProcessSync ingests ev and waits for the outcome.
// Returns ErrQueueFull without waiting if the queue is full.
func (p *Pipeline) ProcessSync(ctx context.Context, ev payment.Event) (*Result, error) {
	Normalize(&ev, p.now())

	resultC, ok := p.pool.SubmitWait(ev)
	if !ok {
		metrics.EventsDropped.Inc()
		return nil, fmt.Errorf("%w (capacity %d)", ErrQueueFull, p.pool.QueueCap())
	}

	timeout := time.Duration(p.conf.TimeoutMs) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-resultC:
		return res.value, res.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues ev for background ingestion. Returns false if the queue is full.
func (p *Pipeline) ProcessAsync(ev payment.Event) bool {
	Normalize(&ev, p.now())
	if !p.pool.Submit(ev) {
		metrics.EventsDropped.Inc()
		return false
	}
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (p *Pipeline) QueueUtilization() float64 {
	if p.pool.QueueCap() == 0 {
		return 0
	}
	return float64(p.pool.QueueLen()) / float64(p.pool.QueueCap())
}

// Shutdown stops accepting events and waits for queued ones to finish.
func (p *Pipeline) Shutdown() {
	p.pool.Drain()
}

func (p *Pipeline) process(ctx context.Context, ev payment.Event) (*Result, error) {
	start := time.Now()
	if err := ev.Validate(); err != nil {
		metrics.EventsRejected.WithLabelValues("invalid").Inc()
		p.logger.Debug("event rejected", "payment_id", ev.Payment.ID, "err", err)
		return nil, err
	}

	if err := p.store.Append(ctx, ev.Payment); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			metrics.EventsRejected.WithLabelValues("duplicate").Inc()
			p.logger.Debug("duplicate payment ignored", "payment_id", ev.Payment.ID)
		default:
			metrics.EventsRejected.WithLabelValues("store").Inc()
			p.logger.Warn("append failed", "payment_id", ev.Payment.ID, "err", err)
		}
		return nil, err
	}

	p.events.Publish(ev)
	metrics.EventsIngested.WithLabelValues(string(ev.Type)).Inc()

	elapsed := metrics.SinceMs(start)
	metrics.IngestDuration.Observe(elapsed)
	res := &Result{
		PaymentID:  ev.Payment.ID,
		Type:       ev.Type,
		DurationMs: int64(elapsed),
	}
	return res, nil
}
