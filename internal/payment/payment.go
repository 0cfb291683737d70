package payment

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEvent is returned for events that must not enter the pipeline.
var ErrInvalidEvent = errors.New("invalid payment event")

// Status is the terminal state of a payment as recorded by the source system.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// EventType names a payment status transition.
type EventType string

const (
	EventReceived EventType = "payment_received"
	EventFailed   EventType = "payment_failed"
	EventRefunded EventType = "payment_refunded"
)

// Payment is an immutable record owned by the event store.
type Payment struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Method    string    `json:"method"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Event is one status transition of a payment in transit through the bus.
type Event struct {
	Type      EventType `json:"type"`
	Payment   Payment   `json:"payment"`
	Timestamp time.Time `json:"timestamp"`
}

// TypeFor maps a payment status to the event type announcing it.
func TypeFor(s Status) (EventType, error) {
	switch s {
	case StatusSuccess:
		return EventReceived, nil
	case StatusFailed:
		return EventFailed, nil
	case StatusRefunded:
		return EventRefunded, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, s)
}

// NewEvent builds the event for p, deriving its type from the status.
func NewEvent(p Payment, at time.Time) (Event, error) {
	typ, err := TypeFor(p.Status)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Payment: p, Timestamp: at}, nil
}

// Failed reports whether the event carries a failed payment.
func (e Event) Failed() bool {
	return e.Payment.Status == StatusFailed
}

// Validate rejects events whose payload is incomplete or whose type does not
// match the payment status.
func (e Event) Validate() error {
	p := e.Payment
	want, err := TypeFor(p.Status)
	if err != nil {
		return err
	}
	if e.Type != want {
		return fmt.Errorf("%w: type %q does not match status %q", ErrInvalidEvent, e.Type, p.Status)
	}
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: payment id is required", ErrInvalidEvent)
	case !(p.Amount > 0):
		return fmt.Errorf("%w: payment %s: amount must be positive, got %v", ErrInvalidEvent, p.ID, p.Amount)
	case p.Method == "":
		return fmt.Errorf("%w: payment %s: method is required", ErrInvalidEvent, p.ID)
	case p.CreatedAt.IsZero():
		return fmt.Errorf("%w: payment %s: createdAt is required", ErrInvalidEvent, p.ID)
	}
	return nil
}
