package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a JSON event. It accepts a full event envelope or a bare
// payment; for the latter the event type is left empty for the caller to
// derive from the status.
func Decode(body []byte) (Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Event{}, fmt.Errorf("%w: empty body", ErrInvalidEvent)
	}
	var envelope struct {
		Event
		Status *json.RawMessage `json:"status"` // set only on bare payments
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if envelope.Status == nil {
		return envelope.Event, nil
	}
	var p Payment
	if err := json.Unmarshal(body, &p); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return Event{Payment: p}, nil
}
