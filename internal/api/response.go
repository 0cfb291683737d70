package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gyaneshwarpardhi/paypulse/internal/analytics"
	"github.com/gyaneshwarpardhi/paypulse/internal/ingest"
	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
	"github.com/gyaneshwarpardhi/paypulse/internal/store"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope. Stale carries the
// last-known-good value when the store could not be read.
type errorResponse struct {
	Error     string      `json:"error"`
	Retryable bool        `json:"retryable,omitempty"`
	Stale     interface{} `json:"stale,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps err to a status code and writes the envelope.
func writeErr(w http.ResponseWriter, err error, stale interface{}) {
	status := statusFor(err)
	writeJSON(w, status, errorResponse{
		Error:     err.Error(),
		Retryable: status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests || status == http.StatusGatewayTimeout,
		Stale:     stale,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, payment.ErrInvalidEvent), errors.Is(err, analytics.ErrInvalidPeriod):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ingest.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, ingest.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
