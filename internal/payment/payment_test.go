package payment_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

func validPayment() payment.Payment {
	return payment.Payment{
		ID:        "pay_1",
		TenantID:  "tenant-a",
		Amount:    250,
		Currency:  "INR",
		Method:    "UPI",
		Status:    payment.StatusSuccess,
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestTypeFor(t *testing.T) {
	cases := map[payment.Status]payment.EventType{
		payment.StatusSuccess:  payment.EventReceived,
		payment.StatusFailed:   payment.EventFailed,
		payment.StatusRefunded: payment.EventRefunded,
	}
	for status, want := range cases {
		got, err := payment.TypeFor(status)
		if err != nil {
			t.Fatalf("TypeFor(%q): %v", status, err)
		}
		if got != want {
			t.Errorf("TypeFor(%q) = %q, want %q", status, got, want)
		}
	}
	if _, err := payment.TypeFor("pending"); !errors.Is(err, payment.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for unknown status, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	ev, err := payment.NewEvent(validPayment(), time.Now())
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	if err := ev.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*payment.Event)
	}{
		{"mismatched type", func(e *payment.Event) { e.Type = payment.EventFailed }},
		{"zero amount", func(e *payment.Event) { e.Payment.Amount = 0 }},
		{"negative amount", func(e *payment.Event) { e.Payment.Amount = -5 }},
		{"missing id", func(e *payment.Event) { e.Payment.ID = "" }},
		{"missing method", func(e *payment.Event) { e.Payment.Method = "" }},
		{"missing createdAt", func(e *payment.Event) { e.Payment.CreatedAt = time.Time{} }},
		{"unknown status", func(e *payment.Event) { e.Payment.Status = "pending" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := ev
			tc.mutate(&bad)
			if err := bad.Validate(); !errors.Is(err, payment.ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestEventJSONKeys(t *testing.T) {
	ev, _ := payment.NewEvent(validPayment(), time.Now())
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{`"type"`, `"payment"`, `"timestamp"`, `"tenantId"`, `"createdAt"`, `"method"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("expected key %s in %s", key, data)
		}
	}
}
