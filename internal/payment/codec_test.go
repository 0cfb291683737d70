package payment_test

import (
	"errors"
	"testing"

	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

func TestDecode_Envelope(t *testing.T) {
	body := `{"type":"payment_failed","timestamp":"2026-06-15T10:00:00Z",
		"payment":{"id":"p1","amount":99.5,"method":"UPI","status":"failed","createdAt":"2026-06-15T09:59:59Z"}}`
	ev, err := payment.Decode([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Type != payment.EventFailed || ev.Payment.ID != "p1" || ev.Payment.Amount != 99.5 {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be decoded")
	}
}

func TestDecode_BarePayment(t *testing.T) {
	ev, err := payment.Decode([]byte(`{"id":"p2","amount":10,"method":"CARD","status":"refunded"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Payment.ID != "p2" || ev.Payment.Status != payment.StatusRefunded || ev.Type != "" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, body := range []string{"", "   ", "not json", `{"payment":`, `[1,2]`} {
		if _, err := payment.Decode([]byte(body)); !errors.Is(err, payment.ErrInvalidEvent) {
			t.Errorf("Decode(%q): expected ErrInvalidEvent, got %v", body, err)
		}
	}
}
