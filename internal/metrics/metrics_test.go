package metrics_test

import (
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/paypulse/internal/metrics"
)

func TestSinceMs_KeepsSubMillisecondPrecision(t *testing.T) {
	got := metrics.SinceMs(time.Now().Add(-250 * time.Microsecond))
	if got < 0.25 || got >= 250 {
		t.Errorf("SinceMs(250µs ago) = %v, want a fractional value >= 0.25", got)
	}

	got = metrics.SinceMs(time.Now().Add(-1500 * time.Microsecond))
	if got < 1.5 {
		t.Errorf("SinceMs(1.5ms ago) = %v, want >= 1.5", got)
	}
}
