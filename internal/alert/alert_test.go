package alert_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/paypulse/internal/alert"
	"github.com/gyaneshwarpardhi/paypulse/internal/analytics"
	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

// window builds n events of which the first `failed` carry failed payments.
func window(n, failed int) []payment.Event {
	out := make([]payment.Event, 0, n)
	for i := 0; i < n; i++ {
		status := payment.StatusSuccess
		if i < failed {
			status = payment.StatusFailed
		}
		ev, _ := payment.NewEvent(payment.Payment{
			ID:        fmt.Sprintf("p%d", i),
			Amount:    100,
			Method:    "UPI",
			Status:    status,
			CreatedAt: time.Now(),
		}, time.Now())
		out = append(out, ev)
	}
	return out
}

func TestDetectFailureSpike(t *testing.T) {
	cfg := alert.Config{FailureRateThreshold: 0.2, VolumeThreshold: 10, SpikeMultiplier: 2}

	cases := []struct {
		name   string
		n      int
		failed int
		fire   bool
	}{
		{"fewer than ten all failed", 9, 9, false},
		{"ten below threshold", 10, 1, false},
		{"exactly at threshold", 10, 2, true},
		{"scenario: 3 of 10", 10, 3, true},
		{"twenty with four failed", 20, 4, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := alert.DetectFailureSpike(window(tc.n, tc.failed), cfg)
			if (a != nil) != tc.fire {
				t.Fatalf("expected fire=%v, got %+v", tc.fire, a)
			}
			if a != nil && (a.Kind != alert.KindFailureSpike || a.Severity != alert.SeverityError) {
				t.Errorf("unexpected alert: %+v", a)
			}
		})
	}

	a := alert.DetectFailureSpike(window(10, 3), cfg)
	if a == nil || !strings.Contains(a.Message, "30%") {
		t.Errorf("expected message with 30%%, got %+v", a)
	}
}

func TestDetectVolumeSpike(t *testing.T) {
	cfg := alert.Config{FailureRateThreshold: 0.2, VolumeThreshold: 1000, SpikeMultiplier: 1.5}

	a := alert.DetectVolumeSpike(2000, 1000, cfg)
	if a == nil || a.Kind != alert.KindVolumeSpike || a.Severity != alert.SeverityWarning {
		t.Fatalf("expected volume_spike warning, got %+v", a)
	}
	if !strings.Contains(a.Message, "100% above baseline") {
		t.Errorf("unexpected message %q", a.Message)
	}

	if a := alert.DetectVolumeSpike(1e9, 0, cfg); a != nil {
		t.Errorf("zero baseline must not fire, got %+v", a)
	}
	if a := alert.DetectVolumeSpike(1400, 1000, cfg); a != nil {
		t.Errorf("ratio 1.4 must not fire, got %+v", a)
	}
	if a := alert.DetectVolumeSpike(900, 100, cfg); a != nil {
		t.Errorf("volume below threshold must not fire, got %+v", a)
	}
	if a := alert.DetectVolumeSpike(1500, 1000, cfg); a == nil {
		t.Error("ratio exactly at multiplier should fire")
	}
}

func TestDetectLowSuccessRate(t *testing.T) {
	a := alert.DetectLowSuccessRate(0.75, 0.8)
	if a == nil || a.Kind != alert.KindLowSuccessRate || a.Severity != alert.SeverityWarning {
		t.Fatalf("expected low_success_rate warning, got %+v", a)
	}
	if !strings.Contains(a.Message, "75%") {
		t.Errorf("unexpected message %q", a.Message)
	}
	if a := alert.DetectLowSuccessRate(0.85, 0.8); a != nil {
		t.Errorf("0.85 must not fire, got %+v", a)
	}
	if a := alert.DetectLowSuccessRate(0.8, alert.DefaultLowSuccessThreshold); a != nil {
		t.Errorf("rate equal to threshold must not fire, got %+v", a)
	}
}

func TestEvaluate_OrderAndGating(t *testing.T) {
	cfg := alert.DefaultConfig()
	prev := analytics.Metrics{TotalVolume: 1000}
	in := alert.Input{
		Recent:              window(10, 5),
		Current:             analytics.Metrics{TotalVolume: 3000, SuccessRate: 0.5},
		Previous:            &prev,
		Config:              cfg,
		LowSuccessThreshold: 0.8,
	}
	got := alert.Evaluate(in)
	want := []alert.Kind{alert.KindFailureSpike, alert.KindVolumeSpike, alert.KindLowSuccessRate}
	if len(got) != len(want) {
		t.Fatalf("expected %d alerts, got %+v", len(want), got)
	}
	for i, k := range want {
		if got[i].Kind != k {
			t.Errorf("alert %d: expected %s, got %s", i, k, got[i].Kind)
		}
	}

	// Same conditions alert again: no cross-cycle dedup.
	if again := alert.Evaluate(in); len(again) != 3 {
		t.Errorf("expected repeat alerts, got %+v", again)
	}

	in.Previous = nil
	got = alert.Evaluate(in)
	for _, a := range got {
		if a.Kind == alert.KindVolumeSpike {
			t.Error("volume detector must not run without a previous snapshot")
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := alert.DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	bad := []alert.Config{
		{FailureRateThreshold: 0, VolumeThreshold: 0, SpikeMultiplier: 1},
		{FailureRateThreshold: 1, VolumeThreshold: 0, SpikeMultiplier: 1},
		{FailureRateThreshold: 0.5, VolumeThreshold: -1, SpikeMultiplier: 1},
		{FailureRateThreshold: 0.5, VolumeThreshold: 0, SpikeMultiplier: 0.9},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("expected error for %+v", c)
		}
	}
}
