// Package alert holds the anomaly detectors. They are pure functions of
// their inputs; the caller owns the recent-event window and the previous
// metrics snapshot.
package alert

import (
	"fmt"
	"math"
	"time"

	"github.com/gyaneshwarpardhi/paypulse/internal/analytics"
	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

// Kind identifies the condition an alert reports.
type Kind string

const (
	KindFailureSpike   Kind = "failure_spike"
	KindVolumeSpike    Kind = "volume_spike"
	KindLowSuccessRate Kind = "low_success_rate"
)

// Severity grades an alert.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

const (
	// MinFailureSample is the smallest window the failure detector judges.
	MinFailureSample = 10
	// DefaultLowSuccessThreshold is the success rate below which a warning fires.
	DefaultLowSuccessThreshold = 0.8
)

// Alert is produced once per evaluation and never persisted.
type Alert struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds the detector thresholds.
type Config struct {
	FailureRateThreshold float64 `json:"failureRateThreshold"`
	VolumeThreshold      float64 `json:"volumeThreshold"`
	SpikeMultiplier      float64 `json:"spikeMultiplier"`
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{FailureRateThreshold: 0.2, VolumeThreshold: 1000, SpikeMultiplier: 1.5}
}

// Validate checks each threshold against its allowed range.
func (c Config) Validate() error {
	if !(c.FailureRateThreshold > 0 && c.FailureRateThreshold < 1) {
		return fmt.Errorf("failureRateThreshold must be in (0,1), got %v", c.FailureRateThreshold)
	}
	if c.VolumeThreshold < 0 {
		return fmt.Errorf("volumeThreshold must be >= 0, got %v", c.VolumeThreshold)
	}
	if c.SpikeMultiplier < 1 {
		return fmt.Errorf("spikeMultiplier must be >= 1, got %v", c.SpikeMultiplier)
	}
	return nil
}

// DetectFailureSpike fires when the failed share of recent reaches the
// threshold. Windows shorter than MinFailureSample never fire.
func DetectFailureSpike(recent []payment.Event, cfg Config) *Alert {
	if len(recent) < MinFailureSample {
		return nil
	}
	failed := 0
	for _, ev := range recent {
		if ev.Failed() {
			failed++
		}
	}
	failureRate := float64(failed) / float64(len(recent))
	if failureRate < cfg.FailureRateThreshold {
		return nil
	}
	return newAlert(KindFailureSpike, SeverityError,
		fmt.Sprintf("High failure rate detected: %d%% of recent payments failed", percent(failureRate)))
}

// DetectVolumeSpike fires when current volume is at least SpikeMultiplier
// times the previous volume and no lower than VolumeThreshold. A zero
// baseline never fires.
func DetectVolumeSpike(currentVolume, previousVolume float64, cfg Config) *Alert {
	if previousVolume == 0 {
		return nil
	}
	ratio := currentVolume / previousVolume
	if ratio < cfg.SpikeMultiplier || currentVolume < cfg.VolumeThreshold {
		return nil
	}
	return newAlert(KindVolumeSpike, SeverityWarning,
		fmt.Sprintf("Volume spike detected: %d%% above baseline", percent(ratio-1)))
}

// DetectLowSuccessRate fires when successRate is strictly below threshold.
func DetectLowSuccessRate(successRate, threshold float64) *Alert {
	if successRate >= threshold {
		return nil
	}
	return newAlert(KindLowSuccessRate, SeverityWarning,
		fmt.Sprintf("Low success rate: %d%%", percent(successRate)))
}

// Input is everything one evaluation cycle looks at.
type Input struct {
	Recent              []payment.Event
	Current             analytics.Metrics
	Previous            *analytics.Metrics // nil on the first cycle
	Config              Config
	LowSuccessThreshold float64
}

// Evaluate runs every detector and returns the alerts that fired, ordered
// failure_spike, volume_spike, low_success_rate.
func Evaluate(in Input) []Alert {
	var out []Alert
	if a := DetectFailureSpike(in.Recent, in.Config); a != nil {
		out = append(out, *a)
	}
	if in.Previous != nil {
		if a := DetectVolumeSpike(in.Current.TotalVolume, in.Previous.TotalVolume, in.Config); a != nil {
			out = append(out, *a)
		}
	}
	if a := DetectLowSuccessRate(in.Current.SuccessRate, in.LowSuccessThreshold); a != nil {
		out = append(out, *a)
	}
	return out
}

func newAlert(kind Kind, sev Severity, msg string) *Alert {
	return &Alert{Kind: kind, Message: msg, Severity: sev, Timestamp: time.Now().UTC()}
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}
