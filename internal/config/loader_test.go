package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gyaneshwarpardhi/paypulse/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paypulse.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("version: v1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Ingest.Workers != 4 || cfg.Ingest.QueueDepth != 10000 {
		t.Errorf("unexpected ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Distributor.RecentWindow != 20 || cfg.Distributor.AlertMinEvents != 5 {
		t.Errorf("unexpected distributor defaults: %+v", cfg.Distributor)
	}
	if cfg.Alerts.FailureRateThreshold != 0.2 || cfg.Alerts.SpikeMultiplier != 1.5 ||
		cfg.Alerts.VolumeThreshold != 1000 || cfg.Alerts.LowSuccessRateThreshold != 0.8 {
		t.Errorf("unexpected alert defaults: %+v", cfg.Alerts)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("expected memory store by default, got %q", cfg.Store.Driver)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestParse_ExplicitZeroThresholdsKept(t *testing.T) {
	cfg, err := config.Parse([]byte(`
version: v1
alerts:
  volume_threshold: 0
  low_success_rate_threshold: 0
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Alerts.VolumeThreshold != 0 || cfg.Alerts.LowSuccessRateThreshold != 0 {
		t.Errorf("explicit zero thresholds were overwritten: %+v", cfg.Alerts)
	}
	// Unset siblings still take their defaults.
	if cfg.Alerts.FailureRateThreshold != 0.2 || cfg.Alerts.SpikeMultiplier != 1.5 {
		t.Errorf("unexpected alert defaults: %+v", cfg.Alerts)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("zero thresholds are valid: %v", err)
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg, err := config.Parse([]byte(`
version: v1
alerts:
  failure_rate_threshold: 1.5
  spike_multiplier: 0.5
  volume_threshold: -1
store:
  driver: mongo
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"failure_rate_threshold", "spike_multiplier", "volume_threshold", "store.driver"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in error, got: %v", want, err)
		}
	}
}

func TestValidate_MissingVersion(t *testing.T) {
	cfg, _ := config.Parse([]byte("ingest:\n  workers: 2\n"))
	if err := config.Validate(cfg); err == nil {
		t.Error("expected error for missing version")
	}
}

func TestLoader_ReloadNotifies(t *testing.T) {
	path := writeConfig(t, "version: v1\n")
	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	var got *config.Config
	l.OnChange(func(c *config.Config) { got = c })

	if err := os.WriteFile(path, []byte("version: v2\nalerts:\n  failure_rate_threshold: 0.35\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got == nil || got.Alerts.FailureRateThreshold != 0.35 {
		t.Fatalf("callback not invoked with new config: %+v", got)
	}
	if l.Config().Version != "v2" {
		t.Errorf("expected current version v2, got %q", l.Config().Version)
	}
}

func TestLoader_ReloadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "version: v1\n")
	l, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	called := false
	l.OnChange(func(*config.Config) { called = true })

	if err := os.WriteFile(path, []byte("version: v1\nalerts:\n  failure_rate_threshold: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reload(); err == nil {
		t.Fatal("expected reload of invalid config to fail")
	}
	if called {
		t.Error("callback must not run for an invalid config")
	}
	if l.Config().Alerts.FailureRateThreshold != 0.2 {
		t.Errorf("previous config should be kept, got %+v", l.Config().Alerts)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	if _, err := config.NewLoader(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}
