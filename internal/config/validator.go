package config

import (
	"fmt"
	"strings"
)

// Validate checks the config for:
//   - Required fields
//   - Alert thresholds inside their allowed ranges
//   - A known store driver with the connection settings it needs
//
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if cfg.Ingest.Workers < 1 {
		errs = append(errs, fmt.Sprintf("ingest.workers must be >= 1, got %d", cfg.Ingest.Workers))
	}
	if cfg.Ingest.QueueDepth < 1 {
		errs = append(errs, fmt.Sprintf("ingest.queue_depth must be >= 1, got %d", cfg.Ingest.QueueDepth))
	}
	if cfg.Bus.SubscriberBuffer < 1 {
		errs = append(errs, fmt.Sprintf("bus.subscriber_buffer must be >= 1, got %d", cfg.Bus.SubscriberBuffer))
	}
	d := cfg.Distributor
	if d.RecentWindow < 10 {
		// The failure spike detector needs at least ten recent events.
		errs = append(errs, fmt.Sprintf("distributor.recent_window must be >= 10, got %d", d.RecentWindow))
	}
	if d.AlertMinEvents < 1 || d.AlertMinEvents > d.RecentWindow {
		errs = append(errs, fmt.Sprintf("distributor.alert_min_events must be in [1, recent_window], got %d", d.AlertMinEvents))
	}
	if d.MinRecomputeIntervalMs < 0 {
		errs = append(errs, "distributor.min_recompute_interval_ms must not be negative")
	}
	if d.TrendRefreshIntervalMs < 0 {
		errs = append(errs, "distributor.trend_refresh_interval_ms must not be negative")
	}

	a := cfg.Alerts
	if a.FailureRateThreshold <= 0 || a.FailureRateThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("alerts.failure_rate_threshold must be in (0,1), got %v", a.FailureRateThreshold))
	}
	if a.VolumeThreshold < 0 {
		errs = append(errs, fmt.Sprintf("alerts.volume_threshold must be >= 0, got %v", a.VolumeThreshold))
	}
	if a.SpikeMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("alerts.spike_multiplier must be >= 1, got %v", a.SpikeMultiplier))
	}
	if a.LowSuccessRateThreshold < 0 || a.LowSuccessRateThreshold > 1 {
		errs = append(errs, fmt.Sprintf("alerts.low_success_rate_threshold must be in [0,1], got %v", a.LowSuccessRateThreshold))
	}

	switch cfg.Store.Driver {
	case "memory":
	case "sqlite":
		if cfg.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for the sqlite driver")
		}
	case "redis":
		if cfg.Store.RedisAddr == "" {
			errs = append(errs, "store.redis_addr is required for the redis driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, sqlite, redis", cfg.Store.Driver))
	}

	if cfg.Source.AMQPURL != "" && cfg.Source.Queue == "" {
		errs = append(errs, "source.queue is required when source.amqp_url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
