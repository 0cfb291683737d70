package config

// Config is the top-level YAML structure.
type Config struct {
	Version     string          `yaml:"version"`
	Ingest      IngestConf      `yaml:"ingest"`
	Bus         BusConf         `yaml:"bus"`
	Distributor DistributorConf `yaml:"distributor"`
	Alerts      AlertConf       `yaml:"alerts"`
	Store       StoreConf       `yaml:"store"`
	Source      SourceConf      `yaml:"source"`
}

// IngestConf holds tunable concurrency settings for the ingest pipeline.
type IngestConf struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// BusConf sizes the per-subscriber queues of both the event bus and the
// outbound stream hub.
type BusConf struct {
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// DistributorConf tunes the realtime recompute loop.
type DistributorConf struct {
	RecentWindow           int `yaml:"recent_window"`
	AlertMinEvents         int `yaml:"alert_min_events"`
	MinRecomputeIntervalMs int `yaml:"min_recompute_interval_ms"` // 0 = recompute on every event
	TrendRefreshIntervalMs int `yaml:"trend_refresh_interval_ms"`
}

// AlertConf holds anomaly thresholds. Hot-reloadable.
type AlertConf struct {
	FailureRateThreshold    float64 `yaml:"failure_rate_threshold"`
	VolumeThreshold         float64 `yaml:"volume_threshold"`
	SpikeMultiplier         float64 `yaml:"spike_multiplier"`
	LowSuccessRateThreshold float64 `yaml:"low_success_rate_threshold"`
}

// StoreConf selects the event store backend.
type StoreConf struct {
	Driver    string `yaml:"driver"` // memory | sqlite | redis
	DSN       string `yaml:"dsn"`
	RedisAddr string `yaml:"redis_addr"`
	KeyPrefix string `yaml:"key_prefix"`
}

// SourceConf configures the optional AMQP event source. Empty URL disables it.
type SourceConf struct {
	AMQPURL     string   `yaml:"amqp_url"`
	Exchange    string   `yaml:"exchange"`
	Queue       string   `yaml:"queue"`
	RoutingKeys []string `yaml:"routing_keys"`
}
