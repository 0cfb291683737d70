package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if _, err := l.Reload(); err != nil {
					slog.Warn("config reload failed, keeping previous config", "path", l.path, "err", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "err", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the config file. Invalid files are
// rejected and the current config is kept.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults. Alert thresholds are seeded
// before decoding since zero is a meaningful value for them.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Alerts: DefaultAlerts()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// DefaultAlerts returns the alert thresholds used when the file sets none.
func DefaultAlerts() AlertConf {
	return AlertConf{
		FailureRateThreshold:    0.2,
		VolumeThreshold:         1000,
		SpikeMultiplier:         1.5,
		LowSuccessRateThreshold: 0.8,
	}
}

// ApplyDefaults fills zero-valued fields where zero is never valid.
func ApplyDefaults(cfg *Config) {
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.QueueDepth == 0 {
		cfg.Ingest.QueueDepth = 10000
	}
	if cfg.Ingest.TimeoutMs == 0 {
		cfg.Ingest.TimeoutMs = 5000
	}
	if cfg.Bus.SubscriberBuffer == 0 {
		cfg.Bus.SubscriberBuffer = 256
	}
	if cfg.Distributor.RecentWindow == 0 {
		cfg.Distributor.RecentWindow = 20
	}
	if cfg.Distributor.AlertMinEvents == 0 {
		cfg.Distributor.AlertMinEvents = 5
	}
	if cfg.Distributor.TrendRefreshIntervalMs == 0 {
		cfg.Distributor.TrendRefreshIntervalMs = 30000
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "memory"
	}
	if cfg.Store.KeyPrefix == "" {
		cfg.Store.KeyPrefix = "paypulse"
	}
	if cfg.Source.Exchange == "" {
		cfg.Source.Exchange = "payments"
	}
	if cfg.Source.Queue == "" {
		cfg.Source.Queue = "paypulse.events"
	}
	if len(cfg.Source.RoutingKeys) == 0 {
		cfg.Source.RoutingKeys = []string{"payment.received", "payment.failed", "payment.refunded"}
	}
}
