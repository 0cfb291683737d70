// Package realtime turns the payment event stream into pushed updates:
// the raw event, a fresh metrics snapshot, any alerts it triggers and,
// on a slower cadence, refreshed trend series.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/paypulse/internal/alert"
	"github.com/gyaneshwarpardhi/paypulse/internal/analytics"
	"github.com/gyaneshwarpardhi/paypulse/internal/bus"
	"github.com/gyaneshwarpardhi/paypulse/internal/metrics"
	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

const (
	DefaultRecentWindow         = 20
	DefaultAlertMinEvents       = 5
	DefaultTrendRefreshInterval = 30 * time.Second
)

type alertSettings struct {
	cfg        alert.Config
	lowSuccess float64
}

// AlertReport is an on-demand evaluation of the current window.
type AlertReport struct {
	Recent []payment.Event `json:"recent"`
	Alerts []alert.Alert   `json:"alerts"`
}

// Distributor consumes the event bus and publishes Messages on the stream hub.
type Distributor struct {
	engine *analytics.Engine
	events *bus.Bus[payment.Event]
	out    *bus.Bus[Message]
	logger *slog.Logger

	window       int
	minEvents    int
	recomputeGap time.Duration
	trendEvery   time.Duration

	alerts atomic.Pointer[alertSettings]

	mu       sync.Mutex
	recent   []payment.Event // replaced on every append, never mutated
	current   *analytics.Metrics
	currentAt time.Time // start of the compute that produced current
	previous  *analytics.Metrics
	trends   map[analytics.Period]analytics.TrendSeries

	kick   chan struct{}
	sub    *bus.Subscription[payment.Event]
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Distributor.
type Option func(*Distributor)

// WithLogger sets the distributor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Distributor) { d.logger = l }
}

// WithRecentWindow sets how many recent events alert evaluation looks at.
func WithRecentWindow(n int) Option {
	return func(d *Distributor) {
		if n > 0 {
			d.window = n
		}
	}
}

// WithAlertMinEvents sets how many events the window must hold before alerts
// are evaluated.
func WithAlertMinEvents(n int) Option {
	return func(d *Distributor) {
		if n > 0 {
			d.minEvents = n
		}
	}
}

// WithMinRecomputeInterval rate-limits metrics recomputation. Zero recomputes
// after every event.
func WithMinRecomputeInterval(gap time.Duration) Option {
	return func(d *Distributor) { d.recomputeGap = gap }
}

// WithTrendRefreshInterval sets the trend recompute cadence.
func WithTrendRefreshInterval(every time.Duration) Option {
	return func(d *Distributor) {
		if every > 0 {
			d.trendEvery = every
		}
	}
}

// WithAlertConfig sets the initial detector thresholds.
func WithAlertConfig(cfg alert.Config, lowSuccess float64) Option {
	return func(d *Distributor) { d.alerts.Store(&alertSettings{cfg: cfg, lowSuccess: lowSuccess}) }
}

// New creates a Distributor reading events and writing to out. Call Start to
// begin consuming.
func New(engine *analytics.Engine, events *bus.Bus[payment.Event], out *bus.Bus[Message], opts ...Option) *Distributor {
	d := &Distributor{
		engine:     engine,
		events:     events,
		out:        out,
		logger:     slog.Default(),
		window:     DefaultRecentWindow,
		minEvents:  DefaultAlertMinEvents,
		trendEvery: DefaultTrendRefreshInterval,
		trends:     make(map[analytics.Period]analytics.TrendSeries),
		kick:       make(chan struct{}, 1),
	}
	d.alerts.Store(&alertSettings{cfg: alert.DefaultConfig(), lowSuccess: alert.DefaultLowSuccessThreshold})
	for _, fn := range opts {
		fn(d)
	}
	return d
}

// Start subscribes to the event bus and launches the consumer, the recompute
// worker and the trend ticker.
func (d *Distributor) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.sub = d.events.Subscribe()

	limit := rate.Inf
	if d.recomputeGap > 0 {
		limit = rate.Every(d.recomputeGap)
	}
	limiter := rate.NewLimiter(limit, 1)

	d.wg.Add(3)
	go func() {
		defer d.wg.Done()
		d.consume(ctx)
	}()
	go func() {
		defer d.wg.Done()
		d.recomputeLoop(ctx, limiter)
	}()
	go func() {
		defer d.wg.Done()
		d.trendLoop(ctx)
	}()
	d.logger.Info("distributor started",
		"window", d.window, "alert_min_events", d.minEvents,
		"min_recompute_interval", d.recomputeGap, "trend_refresh_interval", d.trendEvery)
}

// Stop releases the bus subscription and waits for the goroutines to exit.
func (d *Distributor) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	d.events.Unsubscribe(d.sub)
	d.wg.Wait()
}

func (d *Distributor) consume(ctx context.Context) {
	for {
		select {
		case ev, ok := <-d.sub.C():
			if !ok {
				return
			}
			d.handle(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Distributor) handle(ev payment.Event) {
	d.out.Publish(Message{Channel: ChannelPaymentEvent, Data: ev})

	d.mu.Lock()
	keep := len(d.recent)
	if keep >= d.window {
		keep = d.window - 1
	}
	next := make([]payment.Event, 0, keep+1)
	next = append(next, d.recent[len(d.recent)-keep:]...)
	d.recent = append(next, ev)
	d.mu.Unlock()

	select {
	case d.kick <- struct{}{}:
	default: // a recompute is already pending and will see this event
	}
}

func (d *Distributor) recomputeLoop(ctx context.Context, limiter *rate.Limiter) {
	for {
		select {
		case <-d.kick:
		case <-ctx.Done():
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		d.recompute(ctx)
	}
}

func (d *Distributor) recompute(ctx context.Context) {
	start := time.Now()
	m, err := d.engine.ComputeMetrics(ctx)
	metrics.RecomputeDuration.Observe(metrics.SinceMs(start))
	if err != nil {
		if ctx.Err() == nil {
			metrics.Recomputes.WithLabelValues("metrics", "error").Inc()
			d.logger.Warn("metrics recompute failed, keeping last snapshot", "err", err)
		}
		return
	}
	metrics.Recomputes.WithLabelValues("metrics", "success").Inc()

	d.mu.Lock()
	recent, prev := d.recent, d.previous
	d.setCurrentLocked(m, start)
	d.mu.Unlock()

	var fired []alert.Alert
	if len(recent) >= d.minEvents {
		s := d.alerts.Load()
		fired = alert.Evaluate(alert.Input{
			Recent:              recent,
			Current:             m,
			Previous:            prev,
			Config:              s.cfg,
			LowSuccessThreshold: s.lowSuccess,
		})
	}

	d.out.Publish(Message{Channel: ChannelMetricsUpdate, Data: m})
	for _, a := range fired {
		metrics.AlertsRaised.WithLabelValues(string(a.Kind)).Inc()
		d.logger.Info("alert raised", "kind", a.Kind, "severity", a.Severity, "message", a.Message)
		d.out.Publish(Message{Channel: ChannelAlert, Data: a})
	}

	d.mu.Lock()
	d.previous = &m
	d.mu.Unlock()
}

func (d *Distributor) trendLoop(ctx context.Context) {
	d.refreshTrends(ctx)
	ticker := time.NewTicker(d.trendEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.refreshTrends(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Distributor) refreshTrends(ctx context.Context) {
	for _, p := range analytics.Periods {
		series, err := d.engine.ComputeTrends(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.Recomputes.WithLabelValues("trends", "error").Inc()
			d.logger.Warn("trend recompute failed, keeping last series", "period", p, "err", err)
			continue
		}
		metrics.Recomputes.WithLabelValues("trends", "success").Inc()
		d.mu.Lock()
		d.trends[p] = series
		d.mu.Unlock()
		d.out.Publish(Message{Channel: ChannelTrendsUpdate, Data: TrendsUpdate{Period: p, Points: series}})
	}
}

// GetMetrics computes a fresh snapshot. If the store cannot be read it
// returns the last-known-good snapshot together with the error.
func (d *Distributor) GetMetrics(ctx context.Context) (analytics.Metrics, error) {
	start := time.Now()
	m, err := d.engine.ComputeMetrics(ctx)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		if d.current != nil {
			return *d.current, err
		}
		return analytics.EmptyMetrics(), err
	}
	d.setCurrentLocked(m, start)
	return m, nil
}

// setCurrentLocked replaces the last-known-good snapshot unless a compute
// that started later already did. Callers hold d.mu.
func (d *Distributor) setCurrentLocked(m analytics.Metrics, startedAt time.Time) {
	if d.current != nil && startedAt.Before(d.currentAt) {
		return
	}
	d.current = &m
	d.currentAt = startedAt
}

// GetTrends computes a fresh series for period, falling back to the cached
// series on store failure. An unknown period fails with ErrInvalidPeriod.
func (d *Distributor) GetTrends(ctx context.Context, period analytics.Period) (analytics.TrendSeries, error) {
	series, err := d.engine.ComputeTrends(ctx, period)
	if errors.Is(err, analytics.ErrInvalidPeriod) {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		if cached, ok := d.trends[period]; ok {
			return cached, err
		}
		return analytics.TrendSeries{}, err
	}
	d.trends[period] = series
	return series, nil
}

// SetAlertConfig swaps the detector thresholds. The next evaluation uses them.
func (d *Distributor) SetAlertConfig(cfg alert.Config, lowSuccess float64) {
	d.alerts.Store(&alertSettings{cfg: cfg, lowSuccess: lowSuccess})
	d.logger.Info("alert thresholds updated",
		"failure_rate", cfg.FailureRateThreshold, "volume", cfg.VolumeThreshold,
		"spike_multiplier", cfg.SpikeMultiplier, "low_success", lowSuccess)
}

// AlertConfig returns the thresholds currently in force.
func (d *Distributor) AlertConfig() (alert.Config, float64) {
	s := d.alerts.Load()
	return s.cfg, s.lowSuccess
}

// Recent returns a copy of the recent event window, oldest first.
func (d *Distributor) Recent() []payment.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]payment.Event, len(d.recent))
	copy(out, d.recent)
	return out
}

// EvaluateNow runs the detectors over the current window and a fresh
// snapshot without publishing anything. The window gate applies as in the
// streaming path.
func (d *Distributor) EvaluateNow(ctx context.Context) (AlertReport, error) {
	m, err := d.engine.ComputeMetrics(ctx)
	if err != nil {
		return AlertReport{}, err
	}
	d.mu.Lock()
	recent, prev := d.recent, d.previous
	d.mu.Unlock()

	report := AlertReport{Recent: make([]payment.Event, len(recent)), Alerts: []alert.Alert{}}
	copy(report.Recent, recent)
	if len(recent) >= d.minEvents {
		s := d.alerts.Load()
		report.Alerts = append(report.Alerts, alert.Evaluate(alert.Input{
			Recent:              recent,
			Current:             m,
			Previous:            prev,
			Config:              s.cfg,
			LowSuccessThreshold: s.lowSuccess,
		})...)
	}
	return report, nil
}
