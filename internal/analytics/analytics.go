// Package analytics derives metrics snapshots and trend series from the
// payment log. Every result is recomputed from a store scan, so calling
// the same operation twice without intervening writes yields the same value.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

// NoMethod is reported as the top payment method when there are no payments.
const NoMethod = "N/A"

// ErrInvalidPeriod is returned for trend periods other than day, week, month.
var ErrInvalidPeriod = errors.New("invalid trend period")

// Source is the read side of the event store.
type Source interface {
	Range(ctx context.Context, from, to time.Time) ([]payment.Payment, error)
}

// Metrics is a point-in-time aggregate over every stored payment.
type Metrics struct {
	TotalVolume      float64 `json:"totalVolume"`
	AverageAmount    float64 `json:"averageAmount"`
	SuccessRate      float64 `json:"successRate"`
	TopPaymentMethod string  `json:"topPaymentMethod"`
	PeakHour         int     `json:"peakHour"`
}

// EmptyMetrics is the snapshot of an empty store.
func EmptyMetrics() Metrics {
	return Metrics{TopPaymentMethod: NoMethod}
}

// TrendPoint aggregates the payments of one bucket.
type TrendPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	Amount      float64   `json:"amount"`
	Count       int       `json:"count"`
	SuccessRate float64   `json:"successRate"`
}

// TrendSeries is ordered by strictly increasing Timestamp. Buckets without
// payments are omitted, so points are not necessarily evenly spaced.
type TrendSeries []TrendPoint

// Period selects a trend lookback window and bucket size.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Periods lists every supported period.
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth}

// ParsePeriod validates s. It never falls back to a default.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q (want day, week or month)", ErrInvalidPeriod, s)
}

// Lookback returns how far back from now the period reaches.
func (p Period) Lookback() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	}
	return 0
}

// bucket truncates t to the period's granularity in UTC: hours for day,
// calendar days otherwise.
func (p Period) bucket(t time.Time) time.Time {
	t = t.UTC()
	if p == PeriodDay {
		return t.Truncate(time.Hour)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Engine computes metrics and trends from a Source.
type Engine struct {
	src Source
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for trend lookback windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine reading from src.
func New(src Source, opts ...Option) *Engine {
	e := &Engine{src: src, now: time.Now}
	for _, fn := range opts {
		fn(e)
	}
	return e
}

// ComputeMetrics scans every payment and aggregates it.
func (e *Engine) ComputeMetrics(ctx context.Context) (Metrics, error) {
	payments, err := e.src.Range(ctx, time.Time{}, time.Time{})
	if err != nil {
		return Metrics{}, fmt.Errorf("compute metrics: %w", err)
	}
	return Summarize(payments), nil
}

// ComputeTrends buckets the payments created within the period's lookback.
func (e *Engine) ComputeTrends(ctx context.Context, period Period) (TrendSeries, error) {
	if _, err := ParsePeriod(string(period)); err != nil {
		return nil, err
	}
	from := e.now().Add(-period.Lookback())
	payments, err := e.src.Range(ctx, from, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("compute %s trends: %w", period, err)
	}
	return Bucketize(payments, period), nil
}

// Summarize aggregates payments into a Metrics snapshot. Method ties go to
// the method seen first; hour ties go to the earliest hour.
func Summarize(payments []payment.Payment) Metrics {
	if len(payments) == 0 {
		return EmptyMetrics()
	}
	var (
		total      float64
		successes  int
		methodSeen []string
		methodHits = make(map[string]int)
		hourHits   [24]int
	)
	for _, p := range payments {
		total += p.Amount
		if p.Status == payment.StatusSuccess {
			successes++
		}
		if _, ok := methodHits[p.Method]; !ok {
			methodSeen = append(methodSeen, p.Method)
		}
		methodHits[p.Method]++
		hourHits[p.CreatedAt.UTC().Hour()]++
	}

	top, topHits := NoMethod, 0
	for _, m := range methodSeen {
		if methodHits[m] > topHits {
			top, topHits = m, methodHits[m]
		}
	}
	peak := 0
	for h := 1; h < len(hourHits); h++ {
		if hourHits[h] > hourHits[peak] {
			peak = h
		}
	}

	n := float64(len(payments))
	return Metrics{
		TotalVolume:      total,
		AverageAmount:    math.Round(total / n),
		SuccessRate:      rate(successes, len(payments)),
		TopPaymentMethod: top,
		PeakHour:         peak,
	}
}

// Bucketize groups payments by the period's bucket. It does not filter by
// lookback; callers pass the payments they want counted.
func Bucketize(payments []payment.Payment, period Period) TrendSeries {
	type acc struct {
		start     time.Time
		amount    float64
		count     int
		successes int
	}
	buckets := make(map[int64]*acc)
	for _, p := range payments {
		start := period.bucket(p.CreatedAt)
		a, ok := buckets[start.Unix()]
		if !ok {
			a = &acc{start: start}
			buckets[start.Unix()] = a
		}
		a.amount += p.Amount
		a.count++
		if p.Status == payment.StatusSuccess {
			a.successes++
		}
	}

	series := make(TrendSeries, 0, len(buckets))
	for _, a := range buckets {
		series = append(series, TrendPoint{
			Timestamp:   a.start,
			Amount:      a.amount,
			Count:       a.count,
			SuccessRate: rate(a.successes, a.count),
		})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	return series
}

// rate returns num/den clamped to [0,1], and 0 when den is 0.
func rate(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	r := float64(num) / float64(den)
	return math.Max(0, math.Min(1, r))
}
