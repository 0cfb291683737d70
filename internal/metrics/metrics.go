package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypulse_events_ingested_total",
		Help: "Total number of payment events persisted and published, labelled by event type.",
	}, []string{"type"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypulse_events_rejected_total",
		Help: "Total number of payment events refused before publishing, labelled by reason.",
	}, []string{"reason"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paypulse_events_dropped_total",
		Help: "Total number of events rejected due to a full ingest queue.",
	})

	BusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypulse_bus_dropped_total",
		Help: "Total number of queued items evicted from slow subscribers, labelled by bus.",
	}, []string{"bus"})

	BusSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "paypulse_bus_subscribers",
		Help: "Current number of subscribers, labelled by bus.",
	}, []string{"bus"})

	Recomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypulse_recomputes_total",
		Help: "Total number of metrics/trends recomputations, labelled by kind and status.",
	}, []string{"kind", "status"})

	RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paypulse_recompute_duration_ms",
		Help:    "Metrics recomputation latency in milliseconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paypulse_alerts_raised_total",
		Help: "Total number of alerts raised, labelled by kind.",
	}, []string{"kind"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paypulse_ingest_duration_ms",
		Help:    "End-to-end synchronous ingest latency in milliseconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paypulse_queue_utilization_ratio",
		Help: "Current ingest queue utilization (0–1).",
	})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paypulse_stream_clients",
		Help: "Currently connected WebSocket stream clients.",
	})
)

// SinceMs returns the time elapsed since start in fractional milliseconds,
// the unit of the duration histograms.
func SinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
