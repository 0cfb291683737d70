package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/paypulse/internal/analytics"
	"github.com/gyaneshwarpardhi/paypulse/internal/bus"
	"github.com/gyaneshwarpardhi/paypulse/internal/config"
	"github.com/gyaneshwarpardhi/paypulse/internal/ingest"
	"github.com/gyaneshwarpardhi/paypulse/internal/metrics"
	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
	"github.com/gyaneshwarpardhi/paypulse/internal/realtime"
)

const (
	maxBatchSize = 100
	maxBodyBytes = 1 << 20
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	pipe   *ingest.Pipeline
	dist   *realtime.Distributor
	hub    *bus.Bus[realtime.Message]
	loader *config.Loader
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(pipe *ingest.Pipeline, dist *realtime.Distributor, hub *bus.Bus[realtime.Message], loader *config.Loader) http.Handler {
	h := &Handler{pipe: pipe, dist: dist, hub: hub, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/analytics/metrics", h.getMetrics)
	h.mux.HandleFunc("GET /v1/analytics/trends", h.getTrends)
	h.mux.HandleFunc("GET /v1/alerts/recent", h.recentAlerts)
	h.mux.HandleFunc("GET /v1/config", h.getConfig)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /v1/stream", h.stream)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/events — synchronous single-event ingestion.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %s", err))
		return
	}
	ev, err := payment.Decode(body)
	if err != nil {
		writeErr(w, err, nil)
		return
	}

	res, err := h.pipe.ProcessSync(r.Context(), ev)
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/events/batch — async batch ingestion (up to 100 events).
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var raw []json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchSize*maxBodyBytes)).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(raw) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(raw), maxBatchSize))
		return
	}

	jobID := uuid.New().String()
	queued, malformed := 0, 0
	for _, item := range raw {
		ev, err := payment.Decode(item)
		if err != nil {
			malformed++
			metrics.EventsRejected.WithLabelValues("malformed").Inc()
			continue
		}
		if h.pipe.ProcessAsync(ev) {
			queued++
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"jobId":     jobID,
		"total":     len(raw),
		"queued":    queued,
		"malformed": malformed,
		"rejected":  len(raw) - queued - malformed,
	})
}

// GET /v1/analytics/metrics — current snapshot.
func (h *Handler) getMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.dist.GetMetrics(r.Context())
	if err != nil {
		writeErr(w, err, m)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GET /v1/analytics/trends?period=day|week|month — defaults to day.
func (h *Handler) getTrends(w http.ResponseWriter, r *http.Request) {
	period := analytics.PeriodDay
	if q := r.URL.Query(); q.Has("period") {
		p, err := analytics.ParsePeriod(q.Get("period"))
		if err != nil {
			writeErr(w, err, nil)
			return
		}
		period = p
	}
	series, err := h.dist.GetTrends(r.Context(), period)
	if err != nil {
		writeErr(w, err, series)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// GET /v1/alerts/recent — the recent window and the alerts it triggers now.
func (h *Handler) recentAlerts(w http.ResponseWriter, r *http.Request) {
	report, err := h.dist.EvaluateNow(r.Context())
	if err != nil {
		writeErr(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /v1/config — effective settings, with the live alert thresholds.
func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.loader.Config()
	thresholds, lowSuccess := h.dist.AlertConfig()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":                 cfg.Version,
		"alerts":                  thresholds,
		"lowSuccessRateThreshold": lowSuccess,
		"recentWindow":            cfg.Distributor.RecentWindow,
		"alertMinEvents":          cfg.Distributor.AlertMinEvents,
		"storeDriver":             cfg.Store.Driver,
		"subscriberBuffer":        cfg.Bus.SubscriberBuffer,
	})
}

// POST /v1/config/reload — re-read the config file; alert thresholds apply at once.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"version":  cfg.Version,
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the ingest queue is more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.pipe.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":           "overloaded",
			"queueUtilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ready",
		"queueUtilization": util,
	})
}
