package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/paypulse/internal/alert"
	"github.com/gyaneshwarpardhi/paypulse/internal/analytics"
	"github.com/gyaneshwarpardhi/paypulse/internal/api"
	"github.com/gyaneshwarpardhi/paypulse/internal/bus"
	"github.com/gyaneshwarpardhi/paypulse/internal/config"
	"github.com/gyaneshwarpardhi/paypulse/internal/ingest"
	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
	"github.com/gyaneshwarpardhi/paypulse/internal/realtime"
	"github.com/gyaneshwarpardhi/paypulse/internal/source"
	"github.com/gyaneshwarpardhi/paypulse/internal/store"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/paypulse.yaml", "Path to YAML config")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Event store ───────────────────────────────────────────────────────────
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open event store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("event store ready", "driver", cfg.Store.Driver)

	// ── Buses ─────────────────────────────────────────────────────────────────
	events := bus.New[payment.Event](bus.WithName("events"), bus.WithBuffer(cfg.Bus.SubscriberBuffer))
	hub := bus.New[realtime.Message](bus.WithName("stream"), bus.WithBuffer(cfg.Bus.SubscriberBuffer))

	// ── Distributor ───────────────────────────────────────────────────────────
	thresholds, lowSuccess := alertSettings(cfg)
	dist := realtime.New(analytics.New(st), events, hub,
		realtime.WithLogger(logger),
		realtime.WithRecentWindow(cfg.Distributor.RecentWindow),
		realtime.WithAlertMinEvents(cfg.Distributor.AlertMinEvents),
		realtime.WithMinRecomputeInterval(time.Duration(cfg.Distributor.MinRecomputeIntervalMs)*time.Millisecond),
		realtime.WithTrendRefreshInterval(time.Duration(cfg.Distributor.TrendRefreshIntervalMs)*time.Millisecond),
		realtime.WithAlertConfig(thresholds, lowSuccess),
	)
	dist.Start(ctx)

	// ── Ingest pipeline ───────────────────────────────────────────────────────
	pipe := ingest.New(ctx, st, events, cfg.Ingest, logger)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		dist.SetAlertConfig(alertSettings(newCfg))
		slog.Info("config hot-reloaded; only alert thresholds apply without restart", "version", newCfg.Version)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── AMQP source ───────────────────────────────────────────────────────────
	if cfg.Source.AMQPURL != "" {
		consumer, err := source.NewAMQPConsumer(cfg.Source, pipe, logger)
		if err != nil {
			slog.Error("failed to connect amqp source", "err", err)
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("amqp source stopped", "err", err)
			}
		}()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(pipe, dist, hub, loader)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	pipe.Shutdown()
	cancel()
	dist.Stop()
	hub.Close()
	slog.Info("goodbye")
}

func alertSettings(cfg *config.Config) (alert.Config, float64) {
	return alert.Config{
		FailureRateThreshold: cfg.Alerts.FailureRateThreshold,
		VolumeThreshold:      cfg.Alerts.VolumeThreshold,
		SpikeMultiplier:      cfg.Alerts.SpikeMultiplier,
	}, cfg.Alerts.LowSuccessRateThreshold
}
