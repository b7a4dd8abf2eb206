package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darkace1998/FlowSentry/internal/analysis"
	"github.com/darkace1998/FlowSentry/internal/client"
	"github.com/darkace1998/FlowSentry/internal/config"
	"github.com/darkace1998/FlowSentry/internal/logging"
	"github.com/darkace1998/FlowSentry/internal/metrics"
	"github.com/darkace1998/FlowSentry/internal/notify"
	"github.com/darkace1998/FlowSentry/internal/session"
	"github.com/darkace1998/FlowSentry/internal/storage"
	"github.com/darkace1998/FlowSentry/internal/web"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	log := logging.Default()

	// Determine config file path.
	cfgPath := "configs/flowsentry.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	// Load configuration. A missing file means defaults.
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("Config file %s not found, using defaults", cfgPath)
		cfg = config.Defaults()
		cfg.ApplyEnv()
		err = cfg.Validate()
	}
	if err != nil {
		log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	log.SetLevel(logging.ParseLevel(cfg.Log.Level))

	log.Info("FlowSentry %s starting, backend %s", Version, cfg.Backend.BaseURL)

	// Alert board and its sinks.
	board := analysis.NewAlertBoard(notify.NewLogSink(log))
	var natsSink *notify.NATSSink
	if cfg.Alerts.NATSURL != "" {
		natsSink, err = notify.NewNATSSink(cfg.Alerts.NATSURL, cfg.Alerts.Subject)
		if err != nil {
			log.Warn("NATS alert sink disabled: %v", err)
		} else {
			board.AddSink(natsSink)
		}
	}
	var redisSink *notify.RedisSink
	if cfg.Alerts.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout)
		redisSink, err = notify.NewRedisSink(ctx, cfg.Alerts.RedisURL, cfg.Alerts.RedisChannel, cfg.Alerts.RedisTTL)
		cancel()
		if err != nil {
			log.Warn("Redis alert sink disabled: %v", err)
		} else {
			board.AddSink(redisSink)
		}
	}

	// Detection and reconciliation.
	detector := analysis.NewDetector(cfg.Analysis.DoSThreshold, analysis.WithAlerter(board))
	store := storage.NewFlowStore(detector)
	sess := session.New(store)
	board.AddSink(sess)
	board.Start()

	// Metrics.
	collector := metrics.NewCollector(sess, board)
	registry := metrics.NewRegistry(collector)
	backend := metrics.InstrumentBackend(client.New(cfg.Backend.BaseURL, cfg.Backend.Timeout), registry)

	// Polling.
	sched := session.NewScheduler(backend, sess, cfg.Poll)
	sched.Start()

	// Start web server.
	srv := web.NewServer(cfg.Web, sess, sched, board, metrics.Handler(registry))
	srv.SetAboutInfo(cfg, Version, time.Now())
	srv.SetIPStatsSource(backend)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error("Web server error: %v", err)
		}
	}()

	fmt.Printf("FlowSentry %s is running on %s. Press Ctrl+C to stop.\n", Version, cfg.Web.Listen)

	// Wait for shutdown signal.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down…")
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Warn("Web server shutdown error: %v", err)
	}

	board.Stop()
	if natsSink != nil {
		if err := natsSink.Close(); err != nil {
			log.Warn("NATS drain error: %v", err)
		}
	}
	if redisSink != nil {
		if err := redisSink.Close(); err != nil {
			log.Warn("Redis close error: %v", err)
		}
	}

	log.Info("FlowSentry stopped.")
}
