package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"careops-alert-engine/config"
	"careops-alert-engine/internal/channel"
	"careops-alert-engine/internal/engine"
	"careops-alert-engine/internal/ingest"
	ingestmqtt "careops-alert-engine/internal/ingest/mqtt"
	ingestnats "careops-alert-engine/internal/ingest/nats"
	"careops-alert-engine/internal/ledger"
	redisledger "careops-alert-engine/internal/ledger/redis"
	"careops-alert-engine/internal/logger"
	"careops-alert-engine/internal/metrics"
	"careops-alert-engine/internal/rule"
	"careops-alert-engine/internal/stats"
	"careops-alert-engine/internal/subscription"
)

func main() {
	// Command line flags for config and seed rules
	configPath := flag.String("config", "config/config.json", "path to config file")
	rulesPath := flag.String("rules", "", "path to seed rules directory (empty = no seed rules)")

	// Optional override flags
	workersOverride := flag.Int("workers", 0, "override number of worker threads (0 = use config)")
	queueSizeOverride := flag.Int("queue-size", 0, "override size of processing queue (0 = use config)")
	metricsAddrOverride := flag.String("metrics-addr", "", "override metrics server address (empty = use config)")
	metricsPathOverride := flag.String("metrics-path", "", "override metrics endpoint path (empty = use config)")
	metricsIntervalOverride := flag.Duration("metrics-interval", 0, "override metrics collection interval (0 = use config)")

	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Apply any command line overrides
	cfg.ApplyOverrides(
		*workersOverride,
		*queueSizeOverride,
		*metricsAddrOverride,
		*metricsPathOverride,
		*metricsIntervalOverride,
	)

	// Initialize logger
	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	statsCollector := stats.NewCollector()

	// Setup metrics if enabled
	var metricsService *metrics.Metrics
	var metricsCollector *metrics.Collector
	var metricsServer *http.Server

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metricsService, err = metrics.NewMetrics(reg)
		if err != nil {
			appLogger.Fatal("failed to create metrics service", "error", err)
		}

		updateInterval, err := time.ParseDuration(cfg.Metrics.UpdateInterval)
		if err != nil {
			appLogger.Fatal("invalid metrics update interval", "error", err)
		}

		metricsCollector = metrics.NewCollector(metricsService, statsCollector, updateInterval)
		metricsCollector.Start()
		defer metricsCollector.Stop()

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			Registry:          reg,
			EnableOpenMetrics: true,
		}))

		metricsServer = &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: mux,
		}

		go func() {
			appLogger.Info("starting metrics server",
				"address", cfg.Metrics.Address,
				"path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLogger.Error("metrics server error", "error", err)
			}
		}()
	}

	// Setup signal handlers
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Execution ledger
	var execLedger ledger.Ledger
	switch cfg.Ledger.Backend {
	case "redis":
		opts := redisledger.DefaultOptions()
		opts.Addr = cfg.Ledger.Redis.Addr
		opts.Password = cfg.Ledger.Redis.Password
		opts.DB = cfg.Ledger.Redis.DB
		if cfg.Ledger.Redis.KeyPrefix != "" {
			opts.KeyPrefix = cfg.Ledger.Redis.KeyPrefix
		}
		execLedger, err = redisledger.New(opts)
		if err != nil {
			appLogger.Fatal("failed to connect to redis ledger", "error", err)
		}
		appLogger.Info("using redis ledger", "addr", cfg.Ledger.Redis.Addr)
	default:
		execLedger = ledger.NewInMemoryLedger()
	}

	// Channel adapters
	registry := channel.NewRegistry()
	registry.Register(channel.NewSlackAdapter(nil))
	registry.Register(channel.NewWebhookAdapter(nil))
	registry.Register(channel.NewAPICallAdapter(nil))
	registry.Register(channel.NewBannerAdapter(0))
	if cfg.Channels.Email.Enabled {
		registry.Register(channel.NewEmailAdapter(
			cfg.Channels.Email.SMTPHost,
			cfg.Channels.Email.SMTPPort,
			cfg.Channels.Email.From,
			cfg.Channels.Email.Username,
			cfg.Channels.Email.Password,
		))
	}
	if cfg.Channels.SMS.Enabled {
		registry.Register(channel.NewSMSAdapter(
			cfg.Channels.SMS.GatewayURL,
			cfg.Channels.SMS.APIKey,
			nil,
		))
	}

	dispatchCfg := engine.DispatcherConfig{
		MaxParallel:    cfg.Dispatch.MaxParallel,
		Timeout:        cfg.DispatchTimeout(),
		MaxRetries:     cfg.Dispatch.MaxRetries,
		InitialBackoff: cfg.DispatchBackoff(),
		BackoffFactor:  cfg.Dispatch.BackoffFactor,
	}
	dispatcher := engine.NewDispatcher(dispatchCfg, registry, appLogger, metricsService)

	// Subscription router with periodic digest flushing
	subRepo := subscription.NewRepository()
	subRouter := subscription.NewRouter(subRepo,
		&subscription.LogDeliverer{Logger: appLogger},
		appLogger, metricsService, statsCollector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subRouter.Start(ctx, cfg.DigestFlushInterval())
	defer subRouter.Stop()

	// Rule repository and engine
	ruleRepo := rule.NewInMemoryRepository()
	eng := engine.New(engine.Config{
		Workers:   cfg.Processing.Workers,
		QueueSize: cfg.Processing.QueueSize,
		Dispatch:  dispatchCfg,
	}, ruleRepo, dispatcher, execLedger, subRouter, appLogger, metricsService, statsCollector)

	// Seed rules
	if *rulesPath != "" {
		loader := rule.NewLoader(appLogger)
		seeds, err := loader.LoadFromDirectory(*rulesPath)
		if err != nil {
			appLogger.Fatal("failed to load seed rules", "error", err)
		}
		for i := range seeds {
			seed := seeds[i]
			created, err := eng.CreateRule(&seed)
			if err != nil {
				appLogger.Fatal("failed to create seed rule",
					"rule", seed.Name,
					"error", err)
			}
			if seed.IsActive {
				if _, err := eng.ToggleRule(created.ID, true); err != nil {
					appLogger.Fatal("failed to activate seed rule",
						"rule", seed.Name,
						"error", err)
				}
			}
		}
		appLogger.Info("seed rules loaded", "count", len(seeds))
	}

	// Event sources
	var sources []ingest.Source
	if cfg.Ingest.MQTT.Enabled {
		src, err := ingestmqtt.NewSource(&cfg.Ingest.MQTT, eng, appLogger, metricsService, statsCollector)
		if err != nil {
			appLogger.Fatal("failed to create mqtt source", "error", err)
		}
		sources = append(sources, src)
	}
	if cfg.Ingest.NATS.Enabled {
		sources = append(sources,
			ingestnats.NewSource(&cfg.Ingest.NATS, eng, appLogger, metricsService, statsCollector))
	}
	for _, src := range sources {
		if err := src.Start(); err != nil {
			appLogger.Fatal("failed to start event source", "error", err)
		}
	}

	appLogger.Info("careops-alert-engine started",
		"workers", cfg.Processing.Workers,
		"queueSize", cfg.Processing.QueueSize,
		"ledger", cfg.Ledger.Backend,
		"mqttEnabled", cfg.Ingest.MQTT.Enabled,
		"natsEnabled", cfg.Ingest.NATS.Enabled,
		"metricsEnabled", cfg.Metrics.Enabled)

	// Handle signals
	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			appLogger.Info("received SIGHUP, reopening logs")
			appLogger.Sync()
		case syscall.SIGINT, syscall.SIGTERM:
			appLogger.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			if cfg.Metrics.Enabled && metricsServer != nil {
				if err := metricsServer.Shutdown(shutdownCtx); err != nil {
					appLogger.Error("failed to shutdown metrics server", "error", err)
				}
			}

			// Stop ingest before draining the engine so no new events
			// arrive while in-flight dispatches finish.
			for _, src := range sources {
				src.Stop()
			}
			eng.Close()

			// Flush any due digests before exit.
			subRouter.Flush(time.Now())

			cancel()
			return
		}
	}
}
