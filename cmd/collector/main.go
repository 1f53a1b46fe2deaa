package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"reeltrack/internal/collector"
	"reeltrack/internal/config"
	"reeltrack/internal/publisher"
	"reeltrack/internal/scheduler"
	"reeltrack/internal/service"
	"reeltrack/internal/storage"
	"reeltrack/internal/storage/memory"
	"reeltrack/internal/storage/postgres"
	"reeltrack/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newStore(cfg.Storage)
	if err := store.Init(ctx); err != nil {
		logger.Error("failed to initialize store", "error", err, "backend", cfg.Storage.Backend)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("store initialized", "backend", cfg.Storage.Backend)

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	client := collector.New(collector.Config{
		BaseURL:        cfg.Collector.BaseURL,
		Timeout:        cfg.Collector.Timeout,
		MaxAttempts:    cfg.Collector.Retry.MaxAttempts,
		InitialBackoff: cfg.Collector.Retry.InitialBackoff,
		MaxBackoff:     cfg.Collector.Retry.MaxBackoff,
	}, logger)

	orchestrator := service.NewOrchestrator(store, client, pub, logger, cfg.Run)

	sched := scheduler.NewScheduler(orchestrator, cfg.Run.Interval, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting collector",
		"interval", cfg.Run.Interval,
		"dry_run", cfg.Run.DryRun,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func newStore(cfg config.StorageConfig) storage.Store {
	switch cfg.Backend {
	case "memory":
		return memory.New()
	case "postgres":
		return postgres.New(cfg.Postgres.DSN())
	default:
		return sqlite.New(cfg.Path)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
