package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/trainer-leaderboard/internal/config"
	"github.com/trainer-leaderboard/internal/fields"
	"github.com/trainer-leaderboard/internal/handler"
	"github.com/trainer-leaderboard/internal/kafka"
	"github.com/trainer-leaderboard/internal/metrics"
	"github.com/trainer-leaderboard/internal/postgres"
	"github.com/trainer-leaderboard/internal/redis"
	"github.com/trainer-leaderboard/internal/service"
	"github.com/trainer-leaderboard/internal/validator"
	"github.com/trainer-leaderboard/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table := fields.Default()
	if cfg.Validation.FieldsFile != "" {
		t, err := fields.Load(cfg.Validation.FieldsFile)
		if err != nil {
			return fmt.Errorf("loading field table: %w", err)
		}
		table = t
	}
	opts, err := cfg.Validation.Options()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	checks := map[string]handler.Pinger{"postgres": repo}

	// The max index only feeds the leader warning, so the server runs without it.
	var index service.MaxIndex
	var indexWorker *worker.MaxIndexWorker
	if cfg.MaxIndex.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		maxIndex, err := redis.NewMaxIndex(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, leader check disabled", "error", err)
		} else {
			defer maxIndex.Close()
			index = maxIndex
			checks["redis"] = maxIndex
			indexWorker = worker.NewMaxIndexWorker(repo, maxIndex, &cfg.MaxIndex, m, logger)
			if err := indexWorker.Start(ctx); err != nil {
				return fmt.Errorf("starting max index worker: %w", err)
			}
		}
	}

	submissions := service.NewSubmissionService(
		repo,
		index,
		validator.New(table, opts),
		&cfg.Submission,
		m,
		logger,
	)

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		consumer, err = kafka.NewConsumer(&cfg.Kafka, submissions, m, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without imports", "error", err)
		} else if err := consumer.Start(); err != nil {
			logger.Warn("failed to start Kafka consumer, continuing without imports", "error", err)
			consumer = nil
		}
	}

	var rebuilder handler.Rebuilder
	if indexWorker != nil {
		rebuilder = indexWorker
	}
	httpHandler := handler.NewHandler(checks, registry, rebuilder, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		logger.Error("HTTP server error", "error", err)
	}

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if indexWorker != nil {
		if err := indexWorker.Stop(); err != nil {
			logger.Error("failed to stop max index worker", "error", err)
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	logger.Info("server stopped")
	return nil
}
