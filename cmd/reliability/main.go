package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/balloon-reliability-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/balloon-reliability-service/internal/adapter/kafka"
	"github.com/couchcryptid/balloon-reliability-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/balloon-reliability-service/internal/adapter/postgres"
	redisadapter "github.com/couchcryptid/balloon-reliability-service/internal/adapter/redis"
	"github.com/couchcryptid/balloon-reliability-service/internal/config"
	"github.com/couchcryptid/balloon-reliability-service/internal/enrich"
	"github.com/couchcryptid/balloon-reliability-service/internal/observability"
	"github.com/couchcryptid/balloon-reliability-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	thresholds, err := config.LoadThresholds(cfg.ScoringConfigPath)
	if err != nil {
		logger.Error("failed to load scoring thresholds", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := store.Migrate(ctx); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	// Kafka publishing is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.Publisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	}

	clock := clockwork.NewRealClock()

	// Enrichment is feature-flagged via ENRICH_ENABLED; REDIS_ADDR upgrades
	// the per-run lock from in-process to cross-process.
	var enricher pipeline.Enricher
	if cfg.Enrich.Enabled {
		var locker enrich.Locker
		if cfg.RedisAddr != "" {
			client, err := redisadapter.NewClient(ctx, cfg.RedisAddr)
			if err != nil {
				logger.Error("failed to connect to redis", "error", err)
				os.Exit(1)
			}
			defer client.Close()
			locker = redisadapter.NewLocker(client, cfg.RedisLockTTL, logger)
		}

		provider := openmeteo.NewClient(cfg.OpenMeteoBaseURL, cfg.Enrich.Model, cfg.OpenMeteoTimeout, logger)
		policy := enrich.RetryPolicy{
			MaxAttempts: cfg.Enrich.MaxAttempts,
			BaseDelay:   cfg.Enrich.BaseDelay,
			MaxDelay:    enrich.DefaultRetryPolicy().MaxDelay,
		}
		fetcher := enrich.NewFetcher(provider, store, clock, policy, metrics, logger)
		enricher = enrich.NewService(store, store, fetcher, locker, clock, enrich.Options{
			ScoreThreshold: cfg.Enrich.ScoreThreshold,
			SampleSize:     cfg.Enrich.SampleSize,
			MaxRequests:    cfg.Enrich.MaxRequests,
			MaxLocations:   cfg.Enrich.MaxLocations,
			MinDelay:       cfg.Enrich.MinDelay,
			StepDeg:        cfg.Enrich.StepDeg,
			Model:          cfg.Enrich.Model,
			VarsVersion:    cfg.Enrich.VarsVersion,
		}, metrics, logger)
		logger.Info("enrichment enabled",
			"max_requests", cfg.Enrich.MaxRequests,
			"sample_size", cfg.Enrich.SampleSize,
			"distributed_lock", cfg.RedisAddr != "",
		)
	} else {
		logger.Info("enrichment disabled")
	}

	scorer := pipeline.NewScorer(store, publisher, thresholds, cfg.SeriesHours, cfg.ScoringConcurrency, metrics, logger)
	p := pipeline.NewProcessor(store, scorer, enricher, publisher, clock, cfg.PollInterval, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{store: store, processor: p}, p, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start polling processor.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("processor error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("postgres close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// readiness requires a reachable database and a completed polling cycle.
type readiness struct {
	store     *postgres.Store
	processor *pipeline.Processor
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		return err
	}
	return r.processor.CheckReadiness(ctx)
}
