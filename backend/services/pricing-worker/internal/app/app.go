package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libdb "greenlane/backend/libs/db"
	libkafka "greenlane/backend/libs/kafka"
	libredis "greenlane/backend/libs/redis"
	"greenlane/backend/services/pricing-worker/internal/clients"
	"greenlane/backend/services/pricing-worker/internal/config"
	"greenlane/backend/services/pricing-worker/internal/deadletter"
	httpserver "greenlane/backend/services/pricing-worker/internal/http"
	"greenlane/backend/services/pricing-worker/internal/http/handlers"
	"greenlane/backend/services/pricing-worker/internal/metrics"
	"greenlane/backend/services/pricing-worker/internal/pipeline"
	"greenlane/backend/services/pricing-worker/internal/repository"
)

// App wires pricing-worker dependencies.
type App struct {
	driver      *pipeline.Driver
	server      *httpserver.Server
	reader      *kafka.Reader
	pool        *pgxpool.Pool
	redisClient *redis.Client
	logger      *zap.Logger
}

// New acquires the store pool, the stream subscription and optional redis, then builds
// the pipeline. Any acquisition failure is returned and nothing is left open.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}
	if err := a.init(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, cfg *config.Config) error {
	commitMode, err := cfg.CommitMode()
	if err != nil {
		return err
	}

	a.pool, err = libdb.NewPostgresPool(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.RedisEnabled() {
		a.redisClient, err = libredis.NewClient(ctx, cfg.RedisClient())
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
	}

	a.reader, err = libkafka.NewReader(ctx, cfg.KafkaReader())
	if err != nil {
		return fmt.Errorf("subscribe kafka: %w", err)
	}

	pipelineMetrics := metrics.NewPipeline()

	backoffInitial, backoffMax := cfg.PricingBackoff()
	pricingClient, err := clients.NewPricingClient(clients.PricingOptions{
		URL:            cfg.Pricing.URL,
		Timeout:        cfg.PricingTimeout(),
		MaxAttempts:    cfg.Pricing.MaxAttempts,
		BackoffInitial: backoffInitial,
		BackoffMax:     backoffMax,
		RateLimit:      cfg.Pricing.RateLimitPerSecond,
		Observer:       pipelineMetrics,
	}, nil, a.logger)
	if err != nil {
		return err
	}

	var (
		oracle      clients.QuoteFetcher = pricingClient
		deadLetters deadletter.Sink      = deadletter.NewLogSink(a.logger)
	)
	if a.redisClient != nil {
		deadLetters = deadletter.NewStore(a.redisClient, cfg.Redis.DeadLetterKey)
		if ttl := cfg.QuoteCacheTTL(); ttl > 0 {
			oracle = clients.NewCachedOracle(pricingClient, a.redisClient, cfg.Redis.QuoteKey, ttl, a.logger)
		}
	}

	a.driver, err = pipeline.NewDriver(pipeline.Config{
		CommitMode:        commitMode,
		Workers:           cfg.Pipeline.Workers,
		UnorderedCommit:   !cfg.Pipeline.OrderedCommit,
		SinkMaxAttempts:   cfg.Pipeline.SinkMaxAttempts,
		FetchErrorPause:   cfg.FetchErrorPause(),
		IdempotentInserts: cfg.Pipeline.IdempotentInserts,
	}, pipeline.Dependencies{
		Reader:      a.reader,
		Oracle:      oracle,
		Sink:        repository.NewSessionRepository(a.pool, cfg.Pipeline.IdempotentInserts),
		DeadLetters: deadLetters,
		Observer:    pipelineMetrics,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}

	checks := map[string]handlers.Check{"postgres": a.pool.Ping}
	if a.redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redisClient.Ping(ctx).Err() }
	}

	router := httpserver.NewRouter(httpserver.Routes{
		Health:  handlers.NewHealthHandler(checks),
		Metrics: pipelineMetrics.Handler(),
	})
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, a.logger)

	a.logger.Info("pricing worker initialised",
		zap.Strings("brokers", cfg.KafkaReader().Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group_id", cfg.Kafka.GroupID),
		zap.String("pricing_url", cfg.Pricing.URL),
		zap.Bool("redis", a.redisClient != nil),
	)
	return nil
}

// Run starts the pipeline and the HTTP server. It returns when ctx is cancelled and
// both have stopped, or as soon as either fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.driver.Run(ctx)
	})
	g.Go(func() error {
		return a.server.Run(ctx)
	})
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.reader != nil {
		if err := a.reader.Close(); err != nil {
			a.logger.Warn("failed to close kafka reader", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
