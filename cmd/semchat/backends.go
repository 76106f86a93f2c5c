package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"github.com/c360/semchat/breaker"
	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/config"
	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/kvstore"
	"github.com/c360/semchat/memstore"
	"github.com/c360/semchat/metric"
	"github.com/c360/semchat/mongostore"
	"github.com/c360/semchat/natsclient"
	"github.com/c360/semchat/pkg/retry"
	"github.com/c360/semchat/redisbus"
)

// backends holds the adapters chosen by configuration and how to release them.
type backends struct {
	store   chat.Store
	events  chat.EventSource
	closers []func(context.Context) error
}

func (b *backends) onClose(fn func(context.Context) error) {
	b.closers = append(b.closers, fn)
}

// close releases backends in reverse order of creation.
func (b *backends) close(ctx context.Context) {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			slog.Warn("Backend close failed", "error", err)
		}
	}
}

func setupBackends(ctx context.Context, cfg *config.Config, metrics *metric.MetricsRegistry, logger *slog.Logger) (*backends, error) {
	b := &backends{}
	var bus *redisbus.Bus

	// both connects retry independently; closers are registered only after
	// both finish so their order stays store then redis
	store := &backends{}
	realtime := &backends{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return setupStore(gctx, cfg, metrics, logger, store)
	})
	if cfg.Realtime.Driver == config.RealtimeRedis {
		g.Go(func() error {
			client, err := retry.DoWithResult(gctx, startupRetry(logger, "redis"), func() (*redis.Client, error) {
				return redisbus.Connect(gctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			})
			if err != nil {
				return fmt.Errorf("connect to Redis: %w", err)
			}
			realtime.onClose(func(context.Context) error { return client.Close() })
			bus = redisbus.New(client, redisbus.WithChannel(cfg.Redis.Channel), redisbus.WithLogger(logger))
			return nil
		})
	}
	err := g.Wait()
	b.closers = append(store.closers, realtime.closers...)
	if err != nil {
		b.close(context.WithoutCancel(ctx))
		return nil, err
	}
	b.store, b.events = store.store, store.events

	if cfg.Store.BreakerFailures > 0 && cfg.Store.Driver != config.StoreMemory {
		b.store = breaker.NewStore(b.store,
			breaker.WithName(cfg.Store.Driver),
			breaker.WithMaxFailures(uint32(cfg.Store.BreakerFailures)),
			breaker.WithOpenTimeout(cfg.Store.BreakerTimeout),
			breaker.WithLogger(logger),
			breaker.WithMetrics(metrics.Chat),
		)
	}

	if bus != nil {
		b.store = redisbus.NewPublishingStore(b.store, bus, logger)
		b.events = bus
	}

	logger.Info("Backends ready", "store", cfg.Store.Driver, "realtime", cfg.Realtime.Driver)
	return b, nil
}

// setupStore opens the configured document store into b.
func setupStore(ctx context.Context, cfg *config.Config, metrics *metric.MetricsRegistry, logger *slog.Logger, b *backends) error {
	switch cfg.Store.Driver {
	case config.StoreMemory:
		mem := memstore.New()
		b.store, b.events = mem, mem

	case config.StoreNATS:
		client, err := connectNATS(ctx, cfg.NATS, metrics, logger)
		if err != nil {
			return err
		}
		b.onClose(client.Close)

		kv, err := kvstore.NewStore(ctx, client, cfg.NATS.Bucket, kvstore.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("open KV bucket: %w", err)
		}
		b.store, b.events = kv, kv

	case config.StoreMongo:
		client, err := retry.DoWithResult(ctx, startupRetry(logger, "mongo"), func() (*mongo.Client, error) {
			return mongostore.Connect(ctx, cfg.Mongo.URI)
		})
		if err != nil {
			return fmt.Errorf("connect to MongoDB: %w", err)
		}
		b.onClose(client.Disconnect)

		ms := mongostore.New(client, cfg.Mongo.Database, cfg.Mongo.Collection, mongostore.WithLogger(logger))
		if err := ms.EnsureIndexes(ctx); err != nil {
			logger.Warn("MongoDB index setup failed", "error", err)
		}
		b.store, b.events = ms, ms

	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

func connectNATS(ctx context.Context, cfg config.NATSConfig, metrics *metric.MetricsRegistry, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithHealthChangeCallback(metrics.Chat.RecordNATSStatus),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, natsclient.WithTimeout(cfg.Timeout))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.ReconnectWait))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}

	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "urls", cfg.URLs)
	err = retry.Do(ctx, startupRetry(logger, "nats"), func() error {
		return client.Connect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return client, nil
}

func startupRetry(logger *slog.Logger, backend string) retry.Config {
	cfg := retry.Startup()
	cfg.Retryable = func(err error) bool { return !errors.IsInvalid(err) }
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Backend not reachable, retrying",
			"backend", backend, "attempt", attempt, "delay", delay, "error", err)
	}
	return cfg
}
