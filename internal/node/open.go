package node

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"playersync/internal/cache"
	"playersync/internal/changefeed"
	"playersync/pkg/audit"
	"playersync/pkg/changestream"
	"playersync/pkg/config"
	"playersync/pkg/logger"
	"playersync/pkg/model"
	"playersync/pkg/retry"
	"playersync/pkg/sharedcache"
	"playersync/pkg/store"
	"playersync/pkg/store/memory"
	"playersync/pkg/store/mongo"
	"playersync/pkg/store/postgres"
	"playersync/pkg/token"
)

// Open connects every backend named by cfg and wires a runtime over them.
// Connects are retried with backoff.
func Open(ctx context.Context, cfg config.AppConfig, l *logger.Logger) (*Runtime, error) {
	opts := retry.DefaultOptions()
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		l.Warn("backend not reachable yet", zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(err))
	}

	var deps Deps
	var mongoStore *mongo.Store
	err := retry.Do(ctx, func() error {
		s, m, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		deps.Store, mongoStore = s, m
		return nil
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("connect durable store: %w", err)
	}
	l.Info("durable store connected", zap.String("driver", cfg.Store.Driver))

	err = retry.Do(ctx, func() error {
		shared, err := sharedcache.New(ctx, sharedcache.Config{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			TTL:          cfg.Cache.TTL,
		})
		if err != nil {
			return err
		}
		deps.Shared = shared
		return nil
	}, opts)
	if err != nil {
		_ = deps.Store.Close(context.Background())
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	l.Info("shared cache connected")

	if len(cfg.Audit.Brokers) > 0 {
		deps.Audit = audit.NewKafkaSink(audit.Config{Brokers: cfg.Audit.Brokers, Topic: cfg.Audit.Topic}, l)
		l.Info("audit trail enabled", zap.Strings("brokers", cfg.Audit.Brokers), zap.String("topic", cfg.Audit.Topic))
	}

	r := New(cfg, deps, l)
	if cfg.ChangeFeed.Enabled && mongoStore != nil {
		r.deps.Feed = newFeed(cfg, mongoStore, deps.Shared, l)
	}
	return r, nil
}

func openStore(ctx context.Context, cfg config.AppConfig) (store.Store, *mongo.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		s, err := mongo.Connect(ctx, mongo.Config{
			URI:            cfg.MongoDB.URI,
			Database:       cfg.MongoDB.Database,
			ConnectTimeout: cfg.MongoDB.ConnectTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(context.Background())
			return nil, nil, err
		}
		return s, s, nil
	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, postgres.Config{
			URI:             cfg.Postgres.URI,
			MinConns:        int32(cfg.Postgres.MinConns),
			MaxConns:        int32(cfg.Postgres.MaxConns),
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close(context.Background())
			return nil, nil, err
		}
		return s, nil, nil
	case config.DriverMemory:
		return memory.New(), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// newFeed builds the change feed with publishers for every kind
func newFeed(cfg config.AppConfig, s *mongo.Store, shared *sharedcache.Cache, l *logger.Logger) *changefeed.Service {
	publishers := make(map[model.Kind]changefeed.Publisher, len(model.Kinds))
	collections := make([]string, 0, len(model.Kinds))
	for _, kind := range model.Kinds {
		publishers[kind] = cache.NewPublisher(kind, cfg.Cache.ChannelPrefix, shared, l.Named("changefeed"))
		collections = append(collections, kind.Collection())
	}

	var tokens token.Store
	if cfg.ChangeFeed.ResumeTokenPath != "" {
		tokens = token.NewFileStore(cfg.ChangeFeed.ResumeTokenPath)
	} else {
		tokens = token.NewRedisStore(shared.Client(), cfg.ChangeFeed.ResumeTokenKey)
	}

	watcher := changestream.NewMongoWatcher(s.Database(), collections...)
	return changefeed.NewService(l, tokens, watcher, publishers)
}
