// Package node wires one playersync process: stores, caches, engines, the
// replication listeners and the optional RPC facade and change feed.
package node

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"playersync/internal/cache"
	"playersync/internal/changefeed"
	"playersync/internal/economy"
	"playersync/internal/rpc"
	"playersync/internal/snapshot"
	"playersync/pkg/audit"
	"playersync/pkg/config"
	"playersync/pkg/logger"
	"playersync/pkg/model"
	"playersync/pkg/server"
	"playersync/pkg/sharedcache"
	"playersync/pkg/store"
	"playersync/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

// Deps are the connected backends a runtime is built on
type Deps struct {
	Store  store.Store
	Shared *sharedcache.Cache

	// Audit receives balance mutation events. Nil means audit.Nop.
	Audit audit.Sink

	// Feed is the change feed to run, if any
	Feed *changefeed.Service
}

// Runtime is the context object of one process. Everything a game integration
// or the RPC facade needs hangs off it.
type Runtime struct {
	cfg    config.AppConfig
	logger *logger.Logger
	deps   Deps

	pool      *worker.WorkerPool
	balances  *cache.Cache[float64]
	contents  map[model.Kind]*cache.Cache[string]
	economy   *economy.Engine
	snapshots map[model.Kind]*snapshot.Service
	rpc       *rpc.Service

	closeOnce sync.Once
	closeErr  error
}

// New wires a runtime over already connected backends
func New(cfg config.AppConfig, deps Deps, l *logger.Logger) *Runtime {
	if l == nil {
		l = logger.NewNop()
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}

	r := &Runtime{
		cfg:       cfg,
		logger:    l,
		deps:      deps,
		pool:      worker.NewWorkerPool(l.Named("worker"), cfg.Worker.Count, cfg.Worker.QueueSize),
		contents:  make(map[model.Kind]*cache.Cache[string]),
		snapshots: make(map[model.Kind]*snapshot.Service),
	}

	econCfg := economy.Config{
		StartingBalance: cfg.Economy.StartingBalance,
		MinBalance:      cfg.Economy.MinBalance,
		MaxBalance:      cfg.Economy.MaxBalance,
	}
	snapCfg := snapshot.Config{
		MaxNameLength:  cfg.Snapshot.MaxNameLength,
		AutoSaveOnQuit: cfg.Snapshot.AutoSaveOnQuit,
	}

	r.balances = cache.New(cache.Options[float64]{
		Kind:   model.KindEconomy,
		Prefix: cfg.Cache.ChannelPrefix,
		Codec:  cache.BalanceCodec{},
		Loader: economy.NewLoader(deps.Store, econCfg.StartingBalance),
		Shared: deps.Shared,
		Pool:   r.pool,
		Logger: l,
	})
	r.economy = economy.NewEngine(economy.NewCachedTier(r.balances), deps.Store, econCfg,
		economy.WithAudit(deps.Audit),
		economy.WithLogger(l),
		economy.WithSource(cfg.ServiceName),
	)

	for _, kind := range model.SnapshotKinds {
		c := cache.New(cache.Options[string]{
			Kind:   kind,
			Prefix: cfg.Cache.ChannelPrefix,
			Codec:  cache.StringCodec{},
			Loader: snapshot.NewLoader(kind, deps.Store),
			Shared: deps.Shared,
			Pool:   r.pool,
			Logger: l,
		})
		r.contents[kind] = c
		r.snapshots[kind] = snapshot.NewService(kind, snapshot.NewCachedTier(c), deps.Store, snapCfg, l)
	}

	r.rpc = r.directService(econCfg, snapCfg)
	return r
}

// directService builds the RPC handlers on durable-only tiers
func (r *Runtime) directService(econCfg economy.Config, snapCfg snapshot.Config) *rpc.Service {
	publisher := func(kind model.Kind) *cache.Publisher {
		if !r.cfg.RPC.AnnounceWrites {
			return nil
		}
		return cache.NewPublisher(kind, r.cfg.Cache.ChannelPrefix, r.deps.Shared, r.logger.Named("rpc"))
	}

	engine := economy.NewEngine(
		economy.NewDirectTier(r.deps.Store, econCfg.StartingBalance, publisher(model.KindEconomy)),
		r.deps.Store, econCfg,
		economy.WithAudit(r.deps.Audit),
		economy.WithLogger(r.logger.Named("rpc")),
		economy.WithSource(r.cfg.ServiceName+"/rpc"),
	)
	var services []*snapshot.Service
	for _, kind := range model.SnapshotKinds {
		tier := snapshot.NewDirectTier(kind, r.deps.Store, publisher(kind))
		services = append(services, snapshot.NewService(kind, tier, r.deps.Store, snapCfg, r.logger.Named("rpc")))
	}
	return rpc.NewService(engine, services, r.Ping, r.logger)
}

// Economy returns the cached balance engine
func (r *Runtime) Economy() *economy.Engine {
	return r.economy
}

// Snapshots returns the cached snapshot service of kind
func (r *Runtime) Snapshots(kind model.Kind) *snapshot.Service {
	return r.snapshots[kind]
}

func (r *Runtime) Inventory() *snapshot.Service  { return r.snapshots[model.KindInventory] }
func (r *Runtime) EnderChest() *snapshot.Service { return r.snapshots[model.KindEnderChest] }

// RPCService returns the handlers served by the RPC facade
func (r *Runtime) RPCService() *rpc.Service {
	return r.rpc
}

// Pool is the async executor shared by every component
func (r *Runtime) Pool() *worker.WorkerPool {
	return r.pool
}

// OnChange registers n for replication messages of every kind. It runs on the pool.
func (r *Runtime) OnChange(n cache.Notifier) {
	r.balances.SetNotifier(n)
	for _, c := range r.contents {
		c.SetNotifier(n)
	}
}

// ClearCaches drops local entries for the given players, or for everyone when
// none are given. Shared and durable tiers are untouched.
func (r *Runtime) ClearCaches(players ...uuid.UUID) {
	if len(players) == 0 {
		r.balances.InvalidateAll()
		for _, c := range r.contents {
			c.InvalidateAll()
		}
		r.logger.Info("cleared all local caches")
		return
	}
	for _, p := range players {
		r.balances.InvalidatePlayer(p)
		for _, c := range r.contents {
			c.InvalidatePlayer(p)
		}
		r.logger.Info("cleared local caches", zap.String("player", p.String()))
	}
}

// Ping checks the durable store and the shared cache
func (r *Runtime) Ping(ctx context.Context) error {
	if err := r.deps.Store.Ping(ctx); err != nil {
		return fmt.Errorf("durable store: %w", err)
	}
	if err := r.deps.Shared.Ping(ctx); err != nil {
		return fmt.Errorf("shared cache: %w", err)
	}
	return nil
}

// Ready is closed once every replication listener has subscribed
func (r *Runtime) Ready() <-chan struct{} {
	ready := make(chan struct{})
	go func() {
		<-r.balances.Ready()
		for _, c := range r.contents {
			<-c.Ready()
		}
		close(ready)
	}()
	return ready
}

// Run starts the pool, the listeners and the optional servers, blocks until
// ctx is done or a component fails, then releases every resource.
func (r *Runtime) Run(ctx context.Context) error {
	var rpcServer *rpc.Server
	if r.cfg.RPC.Enabled {
		srv, err := rpc.Listen(rpc.Config{Addr: r.cfg.RPC.Addr, SecretKey: r.cfg.RPC.SecretKey}, r.rpc, r.logger)
		if err != nil {
			return multierr.Append(err, r.Close(context.Background()))
		}
		rpcServer = srv
	}

	r.pool.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.balances.Listen(gctx) })
	for _, c := range r.contents {
		g.Go(func() error { return c.Listen(gctx) })
	}
	if r.deps.Feed != nil {
		g.Go(func() error { return r.deps.Feed.Run(gctx) })
	}
	if rpcServer != nil {
		g.Go(func() error { return rpcServer.Serve(gctx) })
	}
	if r.cfg.Observability.Addr != "" {
		obs := r.observability()
		g.Go(obs.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return obs.Shutdown(shutdownCtx)
		})
	}

	r.logger.Info("node running",
		zap.String("store", r.cfg.Store.Driver),
		zap.Bool("rpc", rpcServer != nil),
		zap.Bool("changefeed", r.deps.Feed != nil),
	)

	err := g.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return multierr.Append(err, r.Close(shutdownCtx))
}

func (r *Runtime) observability() *server.Server {
	return server.New(r.cfg.Observability.Addr, r.logger,
		server.Check{Name: "store", Fn: r.deps.Store.Ping},
		server.Check{Name: "redis", Fn: r.deps.Shared.Ping},
	)
}

// Close releases resources in dependency order: the pool, the audit sink,
// Redis, then the durable store. Listeners must already be stopped.
func (r *Runtime) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		var errs error
		if err := r.pool.Shutdown(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("worker pool: %w", err))
		}
		if c, ok := r.deps.Audit.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("audit sink: %w", err))
			}
		}
		if err := r.deps.Shared.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("shared cache: %w", err))
		}
		if err := r.deps.Store.Close(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("durable store: %w", err))
		}
		r.closeErr = errs
		if errs != nil {
			r.logger.Error("shutdown finished with errors", errs)
		} else {
			r.logger.Info("node stopped")
		}
	})
	return r.closeErr
}
