// Package cache implements the three-tier consistency cache: a process-local
// map in front of the shared Redis cache in front of the durable store.
//
// Reads fall through local -> shared -> durable and populate the tiers they
// skipped. Writes go durable -> shared -> local and are then announced on the
// kind's replication channel so that every other process converges.
package cache

import (
	"context"
	"errors"
	"hash/maphash"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"playersync/pkg/logger"
	"playersync/pkg/metrics"
	"playersync/pkg/model"
	"playersync/pkg/retry"
	"playersync/pkg/sharedcache"
	"playersync/pkg/worker"
)

// Codec converts values to and from their shared cache string form
type Codec[V any] interface {
	Encode(v V) string
	Decode(s string) (V, error)
}

// Loader is the durable tier for one kind
type Loader[V any] interface {
	// Load returns the durable value or model.ErrNotFound
	Load(ctx context.Context, key model.Key) (V, error)
	Store(ctx context.Context, key model.Key, v V) error
	Remove(ctx context.Context, key model.Key) error
}

// Options configures a Cache
type Options[V any] struct {
	Kind   model.Kind
	Prefix string
	Codec  Codec[V]
	Loader Loader[V]
	Shared Shared

	// Pool runs Notifier callbacks. Without a pool the notifier is skipped.
	Pool   *worker.WorkerPool
	Logger *logger.Logger

	// Retry controls subscription re-establishment. Zero means retry.ForeverOptions.
	Retry retry.RetryOptions

	// ReadTimeout bounds a shared read-through. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
}

// DefaultReadTimeout bounds one read-through shared by concurrent callers
const DefaultReadTimeout = 10 * time.Second

// commitStripes is the number of locks commits are serialized on
const commitStripes = 64

// Cache is the consistency cache for one kind
type Cache[V any] struct {
	kind   model.Kind
	codec  Codec[V]
	loader Loader[V]
	shared Shared
	pool   *worker.WorkerPool
	logger *logger.Logger
	retry  retry.RetryOptions

	readTimeout time.Duration

	local local[V]
	group singleflight.Group
	pub   *Publisher

	// Commits on one key hold its stripe from the durable write until the
	// local tier is updated, so cached values follow durable order.
	seed    maphash.Seed
	stripes [commitStripes]sync.Mutex

	notifier notifierBox
	ready    chan struct{}
	readyOne sync.Once
}

// New builds a cache from opts
func New[V any](opts Options[V]) *Cache[V] {
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}
	l = l.Named("cache." + string(opts.Kind))

	r := opts.Retry
	if r.InitialInterval == 0 {
		r = retry.ForeverOptions()
	}

	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	return &Cache[V]{
		kind:        opts.Kind,
		codec:       opts.Codec,
		loader:      opts.Loader,
		shared:      opts.Shared,
		pool:        opts.Pool,
		logger:      l,
		retry:       r,
		readTimeout: readTimeout,
		pub:         NewPublisher(opts.Kind, opts.Prefix, opts.Shared, l),
		seed:        maphash.MakeSeed(),
		ready:       make(chan struct{}),
	}
}

// Kind returns the resource type served by the cache
func (c *Cache[V]) Kind() model.Kind {
	return c.kind
}

// Publisher returns the cache's replication publisher
func (c *Cache[V]) Publisher() *Publisher {
	return c.pub
}

// Read returns the value for key. Concurrent misses for one key share a single
// shared-cache and durable lookup. The shared lookup outlives any one caller;
// each caller stops waiting when its own ctx is done.
func (c *Cache[V]) Read(ctx context.Context, key model.Key) (V, error) {
	var zero V
	if v, ok := c.local.load(key); ok {
		metrics.CacheHitsTotal.WithLabelValues(string(c.kind), "local").Inc()
		return v, nil
	}

	flight := c.group.DoChan(c.kind.CacheKey(key), func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.readTimeout)
		defer cancel()
		return c.readThrough(readCtx, key)
	})
	select {
	case res := <-flight:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Cache[V]) readThrough(ctx context.Context, key model.Key) (V, error) {
	var zero V
	if v, ok := c.local.load(key); ok {
		return v, nil
	}

	cacheKey := c.kind.CacheKey(key)
	raw, err := c.shared.Get(ctx, cacheKey)
	switch {
	case err == nil:
		v, decErr := c.codec.Decode(raw)
		if decErr == nil {
			metrics.CacheHitsTotal.WithLabelValues(string(c.kind), "shared").Inc()
			c.local.store(key, v)
			return v, nil
		}
		c.logger.Warn("discarding undecodable shared cache entry", zap.String("key", cacheKey), zap.Error(decErr))
	case !errors.Is(err, sharedcache.ErrMiss):
		metrics.SharedCacheErrorsTotal.WithLabelValues(string(c.kind), "get").Inc()
		c.logger.Warn("shared cache read failed, falling through", zap.String("key", cacheKey), zap.Error(err))
	}

	metrics.DurableReadsTotal.WithLabelValues(string(c.kind)).Inc()
	start := time.Now()
	v, err := c.loader.Load(ctx, key)
	metrics.DurableLatency.WithLabelValues(string(c.kind), "load").Observe(time.Since(start).Seconds())
	if err != nil {
		return zero, model.StoreError("load "+cacheKey, err)
	}
	metrics.CacheHitsTotal.WithLabelValues(string(c.kind), "durable").Inc()

	c.setShared(ctx, cacheKey, v)
	c.local.store(key, v)
	return v, nil
}

// Commit runs mutate against the durable store and, only if it succeeded,
// caches the value it returned in the shared and local tiers and announces op.
func (c *Cache[V]) Commit(ctx context.Context, key model.Key, op model.Operation, mutate func(ctx context.Context) (V, error)) (V, error) {
	cacheKey := c.kind.CacheKey(key)

	mu := c.stripe(cacheKey)
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	v, err := mutate(ctx)
	metrics.DurableLatency.WithLabelValues(string(c.kind), string(op)).Observe(time.Since(start).Seconds())
	if err != nil {
		var zero V
		return zero, model.StoreError(string(op)+" "+cacheKey, err)
	}

	c.setShared(ctx, cacheKey, v)
	c.local.store(key, v)
	c.pub.Announce(ctx, key.Player, op, c.payload(key, v))
	return v, nil
}

func (c *Cache[V]) stripe(cacheKey string) *sync.Mutex {
	return &c.stripes[maphash.String(c.seed, cacheKey)%commitStripes]
}

// Write commits value using the loader's own Store as the durable step
func (c *Cache[V]) Write(ctx context.Context, key model.Key, value V, op model.Operation) error {
	_, err := c.Commit(ctx, key, op, func(ctx context.Context) (V, error) {
		return value, c.loader.Store(ctx, key, value)
	})
	return err
}

// Forget removes key from every tier and announces op
func (c *Cache[V]) Forget(ctx context.Context, key model.Key, op model.Operation) error {
	cacheKey := c.kind.CacheKey(key)

	mu := c.stripe(cacheKey)
	mu.Lock()
	defer mu.Unlock()

	if err := c.loader.Remove(ctx, key); err != nil {
		return model.StoreError(string(op)+" "+cacheKey, err)
	}

	c.pub.Drop(ctx, key)
	c.local.delete(key)
	c.pub.Announce(ctx, key.Player, op, key.Name)
	return nil
}

// payload is the replication payload for a committed value: the value itself
// for balances, the snapshot name otherwise
func (c *Cache[V]) payload(key model.Key, v V) string {
	if c.kind == model.KindEconomy {
		return c.codec.Encode(v)
	}
	return key.Name
}

// Invalidate drops key from the local tier only
func (c *Cache[V]) Invalidate(key model.Key) {
	c.local.delete(key)
}

// InvalidatePlayer drops every local entry of one player
func (c *Cache[V]) InvalidatePlayer(player uuid.UUID) {
	c.local.deletePlayer(player)
}

// InvalidateAll empties the local tier
func (c *Cache[V]) InvalidateAll() {
	c.local.clear()
}

// Cached reports whether key is present in the local tier
func (c *Cache[V]) Cached(key model.Key) (V, bool) {
	return c.local.load(key)
}

// Size is the number of locally cached entries
func (c *Cache[V]) Size() int {
	return c.local.len()
}

func (c *Cache[V]) setShared(ctx context.Context, cacheKey string, v V) {
	if err := c.shared.Set(ctx, cacheKey, c.codec.Encode(v)); err != nil {
		metrics.SharedCacheErrorsTotal.WithLabelValues(string(c.kind), "set").Inc()
		c.logger.Warn("shared cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}
}
