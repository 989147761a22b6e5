package economy

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"playersync/internal/cache"
	"playersync/pkg/model"
	"playersync/pkg/replication"
	"playersync/pkg/store"
)

// Tier is where the engine reads balances and commits mutations
type Tier interface {
	Read(ctx context.Context, player uuid.UUID) (float64, error)

	// Commit runs mutate against the durable store and propagates the balance it returns
	Commit(ctx context.Context, player uuid.UUID, op model.Operation, mutate func(ctx context.Context) (float64, error)) (float64, error)
}

// Loader is the durable tier of the balance cache. Missing records are created
// with the starting balance on first read.
type Loader struct {
	store    store.BalanceStore
	starting float64
}

// NewLoader creates a loader over s
func NewLoader(s store.BalanceStore, starting float64) *Loader {
	return &Loader{store: s, starting: starting}
}

var _ cache.Loader[float64] = (*Loader)(nil)

func (l *Loader) Load(ctx context.Context, key model.Key) (float64, error) {
	rec, err := l.store.GetBalance(ctx, key.Player)
	if err == nil {
		return rec.Balance, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return 0, err
	}
	return l.store.CreateBalance(ctx, key.Player, l.starting)
}

func (l *Loader) Store(ctx context.Context, key model.Key, v float64) error {
	_, err := l.store.SetBalance(ctx, key.Player, v)
	return err
}

// Remove is unsupported: balance records are never deleted
func (l *Loader) Remove(ctx context.Context, key model.Key) error {
	return errors.New("balance records cannot be deleted")
}

// CachedTier goes through the consistency cache
type CachedTier struct {
	cache *cache.Cache[float64]
}

// NewCachedTier wraps a balance cache
func NewCachedTier(c *cache.Cache[float64]) *CachedTier {
	return &CachedTier{cache: c}
}

func (t *CachedTier) Read(ctx context.Context, player uuid.UUID) (float64, error) {
	return t.cache.Read(ctx, model.Key{Player: player})
}

func (t *CachedTier) Commit(ctx context.Context, player uuid.UUID, op model.Operation, mutate func(ctx context.Context) (float64, error)) (float64, error) {
	return t.cache.Commit(ctx, model.Key{Player: player}, op, mutate)
}

// DirectTier reads and writes the durable store only. When a publisher is
// set, every write drops the shared entry and is announced so caching
// processes converge.
type DirectTier struct {
	loader *Loader
	pub    *cache.Publisher
}

// NewDirectTier creates a durable-only tier. pub may be nil.
func NewDirectTier(s store.BalanceStore, starting float64, pub *cache.Publisher) *DirectTier {
	return &DirectTier{loader: NewLoader(s, starting), pub: pub}
}

func (t *DirectTier) Read(ctx context.Context, player uuid.UUID) (float64, error) {
	v, err := t.loader.Load(ctx, model.Key{Player: player})
	if err != nil {
		return 0, model.StoreError("load balance", err)
	}
	return v, nil
}

func (t *DirectTier) Commit(ctx context.Context, player uuid.UUID, op model.Operation, mutate func(ctx context.Context) (float64, error)) (float64, error) {
	v, err := mutate(ctx)
	if err != nil {
		return 0, model.StoreError(string(op)+" balance", err)
	}
	if t.pub != nil {
		t.pub.Drop(ctx, model.Key{Player: player})
		t.pub.Announce(ctx, player, op, replication.FormatBalance(v))
	}
	return v, nil
}
