package snapshot

import (
	"context"

	"github.com/google/uuid"

	"playersync/internal/cache"
	"playersync/pkg/model"
	"playersync/pkg/store"
)

// Tier is where the service reads and writes snapshot blobs
type Tier interface {
	Read(ctx context.Context, player uuid.UUID, name string) (string, error)
	Commit(ctx context.Context, player uuid.UUID, name string, op model.Operation, mutate func(ctx context.Context) (string, error)) error
	Forget(ctx context.Context, player uuid.UUID, name string) error
	Announce(ctx context.Context, player uuid.UUID, op model.Operation, payload string)
}

// Loader is the durable tier of a snapshot cache
type Loader struct {
	kind  model.Kind
	store store.SnapshotStore
}

// NewLoader creates a loader for one snapshot kind
func NewLoader(kind model.Kind, s store.SnapshotStore) *Loader {
	return &Loader{kind: kind, store: s}
}

var _ cache.Loader[string] = (*Loader)(nil)

func (l *Loader) Load(ctx context.Context, key model.Key) (string, error) {
	rec, err := l.store.GetSnapshot(ctx, l.kind, key.Player, key.Name)
	if err != nil {
		return "", err
	}
	return rec.Data, nil
}

func (l *Loader) Store(ctx context.Context, key model.Key, data string) error {
	_, err := l.store.SaveSnapshot(ctx, l.kind, key.Player, key.Name, data)
	return err
}

func (l *Loader) Remove(ctx context.Context, key model.Key) error {
	deleted, err := l.store.DeleteSnapshot(ctx, l.kind, key.Player, key.Name)
	if err != nil {
		return err
	}
	if !deleted {
		return model.ErrNotFound
	}
	return nil
}

// CachedTier goes through the consistency cache
type CachedTier struct {
	cache *cache.Cache[string]
}

// NewCachedTier wraps a snapshot cache
func NewCachedTier(c *cache.Cache[string]) *CachedTier {
	return &CachedTier{cache: c}
}

func (t *CachedTier) Read(ctx context.Context, player uuid.UUID, name string) (string, error) {
	return t.cache.Read(ctx, model.Key{Player: player, Name: name})
}

func (t *CachedTier) Commit(ctx context.Context, player uuid.UUID, name string, op model.Operation, mutate func(ctx context.Context) (string, error)) error {
	_, err := t.cache.Commit(ctx, model.Key{Player: player, Name: name}, op, mutate)
	return err
}

func (t *CachedTier) Forget(ctx context.Context, player uuid.UUID, name string) error {
	return t.cache.Forget(ctx, model.Key{Player: player, Name: name}, model.OpDelete)
}

func (t *CachedTier) Announce(ctx context.Context, player uuid.UUID, op model.Operation, payload string) {
	t.cache.Publisher().Announce(ctx, player, op, payload)
}

// DirectTier talks to the durable store only. With a publisher, writes drop
// the shared entry and are announced.
type DirectTier struct {
	loader *Loader
	pub    *cache.Publisher
}

// NewDirectTier creates a durable-only tier. pub may be nil.
func NewDirectTier(kind model.Kind, s store.SnapshotStore, pub *cache.Publisher) *DirectTier {
	return &DirectTier{loader: NewLoader(kind, s), pub: pub}
}

func (t *DirectTier) Read(ctx context.Context, player uuid.UUID, name string) (string, error) {
	data, err := t.loader.Load(ctx, model.Key{Player: player, Name: name})
	if err != nil {
		return "", model.StoreError("load snapshot", err)
	}
	return data, nil
}

func (t *DirectTier) Commit(ctx context.Context, player uuid.UUID, name string, op model.Operation, mutate func(ctx context.Context) (string, error)) error {
	if _, err := mutate(ctx); err != nil {
		return model.StoreError(string(op)+" snapshot", err)
	}
	t.changed(ctx, player, name, op)
	return nil
}

func (t *DirectTier) Forget(ctx context.Context, player uuid.UUID, name string) error {
	if err := t.loader.Remove(ctx, model.Key{Player: player, Name: name}); err != nil {
		return model.StoreError("delete snapshot", err)
	}
	t.changed(ctx, player, name, model.OpDelete)
	return nil
}

func (t *DirectTier) Announce(ctx context.Context, player uuid.UUID, op model.Operation, payload string) {
	if t.pub != nil {
		t.pub.Announce(ctx, player, op, payload)
	}
}

func (t *DirectTier) changed(ctx context.Context, player uuid.UUID, name string, op model.Operation) {
	if t.pub == nil {
		return
	}
	t.pub.Drop(ctx, model.Key{Player: player, Name: name})
	t.pub.Announce(ctx, player, op, name)
}
