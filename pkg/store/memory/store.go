// Package memory is an in-process durable store used for single-node runs and tests
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"playersync/pkg/model"
	"playersync/pkg/store"
)

type snapshotKey struct {
	kind   model.Kind
	player uuid.UUID
	name   string
}

// Store is an in-memory implementation of store.Store
type Store struct {
	mu sync.RWMutex

	balances  map[uuid.UUID]model.BalanceRecord
	snapshots map[snapshotKey]model.SnapshotRecord
	order     map[snapshotKey]uint64
	seq       uint64

	now func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		balances:  make(map[uuid.UUID]model.BalanceRecord),
		snapshots: make(map[snapshotKey]model.SnapshotRecord),
		order:     make(map[snapshotKey]uint64),
		now:       time.Now,
	}
}

// Ensure Store implements the interface
var _ store.Store = (*Store)(nil)

// Balance operations

func (s *Store) GetBalance(ctx context.Context, player uuid.UUID) (model.BalanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.balances[player]
	if !ok {
		return model.BalanceRecord{}, model.ErrNotFound
	}
	return rec, nil
}

func (s *Store) CreateBalance(ctx context.Context, player uuid.UUID, balance float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.balances[player]; ok {
		return rec.Balance, nil
	}
	now := s.now()
	s.balances[player] = model.BalanceRecord{Player: player, Balance: balance, CreatedAt: now, UpdatedAt: now}
	return balance, nil
}

func (s *Store) SetBalance(ctx context.Context, player uuid.UUID, balance float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	rec, matched := s.balances[player]
	if !matched {
		rec = model.BalanceRecord{Player: player, CreatedAt: now}
	}
	rec.Balance = balance
	rec.UpdatedAt = now
	s.balances[player] = rec
	return matched, nil
}

func (s *Store) IncrementBalance(ctx context.Context, player uuid.UUID, delta, starting float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	rec, ok := s.balances[player]
	if !ok {
		rec = model.BalanceRecord{Player: player, Balance: starting, CreatedAt: now}
	}
	rec.Balance += delta
	rec.UpdatedAt = now
	s.balances[player] = rec
	return rec.Balance, nil
}

// Snapshot operations

func (s *Store) GetSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name string) (model.SnapshotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.snapshots[snapshotKey{kind, player, name}]
	if !ok {
		return model.SnapshotRecord{}, model.ErrNotFound
	}
	return rec, nil
}

func (s *Store) SaveSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name, data string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey{kind, player, name}
	now := s.now()
	rec, matched := s.snapshots[key]
	if !matched {
		rec = model.SnapshotRecord{Kind: kind, Player: player, Name: name, CreatedAt: now}
		s.seq++
		s.order[key] = s.seq
	}
	rec.Data = data
	rec.UpdatedAt = now
	s.snapshots[key] = rec
	return matched, nil
}

func (s *Store) UpdateSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name, data string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey{kind, player, name}
	rec, ok := s.snapshots[key]
	if !ok {
		return false, nil
	}
	rec.Data = data
	rec.UpdatedAt = s.now()
	s.snapshots[key] = rec
	return true, nil
}

func (s *Store) DeleteSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey{kind, player, name}
	if _, ok := s.snapshots[key]; !ok {
		return false, nil
	}
	delete(s.snapshots, key)
	delete(s.order, key)
	return true, nil
}

func (s *Store) DeleteAllSnapshots(ctx context.Context, kind model.Kind, player uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key := range s.snapshots {
		if key.kind == kind && key.player == player {
			delete(s.snapshots, key)
			delete(s.order, key)
			n++
		}
	}
	return n, nil
}

func (s *Store) ListSnapshots(ctx context.Context, kind model.Kind, player uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type entry struct {
		name string
		seq  uint64
	}
	var entries []entry
	for key := range s.snapshots {
		if key.kind == kind && key.player == player {
			entries = append(entries, entry{key.name, s.order[key]})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
	}
	return names, nil
}

// Lifecycle

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close(ctx context.Context) error { return nil }
