// Package store defines the durable store contract shared by every driver.
//
// Drivers return model.ErrNotFound for missing records and plain driver errors
// for everything else; callers above the store wrap the latter as model.ErrUnavailable.
package store

import (
	"context"

	"github.com/google/uuid"

	"playersync/pkg/model"
)

// BalanceStore persists player balances
type BalanceStore interface {
	// GetBalance returns the balance record or model.ErrNotFound
	GetBalance(ctx context.Context, player uuid.UUID) (model.BalanceRecord, error)

	// CreateBalance inserts a record with the given balance if none exists and
	// returns the balance actually stored (an existing record wins a creation race).
	CreateBalance(ctx context.Context, player uuid.UUID, balance float64) (float64, error)

	// SetBalance upserts the balance. matched reports whether a record existed.
	SetBalance(ctx context.Context, player uuid.UUID, balance float64) (matched bool, err error)

	// IncrementBalance atomically adds delta. A missing record is created with
	// starting+delta. Returns the balance after the increment.
	IncrementBalance(ctx context.Context, player uuid.UUID, delta, starting float64) (float64, error)
}

// SnapshotStore persists named snapshots, one collection per kind
type SnapshotStore interface {
	// GetSnapshot returns the record or model.ErrNotFound
	GetSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name string) (model.SnapshotRecord, error)

	// SaveSnapshot upserts on (player, name). matched reports whether it replaced a record.
	SaveSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name, data string) (matched bool, err error)

	// UpdateSnapshot replaces the data of an existing record only
	UpdateSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name, data string) (matched bool, err error)

	// DeleteSnapshot removes one record. deleted is false when nothing matched.
	DeleteSnapshot(ctx context.Context, kind model.Kind, player uuid.UUID, name string) (deleted bool, err error)

	// DeleteAllSnapshots removes every record of the player and returns the count
	DeleteAllSnapshots(ctx context.Context, kind model.Kind, player uuid.UUID) (int64, error)

	// ListSnapshots returns the snapshot names of the player in creation order
	ListSnapshots(ctx context.Context, kind model.Kind, player uuid.UUID) ([]string, error)
}

// Store is a complete durable store driver
type Store interface {
	BalanceStore
	SnapshotStore

	// Ping verifies connectivity
	Ping(ctx context.Context) error

	// Close releases the driver's connection pool
	Close(ctx context.Context) error
}
