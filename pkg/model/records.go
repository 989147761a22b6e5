package model

import (
	"time"

	"github.com/google/uuid"
)

// BalanceRecord is the durable balance document of one player
type BalanceRecord struct {
	Player    uuid.UUID
	Balance   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SnapshotRecord is one named, serialized item collection
type SnapshotRecord struct {
	Kind      Kind
	Player    uuid.UUID
	Name      string
	Data      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Operation is the replication verb carried by a message
type Operation string

const (
	OpSet    Operation = "set"
	OpAdd    Operation = "add"
	OpRemove Operation = "remove"
	OpSave   Operation = "save"
	OpLoad   Operation = "load"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpClear  Operation = "clear"
)

// Valid reports whether op belongs to the fixed vocabulary
func (op Operation) Valid() bool {
	switch op {
	case OpSet, OpAdd, OpRemove, OpSave, OpLoad, OpUpdate, OpDelete, OpClear:
		return true
	}
	return false
}
