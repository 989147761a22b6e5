package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies one replicated resource type
type Kind string

const (
	KindEconomy    Kind = "economy"
	KindInventory  Kind = "inventory"
	KindEnderChest Kind = "ender_chest"
)

// Kinds lists every resource type in a stable order
var Kinds = []Kind{KindEconomy, KindInventory, KindEnderChest}

// SnapshotKinds lists the resource types backed by named snapshots
var SnapshotKinds = []Kind{KindInventory, KindEnderChest}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindEconomy, KindInventory, KindEnderChest:
		return true
	}
	return false
}

// Channel returns the pub/sub channel for the kind under the given prefix
func (k Kind) Channel(prefix string) string {
	return fmt.Sprintf("%s:%s", prefix, k)
}

// Collection returns the durable collection (or table) name for the kind
func (k Kind) Collection() string {
	switch k {
	case KindEconomy:
		return "economy"
	case KindInventory:
		return "inventories"
	case KindEnderChest:
		return "ender_chests"
	}
	return string(k)
}

// Label is the human name used in log lines and messages
func (k Kind) Label() string {
	switch k {
	case KindEnderChest:
		return "ender chest"
	default:
		return string(k)
	}
}

// Key addresses one cache entry. Name is empty for balances.
type Key struct {
	Player uuid.UUID
	Name   string
}

// CacheKey renders the shared cache key, e.g. "economy:<uuid>" or "inventory:<uuid>:<name>"
func (k Kind) CacheKey(key Key) string {
	if key.Name == "" {
		return fmt.Sprintf("%s:%s", k, key.Player)
	}
	return fmt.Sprintf("%s:%s:%s", k, key.Player, key.Name)
}

// ParsePlayerID parses a textual UUID into a player id
func ParsePlayerID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidPlayerID, s)
	}
	return id, nil
}
