package snapshot

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"playersync/pkg/model"
)

// Item is one occupied slot. Meta is carried through untouched.
type Item struct {
	Type   string          `json:"type"`
	Amount int             `json:"amount"`
	Meta   json.RawMessage `json:"meta,omitempty"`
}

// Collection is an ordered list of slots; nil marks an empty slot
type Collection []*Item

// Occupied counts non-empty slots
func (c Collection) Occupied() int {
	n := 0
	for _, it := range c {
		if it != nil {
			n++
		}
	}
	return n
}

// Encode serializes a collection to its stored form
func Encode(c Collection) (string, error) {
	if c == nil {
		c = Collection{}
	}
	for i, it := range c {
		if it != nil && it.Type == "" {
			return "", fmt.Errorf("%w: slot %d has no item type", model.ErrDecode, i)
		}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrDecode, err)
	}
	return string(data), nil
}

// Decode parses a stored collection. Any malformed slot fails the whole decode.
func Decode(data string) (Collection, error) {
	trimmed := bytes.TrimSpace([]byte(data))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: snapshot is not a slot array", model.ErrDecode)
	}

	var c Collection
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrDecode, err)
	}
	for i, it := range c {
		if it == nil {
			continue
		}
		if it.Type == "" {
			return nil, fmt.Errorf("%w: slot %d has no item type", model.ErrDecode, i)
		}
		if it.Amount < 0 {
			return nil, fmt.Errorf("%w: slot %d has negative amount", model.ErrDecode, i)
		}
	}
	return c, nil
}
