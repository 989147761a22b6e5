package cache

import (
	"sync"

	"github.com/google/uuid"

	"playersync/pkg/model"
)

// local is the process tier: a typed view over sync.Map without expiry
type local[V any] struct {
	m sync.Map
}

func (l *local[V]) load(key model.Key) (V, bool) {
	v, ok := l.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (l *local[V]) store(key model.Key, v V) {
	l.m.Store(key, v)
}

func (l *local[V]) delete(key model.Key) {
	l.m.Delete(key)
}

// deletePlayer drops every entry of one player
func (l *local[V]) deletePlayer(player uuid.UUID) {
	l.m.Range(func(k, _ any) bool {
		if k.(model.Key).Player == player {
			l.m.Delete(k)
		}
		return true
	})
}

func (l *local[V]) clear() {
	l.m.Clear()
}

func (l *local[V]) len() int {
	n := 0
	l.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
