package maps

import "sync"

// StdSyncMap wraps the standard library sync.Map to implement the
// ConcurrentMap interface. Baseline implementation used for comparison.
type StdSyncMap[K Integer, V any] struct {
	m sync.Map
}

// NewStdSyncMap creates a new StdSyncMap.
func NewStdSyncMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &StdSyncMap[K, V]{}
}

func (m *StdSyncMap[K, V]) Load(key K) (V, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (m *StdSyncMap[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

func (m *StdSyncMap[K, V]) Delete(key K) {
	m.m.Delete(key)
}

// LoadOrStore evaluates the factory eagerly; sync.Map has no lazy form.
func (m *StdSyncMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	v, loaded := m.m.LoadOrStore(key, valueFactory())
	return v.(V), loaded
}

func (m *StdSyncMap[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}
