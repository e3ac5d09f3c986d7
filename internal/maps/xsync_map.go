package maps

import "github.com/puzpuzpuz/xsync/v4"

// XSyncMap implements ConcurrentMap on top of puzpuzpuz/xsync/v4.
type XSyncMap[K Integer, V any] struct {
	m *xsync.Map[K, V]
}

// NewXSyncMap creates a new XSyncMap.
func NewXSyncMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &XSyncMap[K, V]{m: xsync.NewMap[K, V]()}
}

func (m *XSyncMap[K, V]) Load(key K) (V, bool) {
	return m.m.Load(key)
}

func (m *XSyncMap[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

func (m *XSyncMap[K, V]) Delete(key K) {
	m.m.Delete(key)
}

// LoadOrStore uses LoadOrCompute so the factory only runs when the key is
// absent, and the returned bool reports whether an existing value was found.
func (m *XSyncMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	return m.m.LoadOrCompute(key, func() (V, bool) {
		// The factory for LoadOrCompute returns (value, cancel); we never cancel.
		return valueFactory(), false
	})
}

func (m *XSyncMap[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(f)
}
