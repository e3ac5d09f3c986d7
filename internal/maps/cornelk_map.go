package maps

import "github.com/cornelk/hashmap"

// CornelkMap wraps cornelk/hashmap to implement the ConcurrentMap interface.
type CornelkMap[K Integer, V any] struct {
	m *hashmap.Map[K, V]
}

// NewCornelkMap creates a new CornelkMap.
func NewCornelkMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &CornelkMap[K, V]{m: hashmap.New[K, V]()}
}

func (m *CornelkMap[K, V]) Load(key K) (V, bool) {
	return m.m.Get(key)
}

func (m *CornelkMap[K, V]) Store(key K, value V) { m.m.Set(key, value) }
func (m *CornelkMap[K, V]) Delete(key K)         { m.m.Del(key) }

// LoadOrStore evaluates the factory eagerly; GetOrInsert has no lazy form.
func (m *CornelkMap[K, V]) LoadOrStore(key K, valueFactory func() V) (V, bool) {
	return m.m.GetOrInsert(key, valueFactory())
}

func (m *CornelkMap[K, V]) Range(f func(key K, value V) bool) { m.m.Range(f) }
