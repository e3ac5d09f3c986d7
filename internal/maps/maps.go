package maps

// mapImplementation controls the default concurrent map used across the
// application. Valid options: "xsync", "cornelk", "sync".
const mapImplementation = "xsync"

// Integer is a constraint that permits any integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// ConcurrentMap defines a generic, thread-safe map interface for integer
// keys. The trace recorder's registries are written from the ETW callback
// thread while being read from the control goroutine; this abstraction lets
// the underlying implementation be swapped without touching that code.
type ConcurrentMap[K Integer, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	Delete(key K)
	LoadOrStore(key K, valueFactory func() V) (V, bool)
	Range(f func(key K, value V) bool)
}

// NewConcurrentMap returns the default concurrent map implementation for
// integer-keyed maps.
func NewConcurrentMap[K Integer, V any]() ConcurrentMap[K, V] {
	switch mapImplementation {
	case "xsync":
		return NewXSyncMap[K, V]()
	case "cornelk":
		return NewCornelkMap[K, V]()
	case "sync":
		return NewStdSyncMap[K, V]()
	default:
		return NewXSyncMap[K, V]()
	}
}
