package loadingcache

import "sync"

// Map is a keyed collection of Values. Map{} is ready to use.
// (*Map)(nil) is valid and never caches or shares results for any key.
// Maps are concurrency-safe. They must not be copied.
//
// Each key has its own Value, so loads for different keys proceed in
// parallel while loads for the same key are collapsed into one.
type Map[K comparable, T any] struct {
	mu sync.Mutex
	m  map[K]*Value[T]
}

// GetOrCreate returns an existing or new Value associated with key.
// Note: If m == nil, returns nil, a never-caching Value.
func (m *Map[K, T]) GetOrCreate(key K) *Value[T] {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.m == nil {
		m.m = make(map[K]*Value[T])
	}
	v, ok := m.m[key]
	if !ok {
		v = new(Value[T])
		m.m[key] = v
	}
	return v
}

// Delete forgets key. A load already in flight for key completes for
// its waiters, but later calls to GetOrCreate start from an empty Value.
func (m *Map[K, T]) Delete(key K) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

// DeleteAll forgets every key.
func (m *Map[K, T]) DeleteAll() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m = nil
}

// Len returns the number of keys with a Value.
func (m *Map[K, T]) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.m)
}
