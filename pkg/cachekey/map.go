package cachekey

// Map is a hash map keyed by Key values. Keys are bucketed by HashCode and
// resolved with Equals. The zero value is ready to use. Map is not safe for
// concurrent use.
type Map[V any] struct {
	buckets map[uint64][]entry[V]
	size    int
}

type entry[V any] struct {
	key   Key
	value V
}

// NewMap creates an empty map
func NewMap[V any]() *Map[V] {
	return &Map[V]{buckets: make(map[uint64][]entry[V])}
}

// Get returns the value stored under key
func (m *Map[V]) Get(key Key) (V, bool) {
	var zero V
	if m.buckets == nil || key == nil {
		return zero, false
	}
	for _, e := range m.buckets[key.HashCode()] {
		if e.key.Equals(key) {
			return e.value, true
		}
	}
	return zero, false
}

// Contains reports whether key is present
func (m *Map[V]) Contains(key Key) bool {
	_, ok := m.Get(key)
	return ok
}

// Put stores value under key, replacing and returning any previous value
func (m *Map[V]) Put(key Key, value V) (V, bool) {
	var zero V
	if m.buckets == nil {
		m.buckets = make(map[uint64][]entry[V])
	}
	h := key.HashCode()
	bucket := m.buckets[h]
	for i := range bucket {
		if bucket[i].key.Equals(key) {
			old := bucket[i].value
			bucket[i].value = value
			return old, true
		}
	}
	m.buckets[h] = append(bucket, entry[V]{key: key, value: value})
	m.size++
	return zero, false
}

// Delete removes key and returns its value
func (m *Map[V]) Delete(key Key) (V, bool) {
	var zero V
	if m.buckets == nil || key == nil {
		return zero, false
	}
	h := key.HashCode()
	bucket := m.buckets[h]
	for i := range bucket {
		if bucket[i].key.Equals(key) {
			old := bucket[i].value
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(m.buckets, h)
			} else {
				m.buckets[h] = bucket
			}
			m.size--
			return old, true
		}
	}
	return zero, false
}

// Len returns the number of entries
func (m *Map[V]) Len() int {
	return m.size
}

// Clear removes every entry
func (m *Map[V]) Clear() {
	m.buckets = make(map[uint64][]entry[V])
	m.size = 0
}

// Range calls fn for each entry until fn returns false. Iteration order is
// unspecified.
func (m *Map[V]) Range(fn func(key Key, value V) bool) {
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			if !fn(e.key, e.value) {
				return
			}
		}
	}
}

// Keys returns a snapshot of the stored keys
func (m *Map[V]) Keys() []Key {
	keys := make([]Key, 0, m.size)
	m.Range(func(k Key, _ V) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}
