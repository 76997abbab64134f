// Package cache provides the second-level cache abstraction, its in-memory
// and external stores, and the decorators that add eviction, expiry,
// copy-on-read, statistics, locking and blocking on top of a store.
package cache

import "github.com/ammar0144/sqlmap/pkg/cachekey"

// Key identifies a cache entry
type Key = cachekey.Key

// Cache is a namespaced key/value store. A nil value from Get is a miss.
// Get only fails when the implementation cannot decide, for example when a
// blocking cache times out waiting for a lock.
type Cache interface {
	// ID returns the namespace the cache belongs to
	ID() string
	Put(key Key, value any)
	Get(key Key) (any, error)
	// Remove deletes an entry and returns its previous value
	Remove(key Key) any
	Clear()
	Size() int
}

// Unwrapper is implemented by decorators so callers can reach the delegate
type Unwrapper interface {
	Unwrap() Cache
}

// Find walks the decorator chain from c and returns the first cache of type T
func Find[T Cache](c Cache) (T, bool) {
	for c != nil {
		if t, ok := c.(T); ok {
			return t, true
		}
		u, ok := c.(Unwrapper)
		if !ok {
			break
		}
		c = u.Unwrap()
	}
	var zero T
	return zero, false
}
