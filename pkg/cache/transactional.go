package cache

import (
	"context"

	"github.com/ammar0144/sqlmap/pkg/cachekey"
	"github.com/ammar0144/sqlmap/pkg/logging"
)

// TransactionalCache stages writes to a shared cache until commit. Reads go
// to the shared cache, and misses are remembered so commit can populate them
// and rollback can release any blocking latches they hold.
type TransactionalCache struct {
	delegate      Cache
	clearOnCommit bool
	toAdd         *cachekey.Map[any]
	missed        *cachekey.Map[struct{}]
	log           logging.Logger
}

// NewTransactionalCache wraps delegate for one unit of work
func NewTransactionalCache(delegate Cache, log logging.Logger) *TransactionalCache {
	return &TransactionalCache{
		delegate: delegate,
		toAdd:    cachekey.NewMap[any](),
		missed:   cachekey.NewMap[struct{}](),
		log:      logging.OrDiscard(log),
	}
}

func (c *TransactionalCache) ID() string    { return c.delegate.ID() }
func (c *TransactionalCache) Size() int     { return c.delegate.Size() }
func (c *TransactionalCache) Unwrap() Cache { return c.delegate }

// Get reads through to the shared cache. After a staged Clear every read
// misses until commit. A key this unit already missed is answered from the
// staged writes, since a blocking delegate still holds its latch for us.
func (c *TransactionalCache) Get(key Key) (any, error) {
	if c.missed.Contains(key) {
		if c.clearOnCommit {
			return nil, nil
		}
		v, _ := c.toAdd.Get(key)
		return v, nil
	}
	v, err := c.delegate.Get(key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		c.missed.Put(key, struct{}{})
	}
	if c.clearOnCommit {
		return nil, nil
	}
	return v, nil
}

// Put stages a write
func (c *TransactionalCache) Put(key Key, value any) {
	c.toAdd.Put(key, value)
}

func (c *TransactionalCache) Remove(Key) any {
	return nil
}

// Clear stages a full clear and drops pending writes
func (c *TransactionalCache) Clear() {
	c.clearOnCommit = true
	c.toAdd.Clear()
}

// Commit applies the staged clear and writes to the shared cache
func (c *TransactionalCache) Commit() {
	if c.clearOnCommit {
		c.delegate.Clear()
	}
	c.flushPendingEntries()
	c.reset()
}

// Rollback discards staged work and releases latches held by misses
func (c *TransactionalCache) Rollback() {
	c.unlockMissedEntries()
	c.reset()
}

func (c *TransactionalCache) reset() {
	c.clearOnCommit = false
	c.toAdd.Clear()
	c.missed.Clear()
}

func (c *TransactionalCache) flushPendingEntries() {
	c.toAdd.Range(func(k Key, v any) bool {
		c.delegate.Put(k, v)
		return true
	})
	c.missed.Range(func(k Key, _ struct{}) bool {
		if !c.toAdd.Contains(k) {
			c.delegate.Put(k, nil)
		}
		return true
	})
}

func (c *TransactionalCache) unlockMissedEntries() {
	c.missed.Range(func(k Key, _ struct{}) bool {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Warn(context.Background(), "cache %s: unexpected failure releasing entry %s on rollback: %v", c.ID(), k, r)
				}
			}()
			c.delegate.Remove(k)
		}()
		return true
	})
}

// TransactionalCacheManager tracks one TransactionalCache per shared cache
// touched by a unit of work
type TransactionalCacheManager struct {
	caches map[Cache]*TransactionalCache
	order  []*TransactionalCache
	log    logging.Logger
}

// NewTransactionalCacheManager creates an empty manager
func NewTransactionalCacheManager(log logging.Logger) *TransactionalCacheManager {
	return &TransactionalCacheManager{
		caches: make(map[Cache]*TransactionalCache),
		log:    log,
	}
}

func (m *TransactionalCacheManager) Clear(c Cache) {
	m.transactionalCache(c).Clear()
}

func (m *TransactionalCacheManager) Get(c Cache, key Key) (any, error) {
	return m.transactionalCache(c).Get(key)
}

func (m *TransactionalCacheManager) Put(c Cache, key Key, value any) {
	m.transactionalCache(c).Put(key, value)
}

// Commit commits every tracked cache
func (m *TransactionalCacheManager) Commit() {
	for _, tc := range m.order {
		tc.Commit()
	}
}

// Rollback rolls back every tracked cache
func (m *TransactionalCacheManager) Rollback() {
	for _, tc := range m.order {
		tc.Rollback()
	}
}

func (m *TransactionalCacheManager) transactionalCache(c Cache) *TransactionalCache {
	tc, ok := m.caches[c]
	if !ok {
		tc = NewTransactionalCache(c, m.log)
		m.caches[c] = tc
		m.order = append(m.order, tc)
	}
	return tc
}
