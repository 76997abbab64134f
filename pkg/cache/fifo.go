package cache

import (
	"container/list"

	"github.com/ammar0144/sqlmap/pkg/cachekey"
)

// DefaultEvictionSize is the capacity eviction decorators start with
const DefaultEvictionSize = 1024

// FifoCache evicts the oldest inserted key once the capacity is exceeded.
// Reads do not affect eviction order.
type FifoCache struct {
	delegate Cache
	size     int
	order    *list.List
	index    *cachekey.Map[*list.Element]
}

// NewFifoCache wraps delegate with first-in-first-out eviction
func NewFifoCache(delegate Cache) *FifoCache {
	return &FifoCache{
		delegate: delegate,
		size:     DefaultEvictionSize,
		order:    list.New(),
		index:    cachekey.NewMap[*list.Element](),
	}
}

// SetSize changes the capacity
func (c *FifoCache) SetSize(size int) {
	c.size = size
}

func (c *FifoCache) ID() string    { return c.delegate.ID() }
func (c *FifoCache) Size() int     { return c.delegate.Size() }
func (c *FifoCache) Unwrap() Cache { return c.delegate }

func (c *FifoCache) Put(key Key, value any) {
	c.cycleKeyList(key)
	c.delegate.Put(key, value)
}

func (c *FifoCache) Get(key Key) (any, error) {
	return c.delegate.Get(key)
}

func (c *FifoCache) Remove(key Key) any {
	if el, ok := c.index.Delete(key); ok {
		c.order.Remove(el)
	}
	return c.delegate.Remove(key)
}

func (c *FifoCache) Clear() {
	c.delegate.Clear()
	c.order.Init()
	c.index.Clear()
}

func (c *FifoCache) cycleKeyList(key Key) {
	if c.index.Contains(key) {
		return
	}
	c.index.Put(key, c.order.PushBack(key))
	if c.order.Len() > c.size {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		oldestKey := oldest.Value.(Key)
		c.index.Delete(oldestKey)
		c.delegate.Remove(oldestKey)
	}
}
