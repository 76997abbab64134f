package cache

import (
	"container/list"

	"github.com/ammar0144/sqlmap/pkg/cachekey"
)

// LruCache evicts the least recently used key once the capacity is
// exceeded. Both reads and writes count as use.
type LruCache struct {
	delegate Cache
	size     int
	order    *list.List
	index    *cachekey.Map[*list.Element]
}

// NewLruCache wraps delegate with least-recently-used eviction
func NewLruCache(delegate Cache) *LruCache {
	return &LruCache{
		delegate: delegate,
		size:     DefaultEvictionSize,
		order:    list.New(),
		index:    cachekey.NewMap[*list.Element](),
	}
}

// SetSize changes the capacity
func (c *LruCache) SetSize(size int) {
	c.size = size
}

func (c *LruCache) ID() string    { return c.delegate.ID() }
func (c *LruCache) Size() int     { return c.delegate.Size() }
func (c *LruCache) Unwrap() Cache { return c.delegate }

func (c *LruCache) Put(key Key, value any) {
	c.delegate.Put(key, value)
	c.touch(key)
}

func (c *LruCache) Get(key Key) (any, error) {
	if el, ok := c.index.Get(key); ok {
		c.order.MoveToBack(el)
	}
	return c.delegate.Get(key)
}

func (c *LruCache) Remove(key Key) any {
	if el, ok := c.index.Delete(key); ok {
		c.order.Remove(el)
	}
	return c.delegate.Remove(key)
}

func (c *LruCache) Clear() {
	c.delegate.Clear()
	c.order.Init()
	c.index.Clear()
}

func (c *LruCache) touch(key Key) {
	if el, ok := c.index.Get(key); ok {
		c.order.MoveToBack(el)
		return
	}
	c.index.Put(key, c.order.PushBack(key))
	if c.order.Len() > c.size {
		eldest := c.order.Front()
		c.order.Remove(eldest)
		eldestKey := eldest.Value.(Key)
		c.index.Delete(eldestKey)
		c.delegate.Remove(eldestKey)
	}
}
