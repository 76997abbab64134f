package cache

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// BlockingCache makes concurrent readers of a missing key wait while the
// first reader populates it. A Get that misses keeps the key's latch until
// the same caller calls Put or Remove for that key; a hit releases it
// immediately.
type BlockingCache struct {
	delegate Cache
	timeout  time.Duration
	latches  *xsync.MapOf[string, chan struct{}]
}

// NewBlockingCache wraps delegate with per-key latches. A zero timeout
// waits forever.
func NewBlockingCache(delegate Cache) *BlockingCache {
	return &BlockingCache{
		delegate: delegate,
		latches:  xsync.NewMapOf[string, chan struct{}](),
	}
}

// SetTimeout bounds how long a reader waits for another reader's latch
func (c *BlockingCache) SetTimeout(d time.Duration) {
	c.timeout = d
}

func (c *BlockingCache) ID() string    { return c.delegate.ID() }
func (c *BlockingCache) Size() int     { return c.delegate.Size() }
func (c *BlockingCache) Clear()        { c.delegate.Clear() }
func (c *BlockingCache) Unwrap() Cache { return c.delegate }

func (c *BlockingCache) Put(key Key, value any) {
	defer c.release(key)
	c.delegate.Put(key, value)
}

func (c *BlockingCache) Get(key Key) (any, error) {
	if err := c.acquire(key); err != nil {
		return nil, err
	}
	v, err := c.delegate.Get(key)
	if err != nil {
		c.release(key)
		return nil, err
	}
	if v != nil {
		c.release(key)
	}
	return v, nil
}

// Remove only releases the latch; the entry itself is kept
func (c *BlockingCache) Remove(key Key) any {
	c.release(key)
	return nil
}

func (c *BlockingCache) acquire(key Key) error {
	id := key.String()
	latch := make(chan struct{})
	for {
		held, loaded := c.latches.LoadOrStore(id, latch)
		if !loaded {
			return nil
		}
		if c.timeout > 0 {
			timer := time.NewTimer(c.timeout)
			select {
			case <-held:
				timer.Stop()
			case <-timer.C:
				return &LockTimeoutError{CacheID: c.ID(), Key: id, Timeout: c.timeout}
			}
		} else {
			<-held
		}
	}
}

func (c *BlockingCache) release(key Key) {
	if latch, ok := c.latches.LoadAndDelete(key.String()); ok {
		close(latch)
	}
}
