package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/ammar0144/sqlmap/pkg/logging"
)

// Decorator wraps a cache with additional behavior
type Decorator func(delegate Cache) Cache

// Standard eviction decorators
var (
	LRU  Decorator = func(c Cache) Cache { return NewLruCache(c) }
	FIFO Decorator = func(c Cache) Cache { return NewFifoCache(c) }
)

type sizer interface {
	SetSize(size int)
}

// Builder assembles a namespace cache. Decorators are always applied in the
// same order: store, eviction, scheduled flush, serialization, statistics,
// locking and finally blocking.
type Builder struct {
	id             string
	implementation func(id string) Cache
	decorators     []Decorator
	size           int
	clearInterval  time.Duration
	readWrite      bool
	blocking       bool
	timeout        time.Duration
	log            logging.Logger
}

// NewBuilder starts a read-write cache for the namespace id
func NewBuilder(id string) *Builder {
	return &Builder{id: id, readWrite: true}
}

// Implementation sets the base store; defaults to PerpetualCache
func (b *Builder) Implementation(fn func(id string) Cache) *Builder {
	b.implementation = fn
	return b
}

// AddDecorator appends an eviction decorator
func (b *Builder) AddDecorator(d Decorator) *Builder {
	if d != nil {
		b.decorators = append(b.decorators, d)
	}
	return b
}

// Size sets the capacity of eviction decorators
func (b *Builder) Size(size int) *Builder {
	b.size = size
	return b
}

// ClearInterval enables scheduled flushing
func (b *Builder) ClearInterval(d time.Duration) *Builder {
	b.clearInterval = d
	return b
}

// ReadWrite selects copy-on-read (true) or shared instances (false)
func (b *Builder) ReadWrite(readWrite bool) *Builder {
	b.readWrite = readWrite
	return b
}

// Blocking enables per-key latches for concurrent misses
func (b *Builder) Blocking(blocking bool) *Builder {
	b.blocking = blocking
	return b
}

// BlockingTimeout bounds how long a blocked reader waits
func (b *Builder) BlockingTimeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// Logger sets the logger used by the serialization and statistics layers
func (b *Builder) Logger(l logging.Logger) *Builder {
	b.log = l
	return b
}

// Build validates the settings and assembles the decorator chain
func (b *Builder) Build() (Cache, error) {
	if strings.TrimSpace(b.id) == "" {
		return nil, fmt.Errorf("%w: cache id is required", ErrInvalidCacheConfig)
	}
	if b.size < 0 {
		return nil, fmt.Errorf("%w: size must be non-negative for cache %s", ErrInvalidCacheConfig, b.id)
	}
	if b.clearInterval < 0 || b.timeout < 0 {
		return nil, fmt.Errorf("%w: intervals must be non-negative for cache %s", ErrInvalidCacheConfig, b.id)
	}

	impl := b.implementation
	if impl == nil {
		impl = func(id string) Cache { return NewPerpetualCache(id) }
	}
	c := impl(b.id)
	if c == nil {
		return nil, fmt.Errorf("%w: implementation returned no cache for %s", ErrInvalidCacheConfig, b.id)
	}

	decorators := b.decorators
	if _, perpetual := c.(*PerpetualCache); perpetual && len(decorators) == 0 {
		decorators = []Decorator{LRU}
	}
	for _, d := range decorators {
		c = d(c)
		if s, ok := c.(sizer); ok && b.size > 0 {
			s.SetSize(b.size)
		}
	}

	if b.clearInterval > 0 {
		sc := NewScheduledCache(c)
		sc.SetClearInterval(b.clearInterval)
		c = sc
	}
	if b.readWrite {
		c = NewSerializedCache(c, b.log)
	}
	c = NewLoggingCache(c, b.log)
	c = NewSynchronizedCache(c)
	if b.blocking {
		bc := NewBlockingCache(c)
		bc.SetTimeout(b.timeout)
		c = bc
	}
	return c, nil
}
