package cache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheLockTimeout is wrapped by LockTimeoutError
	ErrCacheLockTimeout = errors.New("timed out waiting for cache lock")

	// ErrInvalidCacheConfig is returned by the builder for unusable settings
	ErrInvalidCacheConfig = errors.New("invalid cache configuration")
)

// LockTimeoutError reports a blocking cache reader that gave up waiting
type LockTimeoutError struct {
	CacheID string
	Key     string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("couldn't get a lock in %s for the key %s at the cache %s", e.Timeout, e.Key, e.CacheID)
}

func (e *LockTimeoutError) Unwrap() error {
	return ErrCacheLockTimeout
}

// IsLockTimeout checks if an error is a blocking cache timeout
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrCacheLockTimeout)
}
