package redis

import "errors"

var (
	ErrCacheDisabled        = errors.New("redis cache is disabled")
	ErrClientNotInitialized = errors.New("redis client not initialized")
	ErrConnectionFailed     = errors.New("redis connection failed")

	// ErrKeyNotFound is a miss, not a failure
	ErrKeyNotFound = errors.New("cache key not found")

	// ErrSerializationFailed and ErrCompressionFailed mean a stored payload
	// could not be read back; the entry is treated as a miss
	ErrSerializationFailed = errors.New("cache payload unreadable")
	ErrCompressionFailed   = errors.New("cache compression failed")
)

// IsMiss reports whether err only means the store has nothing for the key
func IsMiss(err error) bool {
	return errors.Is(err, ErrKeyNotFound) || errors.Is(err, ErrCacheDisabled)
}

// IsUnavailable reports whether the server could not be reached
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrClientNotInitialized)
}
