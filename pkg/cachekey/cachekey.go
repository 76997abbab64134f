// Package cachekey implements the composite identity key used for statement
// results, nested row identity and cache entries.
package cachekey

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	defaultMultiplier = 37
	defaultHashcode   = 17
)

// Key is the identity contract accepted by caches and keyed maps
type Key interface {
	HashCode() uint64
	Equals(other any) bool
	String() string
}

// CacheKey accumulates an ordered list of values into a rolling hash.
// Two keys are equal when their hashes, checksums and update counts match
// and every folded value compares equal pairwise.
type CacheKey struct {
	multiplier uint64
	hashcode   uint64
	checksum   uint64
	count      int
	updateList []any
	frozen     bool
}

// NullCacheKey is the sentinel for "no usable identity". It refuses updates.
var NullCacheKey = &CacheKey{
	multiplier: defaultMultiplier,
	hashcode:   defaultHashcode,
	frozen:     true,
}

// New creates an empty key, optionally folding the given values in order
func New(values ...any) *CacheKey {
	k := &CacheKey{
		multiplier: defaultMultiplier,
		hashcode:   defaultHashcode,
	}
	k.UpdateAll(values...)
	return k
}

// Update folds a single value into the key. Slices and arrays other than
// []byte fold element by element, recursively, so a slice behaves like its
// elements added individually and an empty one adds nothing. Updating
// NullCacheKey panics.
func (k *CacheKey) Update(value any) *CacheKey {
	if k.frozen {
		panic("cachekey: update on NullCacheKey")
	}
	if value != nil {
		rv := reflect.ValueOf(value)
		if isFoldable(rv) {
			for i := 0; i < rv.Len(); i++ {
				k.Update(rv.Index(i).Interface())
			}
			return k
		}
	}
	k.fold(value)
	return k
}

// UpdateAll folds each value in order
func (k *CacheKey) UpdateAll(values ...any) *CacheKey {
	for _, v := range values {
		k.Update(v)
	}
	return k
}

func (k *CacheKey) fold(value any) {
	base := uint64(1)
	if value != nil {
		base = hashValue(value)
	}

	k.count++
	k.checksum += base
	base *= uint64(k.count)
	k.hashcode = k.multiplier*k.hashcode + base
	k.updateList = append(k.updateList, value)
}

// UpdateCount returns the number of folded values
func (k *CacheKey) UpdateCount() int {
	return k.count
}

// HashCode returns the rolling hash
func (k *CacheKey) HashCode() uint64 {
	return k.hashcode
}

// Equals reports whether other is a key with the same folded values
func (k *CacheKey) Equals(other any) bool {
	o, ok := other.(*CacheKey)
	if !ok || o == nil {
		return false
	}
	if k == o {
		return true
	}
	if k.hashcode != o.hashcode || k.checksum != o.checksum || k.count != o.count {
		return false
	}
	for i := range k.updateList {
		if !valuesEqual(k.updateList[i], o.updateList[i]) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. Updating the clone never affects k.
// The clone of NullCacheKey is an ordinary, updatable key.
func (k *CacheKey) Clone() *CacheKey {
	c := &CacheKey{
		multiplier: k.multiplier,
		hashcode:   k.hashcode,
		checksum:   k.checksum,
		count:      k.count,
	}
	if len(k.updateList) > 0 {
		c.updateList = make([]any, len(k.updateList))
		copy(c.updateList, k.updateList)
	}
	return c
}

// String renders hash, checksum and every folded value separated by ':'
func (k *CacheKey) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatUint(k.hashcode, 10))
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatUint(k.checksum, 10))
	for _, v := range k.updateList {
		sb.WriteByte(':')
		sb.WriteString(formatValue(v))
	}
	return sb.String()
}

// Digest is a fixed-size fingerprint of String, for stores that need short
// textual keys
func (k *CacheKey) Digest() uint64 {
	return xxhash.Sum64String(k.String())
}

func isFoldable(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Type().Elem().Kind() != reflect.Uint8
	case reflect.Array:
		return rv.Type().Elem().Kind() != reflect.Uint8
	default:
		return false
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ka, ok := a.(Key); ok {
		return ka.Equals(b)
	}
	return reflect.DeepEqual(a, b)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
