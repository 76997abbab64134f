package cachekey

import (
	"encoding/binary"
	"math"
	"reflect"
	"time"

	"github.com/cespare/xxhash/v2"
)

// hashValue digests a value together with its dynamic type, so 1 and "1"
// never collide on purpose
func hashValue(value any) uint64 {
	if k, ok := value.(Key); ok {
		return k.HashCode()
	}

	d := xxhash.New()
	writeValue(d, reflect.ValueOf(value), map[uintptr]struct{}{})
	return d.Sum64()
}

var timeType = reflect.TypeOf(time.Time{})

// writeValue feeds the content of rv to d. Values that reflect.DeepEqual
// considers equal write the same bytes; seen holds the pointers on the
// current path so cyclic values terminate.
func writeValue(d *xxhash.Digest, rv reflect.Value, seen map[uintptr]struct{}) {
	if !rv.IsValid() {
		_, _ = d.WriteString("nil")
		return
	}

	_, _ = d.WriteString(rv.Type().String())
	_, _ = d.Write([]byte{0})

	if rv.Type() == timeType && rv.CanInterface() {
		writeUint(d, uint64(rv.Interface().(time.Time).UnixNano()))
		return
	}

	switch rv.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			writeUint(d, 1)
		} else {
			writeUint(d, 0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writeUint(d, uint64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		writeUint(d, rv.Uint())
	case reflect.Float32, reflect.Float64:
		writeUint(d, math.Float64bits(rv.Float()))
	case reflect.String:
		_, _ = d.WriteString(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if rv.Kind() == reflect.Slice {
				_, _ = d.Write(rv.Bytes())
				return
			}
			for i := 0; i < rv.Len(); i++ {
				_, _ = d.Write([]byte{byte(rv.Index(i).Uint())})
			}
			return
		}
		writeUint(d, uint64(rv.Len()))
		for i := 0; i < rv.Len(); i++ {
			writeValue(d, rv.Index(i), seen)
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			writeValue(d, rv.Field(i), seen)
		}
	case reflect.Map:
		if rv.IsNil() {
			_, _ = d.WriteString("nil")
			return
		}
		// entries are summed so iteration order does not matter
		var sum uint64
		iter := rv.MapRange()
		for iter.Next() {
			entry := xxhash.New()
			writeValue(entry, iter.Key(), seen)
			writeValue(entry, iter.Value(), seen)
			sum += entry.Sum64()
		}
		writeUint(d, uint64(rv.Len()))
		writeUint(d, sum)
	case reflect.Pointer:
		if rv.IsNil() {
			_, _ = d.WriteString("nil")
			return
		}
		ptr := rv.Pointer()
		if _, ok := seen[ptr]; ok {
			_, _ = d.WriteString("cycle")
			return
		}
		seen[ptr] = struct{}{}
		writeValue(d, rv.Elem(), seen)
		delete(seen, ptr)
	case reflect.Interface:
		if rv.IsNil() {
			_, _ = d.WriteString("nil")
			return
		}
		writeValue(d, rv.Elem(), seen)
	case reflect.Complex64, reflect.Complex128:
		writeUint(d, math.Float64bits(real(rv.Complex())))
		writeUint(d, math.Float64bits(imag(rv.Complex())))
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		writeUint(d, uint64(rv.Pointer()))
	}
}

func writeUint(d *xxhash.Digest, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, _ = d.Write(buf[:])
}
