package reflection

import (
	"database/sql"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
	bytesType   = reflect.TypeOf([]byte(nil))
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// HasConverter reports whether values of t are produced straight from a
// single column rather than assembled from several properties
func HasConverter(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t == timeType || t == bytesType {
		return true
	}
	if reflect.PointerTo(t).Implements(scannerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Interface:
		return t.NumMethod() == 0
	case reflect.Pointer:
		return HasConverter(t.Elem())
	}
	return false
}

// IsPrimitive reports whether t cannot hold nil
func IsPrimitive(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return false
	}
	return true
}

// Convert turns a raw driver value into a value of type target. A nil input
// converts to nil.
func Convert(value any, target reflect.Type) (any, error) {
	if value == nil || target == nil {
		return value, nil
	}
	if target.Kind() == reflect.Interface {
		if reflect.TypeOf(value).Implements(target) {
			return value, nil
		}
		return nil, fmt.Errorf("cannot convert %T to %s", value, target)
	}

	rv := reflect.ValueOf(value)
	if rv.Type() == target {
		return value, nil
	}

	if reflect.PointerTo(target).Implements(scannerType) {
		p := reflect.New(target)
		if err := p.Interface().(sql.Scanner).Scan(value); err != nil {
			return nil, fmt.Errorf("cannot scan %T into %s: %w", value, target, err)
		}
		return p.Elem().Interface(), nil
	}

	if target.Kind() == reflect.Pointer {
		if rv.Kind() == reflect.Pointer && rv.Type().Elem() == target.Elem() {
			return value, nil
		}
		inner, err := Convert(value, target.Elem())
		if err != nil {
			return nil, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(reflect.ValueOf(inner))
		return p.Interface(), nil
	}
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		return Convert(rv.Elem().Interface(), target)
	}

	converted, err := convertValue(rv, target)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %T to %s: %w", value, target, err)
	}
	return converted.Interface(), nil
}

func convertValue(rv reflect.Value, target reflect.Type) (reflect.Value, error) {
	if target == timeType {
		return convertTime(rv)
	}

	switch target.Kind() {
	case reflect.String:
		return reflect.ValueOf(formatString(rv)).Convert(target), nil
	case reflect.Bool:
		b, err := parseBool(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b).Convert(target), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := parseInt(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(target).Elem()
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("value %d overflows", n)
		}
		out.SetInt(n)
		return out, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := parseInt(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(target).Elem()
		if n < 0 || out.OverflowUint(uint64(n)) {
			return reflect.Value{}, fmt.Errorf("value %d out of range", n)
		}
		out.SetUint(uint64(n))
		return out, nil
	case reflect.Float32, reflect.Float64:
		f, err := parseFloat(rv)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(f).Convert(target), nil
	case reflect.Slice:
		if target.Elem().Kind() == reflect.Uint8 {
			switch rv.Kind() {
			case reflect.String:
				return reflect.ValueOf([]byte(rv.String())).Convert(target), nil
			case reflect.Slice:
				if rv.Type().Elem().Kind() == reflect.Uint8 {
					b := make([]byte, rv.Len())
					copy(b, rv.Bytes())
					return reflect.ValueOf(b).Convert(target), nil
				}
			}
		}
	}

	if rv.Type().ConvertibleTo(target) {
		return rv.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported conversion")
}

func formatString(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	}
	if t, ok := rv.Interface().(time.Time); ok {
		return t.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(rv.Interface())
}

func textOf(rv reflect.Value) (string, bool) {
	switch rv.Kind() {
	case reflect.String:
		return strings.TrimSpace(rv.String()), true
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return strings.TrimSpace(string(rv.Bytes())), true
		}
	}
	return "", false
}

func parseBool(rv reflect.Value) (bool, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0, nil
	}
	if s, ok := textOf(rv); ok {
		return strconv.ParseBool(s)
	}
	return false, fmt.Errorf("not a boolean")
}

func parseInt(rv reflect.Value) (int64, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return int64(rv.Float()), nil
	case reflect.Bool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	}
	if s, ok := textOf(rv); ok {
		return strconv.ParseInt(s, 10, 64)
	}
	return 0, fmt.Errorf("not an integer")
}

func parseFloat(rv reflect.Value) (float64, error) {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	if s, ok := textOf(rv); ok {
		return strconv.ParseFloat(s, 64)
	}
	return 0, fmt.Errorf("not a number")
}

func convertTime(rv reflect.Value) (reflect.Value, error) {
	if t, ok := rv.Interface().(time.Time); ok {
		return reflect.ValueOf(t), nil
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflect.ValueOf(time.Unix(rv.Int(), 0).UTC()), nil
	}
	if s, ok := textOf(rv); ok {
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return reflect.ValueOf(t), nil
			}
		}
		return reflect.Value{}, fmt.Errorf("unrecognized time %q", s)
	}
	return reflect.Value{}, fmt.Errorf("not a time")
}
