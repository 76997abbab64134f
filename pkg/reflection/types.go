// Package reflection reads and writes properties of result and parameter
// objects by name, converts raw column values to property types and creates
// result instances.
package reflection

import (
	"reflect"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"gorm.io/gorm/schema"
)

// naming derives column names from Go field names, the same way gorm does
var naming = schema.NamingStrategy{}

type fieldInfo struct {
	name  string
	index []int
	typ   reflect.Type
}

type structInfo struct {
	typ    reflect.Type
	names  []string
	byName map[string]*fieldInfo // exact Go names
	byFold map[string]*fieldInfo // lower-cased names, db tags and snake names
}

// structs caches per-type metadata for the lifetime of the process
var structs = xsync.NewMapOf[reflect.Type, *structInfo]()

func infoOf(t reflect.Type) *structInfo {
	if info, ok := structs.Load(t); ok {
		return info
	}
	info, _ := structs.LoadOrStore(t, buildStructInfo(t))
	return info
}

func buildStructInfo(t reflect.Type) *structInfo {
	info := &structInfo{
		typ:    t,
		byName: make(map[string]*fieldInfo),
		byFold: make(map[string]*fieldInfo),
	}
	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		fi := &fieldInfo{name: f.Name, index: f.Index, typ: f.Type}
		if _, dup := info.byName[f.Name]; dup {
			continue
		}
		info.byName[f.Name] = fi
		info.names = append(info.names, f.Name)

		aliases := []string{strings.ToLower(f.Name), naming.ColumnName("", f.Name)}
		if tag := strings.Split(f.Tag.Get("db"), ",")[0]; tag != "" && tag != "-" {
			aliases = append(aliases, strings.ToLower(tag))
		}
		for _, alias := range aliases {
			if _, taken := info.byFold[alias]; !taken {
				info.byFold[alias] = fi
			}
		}
	}
	return info
}

func (s *structInfo) field(name string) (*fieldInfo, bool) {
	if fi, ok := s.byName[name]; ok {
		return fi, true
	}
	fi, ok := s.byFold[strings.ToLower(name)]
	return fi, ok
}

// find resolves a column-ish name to a Go field name
func (s *structInfo) find(name string, underscoreToCamel bool) string {
	if fi, ok := s.field(name); ok {
		return fi.name
	}
	if underscoreToCamel {
		folded := strings.ReplaceAll(strings.ToLower(name), "_", "")
		if fi, ok := s.byFold[folded]; ok {
			return fi.name
		}
	}
	return ""
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
