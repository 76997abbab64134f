package mapping

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ammar0144/sqlmap/pkg/reflection"
)

// ParameterMapping binds one placeholder to a property of the parameter object
type ParameterMapping struct {
	Property string
	Mode     ParameterMode
	// GoType is the type OUT values are read as; nil reads them untyped
	GoType  reflect.Type
	SQLType string
}

// SqlSource produces the executable SQL for a parameter object
type SqlSource interface {
	BoundSql(parameter any) (*BoundSql, error)
}

// BoundSql is SQL text with its placeholder bindings, resolved for one call
type BoundSql struct {
	SQL               string
	ParameterMappings []ParameterMapping
	ParameterObject   any
	additional        map[string]any
}

// NewBoundSql creates a BoundSql
func NewBoundSql(sql string, mappings []ParameterMapping, parameter any) *BoundSql {
	return &BoundSql{
		SQL:               sql,
		ParameterMappings: mappings,
		ParameterObject:   parameter,
		additional:        map[string]any{},
	}
}

// SetAdditionalParameter adds a value that shadows the parameter object
func (b *BoundSql) SetAdditionalParameter(name string, value any) {
	if b.additional == nil {
		b.additional = map[string]any{}
	}
	b.additional[name] = value
}

// HasAdditionalParameter reports whether the first path segment of name is
// an additional parameter
func (b *BoundSql) HasAdditionalParameter(name string) bool {
	head, _, _ := strings.Cut(name, ".")
	_, ok := b.additional[head]
	return ok
}

// AdditionalParameter reads an additional parameter by path
func (b *BoundSql) AdditionalParameter(name string) (any, error) {
	return reflection.Forward(b.additional).GetValue(name)
}

// ParameterValue resolves the value bound to pm. Additional parameters win;
// a scalar parameter object is used as is for every placeholder.
func (b *BoundSql) ParameterValue(pm ParameterMapping) (any, error) {
	if b.HasAdditionalParameter(pm.Property) {
		return b.AdditionalParameter(pm.Property)
	}
	if b.ParameterObject == nil {
		return nil, nil
	}
	if reflection.HasConverter(reflect.TypeOf(b.ParameterObject)) {
		return b.ParameterObject, nil
	}
	v, err := reflection.Forward(b.ParameterObject).GetValue(pm.Property)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", pm.Property, err)
	}
	return v, nil
}

// StaticSqlSource is SQL whose text does not depend on the parameter
type StaticSqlSource struct {
	SQL               string
	ParameterMappings []ParameterMapping
}

func (s *StaticSqlSource) BoundSql(parameter any) (*BoundSql, error) {
	return NewBoundSql(s.SQL, s.ParameterMappings, parameter), nil
}

// ParseSQL turns text with #{property[,mode=OUT][,sqlType=INT]} references
// into positional placeholders and their mappings
func ParseSQL(text string) (*StaticSqlSource, error) {
	var sb strings.Builder
	var mappings []ParameterMapping

	rest := text
	for {
		start := strings.Index(rest, "#{")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return nil, Configurationf("", "unterminated parameter reference in %q", text)
		}
		pm, err := parseParameter(rest[start+2 : start+end])
		if err != nil {
			return nil, err
		}
		sb.WriteString(rest[:start])
		sb.WriteByte('?')
		mappings = append(mappings, pm)
		rest = rest[start+end+1:]
	}

	return &StaticSqlSource{SQL: sb.String(), ParameterMappings: mappings}, nil
}

func parseParameter(content string) (ParameterMapping, error) {
	parts := strings.Split(content, ",")
	pm := ParameterMapping{Property: strings.TrimSpace(parts[0])}
	if pm.Property == "" {
		return pm, Configurationf("", "empty parameter reference #{%s}", content)
	}
	for _, opt := range parts[1:] {
		k, v, ok := strings.Cut(opt, "=")
		if !ok {
			return pm, Configurationf("", "malformed parameter option %q in #{%s}", opt, content)
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		switch strings.ToLower(k) {
		case "mode":
			mode, err := ParseParameterMode(v)
			if err != nil {
				return pm, Configurationf("", "%v in #{%s}", err, content)
			}
			pm.Mode = mode
		case "sqltype", "jdbctype":
			pm.SQLType = v
		default:
			return pm, Configurationf("", "unknown parameter option %q in #{%s}", k, content)
		}
	}
	return pm, nil
}
