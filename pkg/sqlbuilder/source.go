package sqlbuilder

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/reflection"
)

var (
	// ErrInvalidStatement is returned when clauses cannot form a statement
	ErrInvalidStatement = errors.New("invalid statement")

	// ErrInvalidParameter is returned when a collection property cannot be
	// expanded for the parameter object given
	ErrInvalidParameter = errors.New("invalid collection parameter")
)

// segment is either static SQL with its placeholders or one collection
// condition expanded per call
type segment struct {
	sql      string
	mappings []mapping.ParameterMapping
	expand   *Condition
}

type template struct {
	segments []*segment
}

func (t *template) current() *segment {
	if n := len(t.segments); n > 0 && t.segments[n-1].expand == nil {
		return t.segments[n-1]
	}
	seg := &segment{}
	t.segments = append(t.segments, seg)
	return seg
}

func (t *template) text(s string) {
	t.current().sql += s
}

func (t *template) param(property string) error {
	if property == "" {
		return fmt.Errorf("%w: empty property reference", ErrInvalidStatement)
	}
	seg := t.current()
	seg.sql += "?"
	seg.mappings = append(seg.mappings, mapping.ParameterMapping{Property: property})
	return nil
}

func (t *template) expand(cond Condition) {
	t.segments = append(t.segments, &segment{expand: &cond})
}

func (t *template) source() *Source {
	return &Source{segments: t.segments}
}

// Source is a mapping.SqlSource built by a Builder. Statements without IN
// or BETWEEN conditions resolve to the same SQL for every parameter.
type Source struct {
	segments []*segment
}

// String renders the SQL with collection conditions unexpanded
func (s *Source) String() string {
	var sb strings.Builder
	for _, seg := range s.segments {
		if seg.expand != nil {
			fmt.Fprintf(&sb, "%s %s (#{%s})", seg.expand.Field, seg.expand.Operator, seg.expand.Property)
			continue
		}
		sb.WriteString(seg.sql)
	}
	return sb.String()
}

// BoundSql expands collection conditions against parameter. Expanded
// elements are bound as additional parameters.
func (s *Source) BoundSql(parameter any) (*mapping.BoundSql, error) {
	var sb strings.Builder
	var mappings []mapping.ParameterMapping
	additional := map[string]any{}

	for i, seg := range s.segments {
		if seg.expand == nil {
			sb.WriteString(seg.sql)
			mappings = append(mappings, seg.mappings...)
			continue
		}
		sql, pms, err := expandCondition(*seg.expand, parameter, i, additional)
		if err != nil {
			return nil, err
		}
		sb.WriteString(sql)
		mappings = append(mappings, pms...)
	}

	bs := mapping.NewBoundSql(sb.String(), mappings, parameter)
	for name, v := range additional {
		bs.SetAdditionalParameter(name, v)
	}
	return bs, nil
}

func expandCondition(cond Condition, parameter any, index int, additional map[string]any) (string, []mapping.ParameterMapping, error) {
	value, err := collectionValue(parameter, cond.Property)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrInvalidParameter, cond.Property, err)
	}

	isRange := cond.Operator == Between || cond.Operator == NotBetween
	if value == nil {
		if isRange {
			return "", nil, fmt.Errorf("%w: %s is nil", ErrInvalidParameter, cond.Property)
		}
		return emptyCollection(cond.Operator), nil, nil
	}

	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		if isRange {
			return "", nil, fmt.Errorf("%w: %s needs two values, got %T", ErrInvalidParameter, cond.Property, value)
		}
		// a single value
		return fmt.Sprintf("%s %s (?)", cond.Field, cond.Operator),
			[]mapping.ParameterMapping{{Property: cond.Property}}, nil
	}

	n := v.Len()
	if isRange && n != 2 {
		return "", nil, fmt.Errorf("%w: %s needs two values, got %d", ErrInvalidParameter, cond.Property, n)
	}
	if n == 0 {
		return emptyCollection(cond.Operator), nil, nil
	}

	placeholders := make([]string, n)
	pms := make([]mapping.ParameterMapping, n)
	for j := 0; j < n; j++ {
		name := fmt.Sprintf("_sb%d_%d", index, j)
		additional[name] = v.Index(j).Interface()
		placeholders[j] = "?"
		pms[j] = mapping.ParameterMapping{Property: name}
	}
	if isRange {
		return fmt.Sprintf("%s %s ? AND ?", cond.Field, cond.Operator), pms, nil
	}
	return fmt.Sprintf("%s %s (%s)", cond.Field, cond.Operator, strings.Join(placeholders, ", ")), pms, nil
}

// collectionValue reads property, or takes a parameter that is itself a
// collection as is
func collectionValue(parameter any, property string) (any, error) {
	if parameter != nil {
		switch reflect.Indirect(reflect.ValueOf(parameter)).Kind() {
		case reflect.Slice, reflect.Array:
			return parameter, nil
		}
	}
	return reflection.Forward(parameter).GetValue(property)
}

// emptyCollection is the constant condition an empty IN or NOT IN reduces to
func emptyCollection(op Operator) string {
	if op == NotIn {
		return "1 = 1"
	}
	return "1 = 0"
}
