package mapping

import (
	"fmt"
	"reflect"
	"strings"
)

// ResultFlag marks special result mappings
type ResultFlag int

const (
	// FlagID marks a column that identifies the row
	FlagID ResultFlag = 1 << iota
	// FlagConstructor passes the column to the result map constructor
	FlagConstructor
)

// ResultMapping maps one column, nested shape or nested query to a property
type ResultMapping struct {
	Property string
	Column   string
	// GoType overrides the property type used for conversion
	GoType reflect.Type
	Flags  ResultFlag

	NestedResultMapID string
	NestedQueryID     string
	// NotNullColumns lists columns of which at least one must be non-null
	// for a nested shape to be built
	NotNullColumns []string
	ColumnPrefix   string
	// Composites map several columns onto the nested query parameter
	Composites []*ResultMapping

	// ResultSet names a later result set that supplies this property;
	// Column lists the parent columns, ForeignColumn the child columns
	ResultSet     string
	ForeignColumn string

	Fetch FetchType
}

// IsID reports whether the mapping identifies the row
func (m *ResultMapping) IsID() bool { return m.Flags&FlagID != 0 }

// IsConstructor reports whether the mapping is a constructor argument
func (m *ResultMapping) IsConstructor() bool { return m.Flags&FlagConstructor != 0 }

// IsCompositeResult reports whether the mapping binds several columns
func (m *ResultMapping) IsCompositeResult() bool { return len(m.Composites) > 0 }

// Columns splits Column on commas
func (m *ResultMapping) Columns() []string {
	return splitColumns(m.Column)
}

// ForeignColumns splits ForeignColumn on commas
func (m *ResultMapping) ForeignColumns() []string {
	return splitColumns(m.ForeignColumn)
}

// IsLazy resolves the fetch type against the global setting
func (m *ResultMapping) IsLazy(lazyByDefault bool) bool {
	switch m.Fetch {
	case FetchLazy:
		return true
	case FetchEager:
		return false
	}
	return lazyByDefault
}

func splitColumns(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Discriminator selects a more specific result map from a column value
type Discriminator struct {
	Column string
	// GoType converts the raw value before it is matched; nil matches its
	// printed form
	GoType reflect.Type
	// Cases maps printed values to result map ids
	Cases map[string]string
}

// MapIDFor returns the result map chosen for value
func (d *Discriminator) MapIDFor(value any) (string, bool) {
	if value == nil {
		return "", false
	}
	key, isBytes := value.([]byte)
	if isBytes {
		id, ok := d.Cases[string(key)]
		return id, ok
	}
	id, ok := d.Cases[fmt.Sprint(value)]
	return id, ok
}

// ResultMap describes how rows become objects of one shape
type ResultMap struct {
	ID            string
	Type          reflect.Type
	AutoMapping   *bool
	Discriminator *Discriminator
	// Constructor builds the object from FlagConstructor mappings, in order
	Constructor func(args []any) (any, error)

	ResultMappings []*ResultMapping

	idMappings          []*ResultMapping
	constructorMappings []*ResultMapping
	propertyMappings    []*ResultMapping
	mappedColumns       map[string]struct{}
	mappedProperties    map[string]struct{}
	hasNestedResultMaps bool
	hasNestedQueries    bool
}

// ResultMapOption customizes a result map
type ResultMapOption func(*ResultMap)

// WithDiscriminator attaches a discriminator
func WithDiscriminator(d *Discriminator) ResultMapOption {
	return func(rm *ResultMap) { rm.Discriminator = d }
}

// WithAutoMapping overrides the global auto-mapping behavior
func WithAutoMapping(enabled bool) ResultMapOption {
	return func(rm *ResultMap) { rm.AutoMapping = &enabled }
}

// WithConstructor sets the function receiving constructor arguments
func WithConstructor(fn func(args []any) (any, error)) ResultMapOption {
	return func(rm *ResultMap) { rm.Constructor = fn }
}

// NewResultMap validates mappings and derives the lookup tables
func NewResultMap(id string, typ reflect.Type, mappings []*ResultMapping, opts ...ResultMapOption) (*ResultMap, error) {
	if strings.TrimSpace(id) == "" {
		return nil, Configurationf("", "result map id is required")
	}
	if typ == nil {
		return nil, Configurationf(id, "result map type is required")
	}

	rm := &ResultMap{
		ID:               id,
		Type:             typ,
		ResultMappings:   mappings,
		mappedColumns:    map[string]struct{}{},
		mappedProperties: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(rm)
	}

	for _, m := range mappings {
		if m == nil {
			return nil, Configurationf(id, "nil result mapping")
		}
		if m.NestedResultMapID != "" && m.NestedQueryID != "" {
			return nil, Configurationf(id, "property %s cannot use both a nested result map and a nested query", m.Property)
		}
		if m.ResultSet != "" && m.NestedResultMapID == "" {
			return nil, Configurationf(id, "property %s names result set %s without a nested result map", m.Property, m.ResultSet)
		}

		if m.NestedQueryID != "" {
			rm.hasNestedQueries = true
		}
		if m.NestedResultMapID != "" && m.ResultSet == "" {
			rm.hasNestedResultMaps = true
		}

		for _, c := range m.Columns() {
			rm.mappedColumns[strings.ToUpper(c)] = struct{}{}
		}
		for _, comp := range m.Composites {
			for _, c := range comp.Columns() {
				rm.mappedColumns[strings.ToUpper(c)] = struct{}{}
			}
		}

		if m.IsConstructor() {
			rm.constructorMappings = append(rm.constructorMappings, m)
		} else {
			rm.propertyMappings = append(rm.propertyMappings, m)
			if m.Property != "" {
				rm.mappedProperties[m.Property] = struct{}{}
			}
		}
		if m.IsID() {
			rm.idMappings = append(rm.idMappings, m)
		}
	}
	if len(rm.idMappings) == 0 {
		rm.idMappings = append(rm.idMappings, mappings...)
	}
	if len(rm.constructorMappings) > 0 && rm.Constructor == nil {
		return nil, Configurationf(id, "constructor mappings require a constructor function")
	}
	if d := rm.Discriminator; d != nil && d.Column == "" {
		return nil, Configurationf(id, "discriminator column is required")
	}

	return rm, nil
}

// MustResultMap is NewResultMap for static declarations
func MustResultMap(id string, typ reflect.Type, mappings []*ResultMapping, opts ...ResultMapOption) *ResultMap {
	rm, err := NewResultMap(id, typ, mappings, opts...)
	if err != nil {
		panic(err)
	}
	return rm
}

// IDResultMappings returns the identifying mappings, or every mapping when
// none is flagged
func (rm *ResultMap) IDResultMappings() []*ResultMapping { return rm.idMappings }

// ConstructorResultMappings returns the constructor arguments in order
func (rm *ResultMap) ConstructorResultMappings() []*ResultMapping { return rm.constructorMappings }

// PropertyResultMappings returns the non-constructor mappings
func (rm *ResultMap) PropertyResultMappings() []*ResultMapping { return rm.propertyMappings }

// HasMappedColumn reports whether an upper-cased column is named by a mapping
func (rm *ResultMap) HasMappedColumn(upper string) bool {
	_, ok := rm.mappedColumns[upper]
	return ok
}

// HasMappedProperty reports whether a property is the target of a mapping
func (rm *ResultMap) HasMappedProperty(property string) bool {
	_, ok := rm.mappedProperties[property]
	return ok
}

// HasNestedResultMaps reports whether rows must be grouped into object graphs
func (rm *ResultMap) HasNestedResultMaps() bool { return rm.hasNestedResultMaps }

// HasNestedQueries reports whether properties are fetched by other statements
func (rm *ResultMap) HasNestedQueries() bool { return rm.hasNestedQueries }
