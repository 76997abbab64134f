package resultset

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/ammar0144/sqlmap/pkg/lazy"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/reflection"
)

var (
	anyType       = reflect.TypeOf((*any)(nil)).Elem()
	stringType    = reflect.TypeOf("")
	lazyValueType = reflect.TypeOf((*lazy.Value)(nil))
)

type autoMapping struct {
	column   string
	property string
	typ      reflect.Type
}

// createResultObject instantiates the row object: a converted column for
// scalar result types, the constructor for constructor mappings, otherwise
// the object factory
func (h *Handler) createResultObject(ctx context.Context, rs *rowSet, rm *mapping.ResultMap, prefix string) (any, error) {
	h.useConstructorMappings = false

	switch {
	case reflection.HasConverter(rm.Type):
		return h.createPrimitiveResultObject(rs, rm, prefix)
	case len(rm.ConstructorResultMappings()) > 0:
		obj, err := h.createParameterizedResultObject(ctx, rs, rm, prefix)
		if err != nil {
			return nil, err
		}
		h.useConstructorMappings = obj != nil
		return obj, nil
	}

	obj, err := h.factory.Create(rm.Type)
	if err != nil {
		return nil, &mapping.MappingError{ResultMap: rm.ID, Err: err}
	}
	return obj, nil
}

func (h *Handler) createPrimitiveResultObject(rs *rowSet, rm *mapping.ResultMap, prefix string) (any, error) {
	var column string
	if len(rm.ResultMappings) > 0 {
		column = prefixed(rm.ResultMappings[0].Column, prefix)
	} else if len(rs.columns) > 0 {
		column = rs.columns[0]
	}
	value, err := reflection.Convert(rs.value(column), rm.Type)
	if err != nil {
		return nil, &mapping.MappingError{ResultMap: rm.ID, Column: column, Err: err}
	}
	return value, nil
}

func (h *Handler) createParameterizedResultObject(ctx context.Context, rs *rowSet, rm *mapping.ResultMap, prefix string) (any, error) {
	mappings := rm.ConstructorResultMappings()
	args := make([]any, len(mappings))
	found := false

	for i, m := range mappings {
		var (
			value any
			err   error
		)
		switch {
		case m.NestedQueryID != "":
			value, err = h.nestedQueryConstructorValue(ctx, rs, m, prefix)
		case m.NestedResultMapID != "":
			var nested *mapping.ResultMap
			if nested, err = h.conf.ResultMap(m.NestedResultMapID); err == nil {
				value, err = h.getRowValue(ctx, rs, nested, prefix+m.ColumnPrefix)
			}
		default:
			value, err = h.columnValue(rs, rm, m, prefixed(m.Column, prefix), m.GoType)
		}
		if err != nil {
			return nil, err
		}
		args[i] = value
		found = found || value != nil
	}

	if !found {
		return nil, nil
	}
	obj, err := rm.Constructor(args)
	if err != nil {
		return nil, &mapping.MappingError{ResultMap: rm.ID, Err: fmt.Errorf("constructor failed: %w", err)}
	}
	return obj, nil
}

func (h *Handler) shouldApplyAutomaticMappings(rm *mapping.ResultMap, nested bool) bool {
	if rm.AutoMapping != nil {
		return *rm.AutoMapping
	}
	if nested {
		return h.conf.Settings.AutoMappingBehavior == mapping.AutoMappingFull
	}
	return h.conf.Settings.AutoMappingBehavior != mapping.AutoMappingNone
}

func (h *Handler) applyAutomaticMappings(rs *rowSet, rm *mapping.ResultMap, meta *reflection.MetaObject, prefix string) (bool, error) {
	mappings, err := h.createAutomaticMappings(rs, rm, meta, prefix)
	if err != nil {
		return false, err
	}

	found := false
	for _, am := range mappings {
		value, err := reflection.Convert(rs.value(am.column), am.typ)
		if err != nil {
			return false, &mapping.MappingError{ResultMap: rm.ID, Property: am.property, Column: am.column, Err: err}
		}
		if value != nil {
			found = true
		}
		if value != nil || (h.conf.Settings.CallSettersOnNulls && !reflection.IsPrimitive(am.typ)) {
			if err := meta.SetValue(am.property, value); err != nil {
				return false, &mapping.MappingError{ResultMap: rm.ID, Property: am.property, Column: am.column, Err: err}
			}
		}
	}
	return found, nil
}

func (h *Handler) createAutomaticMappings(rs *rowSet, rm *mapping.ResultMap, meta *reflection.MetaObject, prefix string) ([]autoMapping, error) {
	cacheKey := rm.ID + ":" + prefix
	if cached, ok := h.autoMappings[cacheKey]; ok {
		return cached, nil
	}

	var mappings []autoMapping
	for _, column := range rs.split(rm, prefix).unmapped {
		name := column
		if prefix != "" {
			if !hasPrefixFold(column, prefix) {
				continue
			}
			name = column[len(prefix):]
		}

		property := meta.FindProperty(name, h.conf.Settings.MapUnderscoreToCamelCase)
		if property == "" || !meta.HasSetter(property) {
			if err := h.unknownColumn(rm, column, property, nil); err != nil {
				return nil, err
			}
			continue
		}
		if rm.HasMappedProperty(property) {
			continue
		}
		typ, err := meta.SetterType(property)
		if err != nil {
			return nil, &mapping.MappingError{ResultMap: rm.ID, Property: property, Column: column, Err: err}
		}
		if !reflection.HasConverter(typ) {
			if err := h.unknownColumn(rm, column, property, typ); err != nil {
				return nil, err
			}
			continue
		}
		mappings = append(mappings, autoMapping{column: column, property: property, typ: typ})
	}

	h.autoMappings[cacheKey] = mappings
	return mappings, nil
}

func (h *Handler) unknownColumn(rm *mapping.ResultMap, column, property string, typ reflect.Type) error {
	switch h.conf.Settings.AutoMappingUnknownColumnBehavior {
	case mapping.UnknownColumnWarning:
		h.log.Warn(context.Background(), "unknown column detected on %s auto-mapping [column=%s, property=%s, type=%v]",
			rm.ID, column, property, typ)
	case mapping.UnknownColumnFailing:
		return &mapping.MappingError{ResultMap: rm.ID, Property: property, Column: column,
			Err: fmt.Errorf("unknown column detected on auto-mapping (type %v)", typ)}
	}
	return nil
}

// applyPropertyMappings applies the explicit, non-nested mappings of rm
func (h *Handler) applyPropertyMappings(ctx context.Context, rs *rowSet, rm *mapping.ResultMap,
	meta *reflection.MetaObject, prefix string, lazyCount *int) (bool, error) {
	found := false
	for _, m := range rm.PropertyResultMappings() {
		column := prefixed(m.Column, prefix)
		if m.NestedResultMapID != "" && m.ResultSet == "" {
			// nested result maps are applied separately
			continue
		}
		if !m.IsCompositeResult() && m.ResultSet == "" && (column == "" || !rs.isMapped(rm, prefix, column)) {
			continue
		}

		value, deferred, err := h.propertyMappingValue(ctx, rs, rm, meta, m, prefix, lazyCount)
		if err != nil {
			return false, err
		}
		if m.Property == "" {
			continue
		}
		if deferred {
			found = true
			continue
		}
		if value != nil {
			found = true
		}
		if value == nil && !h.conf.Settings.CallSettersOnNulls {
			continue
		}
		if value == nil {
			if typ, err := PropertyType(meta, m.Property); err != nil || reflection.IsPrimitive(typ) {
				continue
			}
		}
		if err := AssignProperty(meta, m.Property, value); err != nil {
			return false, &mapping.MappingError{ResultMap: rm.ID, Property: m.Property, Column: column, Err: err}
		}
	}
	return found, nil
}

// propertyMappingValue reads the value of one mapping. deferred reports
// that the property is filled later: lazily, from a deferred load or from
// a later result set.
func (h *Handler) propertyMappingValue(ctx context.Context, rs *rowSet, rm *mapping.ResultMap, meta *reflection.MetaObject,
	m *mapping.ResultMapping, prefix string, lazyCount *int) (value any, deferred bool, err error) {
	switch {
	case m.NestedQueryID != "":
		return h.nestedQueryMappingValue(ctx, rs, meta, m, prefix, lazyCount)
	case m.ResultSet != "":
		return nil, true, h.addPendingChildRelation(rs, meta, m)
	}

	typ := m.GoType
	if typ == nil && m.Property != "" {
		if typ, err = PropertyType(meta, m.Property); err != nil {
			return nil, false, &mapping.MappingError{ResultMap: rm.ID, Property: m.Property, Column: m.Column, Err: err}
		}
	}
	value, err = h.columnValue(rs, rm, m, prefixed(m.Column, prefix), typ)
	return value, false, err
}

func (h *Handler) columnValue(rs *rowSet, rm *mapping.ResultMap, m *mapping.ResultMapping, column string, typ reflect.Type) (any, error) {
	raw := rs.value(column)
	if typ == nil || typ == anyType {
		return raw, nil
	}
	value, err := reflection.Convert(raw, typ)
	if err != nil {
		return nil, &mapping.MappingError{ResultMap: rm.ID, Property: m.Property, Column: column, Err: err}
	}
	return value, nil
}

func (h *Handler) nestedQueryConstructorValue(ctx context.Context, rs *rowSet, m *mapping.ResultMapping, prefix string) (any, error) {
	nestedMs, err := h.conf.Statement(m.NestedQueryID)
	if err != nil {
		return nil, err
	}
	param := h.nestedQueryParameter(rs, m, prefix)
	if param == nil {
		return nil, nil
	}
	boundSql, err := nestedMs.BoundSql(param)
	if err != nil {
		return nil, err
	}
	key, err := h.executor.CreateCacheKey(nestedMs, param, mapping.DefaultRowBounds, boundSql)
	if err != nil {
		return nil, err
	}
	target := m.GoType
	if target == nil {
		target = anyType
	}
	return NewResultLoader(h.executor, nestedMs, param, target, key, boundSql).Load(ctx)
}

func (h *Handler) nestedQueryMappingValue(ctx context.Context, rs *rowSet, meta *reflection.MetaObject,
	m *mapping.ResultMapping, prefix string, lazyCount *int) (any, bool, error) {
	nestedMs, err := h.conf.Statement(m.NestedQueryID)
	if err != nil {
		return nil, false, err
	}
	param := h.nestedQueryParameter(rs, m, prefix)
	if param == nil {
		return nil, false, nil
	}
	boundSql, err := nestedMs.BoundSql(param)
	if err != nil {
		return nil, false, err
	}
	key, err := h.executor.CreateCacheKey(nestedMs, param, mapping.DefaultRowBounds, boundSql)
	if err != nil {
		return nil, false, err
	}
	target, err := PropertyType(meta, m.Property)
	if err != nil {
		return nil, false, &mapping.MappingError{ResultMap: h.ms.ID, Property: m.Property, Err: err}
	}

	if h.executor.IsCached(nestedMs, key) {
		if err := h.executor.DeferLoad(nestedMs, meta, m.Property, key, target); err != nil {
			return nil, false, err
		}
		return nil, true, nil
	}

	loader := NewResultLoader(h.executor, nestedMs, param, target, key, boundSql)
	if m.IsLazy(h.conf.Settings.LazyLoadingEnabled) {
		if bindLazy(meta, m.Property, loader) {
			*lazyCount++
			return nil, true, nil
		}
	}
	value, err := loader.Load(ctx)
	return value, false, err
}

// nestedQueryParameter builds the parameter of a nested select: a map of
// the composite columns, or the single column value
func (h *Handler) nestedQueryParameter(rs *rowSet, m *mapping.ResultMapping, prefix string) any {
	if !m.IsCompositeResult() {
		return rs.value(prefixed(m.Column, prefix))
	}
	param := make(map[string]any, len(m.Composites))
	found := false
	for _, c := range m.Composites {
		v := rs.value(prefixed(c.Column, prefix))
		if v != nil && c.GoType != nil {
			if converted, err := reflection.Convert(v, c.GoType); err == nil {
				v = converted
			}
		}
		param[c.Property] = v
		found = found || v != nil
	}
	if !found {
		return nil
	}
	return param
}

// instantiateCollectionProperty creates an empty collection for a nil
// collection property and reports whether the property is a collection
func (h *Handler) instantiateCollectionProperty(m *mapping.ResultMapping, meta *reflection.MetaObject) (bool, error) {
	if m.Property == "" {
		return false, nil
	}
	typ := m.GoType
	if typ == nil {
		var err error
		if typ, err = PropertyType(meta, m.Property); err != nil {
			return false, &mapping.MappingError{ResultMap: h.ms.ID, Property: m.Property, Err: err}
		}
	}
	if !h.factory.IsCollection(typ) {
		return false, nil
	}
	current, err := meta.GetValue(m.Property)
	if err != nil {
		return false, &mapping.MappingError{ResultMap: h.ms.ID, Property: m.Property, Err: err}
	}
	if current == nil {
		empty, err := h.factory.Create(typ)
		if err != nil {
			return false, &mapping.MappingError{ResultMap: h.ms.ID, Property: m.Property, Err: err}
		}
		if err := meta.SetValue(m.Property, empty); err != nil {
			return false, &mapping.MappingError{ResultMap: h.ms.ID, Property: m.Property, Err: err}
		}
	}
	return true, nil
}

// linkObjects appends value to a collection property or sets it
func (h *Handler) linkObjects(meta *reflection.MetaObject, m *mapping.ResultMapping, value any) error {
	collection, err := h.instantiateCollectionProperty(m, meta)
	if err != nil {
		return err
	}
	if collection {
		err = meta.Append(m.Property, value)
	} else {
		err = AssignProperty(meta, m.Property, value)
	}
	if err != nil {
		return &mapping.MappingError{ResultMap: h.ms.ID, Property: m.Property, Err: err}
	}
	return nil
}

// lazyField returns the field behind a top-level property when it holds a
// lazy handle
func lazyField(meta *reflection.MetaObject, property string) (reflect.Value, bool) {
	if meta.IsMap() || strings.Contains(property, ".") {
		return reflect.Value{}, false
	}
	fv, err := meta.Field(property)
	if err != nil || !fv.IsValid() {
		return reflect.Value{}, false
	}
	if fv.Type() == lazyValueType {
		return fv, true
	}
	if fv.CanAddr() {
		if _, ok := fv.Addr().Interface().(lazy.Binder); ok {
			return fv, true
		}
	}
	return reflect.Value{}, false
}

// bindLazy installs a pending cell when property is a lazy handle
func bindLazy(meta *reflection.MetaObject, property string, loader lazy.Loader) bool {
	fv, ok := lazyField(meta, property)
	if ok {
		installCell(fv, lazy.Pending(loader))
	}
	return ok
}

func installCell(fv reflect.Value, cell *lazy.Value) {
	if fv.Type() == lazyValueType {
		fv.Set(reflect.ValueOf(cell))
		return
	}
	fv.Addr().Interface().(lazy.Binder).Bind(cell)
}

// PropertyType returns the type a value must convert to for property. For
// lazy handles this is the handled type.
func PropertyType(meta *reflection.MetaObject, property string) (reflect.Type, error) {
	if fv, ok := lazyField(meta, property); ok {
		if fv.Type() == lazyValueType {
			return anyType, nil
		}
		return fv.Addr().Interface().(lazy.Binder).ValueType(), nil
	}
	return meta.SetterType(property)
}

// AssignProperty stores value at property, resolving lazy handles in place
func AssignProperty(meta *reflection.MetaObject, property string, value any) error {
	if fv, ok := lazyField(meta, property); ok {
		if fv.Type() != lazyValueType && value != nil {
			want := fv.Addr().Interface().(lazy.Binder).ValueType()
			converted, err := reflection.Convert(value, want)
			if err != nil {
				return err
			}
			value = converted
		}
		installCell(fv, lazy.Resolved(value))
		return nil
	}
	return meta.SetValue(property, value)
}

func isMapType(t reflect.Type) bool {
	t = indirect(t)
	return t != nil && (t.Kind() == reflect.Map || t.Kind() == reflect.Interface)
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
