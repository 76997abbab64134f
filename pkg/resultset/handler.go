package resultset

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ammar0144/sqlmap/pkg/cachekey"
	"github.com/ammar0144/sqlmap/pkg/logging"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/reflection"
)

// Handler materializes the rows of one statement execution. It is used by
// a single caller and discarded afterwards.
type Handler struct {
	executor      Executor
	conf          *mapping.Configuration
	ms            *mapping.MappedStatement
	boundSql      *mapping.BoundSql
	bounds        mapping.RowBounds
	resultHandler mapping.ResultHandler
	factory       reflection.ObjectFactory
	log           logging.Logger

	// nested result maps
	nestedResultObjects *cachekey.Map[any]
	ancestorObjects     *cachekey.Map[any]
	previousRowValue    any

	// multiple result sets
	nextResultMaps   map[string]*mapping.ResultMapping
	pendingRelations *cachekey.Map[[]pendingRelation]

	autoMappings           map[string][]autoMapping
	useConstructorMappings bool
}

type pendingRelation struct {
	meta    *reflection.MetaObject
	mapping *mapping.ResultMapping
}

// NewHandler creates a handler for one execution of ms. A nil result
// handler collects results into the returned list.
func NewHandler(executor Executor, conf *mapping.Configuration, ms *mapping.MappedStatement,
	boundSql *mapping.BoundSql, bounds mapping.RowBounds, resultHandler mapping.ResultHandler) *Handler {
	factory := conf.ObjectFactory
	if factory == nil {
		factory = reflection.DefaultObjectFactory{}
	}
	return &Handler{
		executor:            executor,
		conf:                conf,
		ms:                  ms,
		boundSql:            boundSql,
		bounds:              bounds,
		resultHandler:       resultHandler,
		factory:             factory,
		log:                 conf.Log(),
		nestedResultObjects: cachekey.NewMap[any](),
		ancestorObjects:     cachekey.NewMap[any](),
		nextResultMaps:      map[string]*mapping.ResultMapping{},
		pendingRelations:    cachekey.NewMap[[]pendingRelation](),
		autoMappings:        map[string][]autoMapping{},
	}
}

// HandleResultSets materializes every result set of rows. With one result
// map the objects are returned directly; with several, the list holds one
// list per result set. Result sets named by the statement's ResultSets are
// linked to the parents waiting for them instead of being returned.
func (h *Handler) HandleResultSets(ctx context.Context, rows Rows) ([]any, error) {
	var multipleResults []any

	rs, err := h.firstResultSet(rows)
	if err != nil {
		return nil, h.wrap(err)
	}

	resultMaps := h.ms.ResultMaps
	if rs != nil && len(resultMaps) == 0 {
		return nil, mapping.Mappingf(h.ms.ID, "a query was run and no result maps were found for the statement")
	}

	i := 0
	for ; rs != nil && i < len(resultMaps); i++ {
		collected, err := h.handleResultSet(ctx, rs, resultMaps[i], nil)
		if err != nil {
			return nil, err
		}
		if collected != nil {
			multipleResults = append(multipleResults, collected)
		}
		if rs, err = h.nextResultSet(rows); err != nil {
			return nil, h.wrap(err)
		}
		h.cleanUpAfterResultSet()
	}

	for ; rs != nil && i < len(h.ms.ResultSets); i++ {
		if parent, ok := h.nextResultMaps[h.ms.ResultSets[i]]; ok {
			nested, err := h.conf.ResultMap(parent.NestedResultMapID)
			if err != nil {
				return nil, err
			}
			if _, err := h.handleResultSet(ctx, rs, nested, parent); err != nil {
				return nil, err
			}
		}
		if rs, err = h.nextResultSet(rows); err != nil {
			return nil, h.wrap(err)
		}
		h.cleanUpAfterResultSet()
	}

	return collapseSingleResultList(multipleResults), nil
}

// HandleCursorResultSets returns a cursor that materializes objects as it
// is advanced. Nested result maps need ordered rows.
func (h *Handler) HandleCursorResultSets(ctx context.Context, rows Rows) (*ResultCursor, error) {
	rs, err := h.firstResultSet(rows)
	if err != nil {
		return nil, h.wrap(err)
	}
	if len(h.ms.ResultMaps) != 1 {
		return nil, mapping.Mappingf(h.ms.ID, "cursor results cannot be mapped to %d result maps", len(h.ms.ResultMaps))
	}
	rm := h.ms.ResultMaps[0]
	if rm.HasNestedResultMaps() && !h.ms.ResultOrdered {
		return nil, mapping.Mappingf(h.ms.ID, "cursors over nested result maps require ordered results")
	}
	return newResultCursor(h, rs, rows, rm, h.bounds), nil
}

// HandleOutputParameters copies OUT and INOUT values back onto the
// parameter object by property name
func (h *Handler) HandleOutputParameters(outs map[string]any) error {
	param := h.boundSql.ParameterObject
	if param == nil || len(outs) == 0 {
		return nil
	}
	meta := h.conf.NewMetaObject(param)
	for _, pm := range h.boundSql.ParameterMappings {
		if !pm.Mode.IsOutput() {
			continue
		}
		value, ok := outs[pm.Property]
		if !ok {
			continue
		}
		if err := meta.SetValue(pm.Property, value); err != nil {
			return &mapping.MappingError{ResultMap: h.ms.ID, Property: pm.Property, Err: err}
		}
	}
	return nil
}

func (h *Handler) firstResultSet(rows Rows) (*rowSet, error) {
	rs, err := newRowSet(rows)
	if err != nil {
		return nil, err
	}
	if len(rs.columns) > 0 {
		return rs, nil
	}
	return h.advance(rows)
}

func (h *Handler) nextResultSet(rows Rows) (*rowSet, error) {
	if !h.conf.Settings.MultipleResultSetsEnabled {
		return nil, nil
	}
	return h.advance(rows)
}

func (h *Handler) advance(rows Rows) (*rowSet, error) {
	for rows.NextResultSet() {
		rs, err := newRowSet(rows)
		if err != nil {
			return nil, err
		}
		if len(rs.columns) > 0 {
			return rs, nil
		}
	}
	return nil, rows.Err()
}

func (h *Handler) cleanUpAfterResultSet() {
	h.nestedResultObjects.Clear()
}

func (h *Handler) handleResultSet(ctx context.Context, rs *rowSet, rm *mapping.ResultMap, parent *mapping.ResultMapping) ([]any, error) {
	switch {
	case parent != nil:
		return nil, h.handleRowValues(ctx, rs, rm, nil, mapping.DefaultRowBounds, parent)
	case h.resultHandler == nil:
		collector := &listHandler{list: []any{}}
		if err := h.handleRowValues(ctx, rs, rm, collector, h.bounds, nil); err != nil {
			return nil, err
		}
		return collector.list, nil
	default:
		return nil, h.handleRowValues(ctx, rs, rm, h.resultHandler, h.bounds, nil)
	}
}

func (h *Handler) handleRowValues(ctx context.Context, rs *rowSet, rm *mapping.ResultMap, handler mapping.ResultHandler,
	bounds mapping.RowBounds, parent *mapping.ResultMapping) error {
	if rm.HasNestedResultMaps() {
		if err := h.ensureNoRowBounds(bounds); err != nil {
			return err
		}
		if err := h.checkResultHandler(); err != nil {
			return err
		}
		return h.handleRowValuesForNestedResultMap(ctx, rs, rm, handler, bounds, parent)
	}
	return h.handleRowValuesForSimpleResultMap(ctx, rs, rm, handler, bounds, parent)
}

func (h *Handler) ensureNoRowBounds(bounds mapping.RowBounds) error {
	if h.conf.Settings.SafeRowBoundsEnabled && !bounds.IsDefault() {
		return mapping.Mappingf(h.ms.ID, "statements with nested result mappings cannot be safely constrained by row bounds; "+
			"disable safe_row_bounds_enabled to bypass this check")
	}
	return nil
}

func (h *Handler) checkResultHandler() error {
	if h.resultHandler != nil && h.conf.Settings.SafeResultHandlerEnabled && !h.ms.ResultOrdered {
		return mapping.Mappingf(h.ms.ID, "statements with nested result mappings cannot be safely used with a custom result handler; "+
			"disable safe_result_handler_enabled or mark the statement result ordered")
	}
	return nil
}

func (h *Handler) handleRowValuesForSimpleResultMap(ctx context.Context, rs *rowSet, rm *mapping.ResultMap,
	handler mapping.ResultHandler, bounds mapping.RowBounds, parent *mapping.ResultMapping) error {
	rc := &resultContext{}
	if err := skipRows(rs, bounds); err != nil {
		return h.wrap(err)
	}
	for shouldProcessMoreRows(rc, bounds) {
		ok, err := rs.next()
		if err != nil {
			return h.wrap(err)
		}
		if !ok {
			break
		}
		discriminated, err := h.resolveDiscriminatedResultMap(rs, rm, "")
		if err != nil {
			return err
		}
		rowValue, err := h.getRowValue(ctx, rs, discriminated, "")
		if err != nil {
			return err
		}
		if err := h.storeObject(handler, rc, rowValue, parent, rs); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) handleRowValuesForNestedResultMap(ctx context.Context, rs *rowSet, rm *mapping.ResultMap,
	handler mapping.ResultHandler, bounds mapping.RowBounds, parent *mapping.ResultMapping) error {
	rc := &resultContext{}
	if err := skipRows(rs, bounds); err != nil {
		return h.wrap(err)
	}

	rowValue := h.previousRowValue
	for shouldProcessMoreRows(rc, bounds) {
		ok, err := rs.next()
		if err != nil {
			return h.wrap(err)
		}
		if !ok {
			break
		}
		discriminated, err := h.resolveDiscriminatedResultMap(rs, rm, "")
		if err != nil {
			return err
		}
		rowKey, err := h.createRowKey(discriminated, rs, "")
		if err != nil {
			return err
		}
		partial := h.knownObject(rowKey)

		if h.ms.ResultOrdered {
			if partial == nil && rowValue != nil {
				h.nestedResultObjects.Clear()
				if err := h.storeObject(handler, rc, rowValue, parent, rs); err != nil {
					return err
				}
			}
			if rowValue, err = h.getNestedRowValue(ctx, rs, discriminated, rowKey, rowKey, "", partial); err != nil {
				return err
			}
			continue
		}

		if rowValue, err = h.getNestedRowValue(ctx, rs, discriminated, rowKey, rowKey, "", partial); err != nil {
			return err
		}
		if partial == nil {
			if err := h.storeObject(handler, rc, rowValue, parent, rs); err != nil {
				return err
			}
		}
	}

	if rowValue != nil && h.ms.ResultOrdered && shouldProcessMoreRows(rc, bounds) {
		h.previousRowValue = nil
		return h.storeObject(handler, rc, rowValue, parent, rs)
	}
	if rowValue != nil {
		h.previousRowValue = rowValue
	}
	return nil
}

func (h *Handler) knownObject(key *cachekey.CacheKey) any {
	if key == cachekey.NullCacheKey {
		return nil
	}
	v, _ := h.nestedResultObjects.Get(key)
	return v
}

func skipRows(rs *rowSet, bounds mapping.RowBounds) error {
	for i := 0; i < bounds.Offset; i++ {
		ok, err := rs.next()
		if err != nil || !ok {
			return err
		}
	}
	return nil
}

func shouldProcessMoreRows(rc *resultContext, bounds mapping.RowBounds) bool {
	return !rc.stopped && rc.count < bounds.Limit
}

func (h *Handler) storeObject(handler mapping.ResultHandler, rc *resultContext, rowValue any,
	parent *mapping.ResultMapping, rs *rowSet) error {
	if parent != nil {
		return h.linkToParents(rs, parent, rowValue)
	}
	rc.next(rowValue)
	handler.HandleResult(rc)
	return nil
}

// getRowValue builds the object for one row of a flat result map
func (h *Handler) getRowValue(ctx context.Context, rs *rowSet, rm *mapping.ResultMap, prefix string) (any, error) {
	lazyCount := 0
	rowValue, err := h.createResultObject(ctx, rs, rm, prefix)
	if err != nil || rowValue == nil || reflection.HasConverter(rm.Type) {
		return rowValue, err
	}

	meta := h.conf.NewMetaObject(rowValue)
	found := h.useConstructorMappings
	if h.shouldApplyAutomaticMappings(rm, false) {
		applied, err := h.applyAutomaticMappings(rs, rm, meta, prefix)
		if err != nil {
			return nil, err
		}
		found = applied || found
	}
	applied, err := h.applyPropertyMappings(ctx, rs, rm, meta, prefix, &lazyCount)
	if err != nil {
		return nil, err
	}
	found = applied || found || lazyCount > 0
	if !found && !h.conf.Settings.ReturnInstanceForEmptyRow {
		return nil, nil
	}
	return rowValue, nil
}

// getNestedRowValue builds or completes the object for a row of a nested
// result map. rowKey identifies the row, combinedKey scopes it to its parent.
func (h *Handler) getNestedRowValue(ctx context.Context, rs *rowSet, rm *mapping.ResultMap,
	rowKey, combinedKey *cachekey.CacheKey, prefix string, partial any) (any, error) {
	if partial != nil {
		meta := h.conf.NewMetaObject(partial)
		h.putAncestor(rowKey, partial)
		_, err := h.applyNestedResultMappings(ctx, rs, rm, meta, prefix, combinedKey, false)
		h.removeAncestor(rowKey)
		return partial, err
	}

	lazyCount := 0
	rowValue, err := h.createResultObject(ctx, rs, rm, prefix)
	if err != nil {
		return nil, err
	}
	if rowValue != nil && !reflection.HasConverter(rm.Type) {
		meta := h.conf.NewMetaObject(rowValue)
		found := h.useConstructorMappings
		if h.shouldApplyAutomaticMappings(rm, true) {
			applied, err := h.applyAutomaticMappings(rs, rm, meta, prefix)
			if err != nil {
				return nil, err
			}
			found = applied || found
		}
		applied, err := h.applyPropertyMappings(ctx, rs, rm, meta, prefix, &lazyCount)
		if err != nil {
			return nil, err
		}
		found = applied || found

		h.putAncestor(rowKey, rowValue)
		applied, err = h.applyNestedResultMappings(ctx, rs, rm, meta, prefix, combinedKey, true)
		h.removeAncestor(rowKey)
		if err != nil {
			return nil, err
		}
		found = applied || found || lazyCount > 0
		if !found && !h.conf.Settings.ReturnInstanceForEmptyRow {
			rowValue = nil
		}
	}
	if combinedKey != cachekey.NullCacheKey {
		h.nestedResultObjects.Put(combinedKey, rowValue)
	}
	return rowValue, nil
}

func (h *Handler) putAncestor(key *cachekey.CacheKey, object any) {
	if key != cachekey.NullCacheKey {
		h.ancestorObjects.Put(key, object)
	}
}

func (h *Handler) removeAncestor(key *cachekey.CacheKey) {
	if key != cachekey.NullCacheKey {
		h.ancestorObjects.Delete(key)
	}
}

// applyNestedResultMappings fills nested objects and collections from the
// current row
func (h *Handler) applyNestedResultMappings(ctx context.Context, rs *rowSet, rm *mapping.ResultMap,
	meta *reflection.MetaObject, parentPrefix string, parentRowKey *cachekey.CacheKey, newObject bool) (bool, error) {
	found := false
	for _, m := range rm.PropertyResultMappings() {
		if m.NestedResultMapID == "" || m.ResultSet != "" {
			continue
		}

		columnPrefix := parentPrefix + m.ColumnPrefix
		nested, err := h.conf.ResultMap(m.NestedResultMapID)
		if err != nil {
			return false, err
		}
		if nested, err = h.resolveDiscriminatedResultMap(rs, nested, columnPrefix); err != nil {
			return false, err
		}
		rowKey, err := h.createRowKey(nested, rs, columnPrefix)
		if err != nil {
			return false, err
		}

		// a nested row read from the same columns as one of its ancestors
		// is that ancestor
		if m.ColumnPrefix == "" && rowKey != cachekey.NullCacheKey {
			if ancestor, ok := h.ancestorObjects.Get(rowKey); ok {
				if newObject {
					if err := h.linkObjects(meta, m, ancestor); err != nil {
						return false, err
					}
				}
				continue
			}
		}

		combinedKey := combineKeys(rowKey, parentRowKey)
		rowValue := h.knownObject(combinedKey)
		known := rowValue != nil

		if _, err := h.instantiateCollectionProperty(m, meta); err != nil {
			return false, err
		}
		if !anyNotNullColumnHasValue(m, columnPrefix, rs) {
			continue
		}
		if rowValue, err = h.getNestedRowValue(ctx, rs, nested, rowKey, combinedKey, columnPrefix, rowValue); err != nil {
			return false, err
		}
		if rowValue != nil && !known {
			if err := h.linkObjects(meta, m, rowValue); err != nil {
				return false, err
			}
			found = true
		}
	}
	return found, nil
}

func anyNotNullColumnHasValue(m *mapping.ResultMapping, prefix string, rs *rowSet) bool {
	if len(m.NotNullColumns) > 0 {
		for _, c := range m.NotNullColumns {
			if rs.value(prefixed(c, prefix)) != nil {
				return true
			}
		}
		return false
	}
	if prefix != "" {
		for _, c := range rs.columns {
			if hasPrefixFold(c, prefix) {
				return true
			}
		}
		return false
	}
	return true
}

func combineKeys(rowKey, parentRowKey *cachekey.CacheKey) *cachekey.CacheKey {
	if rowKey.UpdateCount() > 1 && parentRowKey.UpdateCount() > 1 {
		return rowKey.Clone().Update(parentRowKey)
	}
	return cachekey.NullCacheKey
}

// createRowKey identifies the current row for rm: its id columns, else all
// mapped columns, else every column for map results or every column that
// matches a property
func (h *Handler) createRowKey(rm *mapping.ResultMap, rs *rowSet, prefix string) (*cachekey.CacheKey, error) {
	key := cachekey.New(rm.ID)
	mappings := rm.IDResultMappings()
	switch {
	case len(mappings) > 0:
		if err := h.rowKeyForMappedProperties(rm, rs, key, mappings, prefix); err != nil {
			return nil, err
		}
	case isMapType(rm.Type):
		for i, c := range rs.columns {
			if v := rs.values[i]; v != nil {
				key.Update(c).Update(v)
			}
		}
	default:
		h.rowKeyForUnmappedProperties(rm, rs, key, prefix)
	}
	if key.UpdateCount() < 2 {
		return cachekey.NullCacheKey, nil
	}
	return key, nil
}

func (h *Handler) rowKeyForMappedProperties(rm *mapping.ResultMap, rs *rowSet, key *cachekey.CacheKey,
	mappings []*mapping.ResultMapping, prefix string) error {
	for _, m := range mappings {
		switch {
		case m.NestedResultMapID != "" && m.ResultSet == "":
			nested, err := h.conf.ResultMap(m.NestedResultMapID)
			if err != nil {
				return err
			}
			if err := h.rowKeyForMappedProperties(nested, rs, key, nested.ConstructorResultMappings(), prefix+m.ColumnPrefix); err != nil {
				return err
			}
		case m.NestedQueryID == "":
			column := prefixed(m.Column, prefix)
			if column == "" || !rs.isMapped(rm, prefix, column) {
				continue
			}
			if v := rs.value(column); v != nil || h.conf.Settings.ReturnInstanceForEmptyRow {
				key.Update(column).Update(v)
			}
		}
	}
	return nil
}

func (h *Handler) rowKeyForUnmappedProperties(rm *mapping.ResultMap, rs *rowSet, key *cachekey.CacheKey, prefix string) {
	var probe *reflection.MetaObject
	if t := indirect(rm.Type); t.Kind() == reflect.Struct {
		probe = reflection.Forward(reflect.New(t).Interface())
	}
	for _, c := range rs.split(rm, prefix).unmapped {
		property := c
		if prefix != "" {
			if !hasPrefixFold(c, prefix) {
				continue
			}
			property = c[len(prefix):]
		}
		if probe != nil && probe.FindProperty(property, h.conf.Settings.MapUnderscoreToCamelCase) == "" {
			continue
		}
		if v := rs.value(c); v != nil {
			key.Update(c).Update(v)
		}
	}
}

// resolveDiscriminatedResultMap follows discriminators from rm until a map
// has none, a value matches no case or a map id repeats
func (h *Handler) resolveDiscriminatedResultMap(rs *rowSet, rm *mapping.ResultMap, prefix string) (*mapping.ResultMap, error) {
	seen := map[string]bool{rm.ID: true}
	d := rm.Discriminator
	for d != nil {
		value := rs.value(prefixed(d.Column, prefix))
		if d.GoType != nil && value != nil {
			converted, err := reflection.Convert(value, d.GoType)
			if err != nil {
				return nil, &mapping.MappingError{ResultMap: rm.ID, Column: d.Column, Err: err}
			}
			value = converted
		}
		id, ok := d.MapIDFor(value)
		if !ok || seen[id] || !h.conf.HasResultMap(id) {
			break
		}
		seen[id] = true
		next, err := h.conf.ResultMap(id)
		if err != nil {
			return nil, err
		}
		rm = next
		if next.Discriminator == d {
			break
		}
		d = next.Discriminator
	}
	return rm, nil
}

// linkToParents attaches a row of a named result set to every parent row
// waiting for it
func (h *Handler) linkToParents(rs *rowSet, parent *mapping.ResultMapping, rowValue any) error {
	key := createKeyForMultipleResults(rs, parent, parent.Columns(), parent.ForeignColumns())
	parents, _ := h.pendingRelations.Get(key)
	if rowValue == nil {
		return nil
	}
	for _, p := range parents {
		if err := h.linkObjects(p.meta, p.mapping, rowValue); err != nil {
			return err
		}
	}
	return nil
}

// addPendingChildRelation records that meta waits for rows of a later
// result set
func (h *Handler) addPendingChildRelation(rs *rowSet, meta *reflection.MetaObject, parent *mapping.ResultMapping) error {
	key := createKeyForMultipleResults(rs, parent, parent.Columns(), parent.Columns())
	relations, _ := h.pendingRelations.Get(key)
	h.pendingRelations.Put(key, append(relations, pendingRelation{meta: meta, mapping: parent}))

	if previous, ok := h.nextResultMaps[parent.ResultSet]; ok && previous != parent {
		return mapping.Mappingf(h.ms.ID, "two different properties are mapped to the same result set %s", parent.ResultSet)
	}
	h.nextResultMaps[parent.ResultSet] = parent
	return nil
}

// createKeyForMultipleResults keys a relation by the mapping, the parent
// column names and the values read from columns. Values are compared in
// their text form so parent and child drivers types need not agree.
func createKeyForMultipleResults(rs *rowSet, m *mapping.ResultMapping, names, columns []string) *cachekey.CacheKey {
	key := cachekey.New(fmt.Sprintf("%p", m))
	for i := 0; i < len(names) && i < len(columns); i++ {
		v := rs.value(columns[i])
		if v == nil {
			continue
		}
		text, err := reflection.Convert(v, stringType)
		if err != nil {
			text = fmt.Sprint(v)
		}
		key.Update(names[i]).Update(text)
	}
	return key
}

func collapseSingleResultList(multiple []any) []any {
	if len(multiple) == 1 {
		if list, ok := multiple[0].([]any); ok {
			return list
		}
	}
	if multiple == nil {
		return []any{}
	}
	return multiple
}

func (h *Handler) wrap(err error) error {
	return mapping.WrapExecution("handle results", h.ms.ID, err)
}
