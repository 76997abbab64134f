package resultset

import (
	"strings"

	"github.com/ammar0144/sqlmap/pkg/mapping"
)

// rowSet is one result set positioned on its current row, with column
// lookups by case-insensitive name
type rowSet struct {
	rows    Rows
	columns []string
	index   map[string]int
	values  []any
	dest    []any
	done    bool

	splits map[string]*columnSplit
}

// columnSplit partitions the columns of a result set into those a result
// map names and the rest, for one column prefix
type columnSplit struct {
	mapped   map[string]struct{}
	unmapped []string
}

func newRowSet(rows Rows) (*rowSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &rowSet{
		rows:    rows,
		columns: columns,
		index:   make(map[string]int, len(columns)),
		values:  make([]any, len(columns)),
		dest:    make([]any, len(columns)),
		splits:  map[string]*columnSplit{},
	}
	for i, c := range columns {
		upper := strings.ToUpper(c)
		if _, dup := rs.index[upper]; !dup {
			rs.index[upper] = i
		}
		rs.dest[i] = &rs.values[i]
	}
	return rs, nil
}

// next advances to the following row
func (rs *rowSet) next() (bool, error) {
	if rs.done {
		return false, nil
	}
	if !rs.rows.Next() {
		rs.done = true
		return false, rs.rows.Err()
	}
	for i := range rs.values {
		rs.values[i] = nil
	}
	if err := rs.rows.Scan(rs.dest...); err != nil {
		return false, err
	}
	return true, nil
}

// value returns the current value of column, nil when absent or NULL
func (rs *rowSet) value(column string) any {
	i, ok := rs.index[strings.ToUpper(column)]
	if !ok {
		return nil
	}
	return rs.values[i]
}

// has reports whether the result set carries column
func (rs *rowSet) has(column string) bool {
	_, ok := rs.index[strings.ToUpper(column)]
	return ok
}

func (rs *rowSet) split(rm *mapping.ResultMap, prefix string) *columnSplit {
	key := rm.ID + ":" + prefix
	if s, ok := rs.splits[key]; ok {
		return s
	}

	upperPrefix := strings.ToUpper(prefix)
	s := &columnSplit{mapped: map[string]struct{}{}}
	for _, c := range rs.columns {
		upper := strings.ToUpper(c)
		if strings.HasPrefix(upper, upperPrefix) && rm.HasMappedColumn(upper[len(upperPrefix):]) {
			s.mapped[upper] = struct{}{}
			continue
		}
		s.unmapped = append(s.unmapped, c)
	}
	rs.splits[key] = s
	return s
}

// isMapped reports whether the prefixed column is named by rm
func (rs *rowSet) isMapped(rm *mapping.ResultMap, prefix, column string) bool {
	_, ok := rs.split(rm, prefix).mapped[strings.ToUpper(column)]
	return ok
}

func prefixed(column, prefix string) string {
	if column == "" || prefix == "" {
		return column
	}
	return prefix + column
}
