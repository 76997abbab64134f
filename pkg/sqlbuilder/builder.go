// Package sqlbuilder builds mapped statement SQL from clauses. Values never
// appear in the SQL text: every condition names a property of the
// parameter object, bound as a placeholder when the statement runs.
//
// SECURITY WARNING:
// Table names, column names and join conditions are NOT escaped or
// validated. They must be hardcoded or whitelisted; user input belongs in
// the parameter object only.
//
// Example - SAFE:
//
//	sqlbuilder.New("users").Select("id", "name").Where("email", sqlbuilder.Equal, "Email")
//
// Example - UNSAFE (DO NOT DO THIS):
//
//	sqlbuilder.New(userInput).Select(userProvidedColumn)
package sqlbuilder

import (
	"fmt"
	"strings"
)

// Operator represents SQL comparison operators
type Operator string

const (
	Equal              Operator = "="
	NotEqual           Operator = "!="
	GreaterThan        Operator = ">"
	GreaterThanOrEqual Operator = ">="
	LessThan           Operator = "<"
	LessThanOrEqual    Operator = "<="
	Like               Operator = "LIKE"
	NotLike            Operator = "NOT LIKE"
	In                 Operator = "IN"
	NotIn              Operator = "NOT IN"
	IsNull             Operator = "IS NULL"
	IsNotNull          Operator = "IS NOT NULL"
	Between            Operator = "BETWEEN"
	NotBetween         Operator = "NOT BETWEEN"
)

// expands reports whether the operator binds a collection property whose
// length is only known when the statement runs
func (o Operator) expands() bool {
	switch o {
	case In, NotIn, Between, NotBetween:
		return true
	}
	return false
}

// JoinType represents SQL JOIN types
type JoinType string

const (
	InnerJoin JoinType = "INNER JOIN"
	LeftJoin  JoinType = "LEFT JOIN"
	RightJoin JoinType = "RIGHT JOIN"
	FullJoin  JoinType = "FULL OUTER JOIN"
	CrossJoin JoinType = "CROSS JOIN"
)

// LogicalOperator for combining conditions
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

// Condition compares a column with a property of the parameter object.
// IN and BETWEEN take a slice or array property.
type Condition struct {
	Field    string
	Operator Operator
	Property string
}

// ConditionGroup represents grouped conditions with logical operators
type ConditionGroup struct {
	Conditions []any // Condition or *ConditionGroup
	Operator   LogicalOperator
}

// JoinClause represents a JOIN operation
type JoinClause struct {
	Type      JoinType
	Table     string
	Condition string
}

// Assignment sets a column from a property of the parameter object
type Assignment struct {
	Column   string
	Property string
}

// Builder collects the clauses of one statement
type Builder struct {
	table      string
	selectCols []string
	distinct   bool
	joins      []JoinClause
	where      *ConditionGroup
	groupBy    []string
	having     *ConditionGroup
	orderBy    []string
	limit      int
	offset     int
	sets       []Assignment
}

// New starts a builder for table.
// SECURITY: table must be a validated, trusted identifier.
func New(table string) *Builder {
	return &Builder{
		table:      table,
		selectCols: []string{"*"},
		where:      &ConditionGroup{Operator: And},
		having:     &ConditionGroup{Operator: And},
	}
}

// Select sets the columns to select
// SECURITY: Column names are NOT escaped.
func (b *Builder) Select(cols ...string) *Builder {
	b.selectCols = cols
	return b
}

// Distinct enables DISTINCT selection
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// Where adds a WHERE condition on property
func (b *Builder) Where(field string, operator Operator, property string) *Builder {
	b.where.Conditions = append(b.where.Conditions, Condition{Field: field, Operator: operator, Property: property})
	return b
}

// WhereGroup adds a grouped WHERE condition
func (b *Builder) WhereGroup(operator LogicalOperator, fn func(*ConditionGroup)) *Builder {
	group := &ConditionGroup{Operator: operator}
	fn(group)
	b.where.Conditions = append(b.where.Conditions, group)
	return b
}

// OrWhere adds an OR WHERE condition. Existing AND conditions are wrapped
// in a group so their meaning is kept.
func (b *Builder) OrWhere(field string, operator Operator, property string) *Builder {
	if len(b.where.Conditions) == 0 {
		return b.Where(field, operator, property)
	}

	cond := Condition{Field: field, Operator: operator, Property: property}
	if b.where.Operator == Or {
		b.where.Conditions = append(b.where.Conditions, cond)
		return b
	}

	existing := &ConditionGroup{Conditions: b.where.Conditions, Operator: And}
	b.where = &ConditionGroup{Conditions: []any{existing, cond}, Operator: Or}
	return b
}

// Join adds a JOIN clause
func (b *Builder) Join(joinType JoinType, table, condition string) *Builder {
	b.joins = append(b.joins, JoinClause{Type: joinType, Table: table, Condition: condition})
	return b
}

// InnerJoin adds an INNER JOIN
func (b *Builder) InnerJoin(table, condition string) *Builder {
	return b.Join(InnerJoin, table, condition)
}

// LeftJoin adds a LEFT JOIN
func (b *Builder) LeftJoin(table, condition string) *Builder {
	return b.Join(LeftJoin, table, condition)
}

// RightJoin adds a RIGHT JOIN
func (b *Builder) RightJoin(table, condition string) *Builder {
	return b.Join(RightJoin, table, condition)
}

// GroupBy adds GROUP BY columns
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

// Having adds a HAVING condition on property
func (b *Builder) Having(field string, operator Operator, property string) *Builder {
	b.having.Conditions = append(b.having.Conditions, Condition{Field: field, Operator: operator, Property: property})
	return b
}

// OrderBy adds an ORDER BY clause
func (b *Builder) OrderBy(field string, desc bool) *Builder {
	if desc {
		b.orderBy = append(b.orderBy, field+" DESC")
	} else {
		b.orderBy = append(b.orderBy, field+" ASC")
	}
	return b
}

// Limit sets the LIMIT clause
// Negative values are normalized to 0
func (b *Builder) Limit(limit int) *Builder {
	b.limit = max(limit, 0)
	return b
}

// Offset sets the OFFSET clause
// Negative values are normalized to 0
func (b *Builder) Offset(offset int) *Builder {
	b.offset = max(offset, 0)
	return b
}

// Set assigns column from property in INSERT and UPDATE statements
func (b *Builder) Set(column, property string) *Builder {
	b.sets = append(b.sets, Assignment{Column: column, Property: property})
	return b
}

// Where adds a condition to the group
func (g *ConditionGroup) Where(field string, operator Operator, property string) *ConditionGroup {
	g.Conditions = append(g.Conditions, Condition{Field: field, Operator: operator, Property: property})
	return g
}

// Group adds a nested condition group
func (g *ConditionGroup) Group(operator LogicalOperator, fn func(*ConditionGroup)) *ConditionGroup {
	group := &ConditionGroup{Operator: operator}
	fn(group)
	g.Conditions = append(g.Conditions, group)
	return g
}

// BuildSelect builds a SELECT statement
func (b *Builder) BuildSelect() (*Source, error) {
	t := &template{}
	t.text("SELECT ")
	if b.distinct {
		t.text("DISTINCT ")
	}
	t.text(strings.Join(b.selectCols, ", "))
	t.text(" FROM " + b.table)

	for _, join := range b.joins {
		t.text(fmt.Sprintf(" %s %s", join.Type, join.Table))
		if join.Type != CrossJoin {
			t.text(" ON " + join.Condition)
		}
	}

	if err := b.writeConditions(t, " WHERE ", b.where); err != nil {
		return nil, err
	}
	if len(b.groupBy) > 0 {
		t.text(" GROUP BY " + strings.Join(b.groupBy, ", "))
	}
	if err := b.writeConditions(t, " HAVING ", b.having); err != nil {
		return nil, err
	}
	if len(b.orderBy) > 0 {
		t.text(" ORDER BY " + strings.Join(b.orderBy, ", "))
	}
	if b.limit > 0 {
		t.text(fmt.Sprintf(" LIMIT %d", b.limit))
	}
	if b.offset > 0 {
		t.text(fmt.Sprintf(" OFFSET %d", b.offset))
	}
	return t.source(), nil
}

// BuildInsert builds an INSERT of the Set assignments
func (b *Builder) BuildInsert() (*Source, error) {
	if len(b.sets) == 0 {
		return nil, fmt.Errorf("%w: insert into %s has no columns", ErrInvalidStatement, b.table)
	}
	t := &template{}
	columns := make([]string, len(b.sets))
	for i, a := range b.sets {
		columns[i] = a.Column
	}
	t.text(fmt.Sprintf("INSERT INTO %s (%s) VALUES (", b.table, strings.Join(columns, ", ")))
	for i, a := range b.sets {
		if i > 0 {
			t.text(", ")
		}
		if err := t.param(a.Property); err != nil {
			return nil, err
		}
	}
	t.text(")")
	return t.source(), nil
}

// BuildUpdate builds an UPDATE of the Set assignments, restricted by the
// WHERE conditions
func (b *Builder) BuildUpdate() (*Source, error) {
	if len(b.sets) == 0 {
		return nil, fmt.Errorf("%w: update of %s has no columns", ErrInvalidStatement, b.table)
	}
	t := &template{}
	t.text("UPDATE " + b.table + " SET ")
	for i, a := range b.sets {
		if i > 0 {
			t.text(", ")
		}
		t.text(a.Column + " = ")
		if err := t.param(a.Property); err != nil {
			return nil, err
		}
	}
	if err := b.writeConditions(t, " WHERE ", b.where); err != nil {
		return nil, err
	}
	return t.source(), nil
}

// BuildDelete builds a DELETE restricted by the WHERE conditions
func (b *Builder) BuildDelete() (*Source, error) {
	t := &template{}
	t.text("DELETE FROM " + b.table)
	if err := b.writeConditions(t, " WHERE ", b.where); err != nil {
		return nil, err
	}
	return t.source(), nil
}

func (b *Builder) writeConditions(t *template, keyword string, group *ConditionGroup) error {
	if !group.hasConditions() {
		return nil
	}
	t.text(keyword)
	return b.writeGroup(t, group)
}

// writeGroup writes the conditions of group joined by its operator
func (b *Builder) writeGroup(t *template, group *ConditionGroup) error {
	first := true
	for _, item := range group.Conditions {
		switch cond := item.(type) {
		case Condition:
			if !first {
				t.text(" " + string(group.Operator) + " ")
			}
			if err := b.writeCondition(t, cond); err != nil {
				return err
			}
		case *ConditionGroup:
			if !cond.hasConditions() {
				continue
			}
			if !first {
				t.text(" " + string(group.Operator) + " ")
			}
			t.text("(")
			if err := b.writeGroup(t, cond); err != nil {
				return err
			}
			t.text(")")
		default:
			return fmt.Errorf("%w: unsupported condition %T", ErrInvalidStatement, item)
		}
		first = false
	}
	return nil
}

func (b *Builder) writeCondition(t *template, cond Condition) error {
	switch {
	case cond.Operator == IsNull || cond.Operator == IsNotNull:
		t.text(fmt.Sprintf("%s %s", cond.Field, cond.Operator))
		return nil
	case cond.Operator.expands():
		if cond.Property == "" {
			return fmt.Errorf("%w: %s %s needs a property", ErrInvalidStatement, cond.Field, cond.Operator)
		}
		t.expand(cond)
		return nil
	}
	t.text(fmt.Sprintf("%s %s ", cond.Field, cond.Operator))
	return t.param(cond.Property)
}

func (g *ConditionGroup) hasConditions() bool {
	for _, item := range g.Conditions {
		switch cond := item.(type) {
		case Condition:
			return true
		case *ConditionGroup:
			if cond.hasConditions() {
				return true
			}
		}
	}
	return false
}
