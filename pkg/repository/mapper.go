// Package repository generates the CRUD statements of a row type from its
// gorm schema and runs them through sessions, so reads share the session
// and namespace caches of hand-written statements.
package repository

import (
	"reflect"
	"sync"

	"gorm.io/gorm/schema"

	"github.com/ammar0144/sqlmap/pkg/cache"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/sqlbuilder"
)

// Statement names registered under the mapper namespace
const (
	StmtFindByID  = "findByID"
	StmtFindByIDs = "findByIDs"
	StmtFindAll   = "findAll"
	StmtCount     = "count"
	StmtInsert    = "insert"
	StmtUpdate    = "update"
	StmtDelete    = "delete"
)

var schemaCache sync.Map

// Option customizes the generated statements
type Option func(*options)

type options struct {
	cache  cache.Cache
	naming schema.Namer
}

// WithCache puts reads in c and makes writes flush it
func WithCache(c cache.Cache) Option {
	return func(o *options) { o.cache = c }
}

// WithNamingStrategy overrides how table and column names are derived
func WithNamingStrategy(n schema.Namer) Option {
	return func(o *options) { o.naming = n }
}

// Mapper holds the statements generated for T in one namespace
type Mapper[T any] struct {
	namespace string
	table     string
	schema    *schema.Schema
	resultMap *mapping.ResultMap
}

// Register parses T and adds its result map and CRUD statements to conf.
// An integer primary key is left to the database on insert and read back
// as a generated key.
func Register[T any](conf *mapping.Configuration, namespace string, opts ...Option) (*Mapper[T], error) {
	o := &options{naming: schema.NamingStrategy{}}
	for _, opt := range opts {
		opt(o)
	}

	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, mapping.Configurationf(namespace, "repository type %s is not a struct", typ)
	}
	sch, err := schema.Parse(reflect.New(typ).Interface(), &schemaCache, o.naming)
	if err != nil {
		return nil, mapping.Configurationf(namespace, "failed to parse %s: %v", typ, err)
	}
	if sch.PrioritizedPrimaryField == nil {
		return nil, mapping.Configurationf(namespace, "%s has no primary key", typ)
	}

	m := &Mapper[T]{namespace: namespace, table: sch.Table, schema: sch}
	if m.resultMap, err = m.buildResultMap(typ); err != nil {
		return nil, err
	}
	if err := conf.AddResultMap(m.resultMap); err != nil {
		return nil, err
	}

	statements, err := m.buildStatements(o)
	if err != nil {
		return nil, err
	}
	for _, ms := range statements {
		if err := conf.AddStatement(ms); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Namespace returns the namespace the statements are registered under
func (m *Mapper[T]) Namespace() string { return m.namespace }

// Table returns the table the statements run against
func (m *Mapper[T]) Table() string { return m.table }

// ResultMap returns the generated result map
func (m *Mapper[T]) ResultMap() *mapping.ResultMap { return m.resultMap }

// StatementID qualifies name with the namespace
func (m *Mapper[T]) StatementID(name string) string {
	return m.namespace + "." + name
}

func (m *Mapper[T]) primary() *schema.Field {
	return m.schema.PrioritizedPrimaryField
}

// generatedKey reports whether the database assigns the primary key
func (m *Mapper[T]) generatedKey() bool {
	switch m.primary().DataType {
	case schema.Int, schema.Uint:
		return true
	}
	return false
}

func (m *Mapper[T]) columns() []*schema.Field {
	fields := make([]*schema.Field, 0, len(m.schema.DBNames))
	for _, name := range m.schema.DBNames {
		if f := m.schema.FieldsByDBName[name]; f != nil && f.Readable {
			fields = append(fields, f)
		}
	}
	return fields
}

func (m *Mapper[T]) buildResultMap(typ reflect.Type) (*mapping.ResultMap, error) {
	fields := m.columns()
	mappings := make([]*mapping.ResultMapping, 0, len(fields))
	for _, f := range fields {
		rm := &mapping.ResultMapping{Property: f.Name, Column: f.DBName}
		if f.PrimaryKey {
			rm.Flags |= mapping.FlagID
		}
		mappings = append(mappings, rm)
	}
	return mapping.NewResultMap(m.StatementID("row"), typ, mappings, mapping.WithAutoMapping(false))
}

func (m *Mapper[T]) buildStatements(o *options) ([]*mapping.MappedStatement, error) {
	pk := m.primary()
	fields := m.columns()
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.DBName)
	}

	var common []mapping.StatementOption
	if o.cache != nil {
		common = append(common, mapping.WithCache(o.cache))
	}
	rows := append([]mapping.StatementOption{mapping.WithResultMaps(m.resultMap)}, common...)
	count, err := mapping.NewResultMap(m.StatementID("countResult"), reflect.TypeOf(int64(0)), nil)
	if err != nil {
		return nil, err
	}

	insert := sqlbuilder.New(m.table)
	update := sqlbuilder.New(m.table)
	for _, f := range fields {
		if f.PrimaryKey {
			if !m.generatedKey() {
				insert.Set(f.DBName, f.Name)
			}
			continue
		}
		if f.Creatable {
			insert.Set(f.DBName, f.Name)
		}
		if f.Updatable {
			update.Set(f.DBName, f.Name)
		}
	}
	update.Where(pk.DBName, sqlbuilder.Equal, pk.Name)
	insertOpts := append([]mapping.StatementOption{}, common...)
	if m.generatedKey() {
		insertOpts = append(insertOpts, mapping.WithGeneratedKeys(pk.Name))
	}

	defs := []struct {
		name    string
		cmd     mapping.SqlCommandType
		builder *sqlbuilder.Builder
		opts    []mapping.StatementOption
	}{
		{StmtFindByID, mapping.CommandSelect,
			sqlbuilder.New(m.table).Select(names...).Where(pk.DBName, sqlbuilder.Equal, "id"), rows},
		{StmtFindByIDs, mapping.CommandSelect,
			sqlbuilder.New(m.table).Select(names...).Where(pk.DBName, sqlbuilder.In, "list").OrderBy(pk.DBName, false), rows},
		{StmtFindAll, mapping.CommandSelect,
			sqlbuilder.New(m.table).Select(names...).OrderBy(pk.DBName, false), rows},
		{StmtCount, mapping.CommandSelect,
			sqlbuilder.New(m.table).Select("COUNT(*)"), append([]mapping.StatementOption{mapping.WithResultMaps(count)}, common...)},
		{StmtInsert, mapping.CommandInsert, insert, insertOpts},
		{StmtUpdate, mapping.CommandUpdate, update, common},
		{StmtDelete, mapping.CommandDelete,
			sqlbuilder.New(m.table).Where(pk.DBName, sqlbuilder.Equal, "id"), common},
	}

	statements := make([]*mapping.MappedStatement, 0, len(defs))
	for _, def := range defs {
		var src *sqlbuilder.Source
		var err error
		switch def.cmd {
		case mapping.CommandInsert:
			src, err = def.builder.BuildInsert()
		case mapping.CommandUpdate:
			src, err = def.builder.BuildUpdate()
		case mapping.CommandDelete:
			src, err = def.builder.BuildDelete()
		default:
			src, err = def.builder.BuildSelect()
		}
		if err != nil {
			return nil, mapping.Configurationf(m.StatementID(def.name), "%v", err)
		}
		statements = append(statements, mapping.NewMappedStatement(m.StatementID(def.name), def.cmd, src, def.opts...))
	}
	return statements, nil
}
