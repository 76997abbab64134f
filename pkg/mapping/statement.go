package mapping

import (
	"strings"
	"time"

	"github.com/ammar0144/sqlmap/pkg/cache"
)

// MappedStatement is a registered, immutable statement definition
type MappedStatement struct {
	ID            string
	CommandType   SqlCommandType
	StatementType StatementType
	SqlSource     SqlSource
	ResultMaps    []*ResultMap
	// ResultSets names the result sets a multi-result call returns, in order
	ResultSets []string

	// Cache is the namespace cache; nil disables second-level caching
	Cache              cache.Cache
	UseCache           bool
	FlushCacheRequired bool
	// ResultOrdered promises rows arrive grouped by parent, so nested
	// identity state can be dropped whenever the parent changes
	ResultOrdered bool

	FetchSize int
	Timeout   time.Duration

	UseGeneratedKeys bool
	KeyProperties    []string
	KeyColumns       []string

	hasNestedResultMaps bool
}

// StatementOption customizes a statement
type StatementOption func(*MappedStatement)

// WithResultMaps sets the result maps, one per result set
func WithResultMaps(maps ...*ResultMap) StatementOption {
	return func(ms *MappedStatement) { ms.ResultMaps = maps }
}

// WithStatementType sets how SQL reaches the driver
func WithStatementType(t StatementType) StatementOption {
	return func(ms *MappedStatement) { ms.StatementType = t }
}

// WithCache attaches the namespace cache
func WithCache(c cache.Cache) StatementOption {
	return func(ms *MappedStatement) { ms.Cache = c }
}

// WithUseCache overrides whether results are stored in the namespace cache
func WithUseCache(use bool) StatementOption {
	return func(ms *MappedStatement) { ms.UseCache = use }
}

// WithFlushCache overrides whether running the statement clears caches
func WithFlushCache(flush bool) StatementOption {
	return func(ms *MappedStatement) { ms.FlushCacheRequired = flush }
}

// WithResultOrdered marks rows as grouped by parent
func WithResultOrdered(ordered bool) StatementOption {
	return func(ms *MappedStatement) { ms.ResultOrdered = ordered }
}

// WithResultSets names the result sets of a multi-result call
func WithResultSets(names ...string) StatementOption {
	return func(ms *MappedStatement) { ms.ResultSets = names }
}

// WithTimeout bounds statement execution
func WithTimeout(d time.Duration) StatementOption {
	return func(ms *MappedStatement) { ms.Timeout = d }
}

// WithFetchSize hints the driver row batch size
func WithFetchSize(n int) StatementOption {
	return func(ms *MappedStatement) { ms.FetchSize = n }
}

// WithGeneratedKeys copies database generated keys into the given properties
func WithGeneratedKeys(properties ...string) StatementOption {
	return func(ms *MappedStatement) {
		ms.UseGeneratedKeys = true
		ms.KeyProperties = properties
	}
}

// NewMappedStatement creates a statement. Selects use the cache and leave
// it alone; other commands flush it.
func NewMappedStatement(id string, cmd SqlCommandType, source SqlSource, opts ...StatementOption) *MappedStatement {
	isSelect := cmd == CommandSelect
	ms := &MappedStatement{
		ID:                 id,
		CommandType:        cmd,
		StatementType:      StatementPrepared,
		SqlSource:          source,
		UseCache:           isSelect,
		FlushCacheRequired: !isSelect,
	}
	for _, opt := range opts {
		opt(ms)
	}
	for _, rm := range ms.ResultMaps {
		if rm != nil && rm.HasNestedResultMaps() {
			ms.hasNestedResultMaps = true
		}
	}
	return ms
}

// Namespace returns the id up to its last dot
func (ms *MappedStatement) Namespace() string {
	if i := strings.LastIndexByte(ms.ID, '.'); i > 0 {
		return ms.ID[:i]
	}
	return ""
}

// BoundSql resolves the SQL for parameter
func (ms *MappedStatement) BoundSql(parameter any) (*BoundSql, error) {
	if ms.SqlSource == nil {
		return nil, Configurationf(ms.ID, "statement has no SQL source")
	}
	bs, err := ms.SqlSource.BoundSql(parameter)
	if err != nil {
		return nil, Configurationf(ms.ID, "failed to build SQL: %v", err)
	}
	return bs, nil
}

// HasNestedResultMaps reports whether any result map groups rows
func (ms *MappedStatement) HasNestedResultMaps() bool {
	return ms.hasNestedResultMaps
}

// HasOutParameters reports whether bs binds OUT or INOUT parameters
func HasOutParameters(bs *BoundSql) bool {
	for _, pm := range bs.ParameterMappings {
		if pm.Mode.IsOutput() {
			return true
		}
	}
	return false
}
