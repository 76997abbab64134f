package mapping

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ammar0144/sqlmap/pkg/cache"
	"github.com/ammar0144/sqlmap/pkg/logging"
	"github.com/ammar0144/sqlmap/pkg/reflection"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// Settings are the global behavior switches
type Settings struct {
	CacheEnabled                     bool                  `json:"cache_enabled" yaml:"cache_enabled" mapstructure:"cache_enabled"`
	LazyLoadingEnabled               bool                  `json:"lazy_loading_enabled" yaml:"lazy_loading_enabled" mapstructure:"lazy_loading_enabled"`
	MultipleResultSetsEnabled        bool                  `json:"multiple_result_sets_enabled" yaml:"multiple_result_sets_enabled" mapstructure:"multiple_result_sets_enabled"`
	UseGeneratedKeys                 bool                  `json:"use_generated_keys" yaml:"use_generated_keys" mapstructure:"use_generated_keys"`
	AutoMappingBehavior              AutoMappingBehavior   `json:"auto_mapping_behavior" yaml:"auto_mapping_behavior" mapstructure:"auto_mapping_behavior"`
	AutoMappingUnknownColumnBehavior UnknownColumnBehavior `json:"auto_mapping_unknown_column_behavior" yaml:"auto_mapping_unknown_column_behavior" mapstructure:"auto_mapping_unknown_column_behavior"`
	DefaultExecutorType              ExecutorType          `json:"default_executor_type" yaml:"default_executor_type" mapstructure:"default_executor_type"`
	DefaultStatementTimeout          time.Duration         `json:"default_statement_timeout" yaml:"default_statement_timeout" mapstructure:"default_statement_timeout"`
	DefaultFetchSize                 int                   `json:"default_fetch_size" yaml:"default_fetch_size" mapstructure:"default_fetch_size"`
	SafeRowBoundsEnabled             bool                  `json:"safe_row_bounds_enabled" yaml:"safe_row_bounds_enabled" mapstructure:"safe_row_bounds_enabled"`
	SafeResultHandlerEnabled         bool                  `json:"safe_result_handler_enabled" yaml:"safe_result_handler_enabled" mapstructure:"safe_result_handler_enabled"`
	MapUnderscoreToCamelCase         bool                  `json:"map_underscore_to_camel_case" yaml:"map_underscore_to_camel_case" mapstructure:"map_underscore_to_camel_case"`
	LocalCacheScope                  LocalCacheScope       `json:"local_cache_scope" yaml:"local_cache_scope" mapstructure:"local_cache_scope"`
	CallSettersOnNulls               bool                  `json:"call_setters_on_nulls" yaml:"call_setters_on_nulls" mapstructure:"call_setters_on_nulls"`
	ReturnInstanceForEmptyRow        bool                  `json:"return_instance_for_empty_row" yaml:"return_instance_for_empty_row" mapstructure:"return_instance_for_empty_row"`
}

// DefaultSettings returns the stock settings
func DefaultSettings() Settings {
	return Settings{
		CacheEnabled:                     true,
		MultipleResultSetsEnabled:        true,
		AutoMappingBehavior:              AutoMappingPartial,
		AutoMappingUnknownColumnBehavior: UnknownColumnNone,
		DefaultExecutorType:              ExecutorSimple,
		SafeResultHandlerEnabled:         true,
		LocalCacheScope:                  LocalCacheSession,
	}
}

// Validate checks the enumerated settings
func (s Settings) Validate() error {
	switch s.AutoMappingBehavior {
	case AutoMappingNone, AutoMappingPartial, AutoMappingFull:
	default:
		return Configurationf("settings", "unknown auto_mapping_behavior %q", s.AutoMappingBehavior)
	}
	switch s.AutoMappingUnknownColumnBehavior {
	case UnknownColumnNone, UnknownColumnWarning, UnknownColumnFailing:
	default:
		return Configurationf("settings", "unknown auto_mapping_unknown_column_behavior %q", s.AutoMappingUnknownColumnBehavior)
	}
	switch s.DefaultExecutorType {
	case ExecutorSimple, ExecutorReuse, ExecutorBatch:
	default:
		return Configurationf("settings", "unknown default_executor_type %q", s.DefaultExecutorType)
	}
	switch s.LocalCacheScope {
	case LocalCacheSession, LocalCacheStatement:
	default:
		return Configurationf("settings", "unknown local_cache_scope %q", s.LocalCacheScope)
	}
	if s.DefaultStatementTimeout < 0 || s.DefaultFetchSize < 0 {
		return Configurationf("settings", "timeouts and fetch sizes must be non-negative")
	}
	return nil
}

// Environment names a database and how units of work reach it. The id is
// part of every statement cache key.
type Environment struct {
	ID                 string
	TransactionFactory transaction.Factory
}

// Configuration is the registry of statements, result maps and caches.
// Registration is expected at startup; lookups are safe for concurrent use.
type Configuration struct {
	Settings      Settings
	Environment   *Environment
	Logger        logging.Logger
	ObjectFactory reflection.ObjectFactory

	mu         sync.RWMutex
	statements *registry[*MappedStatement]
	resultMaps *registry[*ResultMap]
	caches     *registry[cache.Cache]
}

// NewConfiguration creates an empty registry with default settings
func NewConfiguration(env *Environment) *Configuration {
	return &Configuration{
		Settings:      DefaultSettings(),
		Environment:   env,
		Logger:        logging.Discard,
		ObjectFactory: reflection.DefaultObjectFactory{},
		statements:    newRegistry[*MappedStatement]("Mapped Statements collection"),
		resultMaps:    newRegistry[*ResultMap]("Result Maps collection"),
		caches:        newRegistry[cache.Cache]("Caches collection"),
	}
}

// Log returns the configured logger, never nil
func (c *Configuration) Log() logging.Logger {
	return logging.OrDiscard(c.Logger)
}

// NewMetaObject wraps obj using the configured object factory
func (c *Configuration) NewMetaObject(obj any) *reflection.MetaObject {
	return reflection.ForwardWith(obj, c.ObjectFactory)
}

// AddResultMap registers rm; ids must be unique
func (c *Configuration) AddResultMap(rm *ResultMap) error {
	if rm == nil {
		return Configurationf("", "nil result map")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resultMaps.add(rm.ID, rm)
}

// ResultMap looks up a result map by full or unambiguous short id
func (c *Configuration) ResultMap(id string) (*ResultMap, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resultMaps.get(id)
}

// HasResultMap reports whether id resolves
func (c *Configuration) HasResultMap(id string) bool {
	_, err := c.ResultMap(id)
	return err == nil
}

// AddStatement registers ms. Result maps its discriminators point at should
// be registered first so nested shapes are detected.
func (c *Configuration) AddStatement(ms *MappedStatement) error {
	if ms == nil || strings.TrimSpace(ms.ID) == "" {
		return Configurationf("", "statement id is required")
	}
	if ms.SqlSource == nil {
		return Configurationf(ms.ID, "statement has no SQL source")
	}
	if ms.StatementType == StatementCallable && ms.Cache != nil && ms.UseCache {
		c.Log().Warn(context.Background(), "statement %s: results of calls with OUT parameters cannot be cached", ms.ID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rm := range ms.ResultMaps {
		if c.discriminatedNested(rm, map[string]bool{}) {
			rm.hasNestedResultMaps = true
			ms.hasNestedResultMaps = true
		}
	}
	return c.statements.add(ms.ID, ms)
}

func (c *Configuration) discriminatedNested(rm *ResultMap, seen map[string]bool) bool {
	if rm == nil || seen[rm.ID] {
		return false
	}
	seen[rm.ID] = true
	if rm.hasNestedResultMaps {
		return true
	}
	if rm.Discriminator == nil {
		return false
	}
	for _, id := range rm.Discriminator.Cases {
		if target, err := c.resultMaps.get(id); err == nil && c.discriminatedNested(target, seen) {
			return true
		}
	}
	return false
}

// Statement looks up a statement by full or unambiguous short id
func (c *Configuration) Statement(id string) (*MappedStatement, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statements.get(id)
}

// HasStatement reports whether id resolves
func (c *Configuration) HasStatement(id string) bool {
	_, err := c.Statement(id)
	return err == nil
}

// Statements returns every registered statement sorted by id
func (c *Configuration) Statements() []*MappedStatement {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statements.values()
}

// AddCache registers a namespace cache under its id
func (c *Configuration) AddCache(ch cache.Cache) error {
	if ch == nil {
		return Configurationf("", "nil cache")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caches.add(ch.ID(), ch)
}

// Cache looks up a namespace cache
func (c *Configuration) Cache(id string) (cache.Cache, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caches.get(id)
}

// Caches returns every registered cache sorted by id
func (c *Configuration) Caches() []cache.Cache {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caches.values()
}

// Validate checks settings and that every cross reference resolves
func (c *Configuration) Validate() error {
	if err := c.Settings.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	checkMap := func(owner string, rm *ResultMap) error {
		for _, m := range rm.ResultMappings {
			if m.NestedResultMapID != "" {
				if _, err := c.resultMaps.get(m.NestedResultMapID); err != nil {
					return Configurationf(owner, "property %s: %v", m.Property, err)
				}
			}
			if m.NestedQueryID != "" {
				if _, err := c.statements.get(m.NestedQueryID); err != nil {
					return Configurationf(owner, "property %s: %v", m.Property, err)
				}
			}
		}
		if rm.Discriminator != nil {
			for value, id := range rm.Discriminator.Cases {
				if _, err := c.resultMaps.get(id); err != nil {
					return Configurationf(owner, "discriminator case %s: %v", value, err)
				}
			}
		}
		return nil
	}

	for _, rm := range c.resultMaps.values() {
		if err := checkMap(rm.ID, rm); err != nil {
			return err
		}
	}
	for _, ms := range c.statements.values() {
		for _, rm := range ms.ResultMaps {
			if err := checkMap(ms.ID, rm); err != nil {
				return err
			}
		}
	}
	return nil
}

// registry stores entries by full id and resolves the short name after the
// last dot when only one id carries it
type registry[T any] struct {
	name      string
	entries   map[string]T
	shorts    map[string]string
	ambiguous map[string][]string
}

func newRegistry[T any](name string) *registry[T] {
	return &registry[T]{
		name:      name,
		entries:   map[string]T{},
		shorts:    map[string]string{},
		ambiguous: map[string][]string{},
	}
}

func (r *registry[T]) add(id string, v T) error {
	if _, exists := r.entries[id]; exists {
		return Configurationf(id, "%s already contains value for %s", r.name, id)
	}
	r.entries[id] = v

	i := strings.LastIndexByte(id, '.')
	if i < 0 {
		return nil
	}
	short := id[i+1:]
	switch owner, taken := r.shorts[short]; {
	case r.ambiguous[short] != nil:
		r.ambiguous[short] = append(r.ambiguous[short], id)
	case taken:
		r.ambiguous[short] = []string{owner, id}
		delete(r.shorts, short)
	default:
		r.shorts[short] = id
	}
	return nil
}

func (r *registry[T]) get(id string) (T, error) {
	if v, ok := r.entries[id]; ok {
		return v, nil
	}
	var zero T
	if owners := r.ambiguous[id]; owners != nil {
		return zero, Configurationf(id, "%s is ambiguous in %s (try using the full name including the namespace: %s)",
			id, r.name, strings.Join(owners, ", "))
	}
	if full, ok := r.shorts[id]; ok {
		return r.entries[full], nil
	}
	return zero, Configurationf(id, "%s does not contain value for %s", r.name, id)
}

func (r *registry[T]) values() []T {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.entries[id])
	}
	return out
}
