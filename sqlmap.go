// Package sqlmap maps SQL statements to Go objects with a per-session cache
// and per-namespace second-level caches. Engine wires a loaded Config to the
// MySQL pool and the Redis store; statements are registered on its
// Configuration before sessions are opened.
package sqlmap

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ammar0144/sqlmap/pkg/config"
	"github.com/ammar0144/sqlmap/pkg/db"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/redis"
	"github.com/ammar0144/sqlmap/pkg/repository"
	"github.com/ammar0144/sqlmap/pkg/session"
)

// Config is the complete engine configuration
type Config = config.Config

// Session is a unit of work with its own cache
type Session = session.Session

// SessionOptions configure a new session
type SessionOptions = session.Options

// Repository runs the generated CRUD statements of one row type
type Repository[T any] interface {
	repository.Repository[T]
}

// LoadConfig reads a configuration file and SQLMAP_* overrides
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Option customizes how Open connects
type Option func(*openOptions)

type openOptions struct {
	dialector   gorm.Dialector
	redisClient goredis.UniversalClient
}

// WithDialector connects through d instead of the MySQL DSN of the config
func WithDialector(d gorm.Dialector) Option {
	return func(o *openOptions) { o.dialector = d }
}

// WithRedisClient uses client for the redis store instead of dialing the
// configured server
func WithRedisClient(client goredis.UniversalClient) Option {
	return func(o *openOptions) { o.redisClient = client }
}

// Engine owns the connections of one configuration
type Engine struct {
	config *Config
	db     *db.Manager
	redis  *redis.Manager
	conf   *mapping.Configuration
}

// Open connects to the database, and to Redis when enabled, and registers
// the configured namespace caches
func Open(cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}

	log := cfg.Logger()
	var dbm *db.Manager
	var err error
	if o.dialector != nil {
		dbm, err = db.NewManagerWithDialector(&cfg.Database, o.dialector, log)
	} else {
		dbm, err = db.NewManager(&cfg.Database, log)
	}
	if err != nil {
		return nil, err
	}

	e := &Engine{config: cfg, db: dbm}
	if cfg.Redis.Enabled {
		if o.redisClient != nil {
			e.redis, err = redis.NewManagerWithClient(&cfg.Redis, o.redisClient)
		} else {
			e.redis, err = redis.NewManager(&cfg.Redis)
		}
		if err != nil {
			_ = dbm.Close()
			return nil, err
		}
	}

	e.conf = mapping.NewConfiguration(dbm.Environment(cfg.Environment))
	if err := cfg.Apply(e.conf, e.redis); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// Configuration is where statements, result maps and caches are registered
func (e *Engine) Configuration() *mapping.Configuration { return e.conf }

// DB returns the database manager
func (e *Engine) DB() *db.Manager { return e.db }

// Redis returns the redis manager, nil when redis is disabled
func (e *Engine) Redis() *redis.Manager { return e.redis }

// SessionFactory validates the registered statements and returns a factory
// for sessions over them
func (e *Engine) SessionFactory() (*session.Factory, error) {
	return session.NewFactory(e.conf)
}

// Ping checks the database and, when enabled, redis
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.Ping(ctx); err != nil {
		return err
	}
	if e.redis != nil {
		return e.redis.Ping(ctx)
	}
	return nil
}

// Close closes every connection the engine opened
func (e *Engine) Close() error {
	var errs []error
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	errs = append(errs, e.db.Close())
	return errors.Join(errs...)
}

// Register generates the CRUD statements of T under namespace. The
// namespace cache of the same id is used when one is configured.
func Register[T any](e *Engine, namespace string, opts ...repository.Option) (*repository.Mapper[T], error) {
	if c, err := e.conf.Cache(namespace); err == nil {
		opts = append([]repository.Option{repository.WithCache(c)}, opts...)
	}
	return repository.Register[T](e.conf, namespace, opts...)
}
