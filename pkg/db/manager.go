// Package db opens the MySQL connection pool through gorm and runs mapped
// statement units of work on it.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ammar0144/sqlmap/pkg/logging"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// NewManager validates config and connects to MySQL
func NewManager(config *Config, log logging.Logger) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	dsn, err := config.DSN()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return NewManagerWithDialector(config, mysql.Open(dsn), log)
}

// NewManagerWithDialector connects through dialector. The connection
// settings of config are not used; the pool settings are.
func NewManagerWithDialector(config *Config, dialector gorm.Dialector, log logging.Logger) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	log = logging.OrDiscard(log)

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            config.PrepareStmt,
		Logger:                 log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return &Manager{config: config, db: db, log: log}, nil
}

// DB returns the GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// SqlDB returns the underlying sql.DB instance
func (m *Manager) SqlDB() (*sql.DB, error) {
	return m.db.DB()
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Close closes the database connection
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping tests the database connection
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns database connection statistics
func (m *Manager) Stats() (sql.DBStats, error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}

// TransactionFactory opens units of work on the pool. Statements run with
// the configured query timeout unless the options set their own.
func (m *Manager) TransactionFactory() transaction.Factory {
	return &TransactionFactory{manager: m}
}

// Environment names the pool for a configuration
func (m *Manager) Environment(id string) *mapping.Environment {
	return &mapping.Environment{ID: id, TransactionFactory: m.TransactionFactory()}
}
