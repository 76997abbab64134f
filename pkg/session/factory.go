// Package session is the public entry point for running mapped statements.
// A Factory holds the configuration; each Session is one unit of work with
// its own executor, session cache and transaction.
package session

import (
	"database/sql"
	"time"

	"github.com/ammar0144/sqlmap/pkg/executor"
	"github.com/ammar0144/sqlmap/pkg/mapping"
	"github.com/ammar0144/sqlmap/pkg/transaction"
)

// Options configure a new session
type Options struct {
	// ExecutorType overrides Settings.DefaultExecutorType
	ExecutorType mapping.ExecutorType
	AutoCommit   bool
	Isolation    sql.IsolationLevel
	ReadOnly     bool
	// Timeout bounds every statement of the session; zero means none
	Timeout time.Duration
}

// Factory opens sessions against one configuration. It is safe for
// concurrent use.
type Factory struct {
	conf *mapping.Configuration
}

// NewFactory validates conf and returns a factory for it
func NewFactory(conf *mapping.Configuration) (*Factory, error) {
	if conf == nil {
		return nil, mapping.Configurationf("", "configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Factory{conf: conf}, nil
}

// Configuration returns the factory's configuration
func (f *Factory) Configuration() *mapping.Configuration { return f.conf }

// OpenSession opens a session on a new transaction from the environment
func (f *Factory) OpenSession(opts Options) (*Session, error) {
	env := f.conf.Environment
	if env == nil || env.TransactionFactory == nil {
		return nil, mapping.Configurationf("", "environment with a transaction factory is required to open a session")
	}
	tx := env.TransactionFactory.NewTransaction(transaction.Options{
		AutoCommit: opts.AutoCommit,
		Isolation:  opts.Isolation,
		ReadOnly:   opts.ReadOnly,
		Timeout:    opts.Timeout,
	})
	return f.newSession(tx, opts), nil
}

// OpenSessionOn opens a session on a connection the caller owns. Commit and
// rollback of the connection stay with the caller.
func (f *Factory) OpenSessionOn(conn transaction.Conn, opts Options) *Session {
	return f.newSession(transaction.NewManaged(conn, opts.Timeout), opts)
}

func (f *Factory) newSession(tx transaction.Transaction, opts Options) *Session {
	return &Session{
		conf:       f.conf,
		executor:   executor.New(f.conf, tx, opts.ExecutorType),
		autoCommit: opts.AutoCommit,
		log:        f.conf.Log(),
	}
}
