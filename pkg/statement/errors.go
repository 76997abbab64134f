package statement

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// Driver failures that callers commonly branch on
var (
	ErrDuplicateKey = errors.New("duplicate key")
	ErrDeadlock     = errors.New("deadlock detected")
	ErrLockWait     = errors.New("lock wait timeout exceeded")
)

// MySQL server error numbers
const (
	mysqlDuplicateEntry = 1062
	mysqlLockWait       = 1205
	mysqlDeadlock       = 1213
)

// classify tags known driver errors with a sentinel so errors.Is works
// without importing the driver
func classify(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	switch me.Number {
	case mysqlDuplicateEntry:
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	case mysqlDeadlock:
		return fmt.Errorf("%w: %w", ErrDeadlock, err)
	case mysqlLockWait:
		return fmt.Errorf("%w: %w", ErrLockWait, err)
	}
	return err
}

// IsDuplicateKey reports whether err is a unique constraint violation
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsRetryable reports whether the failed unit of work may succeed if run again
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDeadlock) || errors.Is(err, ErrLockWait)
}
