package executor

import (
	"errors"
	"fmt"

	"github.com/ammar0144/sqlmap/pkg/mapping"
)

var (
	// ErrExecutorClosed is returned by every operation on a closed executor
	ErrExecutorClosed = errors.New("executor was closed")

	// ErrQueryInProgress is returned when a query is issued again for a key
	// whose results are still being materialized
	ErrQueryInProgress = errors.New("query for the same key is still in progress")

	// ErrCachedOutParameters rejects second-level caching of calls that
	// return OUT parameters
	ErrCachedOutParameters = errors.New("caching stored procedures with OUT parameters is not supported")
)

func closedError(op string) error {
	return &mapping.ExecutionError{Op: op, Err: ErrExecutorClosed}
}

// BatchError reports a batch flush that failed part way. Successful holds
// the results of the batches that completed before the failure.
type BatchError struct {
	Statement  string
	SQL        string
	Successful []BatchResult
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch for %s failed after %d successful batches: %v", e.Statement, len(e.Successful), e.Err)
}

func (e *BatchError) Unwrap() []error {
	return []error{mapping.ErrExecution, e.Err}
}

// IsClosed checks if an error came from a closed executor
func IsClosed(err error) bool { return errors.Is(err, ErrExecutorClosed) }
