package mapping

import (
	"errors"
	"fmt"
)

// Sentinel errors matched with errors.Is
var (
	// ErrConfiguration marks invalid or missing registrations
	ErrConfiguration = errors.New("configuration error")

	// ErrMapping marks failures turning rows into objects
	ErrMapping = errors.New("result mapping error")

	// ErrExecution marks failures running a statement
	ErrExecution = errors.New("execution error")

	// ErrTooManyResults is returned when a single result was expected
	ErrTooManyResults = errors.New("expected one result but found more")
)

// ConfigurationError reports a bad or unknown registration
type ConfigurationError struct {
	ID      string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.ID == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.ID, e.Message)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// MappingError reports a row that could not be materialized
type MappingError struct {
	ResultMap string
	Property  string
	Column    string
	Err       error
}

func (e *MappingError) Error() string {
	msg := "error mapping result"
	if e.ResultMap != "" {
		msg += " for " + e.ResultMap
	}
	if e.Property != "" {
		msg += " property " + e.Property
	}
	if e.Column != "" {
		msg += " column " + e.Column
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MappingError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMapping}
	}
	return []error{ErrMapping, e.Err}
}

// ExecutionError reports a failed statement or executor operation
type ExecutionError struct {
	Op        string
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	msg := e.Op
	if e.Statement != "" {
		msg += " " + e.Statement
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExecution}
	}
	return []error{ErrExecution, e.Err}
}

// Configurationf builds a ConfigurationError
func Configurationf(id, format string, args ...any) error {
	return &ConfigurationError{ID: id, Message: fmt.Sprintf(format, args...)}
}

// Mappingf builds a MappingError for a result map
func Mappingf(resultMap, format string, args ...any) error {
	return &MappingError{ResultMap: resultMap, Err: fmt.Errorf(format, args...)}
}

// WrapExecution wraps err as an ExecutionError unless it already carries one
// of the engine's error kinds
func WrapExecution(op, statement string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExecution) || errors.Is(err, ErrMapping) || errors.Is(err, ErrConfiguration) {
		return err
	}
	return &ExecutionError{Op: op, Statement: statement, Err: err}
}

// IsConfiguration checks if an error is a ConfigurationError
func IsConfiguration(err error) bool { return errors.Is(err, ErrConfiguration) }

// IsMapping checks if an error is a MappingError
func IsMapping(err error) bool { return errors.Is(err, ErrMapping) }

// IsExecution checks if an error is an ExecutionError
func IsExecution(err error) bool { return errors.Is(err, ErrExecution) }
