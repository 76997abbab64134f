// Package mapping holds the immutable description of statements and result
// shapes, plus the configuration registry the engine resolves them from.
package mapping

import (
	"fmt"
	"math"
	"strings"
)

// SqlCommandType classifies a statement
type SqlCommandType int

const (
	CommandUnknown SqlCommandType = iota
	CommandInsert
	CommandUpdate
	CommandDelete
	CommandSelect
	CommandFlush
)

func (t SqlCommandType) String() string {
	switch t {
	case CommandInsert:
		return "INSERT"
	case CommandUpdate:
		return "UPDATE"
	case CommandDelete:
		return "DELETE"
	case CommandSelect:
		return "SELECT"
	case CommandFlush:
		return "FLUSH"
	}
	return "UNKNOWN"
}

// StatementType selects how SQL reaches the driver
type StatementType int

const (
	// StatementPrepared prepares the SQL before binding arguments
	StatementPrepared StatementType = iota
	// StatementPlain sends SQL and arguments in one call without preparing
	StatementPlain
	// StatementCallable invokes a stored procedure with named, possibly OUT, arguments
	StatementCallable
)

// ParameterMode is the direction of a statement parameter
type ParameterMode int

const (
	ModeIn ParameterMode = iota
	ModeOut
	ModeInOut
)

func (m ParameterMode) String() string {
	switch m {
	case ModeOut:
		return "OUT"
	case ModeInOut:
		return "INOUT"
	}
	return "IN"
}

// IsOutput reports whether the parameter receives a value from the database
func (m ParameterMode) IsOutput() bool {
	return m == ModeOut || m == ModeInOut
}

// ParseParameterMode parses IN, OUT or INOUT
func ParseParameterMode(s string) (ParameterMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "IN":
		return ModeIn, nil
	case "OUT":
		return ModeOut, nil
	case "INOUT":
		return ModeInOut, nil
	}
	return ModeIn, fmt.Errorf("unknown parameter mode %q", s)
}

// FetchType overrides the global lazy loading setting for one property
type FetchType int

const (
	FetchDefault FetchType = iota
	FetchLazy
	FetchEager
)

// NoRowOffset and NoRowLimit describe an unbounded window
const (
	NoRowOffset = 0
	NoRowLimit  = math.MaxInt32
)

// RowBounds is a client side row window
type RowBounds struct {
	Offset int
	Limit  int
}

// DefaultRowBounds returns every row
var DefaultRowBounds = RowBounds{Offset: NoRowOffset, Limit: NoRowLimit}

// NewRowBounds creates a window; a non-positive limit means unbounded
func NewRowBounds(offset, limit int) RowBounds {
	if limit <= 0 {
		limit = NoRowLimit
	}
	return RowBounds{Offset: max(offset, 0), Limit: limit}
}

// IsDefault reports whether b is the unbounded window
func (b RowBounds) IsDefault() bool {
	return b.Offset == NoRowOffset && b.Limit == NoRowLimit
}

// AutoMappingBehavior controls mapping of columns no mapping names
type AutoMappingBehavior string

const (
	AutoMappingNone    AutoMappingBehavior = "none"
	AutoMappingPartial AutoMappingBehavior = "partial"
	AutoMappingFull    AutoMappingBehavior = "full"
)

// UnknownColumnBehavior controls what happens to columns with no target property
type UnknownColumnBehavior string

const (
	UnknownColumnNone    UnknownColumnBehavior = "none"
	UnknownColumnWarning UnknownColumnBehavior = "warning"
	UnknownColumnFailing UnknownColumnBehavior = "failing"
)

// LocalCacheScope bounds the lifetime of the session cache
type LocalCacheScope string

const (
	LocalCacheSession   LocalCacheScope = "session"
	LocalCacheStatement LocalCacheScope = "statement"
)

// ExecutorType selects the statement execution strategy
type ExecutorType string

const (
	ExecutorSimple ExecutorType = "simple"
	ExecutorReuse  ExecutorType = "reuse"
	ExecutorBatch  ExecutorType = "batch"
)
