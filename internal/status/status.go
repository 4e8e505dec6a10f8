// Package status defines the closed set of failure kinds reported by the graph engine.
package status

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the engine wraps exactly one of these.
var (
	ErrUninitialized       = errors.New("engine is not initialized")
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrInvalidValueID      = errors.New("invalid value id")
	ErrUnsupportedDatatype = errors.New("unsupported datatype")
	ErrTypeMismatch        = errors.New("mismatching datatypes")
	ErrOutOfMemory         = errors.New("out of memory")
	ErrUnsupportedHardware = errors.New("unsupported hardware")
	ErrInvalidState        = errors.New("invalid state")
)

var kinds = []error{
	ErrUninitialized,
	ErrInvalidParameter,
	ErrInvalidValueID,
	ErrUnsupportedDatatype,
	ErrTypeMismatch,
	ErrOutOfMemory,
	ErrUnsupportedHardware,
	ErrInvalidState,
}

// NoValue marks an Error that is not about a specific Value.
const NoValue = ^uint32(0)

// Error provides structured information about a failed call.
type Error struct {
	Op      string // Operation or node kind (e.g., "subtract", "setup")
	Kind    error  // One of the Err* sentinels
	ValueID uint32 // Offending Value, or NoValue
	Detail  string // Additional details
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ValueID != NoValue {
		return fmt.Sprintf("%s: value #%d: %v: %s", e.Op, e.ValueID, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Detail)
}

// Unwrap returns the failure kind so errors.Is works on sentinels.
func (e *Error) Unwrap() error {
	return e.Kind
}

// New builds an Error not tied to a Value.
func New(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, ValueID: NoValue, Detail: fmt.Sprintf(format, args...)}
}

// ForValue builds an Error about Value id.
func ForValue(op string, kind error, id uint32, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, ValueID: id, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the sentinel wrapped by err, or nil when err is nil or unclassified.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
