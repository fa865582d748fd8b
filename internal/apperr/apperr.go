// Package apperr defines the typed error taxonomy shared by every
// analysis package. Recoverable errors are discarded by the caller
// without aborting the enclosing operation; structural errors abort
// it.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can branch with errors.Is/As
// without string matching.
type Kind int

const (
	// InvalidSymbol: a reserved id was used where an IR-backed id was
	// required (e.g. interning a compile-time-null constant as a
	// regular value).
	InvalidSymbol Kind = iota
	// InvalidEdge: malformed statement — mismatched kinds, missing
	// label for a label-requiring edge, or an edge into a node whose
	// reserved id forbids it.
	InvalidEdge
	// FieldOutOfRange: a field query beyond the flattened count.
	FieldOutOfRange
	// TypeMismatch: a gep over an object whose flattened type
	// disagrees with the access path, in strict mode.
	TypeMismatch
	// IOError: serialization I/O failure.
	IOError
	// OutOfBudget: only ever returned by wrapping clients that impose
	// an external step budget; never produced by the core.
	OutOfBudget
)

func (k Kind) String() string {
	switch k {
	case InvalidSymbol:
		return "InvalidSymbol"
	case InvalidEdge:
		return "InvalidEdge"
	case FieldOutOfRange:
		return "FieldOutOfRange"
	case TypeMismatch:
		return "TypeMismatch"
	case IOError:
		return "IOError"
	case OutOfBudget:
		return "OutOfBudget"
	default:
		return "Unknown"
	}
}

// Structural reports whether errors of this kind abort the current
// top-level operation. TypeMismatch and FieldOutOfRange are
// recoverable when the caller treats them as optional queries or is
// not running in strict mode; InvalidSymbol, InvalidEdge and IOError
// are always structural.
func (k Kind) Structural() bool {
	switch k {
	case InvalidSymbol, InvalidEdge, IOError:
		return true
	default:
		return false
	}
}

// Error is the concrete error type returned by every package in this
// module. It carries a Kind for programmatic dispatch and wraps an
// optional underlying cause.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "symtab.intern_value"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, apperr.OfKind(apperr.InvalidSymbol)) work by comparing kinds
// via a sentinel wrapper (see kindSentinel below), and also lets two
// *Error values compare equal by Kind+Op+Msg for test assertions.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind && e.Op == other.Op && e.Msg == other.Msg
	}
	var ks kindSentinel
	if errors.As(target, &ks) {
		return e.Kind == Kind(ks)
	}
	return false
}

// kindSentinel lets callers write errors.Is(err, apperr.OfKind(InvalidEdge)).
type kindSentinel Kind

func (k kindSentinel) Error() string { return Kind(k).String() }

// OfKind returns a sentinel error usable with errors.Is to test only the
// Kind of an *Error, ignoring Op/Msg/Err.
func OfKind(k Kind) error { return kindSentinel(k) }

// New constructs an *Error with no wrapped cause.
func New(k Kind, op, msg string) *Error {
	return &Error{Kind: k, Op: op, Msg: msg}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(k Kind, op, msg string, cause error) *Error {
	return &Error{Kind: k, Op: op, Msg: msg, Err: cause}
}
