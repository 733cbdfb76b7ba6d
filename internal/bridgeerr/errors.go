// Package bridgeerr defines the error taxonomy tool-call results are
// classified into: invalid argument, resource unavailable, transport,
// protocol, timeout, lifecycle, and inspection failure.
package bridgeerr

import (
	"errors"
	"fmt"
)

// Category classifies a bridge error for the outer tool dispatcher,
// which maps it to a stable JSON error code in its response envelope.
type Category int

const (
	// InvalidArgument covers a missing session, bad path, non-positive
	// line, or a violated operation precondition.
	InvalidArgument Category = iota
	// Unavailable covers the interpreter or adapter module not installed.
	Unavailable
	// Transport covers connect timeout, socket closed, or a malformed frame.
	Transport
	// Protocol covers an adapter response with success=false.
	Protocol
	// Timeout covers a request timeout or an initialized-event timeout.
	Timeout
	// Lifecycle covers the target process crashing before the handshake
	// completed.
	Lifecycle
	// Inspection covers an evaluate call whose adapter result carries an
	// error, surfaced as data rather than raised.
	Inspection
)

// String returns the stable lowercase name used in Error's message text.
func (c Category) String() string {
	switch c {
	case InvalidArgument:
		return "invalid_argument"
	case Unavailable:
		return "unavailable"
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Timeout:
		return "timeout"
	case Lifecycle:
		return "lifecycle"
	case Inspection:
		return "inspection"
	default:
		return "unknown"
	}
}

// Error is a categorized bridge error. Op names the operation that
// failed ("start_debug_session", "setBreakpoints", ...).
type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error in the same Category, so
// errors.Is(err, someBridgeErr) matches any error of that category
// without comparing fields directly; CategoryOf extracts the Category.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Category == other.Category
	}
	return false
}

func newf(cat Category, op, format string, args ...any) *Error {
	return &Error{Category: cat, Op: op, Err: fmt.Errorf(format, args...)}
}

func wrap(cat Category, op string, err error) *Error {
	return &Error{Category: cat, Op: op, Err: err}
}

// InvalidArgumentf builds an invalid-argument error for op.
func InvalidArgumentf(op, format string, args ...any) *Error {
	return newf(InvalidArgument, op, format, args...)
}

// Unavailablef builds a resource-unavailable error for op.
func Unavailablef(op, format string, args ...any) *Error {
	return newf(Unavailable, op, format, args...)
}

// WrapTransport categorizes err (socket closed, connect timeout,
// malformed frame) as a Transport error for op.
func WrapTransport(op string, err error) *Error {
	if err == nil {
		return nil
	}
	return wrap(Transport, op, err)
}

// WrapProtocol categorizes err (adapter success=false) as a Protocol
// error for op.
func WrapProtocol(op string, err error) *Error {
	if err == nil {
		return nil
	}
	return wrap(Protocol, op, err)
}

// WrapTimeout categorizes err as a Timeout error for op.
func WrapTimeout(op string, err error) *Error {
	if err == nil {
		return nil
	}
	return wrap(Timeout, op, err)
}

// Lifecyclef builds a lifecycle error for op (process crashed before
// or during the handshake).
func Lifecyclef(op, format string, args ...any) *Error {
	return newf(Lifecycle, op, format, args...)
}

// Inspectionf builds an inspection-failure error: surfaced as data in
// a tool result, never returned as a Go error from a public API.
func Inspectionf(op, format string, args ...any) *Error {
	return newf(Inspection, op, format, args...)
}

// CategoryOf extracts the Category of err if it (or something it
// wraps) is a *Error, and ok=false otherwise.
func CategoryOf(err error) (cat Category, ok bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Category, true
	}
	return 0, false
}
