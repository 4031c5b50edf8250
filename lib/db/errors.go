package db

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCDriverError                         // 1: The backend failed (network, serialization, constraint, ...).
	RetCUnsupportedOperation                // 2: Operation is not supported by the driver.
	RetCInvalidArgument                     // 3: The caller passed a value of the wrong type or shape.
	RetCNotConnected                        // 4: The driver is not connected.
	RetCNotReady                            // 5: The table was not prepared (yet).
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCDriverError:
		return "DriverError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidArgument:
		return "InvalidArgument"
	case RetCNotConnected:
		return "NotConnected"
	case RetCNotReady:
		return "NotReady"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Sentinel errors, usable with errors.Is against any *Error of the same code.
var (
	ErrDriver               = &Error{Code: RetCDriverError}
	ErrUnsupportedOperation = &Error{Code: RetCUnsupportedOperation}
	ErrInvalidArgument      = &Error{Code: RetCInvalidArgument}
	ErrNotConnected         = &Error{Code: RetCNotConnected}
	ErrNotReady             = &Error{Code: RetCNotReady}
)

// Error wraps a return code, the failed operation, a message and an optional cause.
type Error struct {
	Code RetCode // The return code
	Op   string  // The operation that failed (e.g. "set", "sqlite.prepare")
	Msg  string  // The error message
	Err  error   // The underlying cause (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Op == "" {
		return fmt.Sprintf("hkv (code %s): %s", e.Code, msg)
	}
	return fmt.Sprintf("hkv (code %s) %s: %s", e.Code, e.Op, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors by code, so errors.Is(err, ErrInvalidArgument) works for every invalid argument error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, op, msg string) *Error {
	return &Error{
		Code: code,
		Op:   op,
		Msg:  msg,
	}
}

// InvalidArgument reports a caller error.
func InvalidArgument(op, format string, args ...any) *Error {
	return NewError(RetCInvalidArgument, op, fmt.Sprintf(format, args...))
}

// NotConnected reports a data operation on a driver that is not connected.
func NotConnected(op string) *Error {
	return NewError(RetCNotConnected, op, "driver is not connected")
}

// NotReady reports an operation on a store whose table is not prepared.
// cause is the prepare error or the context error that ended the wait.
func NotReady(op string, cause error) *Error {
	return &Error{Code: RetCNotReady, Op: op, Msg: "store is not ready", Err: cause}
}

// DriverError wraps a backend failure. Errors that already are *Error are returned unchanged.
func DriverError(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return &Error{Code: RetCDriverError, Op: op, Err: cause}
}

// Unsupported reports an operation the driver does not support.
func Unsupported(op string) *Error {
	return NewError(RetCUnsupportedOperation, op, "operation is not supported by the driver")
}

// CodeOf returns the return code carried by err, RetCSuccess for nil and RetCDriverError for foreign errors.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCDriverError
}
