package dsal

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Error is a structured DSAL error carrying operation context and the
// errno the backend (or the core itself) produced. The errno domain is
// the contract: the core itself raises EINVAL; every other value,
// ENOENT and ENOMEM included, comes from the backend and keeps its errno.
type Error struct {
	Op    string        // Entry point that failed (e.g. "obj_open", "pwrite")
	OID   *OID          // Object the operation targeted (nil if not applicable)
	Code  ErrorCode     // High-level error category
	Errno syscall.Errno // errno value (0 if not applicable)
	Msg   string        // Human-readable message
	Inner error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}

	if e.OID != nil {
		parts = append(parts, fmt.Sprintf("oid=%s", e.OID))
	}

	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", int(e.Errno)))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("dsal: %s (%s)", msg, strings.Join(parts, " "))
	}

	return fmt.Sprintf("dsal: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is against other *Error values and bare errnos.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if errno, ok := target.(syscall.Errno); ok {
		return e.Errno == errno
	}

	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}

	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeInvalidArgument ErrorCode = "invalid argument"
	ErrCodeNoMemory        ErrorCode = "out of memory"
	ErrCodeNotFound        ErrorCode = "not found"
	ErrCodeExists          ErrorCode = "already exists"
	ErrCodeNotInitialized  ErrorCode = "datastore not initialized"
	ErrCodeIOError         ErrorCode = "I/O error"
)

// Error constructors

// NewError creates a new structured error with the errno matching its code.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:    op,
		Code:  code,
		Errno: mapCodeToErrno(code),
		Msg:   msg,
	}
}

// NewErrorWithErrno creates a new structured error from an errno
func NewErrorWithErrno(op string, errno syscall.Errno) *Error {
	return &Error{
		Op:    op,
		Code:  mapErrnoToCode(errno),
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// NewObjectError creates a new object-specific error
func NewObjectError(op string, oid *OID, errno syscall.Errno, msg string) *Error {
	return &Error{
		Op:    op,
		OID:   oid,
		Code:  mapErrnoToCode(errno),
		Errno: errno,
		Msg:   msg,
	}
}

// WrapError wraps an existing error with dsal context, preserving the
// errno of an already-structured error.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	var de *Error
	if errors.As(inner, &de) {
		return &Error{
			Op:    op,
			OID:   de.OID,
			Code:  de.Code,
			Errno: de.Errno,
			Msg:   de.Msg,
			Inner: inner,
		}
	}

	var errno syscall.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:    op,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   inner.Error(),
			Inner: inner,
		}
	}

	return &Error{
		Op:    op,
		Code:  ErrCodeIOError,
		Errno: syscall.EIO,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// mapErrnoToCode maps errno values to dsal error codes
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOENT:
		return ErrCodeNotFound
	case syscall.EEXIST:
		return ErrCodeExists
	case syscall.EINVAL, syscall.E2BIG:
		return ErrCodeInvalidArgument
	case syscall.ENOMEM, syscall.ENOSPC:
		return ErrCodeNoMemory
	default:
		return ErrCodeIOError
	}
}

func mapCodeToErrno(code ErrorCode) syscall.Errno {
	switch code {
	case ErrCodeInvalidArgument, ErrCodeNotInitialized:
		return syscall.EINVAL
	case ErrCodeNoMemory:
		return syscall.ENOMEM
	case ErrCodeNotFound:
		return syscall.ENOENT
	case ErrCodeExists:
		return syscall.EEXIST
	default:
		return syscall.EIO
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsErrno checks if an error carries a specific errno. Bare errno values
// are matched as well so backend pass-through errors need no wrapping.
func IsErrno(err error, errno syscall.Errno) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Errno == errno
	}
	var e syscall.Errno
	if errors.As(err, &e) {
		return e == errno
	}
	return false
}

// Errno extracts the errno from an error, or 0 if it carries none.
func Errno(err error) syscall.Errno {
	var de *Error
	if errors.As(err, &de) {
		return de.Errno
	}
	var e syscall.Errno
	if errors.As(err, &e) {
		return e
	}
	return 0
}
