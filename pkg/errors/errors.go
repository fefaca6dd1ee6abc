// Package errors provides kind-based error handling for the protection protocol
package errors

import (
	"errors"
	"fmt"
)

// Standard error functions
var (
	Is     = errors.Is
	As     = errors.As
	Join   = errors.Join
	Unwrap = errors.Unwrap
)

// Kind identifies the class of a protocol failure
type Kind string

const (
	// KindInvalidArgument covers malformed input: null asset, zero amount,
	// out-of-range score/threshold/fee/delay.
	KindInvalidArgument Kind = "InvalidArgument"
	// KindUnauthorized covers role check failures: not owner, not router,
	// not operator, not order owner.
	KindUnauthorized Kind = "Unauthorized"
	// KindDuplicateRecord covers attempts to rewrite a write-once entity.
	KindDuplicateRecord Kind = "DuplicateRecord"
	// KindNotFound covers operations on nonexistent orders/bundles/records.
	KindNotFound Kind = "NotFound"
	// KindInvalidState covers operations on entities in a terminal state,
	// or too early relative to their eligibility time.
	KindInvalidState Kind = "InvalidState"
	// KindTransferFailed covers external asset-transfer calls returning failure.
	KindTransferFailed Kind = "TransferFailed"
	// KindSlippageExceeded covers output below the caller's minimum.
	KindSlippageExceeded Kind = "SlippageExceeded"
	// KindReentrantCall covers nested entry into a guarded method.
	KindReentrantCall Kind = "ReentrantCall"
)

// Error is the protocol error type carrying a kind and a human readable reason
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	cause error
}

var _ error = (*Error)(nil)

// Sentinel errors, one per kind, for use with errors.Is
var (
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrDuplicateRecord  = &Error{Kind: KindDuplicateRecord}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrTransferFailed   = &Error{Kind: KindTransferFailed}
	ErrSlippageExceeded = &Error{Kind: KindSlippageExceeded}
	ErrReentrantCall    = &Error{Kind: KindReentrantCall}
)

// New creates an error of the given kind with a formatted reason
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument creates an InvalidArgument error
func InvalidArgument(format string, args ...any) *Error {
	return New(KindInvalidArgument, format, args...)
}

// Unauthorized creates an Unauthorized error
func Unauthorized(format string, args ...any) *Error {
	return New(KindUnauthorized, format, args...)
}

// DuplicateRecord creates a DuplicateRecord error
func DuplicateRecord(format string, args ...any) *Error {
	return New(KindDuplicateRecord, format, args...)
}

// NotFound creates a NotFound error
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// InvalidState creates an InvalidState error
func InvalidState(format string, args ...any) *Error {
	return New(KindInvalidState, format, args...)
}

// TransferFailed creates a TransferFailed error
func TransferFailed(format string, args ...any) *Error {
	return New(KindTransferFailed, format, args...)
}

// SlippageExceeded creates a SlippageExceeded error
func SlippageExceeded(format string, args ...any) *Error {
	return New(KindSlippageExceeded, format, args...)
}

// ReentrantCall creates a ReentrantCall error
func ReentrantCall(format string, args ...any) *Error {
	return New(KindReentrantCall, format, args...)
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s]", e.Kind)
	if e.Message != "" {
		str += " " + e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

// Wrap returns a copy of the error with the cause set
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is implements the interface used by errors.Is; two protocol errors
// match when their kinds are equal
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	if e.cause != nil {
		return Is(e.cause, target)
	}
	return false
}

// KindOf returns the protocol kind of err, or the empty kind for
// non-protocol errors
func KindOf(err error) Kind {
	var pe *Error
	if As(err, &pe) {
		return pe.Kind
	}
	return ""
}
