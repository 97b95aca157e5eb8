// Package apperr defines the error kinds surfaced by the session engine.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeUnknown            Code = "Unknown"
	CodeUnknownCommand     Code = "UnknownCommand"
	CodeStaleTurn          Code = "StaleTurn"
	CodeUnauthorizedSlot   Code = "UnauthorizedSlot"
	CodeCapacityExceeded   Code = "CapacityExceeded"
	CodeAgentsNotConnected Code = "AgentsNotConnected"
	CodeTransportFailure   Code = "TransportFailure"
	CodeDuplicateClient    Code = "DuplicateClient"
	CodeUnknownSlot        Code = "UnknownSlot"
	CodeInvalidArgument    Code = "InvalidArgument"
	// CodeNotReady means the current phase does not allow the command yet.
	CodeNotReady     Code = "NotReady"
	CodeSessionEnded Code = "SessionEnded"
)

// Resync reports whether a client receiving this code should resynchronize and resend.
func (c Code) Resync() bool {
	switch c {
	case CodeStaleTurn, CodeUnauthorizedSlot, CodeNotReady:
		return true
	}
	return false
}

// Error carries a Code plus an internal message and optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
