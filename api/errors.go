// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-frame.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrClosed          = errors.New("closed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrEmptyChunk      = errors.New("empty chunk")
	ErrMalformedHeader = errors.New("malformed length header")
	ErrResponseSet     = errors.New("response already set")
	ErrExecutorClosed  = errors.New("executor is closed")
	ErrNotSupported    = errors.New("operation not supported")
	ErrPeerClosed      = errors.New("peer closed connection")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeMalformedInput
	ErrCodeIO
	ErrCodeNotSupported
	ErrCodeInternal
)

// Error represents a structured error with code and context.
// Cause, when set, is reachable through errors.Is/As.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap creates a structured error around cause.
func Wrap(code ErrorCode, cause error, message string) *Error {
	e := NewError(code, message)
	e.Cause = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
