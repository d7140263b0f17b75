package service

import (
	"errors"

	"github.com/Resinat/Prism/internal/store"
)

// ServiceError wraps an error with a code for API response mapping.
type ServiceError struct {
	Code    string // INVALID_ARGUMENT, NOT_FOUND, CONFLICT, INTERNAL
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }
func (e *ServiceError) Unwrap() error { return e.Err }

const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL"
)

func invalidArg(msg string) *ServiceError {
	return &ServiceError{Code: CodeInvalidArgument, Message: msg}
}

func notFound(msg string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: msg}
}

func conflict(msg string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: msg}
}

func internal(msg string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: msg, Err: err}
}

// storeError maps store sentinels onto service errors. what names the
// missing or clashing entity in the message.
func storeError(what, op string, err error) *ServiceError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound(what + " not found")
	case errors.Is(err, store.ErrConflict):
		return conflict(what + " already exists")
	default:
		return internal(op, err)
	}
}
