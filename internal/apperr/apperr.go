// Package apperr is the error taxonomy shared by the derivation engine, the
// ingestion pipeline and the HTTP API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindDerivationFailed Kind = "derivation_failed"
	KindStoreUnavailable Kind = "store_unavailable"
	KindInternal         Kind = "internal"
)

// Error is a classified error. Message is safe to show to clients; the wrapped
// cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Code    int
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(kind Kind, code int, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Code: code, err: err}
}

func Validation(msg string, err error) *Error {
	return newError(KindValidation, http.StatusBadRequest, msg, err)
}

func Unauthorized(msg string, err error) *Error {
	return newError(KindUnauthorized, http.StatusUnauthorized, msg, err)
}

func Forbidden(msg string, err error) *Error {
	return newError(KindForbidden, http.StatusForbidden, msg, err)
}

func NotFound(msg string, err error) *Error {
	return newError(KindNotFound, http.StatusNotFound, msg, err)
}

func Conflict(msg string, err error) *Error {
	return newError(KindConflict, http.StatusConflict, msg, err)
}

// DerivationFailed marks a rolled-back derivation. Re-submitting the same
// reading id is safe.
func DerivationFailed(msg string, err error) *Error {
	return newError(KindDerivationFailed, http.StatusInternalServerError, msg, err)
}

// StoreUnavailable marks a timeout or lost connection to the store.
func StoreUnavailable(msg string, err error) *Error {
	return newError(KindStoreUnavailable, http.StatusServiceUnavailable, msg, err)
}

func Internal(msg string, err error) *Error {
	return newError(KindInternal, http.StatusInternalServerError, msg, err)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Retryable reports whether the caller may retry with the same input.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindDerivationFailed, KindStoreUnavailable:
		return true
	}
	return false
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return http.StatusInternalServerError
}

// Public returns the client-facing message for err.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
