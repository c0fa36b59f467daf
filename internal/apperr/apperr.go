// Package apperr defines the engine's recoverable error taxonomy and the
// central mapping to HTTP status codes. Services return these; handlers map
// them. Anything not in the taxonomy is a storage/infra fault and surfaces
// as an internal error.
package apperr

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuthorization
	KindConflict
	KindNotFound
	KindTooLate
	KindImmutable
)

// Error is a typed, recoverable outcome returned to callers.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func Validation(msg string) error    { return &Error{Kind: KindValidation, Msg: msg} }
func Authorization(msg string) error { return &Error{Kind: KindAuthorization, Msg: msg} }
func Conflict(msg string) error      { return &Error{Kind: KindConflict, Msg: msg} }
func NotFound(msg string) error      { return &Error{Kind: KindNotFound, Msg: msg} }
func TooLate(msg string) error       { return &Error{Kind: KindTooLate, Msg: msg} }
func Immutable(msg string) error     { return &Error{Kind: KindImmutable, Msg: msg} }

// KindOf extracts the taxonomy kind, mapping common infra errors along the
// way so repositories can bubble gorm errors untouched.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	return KindUnknown
}

// Code returns the wire error code for the response body.
func Code(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "validation_error"
	case KindAuthorization:
		return "authorization_error"
	case KindConflict:
		return "conflict_error"
	case KindNotFound:
		return "not_found"
	case KindTooLate:
		return "too_late"
	case KindImmutable:
		return "immutable"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps an error to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindTooLate:
		return http.StatusGone
	case KindImmutable:
		return http.StatusUnprocessableEntity
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}
}

// Recoverable reports whether the error is part of the taxonomy, i.e. a
// typed outcome rather than an infra fault.
func Recoverable(err error) bool {
	return KindOf(err) != KindUnknown
}
