// Package apperrors provides the unified error taxonomy for the social
// service (§7): every engine operation returns one of these kinds, which
// the HTTP edge maps to a status code verbatim.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies which row of the §7 taxonomy an error belongs to.
type Kind string

const (
	KindBadInput     Kind = "bad_input"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindNotAMember   Kind = "not_a_member"
	KindConflict     Kind = "conflict"
	KindGone         Kind = "gone"
	KindInternal     Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindBadInput:     http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindNotAMember:   406,
	KindConflict:     http.StatusConflict,
	KindGone:         http.StatusGone,
	KindInternal:     http.StatusInternalServerError,
}

// Error is a structured, code-carrying domain error.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetails attaches structured context (e.g. {credential, username}).
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: statusByKind[kind]}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: statusByKind[kind], Err: err}
}

func BadInput(message string) *Error     { return New(KindBadInput, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func NotAMember(message string) *Error   { return New(KindNotAMember, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Gone(message string) *Error         { return New(KindGone, message) }
func Internal(message string, err error) *Error {
	return Wrap(KindInternal, message, err)
}

func NotFound(resource, id string) *Error {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource)).WithDetails("resource", resource).WithDetails("id", id)
}

// Unauthorized models the social-provider re-auth case (§7): the caller
// must re-authenticate against the named credential/username pair.
func Unauthorized(credential, username string) *Error {
	return New(KindUnauthorized, "re-authentication required").
		WithDetails("credential", credential).
		WithDetails("username", username)
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus extracts the HTTP status for any error, defaulting to 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
