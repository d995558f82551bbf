// Package apperr defines the error kinds surfaced by the API and their HTTP
// status codes. Services return *Error values (or wrap the sentinels) and the
// HTTP layer turns them into the response envelope.
package apperr

import (
	"errors"
	"net/http"
)

// Sentinel kinds, compared with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTooManyRequests   = errors.New("too many requests")
	ErrUpstream          = errors.New("upstream service failed")
)

// Error carries a user-facing message alongside its kind and cause.
type Error struct {
	Kind    error  // one of the sentinels above
	Message string // safe to show to the client
	Err     error  // underlying cause, never sent to the client
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func newErr(kind error, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Validation(msg string) *Error   { return newErr(ErrValidation, msg) }
func Unauthorized(msg string) *Error { return newErr(ErrUnauthorized, msg) }
func Forbidden(msg string) *Error    { return newErr(ErrForbidden, msg) }
func NotFound(msg string) *Error     { return newErr(ErrNotFound, msg) }
func Conflict(msg string) *Error     { return newErr(ErrConflict, msg) }
func TooManyRequests(msg string) *Error {
	return newErr(ErrTooManyRequests, msg)
}
func InsufficientStock(msg string) *Error { return newErr(ErrInsufficientStock, msg) }

// Upstream wraps a failure of Cloudinary, Stripe, SMTP and the like.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: ErrUpstream, Message: msg, Err: err}
}

// Wrap attaches a cause to an error of the given kind.
func Wrap(kind error, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

var statuses = []struct {
	kind   error
	status int
}{
	{ErrValidation, http.StatusBadRequest},
	{ErrInsufficientStock, http.StatusBadRequest},
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrForbidden, http.StatusForbidden},
	{ErrNotFound, http.StatusNotFound},
	{ErrConflict, http.StatusConflict},
	{ErrTooManyRequests, http.StatusTooManyRequests},
}

// Status maps err to an HTTP status code. The outermost *Error decides, so
// an upstream failure stays a 500 whatever its cause. Unknown errors are 500.
func Status(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return kindStatus(e.Kind)
	}
	for _, s := range statuses {
		if errors.Is(err, s.kind) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

func kindStatus(kind error) int {
	for _, s := range statuses {
		if kind == s.kind {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// Message returns the client-facing text for err. Causes of unclassified
// errors are hidden.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if Status(err) != http.StatusInternalServerError {
		return err.Error()
	}
	return "Internal Server Error"
}
