package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a business error that knows how it should surface over HTTP
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

var (
	ErrNotFound          = newError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrInvalidInput      = newError("INVALID_INPUT", "invalid input", http.StatusBadRequest)
	ErrAlreadyExists     = newError("ALREADY_EXISTS", "resource already exists", http.StatusConflict)
	ErrInvalidState      = newError("INVALID_STATE", "operation not allowed in current state", http.StatusConflict)
	ErrInsufficientStock = newError("INSUFFICIENT_STOCK", "insufficient stock", http.StatusUnprocessableEntity)
	ErrUnauthorized      = newError("UNAUTHORIZED", "not authorized", http.StatusUnauthorized)
	ErrForbidden         = newError("FORBIDDEN", "access forbidden", http.StatusForbidden)
)

// wrapped keeps the sentinel reachable through errors.Is/As while carrying a
// more specific message.
type wrapped struct {
	sentinel *Error
	msg      string
}

func (w *wrapped) Error() string { return w.msg }

func (w *wrapped) Unwrap() error { return w.sentinel }

// Wrap returns an error matching sentinel whose message is the formatted text.
func Wrap(sentinel *Error, format string, args ...any) error {
	return &wrapped{sentinel: sentinel, msg: fmt.Sprintf(format, args...)}
}

// Lookup reports the sentinel behind err, if any, together with the message
// that should be shown to the caller.
func Lookup(err error) (*Error, string, bool) {
	var w *wrapped
	if errors.As(err, &w) {
		return w.sentinel, w.msg, true
	}
	var e *Error
	if errors.As(err, &e) {
		return e, e.Message, true
	}
	return nil, "", false
}
