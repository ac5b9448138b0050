package common

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindAccessDenied
	KindPersistence
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindAccessDenied:
		return "access_denied"
	case KindPersistence:
		return "persistence"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Error is a failure tagged with the category callers branch on.
// Msg is safe to show to end users; Err carries the cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }

func Unauthorized(msg string) *Error { return &Error{Kind: KindAuth, Msg: msg} }

func AccessDenied(msg string) *Error { return &Error{Kind: KindAccessDenied, Msg: msg} }

func Persistence(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Msg: msg, Err: err}
}

func Stream(msg string, err error) *Error {
	return &Error{Kind: KindStream, Msg: msg, Err: err}
}

func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindUnknown
}

func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAccessDenied:
		return http.StatusNotFound
	case KindPersistence:
		return http.StatusInternalServerError
	case KindStream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
