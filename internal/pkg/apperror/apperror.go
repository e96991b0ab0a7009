package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthRequired
	KindInsufficientCredits
	KindRateLimited
	KindUpstream
	KindSignatureInvalid
	KindNotFound
	KindConflict
)

// Status maps a kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthRequired, KindSignatureInvalid:
		return http.StatusUnauthorized
	case KindInsufficientCredits:
		return http.StatusPaymentRequired
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error type surfaced to HTTP clients. Code and Message are safe
// to render, Err is only logged.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Status() int {
	return e.Kind.Status()
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(message string) *Error {
	return New(KindValidation, "validation_error", message)
}

func AuthRequired() *Error {
	return New(KindAuthRequired, "auth_required", "Authentication required.")
}

func InsufficientCredits() *Error {
	return New(KindInsufficientCredits, "insufficient_credits", "Not enough credits.")
}

func RateLimited(retryAfter time.Duration) *Error {
	e := New(KindRateLimited, "rate_limited", "Too many requests. Please slow down.")
	e.RetryAfter = retryAfter
	return e
}

func Upstream(code, message string, err error) *Error {
	e := New(KindUpstream, code, message)
	e.Err = err
	return e
}

func SignatureInvalid() *Error {
	return New(KindSignatureInvalid, "invalid_signature", "Invalid signature.")
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Internal(code string, err error) *Error {
	e := New(KindInternal, code, "Internal server error.")
	e.Err = err
	return e
}

// From returns err as *Error, wrapping anything else as internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal_error", err)
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
