package optimistic

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a mutation was rejected.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindBusiness   ErrorKind = "business"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindTransport  ErrorKind = "transport"
	KindInternal   ErrorKind = "internal"
)

// Error is a classified failure. Domain packages declare their sentinel
// errors as *Error values so the kind survives wrapping with %w.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError returns an error of the given kind.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf formats a message into an error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err, keeping err reachable through errors.Unwrap.
func Wrap(kind ErrorKind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of err. Context cancellation and deadlines count
// as transport failures; anything unclassified is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindTransport
	}
	return KindInternal
}

// AsError converts err into an *Error, classifying it when needed. The
// message keeps the full wrapped text.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Error() == err.Error() {
		return e
	}
	return &Error{Kind: KindOf(err), Message: err.Error(), Err: err}
}
