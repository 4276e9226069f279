package triage

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to the user.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindRequestFailed
	KindServerReported
	KindTimeout
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindRequestFailed:
		return "RequestFailed"
	case KindServerReported:
		return "ServerReportedError"
	case KindTimeout:
		return "Timeout"
	case KindTransport:
		return "TransportError"
	default:
		return "UnknownError"
	}
}

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrRequestFailed  = &Error{Kind: KindRequestFailed}
	ErrServerReported = &Error{Kind: KindServerReported}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrTransport      = &Error{Kind: KindTransport}
)

// Error is returned by every client operation.
type Error struct {
	Kind Kind
	// Status is the HTTP status for RequestFailed, zero otherwise.
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func transportError(err error) error {
	return &Error{Kind: KindTransport, Message: "request failed", Err: err}
}

// KindOf reports the Kind of err, or zero if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
