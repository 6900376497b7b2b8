// Package fault defines the error taxonomy shared across the print pipeline.
package fault

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a pipeline error.
type Kind string

const (
	Validation    Kind = "validation"
	Connectivity  Kind = "connectivity"
	Protocol      Kind = "protocol"
	Persistence   Kind = "persistence"
	Configuration Kind = "configuration"
)

// Error is a classified pipeline error. Connectivity errors additionally
// carry the access method, port, and measured latency of the failed attempt
// so callers can distinguish "printer offline" from "wrong network port".
type Error struct {
	Kind    Kind
	Message string
	Method  string
	Port    int
	Latency time.Duration
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		} else {
			msg = e.Err.Error()
		}
	}
	if e.Kind == Connectivity && e.Port != 0 {
		return fmt.Sprintf("%s (%s port %d after %s): %s", e.Kind, e.Method, e.Port, e.Latency.Truncate(time.Millisecond), msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf reports a malformed or missing payload. Terminal, non-retryable.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

// Configurationf reports an unknown or inconsistent printer configuration.
func Configurationf(format string, args ...interface{}) *Error {
	return &Error{Kind: Configuration, Message: fmt.Sprintf(format, args...)}
}

// Connectivityf wraps a transport failure with the method/port/latency of the
// attempt that failed.
func Connectivityf(method string, port int, latency time.Duration, err error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    Connectivity,
		Message: fmt.Sprintf(format, args...),
		Method:  method,
		Port:    port,
		Latency: latency,
		Err:     err,
	}
}

// Protocolf reports a reachable device that answered with a non-success status.
func Protocolf(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: Protocol, Message: fmt.Sprintf(format, args...), Err: err}
}

// Persistencef reports unreadable or unwritable durable storage.
func Persistencef(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: Persistence, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err (or anything it wraps) is a fault of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the fault kind of err, or an empty Kind for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Retryable reports whether a failed operation may be retried by the caller.
// Validation and configuration failures are terminal.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Connectivity, Protocol:
		return true
	}
	return false
}
