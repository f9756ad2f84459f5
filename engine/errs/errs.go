// Package errs classifies engine errors into the kinds named in the
// error-handling design: InvalidInput, Timeout, Cancelled,
// ProviderTransient, ProviderPermanent, Internal.
package errs

import "errors"

// Kind is one of the six error classifications.
type Kind string

const (
	InvalidInput      Kind = "InvalidInput"
	Timeout           Kind = "Timeout"
	Cancelled         Kind = "Cancelled"
	ProviderTransient Kind = "ProviderTransient"
	ProviderPermanent Kind = "ProviderPermanent"
	Internal          Kind = "Internal"
)

// Error carries a Kind alongside the underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given classification.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf is New with a plain string message.
func Newf(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Err: errors.New(msg)}
}

// KindOf returns the Kind of err, or Internal if err is not a classified
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsTransient reports whether err should be retried by with_retry.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case ProviderTransient, Timeout, Internal:
		return true
	default:
		return false
	}
}
