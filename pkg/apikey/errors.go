package apikey

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the key store, its backends and the
// quota meter matches exactly one of these through errors.Is.
var (
	// ErrInvalidArgument reports a malformed or missing required field.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound reports an unknown key id or secret.
	ErrNotFound = errors.New("api key not found")

	// ErrQuotaExceeded reports an exhausted key.
	ErrQuotaExceeded = errors.New("api key usage limit exceeded")

	// ErrConflict reports a uniqueness violation in the backend, such as a
	// secret digest collision. The store retries it internally.
	ErrConflict = errors.New("conflict")

	// ErrInternal reports a storage or log failure.
	ErrInternal = errors.New("internal error")
)

// Error carries an error kind together with the failing operation, a
// client-safe message and the underlying cause.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error

	// Op is the operation that failed (e.g. "sqlite.Insert").
	Op string

	// Message is safe to return to API clients.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// InvalidArgument returns an ErrInvalidArgument error with a client-facing message.
func InvalidArgument(op, message string) error {
	return &Error{Kind: ErrInvalidArgument, Op: op, Message: message}
}

// NotFound returns an ErrNotFound error for the given id.
func NotFound(op, id string) error {
	return &Error{Kind: ErrNotFound, Op: op, Message: "API key not found", Err: fmt.Errorf("id %q", id)}
}

// Conflict returns an ErrConflict error.
func Conflict(op string, cause error) error {
	return &Error{Kind: ErrConflict, Op: op, Err: cause}
}

// Internal wraps a storage failure as ErrInternal.
func Internal(op string, cause error) error {
	return &Error{Kind: ErrInternal, Op: op, Err: cause}
}

// KindOf returns the kind of err. Errors that match no kind are Internal.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidArgument, ErrNotFound, ErrQuotaExceeded, ErrConflict, ErrInternal} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrInternal
}

// MessageOf returns the client-safe message carried by err, or "" when err
// does not carry one.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
