// Package tanukierr defines the closed set of error kinds the engine
// returns across component boundaries, per the error handling design.
package tanukierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the HTTP collaborator to map to a status code.
type Kind int

const (
	// KindUnknown is never returned directly; it is the zero value of Kind.
	KindUnknown Kind = iota
	// KindNotFound means an id or checksum does not resolve to anything.
	KindNotFound
	// KindAlreadyExists means a dedup hit occurred; callers may treat this as success.
	KindAlreadyExists
	// KindValidationFailed means the caller supplied malformed input.
	KindValidationFailed
	// KindIntegrityViolation means the store is internally inconsistent.
	KindIntegrityViolation
	// KindBackend means the KV store or filesystem failed.
	KindBackend
	// KindDecodeFailed means a media container could not be parsed.
	KindDecodeFailed
	// KindCancelled means a cooperative cancellation signal fired.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindValidationFailed:
		return "validation_failed"
	case KindIntegrityViolation:
		return "integrity_violation"
	case KindBackend:
		return "backend"
	case KindDecodeFailed:
		return "decode_failed"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound builds a KindNotFound error.
func NotFound(op string, err error) error { return wrap(KindNotFound, op, err) }

// AlreadyExists builds a KindAlreadyExists error.
func AlreadyExists(op string, err error) error { return wrap(KindAlreadyExists, op, err) }

// Validation builds a KindValidationFailed error.
func Validation(op string, err error) error { return wrap(KindValidationFailed, op, err) }

// Integrity builds a KindIntegrityViolation error.
func Integrity(op string, err error) error { return wrap(KindIntegrityViolation, op, err) }

// Backend builds a KindBackend error.
func Backend(op string, err error) error { return wrap(KindBackend, op, err) }

// DecodeFailed builds a KindDecodeFailed error.
func DecodeFailed(op string, err error) error { return wrap(KindDecodeFailed, op, err) }

// Cancelled builds a KindCancelled error.
func Cancelled(op string, err error) error { return wrap(KindCancelled, op, err) }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Of returns the Kind carried by err, or KindUnknown if err is not an *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
