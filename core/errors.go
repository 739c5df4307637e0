package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// Kind classifies a domain error so callers can map it to an external
// representation (the API layer maps each Kind to an HTTP status).
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidState
	KindConflict
	KindDependency
)

type Error struct {
	Kind Kind
	Err  error
}

func (e Error) Error() string { return e.Err.Error() }
func (e Error) Unwrap() error { return e.Err }

func NotFoundError(err error) error     { return &Error{Kind: KindNotFound, Err: err} }
func ForbiddenError(err error) error    { return &Error{Kind: KindForbidden, Err: err} }
func InvalidStateError(err error) error { return &Error{Kind: KindInvalidState, Err: err} }
func ConflictError(err error) error     { return &Error{Kind: KindConflict, Err: err} }
func DependencyError(err error) error   { return &Error{Kind: KindDependency, Err: err} }

// ErrorKind returns the Kind of err, unwrapping as needed.
func ErrorKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
