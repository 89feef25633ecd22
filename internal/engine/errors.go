package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies handler failures for the command bindings.
type ErrorKind int

const (
	// KindPrecondition: missing configuration or non-open raid. No state change.
	KindPrecondition ErrorKind = iota
	// KindValidation: bad user input, surfaced verbatim. No state change.
	KindValidation
	// KindPersistence: flush failed after retries; in-memory state is kept.
	KindPersistence
)

// UserError is a handler failure with a message meant for the invoking
// user. Handlers translate it into an ephemeral reply.
type UserError struct {
	Kind ErrorKind
	Msg  string
}

func (e *UserError) Error() string { return e.Msg }

// Preconditionf builds a PreconditionFailed error.
func Preconditionf(format string, args ...any) error {
	return &UserError{Kind: KindPrecondition, Msg: fmt.Sprintf(format, args...)}
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) error {
	return &UserError{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// AsUserError unwraps a UserError if err carries one.
func AsUserError(err error) (*UserError, bool) {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
