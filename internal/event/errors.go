package event

import (
	"errors"
	"fmt"
)

// ErrNotHandled marks input that is structurally incomplete: required
// identifying fields are absent and the notification can never become valid.
// Such events are logged and discarded without acknowledgment or retry.
var ErrNotHandled = errors.New("event not handled")

// ErrUndefinedCommand marks a payload whose kind or command has no registered
// workflow.
var ErrUndefinedCommand = errors.New("undefined command")

// Ignorable wraps an error as a business-rule-expected failure: the input was
// valid but the rule cannot be satisfied (bad command syntax, missing
// registration, ...). The event is marked with the error reaction but not
// redelivered.
//
// Transport and API failures must NOT be wrapped: those propagate so the
// delivery channel retries the whole notification.
func Ignorable(err error) error {
	if err == nil {
		return nil
	}
	return ignorableError{err: err}
}

func Ignorablef(format string, args ...any) error {
	return ignorableError{err: fmt.Errorf(format, args...)}
}

// IsIgnorable reports whether err is wrapped with Ignorable.
func IsIgnorable(err error) bool {
	var e ignorableError
	return errors.As(err, &e)
}

type ignorableError struct{ err error }

func (e ignorableError) Error() string { return fmt.Sprintf("ignorable: %v", e.err) }
func (e ignorableError) Unwrap() error { return e.err }
