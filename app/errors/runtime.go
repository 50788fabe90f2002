package errors

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// RuntimeError is an error that occurred while running a command. It carries an
// optional hint for the user about how to resolve it.
type RuntimeError struct {
	msg   string
	cause error
	hint  string
}

// NewRuntimeError returns a new RuntimeError. cause and hint are optional.
func NewRuntimeError(msg string, cause error, hint string) *RuntimeError {
	return &RuntimeError{msg: msg, cause: cause, hint: hint}
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.cause == nil {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.cause)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.cause
}

// Hint returns the suggestion for resolving the error, if any.
func (e *RuntimeError) Hint() string {
	return e.hint
}

// Errorf writes an error message to stderr, followed by the hint if err is a
// RuntimeError that has one.
func Errorf(err error) {
	Fprint(os.Stderr, err)
}

// Fprint writes err to w in the same format as Errorf.
func Fprint(w io.Writer, err error) {
	msg := err.Error()
	if msg != "" {
		msg = strings.ToUpper(msg[:1]) + msg[1:]
	}
	fmt.Fprintf(w, "Error: %s\n", msg)

	var rerr *RuntimeError
	if errors.As(err, &rerr) && rerr.hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", rerr.hint)
	}
}
