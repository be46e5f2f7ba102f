package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// RaftError is an error with an optional wrapped inner error that carries
// the stack trace of the point where the failure was first observed.
type RaftError struct {
	Inner   error
	Message string
}

func New(text string) *RaftError {
	return &RaftError{Message: text}
}

func WrapError(inner error, messagef string, messageArgs ...interface{}) *RaftError {
	return &RaftError{
		Inner:   errors.WithStack(inner),
		Message: fmt.Sprintf(messagef, messageArgs...),
	}
}

func (e *RaftError) Unwrap() error {
	return e.Inner
}

func (e *RaftError) Error() string {
	return e.Message
}
