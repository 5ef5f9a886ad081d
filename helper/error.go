package helper

import "fmt"

// Error wraps an underlying error with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

// NewError returns an Error for the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("error %v: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
