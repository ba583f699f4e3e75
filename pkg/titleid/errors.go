package titleid

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPrefix   = errors.New("invalid prefix")
	ErrInvalidTitleID  = errors.New("invalid title id")
	ErrUnknownCategory = errors.New("unknown category")
)

// ValidationError reports input rejected before any scheduling happens.
type ValidationError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Input)
	}
	return fmt.Sprintf("%v: %q: %s", e.Err, e.Input, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
