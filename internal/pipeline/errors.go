package pipeline

import (
	"errors"
	"fmt"
)

// ValidationError marks a caller mistake: a precondition for the requested
// transition was not met. It is surfaced synchronously and never retried.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError, so handlers can map
// it to a 4xx response.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
