package engine

import (
	"errors"
	"fmt"
)

// ValidationError reports bad or insufficient input: an empty series, a
// swing window wider than the data, missing price fields, or out-of-range
// parameters. The computation is deterministic, so a failed call is never
// retried; the caller has to change the input.
type ValidationError struct{ Msg string }

func (e ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
