package query

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned for malformed filters, unknown columns, and
// literals that cannot be bound safely. Callers classify with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
