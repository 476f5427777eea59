package filter

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned when a criterion cannot be composed from
	// the given operands.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrMalformed is returned when a filter string does not follow the
	// canonical grammar.
	ErrMalformed = errors.New("malformed filter expression")
)

// SyntaxError describes where parsing of a filter string failed.
type SyntaxError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s at position %d in %q", ErrMalformed, e.Msg, e.Pos, e.Input)
}

// Is reports ErrMalformed so callers can match with errors.Is.
func (e *SyntaxError) Is(target error) bool {
	return target == ErrMalformed
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
