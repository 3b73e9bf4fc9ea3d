package filter

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every compile error.
var ErrMalformed = errors.New("malformed filter")

// MalformedError describes why a filter failed to compile.
type MalformedError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed filter %q: %s at position %d", e.Input, e.Msg, e.Offset)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}
