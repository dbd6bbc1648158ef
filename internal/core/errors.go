package core

import (
	"errors"
	"fmt"
)

// ErrEmptyInput marks an event whose text is empty or whitespace only.
// The pipeline records these as skipped; an empty comment is not a
// question.
var ErrEmptyInput = errors.New("empty event text")

// DispatchError wraps a reply-posting failure with its retry class.
// Transient failures (network trouble, server errors, rate limits) may
// clear up on retry; permanent ones (bad token, missing permission,
// deleted target) will not.
type DispatchError struct {
	Transient bool
	Err       error
}

func (e *DispatchError) Error() string {
	if e.Transient {
		return fmt.Sprintf("dispatch (transient): %v", e.Err)
	}
	return fmt.Sprintf("dispatch (permanent): %v", e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
