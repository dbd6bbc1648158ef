package llm

import (
	"context"
	"errors"
)

// Client is the minimal contract the response generator needs from an AI
// backend: one prompt string in, one completion out. Implementations must
// return ErrThrottled (possibly wrapped) when the backend signals rate
// limiting so the caller can decide whether a single retry is worth it.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var (
	// ErrThrottled marks a rate-limit response from the backend.
	ErrThrottled = errors.New("llm: rate limited")
	// ErrEmpty marks a well-formed response carrying no usable text.
	ErrEmpty = errors.New("llm: empty completion")
)
