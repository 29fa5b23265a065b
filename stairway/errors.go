package stairway

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientResources matches every *InsufficientResourcesError via errors.Is.
	ErrInsufficientResources = errors.New("stairway: not enough available light slots")

	// ErrInvalidDelay is returned by the delay setters for negative durations.
	ErrInvalidDelay = errors.New("stairway: delay cannot be negative")
)

// InsufficientResourcesError is returned by CreateStairs when the slot pool is too small.
// The pool is left untouched.
type InsufficientResourcesError struct {
	Requested int
	Available int
}

func (e *InsufficientResourcesError) Error() string {
	return fmt.Sprintf("impossible to create %d stairs, only %d slots available", e.Requested, e.Available)
}

func (e *InsufficientResourcesError) Is(target error) bool {
	return target == ErrInsufficientResources
}
