package esi

import (
	"errors"
	"fmt"
)

// Errors raised by the resolver in debug mode. Fetch failures are passed
// through from the fetcher unchanged in kind.
var (
	// ErrInvalidMarkup is returned for an include tag without src or with
	// an unrecognized attribute.
	ErrInvalidMarkup = errors.New("invalid ESI markup")

	// ErrRecursionExceeded is returned when includes nest deeper than allowed.
	ErrRecursionExceeded = errors.New("too many nested includes")
)

// MarkupError carries the offending tag text.
type MarkupError struct {
	Markup string
}

// Error implements the error interface.
func (e *MarkupError) Error() string {
	return fmt.Sprintf("invalid ESI markup: %s", e.Markup)
}

// Unwrap makes errors.Is(err, ErrInvalidMarkup) hold.
func (e *MarkupError) Unwrap() error {
	return ErrInvalidMarkup
}

// RecursionError carries the depth that was refused and the body found there.
type RecursionError struct {
	Depth int
	Body  []byte
}

// Error implements the error interface.
func (e *RecursionError) Error() string {
	return fmt.Sprintf("too many nested includes (depth %d)", e.Depth)
}

// Unwrap makes errors.Is(err, ErrRecursionExceeded) hold.
func (e *RecursionError) Unwrap() error {
	return ErrRecursionExceeded
}
