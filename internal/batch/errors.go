package batch

import (
	"errors"
	"fmt"
)

var (
	// ErrFinalized is returned when a context is added, or the batch is
	// finalized, after Finalize.
	ErrFinalized = errors.New("batch is already finalized")
	// ErrNotFinalized is returned by Report and Execute before Finalize.
	ErrNotFinalized = errors.New("batch is not finalized")
	// ErrHandedOff is returned when Report or Execute is called after the
	// merged context was already reported or executed.
	ErrHandedOff = errors.New("batch was already handed off")
	// ErrEmptyBatch is returned by Finalize when no context was added.
	ErrEmptyBatch = errors.New("batch contains no build requests")
)

// ConflictError reports two requests disagreeing about the value of a key
// that both of them set. It is only returned by a strict Merger.
type ConflictError struct {
	// Field is the build context field, e.g. "export_dirs".
	Field string
	// Key describes the colliding key.
	Key string
	// Existing is the value already in the accumulator.
	Existing string
	// Incoming is the value of the request being merged.
	Incoming string
	// Request labels the request being merged.
	Request string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("request %s: conflicting %s for %s: %s was already set, refusing to replace it with %s",
		e.Request, e.Field, e.Key, e.Existing, e.Incoming)
}
