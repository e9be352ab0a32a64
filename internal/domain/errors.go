package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by read paths when an entity cannot be located.
	ErrNotFound = errors.New("entity not found")
	// ErrInvalidRange is returned when pagination or time-range parameters
	// are outside allowed bounds.
	ErrInvalidRange = errors.New("invalid range parameter")
	// ErrReferentialViolation is returned by the store when a write
	// references a missing entity.
	ErrReferentialViolation = errors.New("referenced entity does not exist")
)

// IngestionError wraps any decode or normalization failure. The activity is
// never committed when one is returned.
type IngestionError struct {
	Source     string // originating filename, may be empty
	ActivityID string // derived id, may be empty when hashing never ran
	Err        error
}

func (e *IngestionError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("ingestion failed for %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("ingestion failed: %v", e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
