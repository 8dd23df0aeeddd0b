package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document id does not resolve.
	ErrNotFound = errors.New("document not found")

	// ErrMissingDatabase is returned when opening a directory that does not
	// contain a database metadata file.
	ErrMissingDatabase = errors.New("no database found at path")

	// ErrNotEmptyDatabase is returned when creating a database in a directory
	// that already contains files.
	ErrNotEmptyDatabase = errors.New("directory is not empty")

	// ErrCollectionNotFound is returned when referencing an undeclared collection.
	ErrCollectionNotFound = errors.New("collection not found")
)

// ValidationError reports a document that does not conform to its collection
// schema.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on field %q: %s", e.Field, e.Reason)
}

// RelationError reports a relation-bearing value that does not resolve in its
// target collection.
type RelationError struct {
	Field  string
	Target string
	Value  interface{}
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("relation %q: value %v does not resolve in collection %q", e.Field, e.Value, e.Target)
}

// PlannerError reports that no query strategy was applicable. A full scan is
// always admissible, so seeing this error indicates a bug in the planner.
type PlannerError struct {
	Reason string
}

func (e *PlannerError) Error() string {
	return fmt.Sprintf("no applicable query strategy: %s", e.Reason)
}
