package story

import (
	"errors"
	"fmt"
)

// Sentinel errors for state lookups and invariant checks.
var (
	// ErrNotFound indicates no persisted state exists for a run id.
	ErrNotFound = errors.New("run not found")
	// ErrUnknownScene indicates a scene id is not part of the outline.
	ErrUnknownScene = errors.New("unknown scene")
	// ErrRangeOverlap indicates an archive range collides with archived scenes.
	ErrRangeOverlap = errors.New("archive range overlaps archived scenes")
	// ErrInvariant indicates a state would violate a structural invariant.
	ErrInvariant = errors.New("state invariant violated")
	// ErrUnknownStep indicates a step name outside the pipeline order.
	ErrUnknownStep = errors.New("unknown step")
	// ErrUnknownVersion indicates a version index outside a scene's versions.
	ErrUnknownVersion = errors.New("unknown version")
)

// NotFoundError reports a missing run.
type NotFoundError struct {
	RunID string
}

// Error returns a human-readable description including the run id.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("run %q not found", e.RunID)
}

// Unwrap returns ErrNotFound.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UnknownSceneError reports a scene id that is not in the outline.
type UnknownSceneError struct {
	SceneID int
}

// Error returns a human-readable description including the scene id.
func (e *UnknownSceneError) Error() string {
	return fmt.Sprintf("scene %d not in outline", e.SceneID)
}

// Unwrap returns ErrUnknownScene.
func (e *UnknownSceneError) Unwrap() error { return ErrUnknownScene }

// RangeOverlapError reports an archive range that intersects an existing
// archived range or does not start after the last archived scene. It
// indicates a programming error in the caller.
type RangeOverlapError struct {
	Range        Range
	LastArchived int
}

// Error returns a human-readable description of the conflicting range.
func (e *RangeOverlapError) Error() string {
	return fmt.Sprintf("archive range %s conflicts with archived scenes through %d", e.Range, e.LastArchived)
}

// Unwrap returns ErrRangeOverlap.
func (e *RangeOverlapError) Unwrap() error { return ErrRangeOverlap }

// InvariantError reports which part of a state failed validation.
type InvariantError struct {
	Field  string
	Detail string
}

// Error returns the field and detail of the violation.
func (e *InvariantError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// Unwrap returns ErrInvariant.
func (e *InvariantError) Unwrap() error { return ErrInvariant }

func invariantf(field, format string, args ...any) error {
	return &InvariantError{Field: field, Detail: fmt.Sprintf(format, args...)}
}
