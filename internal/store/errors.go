package store

import (
	"errors"
	"fmt"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// ErrConflict indicates the persisted state changed after it was loaded,
// usually because another process wrote the same run.
var ErrConflict = errors.New("run was modified concurrently")

// ConflictError reports a save whose base revision is no longer current.
type ConflictError struct {
	RunID string
	Base  int // revision the writer started from
	Found int // revision currently persisted
}

// Error returns the run and both revisions.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("run %s: saving over revision %d but revision %d is persisted", e.RunID, e.Base, e.Found)
}

// Unwrap returns ErrConflict.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// CheckRevision is the precondition every Backend applies before writing
// state: a new run (revision 1 or unset) must not exist yet, and any later revision
// must directly follow the persisted one. exists reports whether the run is
// persisted and persisted is its stored revision.
func CheckRevision(state *story.ProjectState, persisted int, exists bool) error {
	base := state.Revision - 1
	switch {
	case !exists && base <= 0:
		return nil
	case !exists:
		return &story.NotFoundError{RunID: state.RunID}
	case persisted != base:
		return &ConflictError{RunID: state.RunID, Base: base, Found: persisted}
	}
	return nil
}
