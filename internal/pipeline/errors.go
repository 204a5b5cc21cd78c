package pipeline

import (
	"errors"
	"fmt"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// Sentinel errors for controller operations.
var (
	// ErrNotReviewing indicates a selection or revision targeted a scene that
	// has no candidates awaiting review.
	ErrNotReviewing = errors.New("scene is not awaiting review")
	// ErrInvalidRollback indicates a rollback target at or after the run's
	// current position, or a scene-level rollback without a scene.
	ErrInvalidRollback = errors.New("invalid rollback target")
	// ErrEmptyPlan indicates the scene planner returned no scenes.
	ErrEmptyPlan = errors.New("scene plan is empty")
	// ErrMissingArtifact indicates a step ran before the step it depends on
	// produced output.
	ErrMissingArtifact = errors.New("required artifact missing")
	// ErrUnknownPolicy indicates an unrecognized selection policy.
	ErrUnknownPolicy = errors.New("unknown selection policy")
)

// StepError reports which step failed and why. The run's persisted state is
// unchanged by the failed step.
type StepError struct {
	Step    story.Step
	SceneID int // 0 for global steps
	Err     error
}

// Error reports the step, scene and cause.
func (e *StepError) Error() string {
	if e.SceneID > 0 {
		return fmt.Sprintf("step %s (scene %d): %v", e.Step, e.SceneID, e.Err)
	}
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StepError) Unwrap() error { return e.Err }
