package story

import "fmt"

// Step is a pipeline phase. Steps run in a fixed order; rollback may move a
// run back to any earlier step.
type Step string

// Pipeline steps in execution order.
const (
	StepIdeation  Step = "ideation"
	StepOutline   Step = "outline"
	StepBible     Step = "bible"
	StepScenePlan Step = "scene_plan"
	StepDrafting  Step = "drafting"
	StepDone      Step = "done"
)

// Steps returns every step in execution order.
func Steps() []Step {
	return []Step{StepIdeation, StepOutline, StepBible, StepScenePlan, StepDrafting, StepDone}
}

// ParseStep converts a step name into a Step.
func ParseStep(name string) (Step, error) {
	s := Step(name)
	if s.Index() < 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, name)
	}
	return s, nil
}

// Index returns the position of s in the step order, or -1 if s is unknown.
func (s Step) Index() int {
	for i, step := range Steps() {
		if step == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s names a known step.
func (s Step) Valid() bool { return s.Index() >= 0 }

// Next returns the step after s. The terminal step is its own successor.
func (s Step) Next() Step {
	steps := Steps()
	i := s.Index()
	if i < 0 || i == len(steps)-1 {
		return StepDone
	}
	return steps[i+1]
}

// Before reports whether s runs strictly before other.
func (s Step) Before(other Step) bool {
	return s.Index() < other.Index()
}

// Global reports whether s produces a single whole-story artifact rather than
// per-scene work.
func (s Step) Global() bool {
	switch s {
	case StepIdeation, StepOutline, StepBible, StepScenePlan:
		return true
	}
	return false
}

// SceneStatus is the lifecycle status of a single scene.
type SceneStatus string

// Scene statuses. A scene moves forward through these in order; only a
// rollback moves it back to pending.
const (
	ScenePending SceneStatus = "pending"
	// SceneDrafting is never persisted: a draft commits its candidates and
	// the reviewing or done status in one save, so an interrupted draft
	// leaves the scene pending. Normalize turns a stored "drafting" back into
	// pending.
	SceneDrafting  SceneStatus = "drafting"
	SceneReviewing SceneStatus = "reviewing"
	SceneDone      SceneStatus = "done"
)

// Valid reports whether s is a known scene status.
func (s SceneStatus) Valid() bool {
	switch s {
	case ScenePending, SceneDrafting, SceneReviewing, SceneDone:
		return true
	}
	return false
}
