package pipeline

import (
	"context"
	"fmt"

	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/story"
	"github.com/KeLes-Coding/novel-agent/internal/telemetry"
)

// Rollback moves a run back so step runs again. For StepDrafting, sceneID
// names the first scene to redo: it and every later scene return to pending
// with selection and summary cleared, and arc summaries reaching into that
// span are superseded. Rolling back to a global step resets every scene.
// Arcs that end before the rollback point are never touched, and drafted
// versions are always kept.
func (c *Controller) Rollback(ctx context.Context, runID string, step story.Step, sceneID int) (*story.ProjectState, error) {
	unlock := c.locks.lock(runID)
	defer unlock()

	st, err := c.open(ctx, runID)
	if err != nil {
		return nil, err
	}
	state := st.State()
	from, err := rollbackPoint(state, step, sceneID)
	if err != nil {
		return nil, err
	}

	var reset []int
	var superseded int
	err = st.Tx(ctx, func(tx *store.Tx) error {
		reset = tx.ResetScenesFrom(from)
		superseded = tx.SupersedeArcsFrom(from)
		return tx.SetStep(step)
	})
	if err != nil {
		return nil, fmt.Errorf("rolling back run %s: %w", runID, err)
	}

	c.logger().Info("run rolled back", "run", runID, "step", step, "from_scene", from,
		"scenes_reset", len(reset), "arcs_superseded", superseded)
	c.emit(telemetry.Event{
		Kind:    telemetry.KindRollback,
		RunID:   runID,
		Step:    string(step),
		SceneID: sceneID,
		Data: map[string]any{
			"from":            state.Step,
			"scenes_reset":    reset,
			"arcs_superseded": superseded,
		},
	})
	return st.State(), nil
}

// rollbackPoint validates a rollback target and returns the first scene id
// to reset.
func rollbackPoint(state *story.ProjectState, step story.Step, sceneID int) (int, error) {
	switch {
	case !step.Valid():
		return 0, fmt.Errorf("%w: %q", story.ErrUnknownStep, step)
	case step == story.StepDone:
		return 0, fmt.Errorf("%w: cannot roll back to %s", ErrInvalidRollback, step)
	case step.Global():
		if !step.Before(state.Step) {
			return 0, fmt.Errorf("%w: run is at %s", ErrInvalidRollback, state.Step)
		}
		return 1, nil
	}

	// Scene-level rollback within drafting.
	if state.Step.Before(story.StepDrafting) {
		return 0, fmt.Errorf("%w: run has not started drafting", ErrInvalidRollback)
	}
	if sceneID <= 0 {
		return 0, fmt.Errorf("%w: drafting rollback needs a scene", ErrInvalidRollback)
	}
	if _, err := state.Scene(sceneID); err != nil {
		return 0, err
	}
	return sceneID, nil
}
