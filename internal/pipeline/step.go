package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/prompts"
	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/story"
	"github.com/KeLes-Coding/novel-agent/internal/telemetry"
)

// DefaultTargetScenes is the scene count requested from the planner when the
// brief does not set one.
const DefaultTargetScenes = 12

// ExecuteNextStep performs the next unit of work for a run, derived only from
// its persisted state: one global step, one pending consolidation, drafting
// one scene, or completing a reviewed scene. A failure returns *StepError and
// leaves the persisted state as it was before the failing unit. Once the run
// is done the call is a no-op returning ResultComplete.
func (c *Controller) ExecuteNextStep(ctx context.Context, runID string) (*StepResult, error) {
	unlock := c.locks.lock(runID)
	defer unlock()

	st, err := c.open(ctx, runID)
	if err != nil {
		return nil, err
	}
	state := st.State()
	if state.Step == story.StepDone {
		return &StepResult{Kind: ResultComplete, Step: story.StepDone, State: state}, nil
	}

	step, sceneID := state.Step, 0
	if step == story.StepDrafting {
		if n := state.NextOpenScene(); n != nil {
			sceneID = n.ID
		}
	}

	ctx, span := c.startSpan(ctx, "pipeline.step", runID, step, sceneID)
	c.uiStepStarted(runID, step, sceneID)
	c.emit(telemetry.Event{Kind: telemetry.KindStepStart, RunID: runID, Step: string(step), SceneID: sceneID})

	var res *StepResult
	if step.Global() {
		res, err = c.runGlobal(ctx, st, step)
	} else {
		res, err = c.runDrafting(ctx, st)
	}
	endSpan(span, err)

	if err != nil {
		var se *StepError
		if !errors.As(err, &se) {
			se = &StepError{Step: step, SceneID: sceneID, Err: err}
		}
		c.logger().Error("step failed", "run", runID, "step", step, "scene", se.SceneID,
			"transient", llm.IsTransient(err), "error", err)
		c.emit(telemetry.Event{
			Kind:    telemetry.KindStepFailed,
			RunID:   runID,
			Step:    string(step),
			SceneID: se.SceneID,
			Data:    map[string]any{"error": err.Error(), "transient": llm.IsTransient(err)},
		})
		c.uiStepFailed(runID, se)
		return nil, se
	}

	res.State = st.State()
	kind := telemetry.KindStepDone
	if res.Kind == ResultPendingSelection {
		kind = telemetry.KindSuspended
	}
	c.emit(telemetry.Event{
		Kind:    kind,
		RunID:   runID,
		Step:    string(res.Step),
		SceneID: res.SceneID,
		Data:    map[string]any{"result": res.Kind, "next_step": res.State.Step},
	})
	c.logger().Info("step finished", "run", runID, "step", res.Step, "scene", res.SceneID, "result", res.Kind)
	c.uiStepFinished(res)
	return res, nil
}

// runGlobal generates the artifact for a global step and advances the run.
func (c *Controller) runGlobal(ctx context.Context, st *store.Store, step story.Step) (*StepResult, error) {
	state := st.State()
	purpose, prompt, err := c.globalPrompt(state, step)
	if err != nil {
		return nil, err
	}
	system, err := c.Prompts.SystemFor(state.Brief)
	if err != nil {
		return nil, err
	}
	opts := c.Options
	opts.JSON = step == story.StepScenePlan
	resp, err := c.Generator.Generate(llm.WithRun(ctx, state.RunID, 0), llm.Request{
		Purpose: purpose,
		System:  system,
		Prompt:  prompt,
		Options: opts,
	})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, llm.Transient(purpose, fmt.Errorf("%w: empty %s output", llm.ErrMalformedOutput, step))
	}

	var plans []store.ScenePlan
	if step == story.StepScenePlan {
		if plans, text, err = parseScenePlan(text); err != nil {
			return nil, err
		}
	}

	var retired []int
	err = st.Tx(ctx, func(tx *store.Tx) error {
		tx.SetArtifact(step, text)
		switch step {
		case story.StepBible:
			tx.SetCanonicalBible(text)
		case story.StepScenePlan:
			retired = tx.PlanScenes(plans)
		}
		return tx.SetStep(step.Next())
	})
	if err != nil {
		return nil, err
	}
	if len(retired) > 0 {
		c.uiInfo(fmt.Sprintf("scene plan shrank; retired scenes %v", retired))
		c.logger().Warn("scenes retired by new plan", "run", state.RunID, "scenes", retired)
	}
	return &StepResult{Kind: ResultAdvanced, Step: step}, nil
}

func (c *Controller) globalPrompt(state *story.ProjectState, step story.Step) (llm.Purpose, string, error) {
	data := prompts.Data{
		Brief:        state.Brief,
		Ideation:     state.Artifact(story.StepIdeation),
		Outline:      state.Artifact(story.StepOutline),
		BibleExcerpt: state.Bible.Canonical,
		TargetScenes: state.Brief.TargetScenes,
	}
	if data.TargetScenes <= 0 {
		data.TargetScenes = DefaultTargetScenes
	}

	var (
		purpose llm.Purpose
		name    string
		needs   []story.Step
	)
	switch step {
	case story.StepIdeation:
		purpose, name = llm.PurposeIdeation, prompts.Ideation
	case story.StepOutline:
		purpose, name, needs = llm.PurposeOutline, prompts.Outline, []story.Step{story.StepIdeation}
	case story.StepBible:
		purpose, name, needs = llm.PurposeBible, prompts.Bible, []story.Step{story.StepIdeation, story.StepOutline}
	case story.StepScenePlan:
		purpose, name, needs = llm.PurposeScenePlan, prompts.ScenePlan, []story.Step{story.StepOutline, story.StepBible}
	default:
		return "", "", fmt.Errorf("%w: %s is not a global step", story.ErrUnknownStep, step)
	}
	for _, n := range needs {
		if state.Artifact(n) == "" {
			return "", "", fmt.Errorf("%w: %s output", ErrMissingArtifact, n)
		}
	}
	prompt, err := c.Prompts.Render(name, data)
	return purpose, prompt, err
}
