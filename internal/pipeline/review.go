package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/prompts"
	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/story"
	"github.com/KeLes-Coding/novel-agent/internal/telemetry"
)

// reviewing opens a run and returns the scene, which must be awaiting review.
func (c *Controller) reviewing(ctx context.Context, runID string, sceneID int) (*store.Store, *story.SceneNode, error) {
	st, err := c.open(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	scene, err := st.State().Scene(sceneID)
	if err != nil {
		return nil, nil, err
	}
	if scene.Status != story.SceneReviewing {
		return nil, nil, fmt.Errorf("%w: scene %d is %s", ErrNotReviewing, sceneID, scene.Status)
	}
	return st, scene, nil
}

// SelectVersion chooses version index of a reviewing scene. The next
// ExecuteNextStep completes the scene with it. Unselected versions are kept.
func (c *Controller) SelectVersion(ctx context.Context, runID string, sceneID, index int) (*story.ProjectState, error) {
	unlock := c.locks.lock(runID)
	defer unlock()

	st, _, err := c.reviewing(ctx, runID, sceneID)
	if err != nil {
		return nil, err
	}
	err = st.Tx(ctx, func(tx *store.Tx) error {
		var selErr error
		if err := tx.UpdateScene(sceneID, func(n *story.SceneNode) { selErr = n.Select(index) }); err != nil {
			return err
		}
		return selErr
	})
	if err != nil {
		return nil, fmt.Errorf("selecting version %d of scene %d: %w", index, sceneID, err)
	}
	c.logger().Info("version selected", "run", runID, "scene", sceneID, "version", index)
	c.emit(telemetry.Event{
		Kind:    telemetry.KindSelection,
		RunID:   runID,
		SceneID: sceneID,
		Data:    map[string]any{"version": index},
	})
	return st.State(), nil
}

// ReviseVersion rewrites version index of a reviewing scene according to
// feedback and appends the result as a new version. It returns the new
// version's index.
func (c *Controller) ReviseVersion(ctx context.Context, runID string, sceneID, index int, feedback string) (*story.ProjectState, int, error) {
	unlock := c.locks.lock(runID)
	defer unlock()

	st, scene, err := c.reviewing(ctx, runID, sceneID)
	if err != nil {
		return nil, 0, err
	}
	if index < 0 || index >= len(scene.Versions) {
		return nil, 0, fmt.Errorf("%w: %d", story.ErrUnknownVersion, index)
	}
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return nil, 0, fmt.Errorf("revising scene %d: feedback is empty", sceneID)
	}

	state := st.State()
	system, err := c.Prompts.SystemFor(state.Brief)
	if err != nil {
		return nil, 0, err
	}
	prompt, err := c.Prompts.Render(prompts.Revise, prompts.Data{
		Brief:    state.Brief,
		Scene:    scene,
		Text:     scene.Versions[index].Text,
		Feedback: feedback,
	})
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.Generator.Generate(llm.WithRun(ctx, runID, sceneID), llm.Request{
		Purpose: llm.PurposeRevise,
		System:  system,
		Prompt:  prompt,
		Options: c.Options,
	})
	if err != nil {
		return nil, 0, &StepError{Step: story.StepDrafting, SceneID: sceneID, Err: err}
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		err := llm.Transient(llm.PurposeRevise, fmt.Errorf("%w: empty revision", llm.ErrMalformedOutput))
		return nil, 0, &StepError{Step: story.StepDrafting, SceneID: sceneID, Err: err}
	}

	parent := index
	var added int
	err = st.Tx(ctx, func(tx *store.Tx) error {
		var err error
		added, err = tx.AppendVersions(sceneID, story.Version{
			Text:     text,
			Origin:   story.OriginRevise,
			Feedback: feedback,
			Parent:   &parent,
			Cost:     story.Cost{TokensIn: resp.Usage.TokensIn, TokensOut: resp.Usage.TokensOut},
		})
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	c.emit(telemetry.Event{
		Kind:    telemetry.KindRevision,
		RunID:   runID,
		SceneID: sceneID,
		Data:    map[string]any{"parent": index, "version": added},
	})
	return st.State(), added, nil
}

// Reroll drafts k more candidates for a reviewing scene and appends them.
// Existing versions and any selection are kept.
func (c *Controller) Reroll(ctx context.Context, runID string, sceneID, k int) (*story.ProjectState, error) {
	unlock := c.locks.lock(runID)
	defer unlock()

	st, scene, err := c.reviewing(ctx, runID, sceneID)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = c.Branching.candidatesFor(scene)
	}
	versions, err := c.generateCandidates(ctx, st.State(), scene, k, story.OriginReroll)
	if err != nil {
		return nil, &StepError{Step: story.StepDrafting, SceneID: sceneID, Err: err}
	}
	var first int
	err = st.Tx(ctx, func(tx *store.Tx) error {
		var err error
		first, err = tx.AppendVersions(sceneID, versions...)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.emit(telemetry.Event{
		Kind:    telemetry.KindRevision,
		RunID:   runID,
		SceneID: sceneID,
		Data:    map[string]any{"reroll": k, "first": first},
	})
	return st.State(), nil
}
