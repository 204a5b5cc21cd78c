package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/KeLes-Coding/novel-agent/internal/assembler"
	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/memory"
	"github.com/KeLes-Coding/novel-agent/internal/prompts"
	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/story"
	"github.com/KeLes-Coding/novel-agent/internal/telemetry"
)

// runDrafting performs the next drafting unit: a consolidation left over
// from an earlier failure, completing a reviewed scene, or drafting the next
// pending scene. With no open scenes left the run moves to done.
func (c *Controller) runDrafting(ctx context.Context, st *store.Store) (*StepResult, error) {
	state := st.State()
	if _, due := c.Memory.Due(state); due {
		ranges, err := c.consolidate(ctx, st)
		if err != nil {
			return nil, err
		}
		return &StepResult{Kind: ResultAdvanced, Step: story.StepDrafting, Consolidated: ranges}, nil
	}

	scene := state.NextOpenScene()
	if scene == nil {
		if err := st.Tx(ctx, func(tx *store.Tx) error { return tx.SetStep(story.StepDone) }); err != nil {
			return nil, err
		}
		return &StepResult{Kind: ResultComplete, Step: story.StepDone}, nil
	}

	if scene.Status == story.SceneReviewing {
		return c.resumeReview(ctx, st, scene)
	}
	return c.draftScene(ctx, st, state, scene)
}

// draftScene generates the scene's candidates. Auto-selected candidates
// complete the scene in the same transaction; otherwise the candidates are
// stored and the run suspends for selection.
func (c *Controller) draftScene(ctx context.Context, st *store.Store, state *story.ProjectState, scene *story.SceneNode) (*StepResult, error) {
	k := c.Branching.candidatesFor(scene)
	versions, err := c.generateCandidates(ctx, state, scene, k, story.OriginDraft)
	if err != nil {
		return nil, &StepError{Step: story.StepDrafting, SceneID: scene.ID, Err: err}
	}

	if idx, ok := c.Branching.autoPick(versions); ok {
		return c.completeScene(ctx, st, scene.ID, versions, len(scene.Versions)+idx)
	}

	err = st.Tx(ctx, func(tx *store.Tx) error {
		if _, err := tx.AppendVersions(scene.ID, versions...); err != nil {
			return err
		}
		return tx.UpdateScene(scene.ID, func(n *story.SceneNode) { n.Status = story.SceneReviewing })
	})
	if err != nil {
		return nil, &StepError{Step: story.StepDrafting, SceneID: scene.ID, Err: err}
	}
	c.uiInfo(fmt.Sprintf("scene %d: %d candidates await selection", scene.ID, len(versions)))
	return &StepResult{Kind: ResultPendingSelection, Step: story.StepDrafting, SceneID: scene.ID}, nil
}

// resumeReview completes a reviewing scene once a version is selected, either
// by SelectVersion or by an automatic policy.
func (c *Controller) resumeReview(ctx context.Context, st *store.Store, scene *story.SceneNode) (*StepResult, error) {
	if scene.Selected != nil {
		return c.completeScene(ctx, st, scene.ID, nil, *scene.Selected)
	}
	if idx, ok := c.Branching.Selection.pick(scene.Versions); ok {
		return c.completeScene(ctx, st, scene.ID, nil, idx)
	}
	return &StepResult{Kind: ResultPendingSelection, Step: story.StepDrafting, SceneID: scene.ID}, nil
}

// completeScene appends fresh versions, selects version sel, digests it and
// marks the scene done in one transaction, then runs any due consolidation as
// a separate unit.
func (c *Controller) completeScene(ctx context.Context, st *store.Store, sceneID int, fresh []story.Version, sel int) (*StepResult, error) {
	fail := func(err error) (*StepResult, error) {
		return nil, &StepError{Step: story.StepDrafting, SceneID: sceneID, Err: err}
	}

	work := st.State()
	n, err := work.Scene(sceneID)
	if err != nil {
		return fail(err)
	}
	n.Versions = append(n.Versions, fresh...)
	if err := n.Select(sel); err != nil {
		return fail(err)
	}
	d, err := c.Memory.Digest(ctx, work, sceneID)
	if err != nil {
		return fail(err)
	}

	err = st.Tx(ctx, func(tx *store.Tx) error {
		if len(fresh) > 0 {
			if _, err := tx.AppendVersions(sceneID, fresh...); err != nil {
				return err
			}
		}
		var selErr error
		if err := tx.UpdateScene(sceneID, func(n *story.SceneNode) {
			selErr = n.Select(sel)
			n.Status = story.SceneReviewing
		}); err != nil {
			return err
		}
		if selErr != nil {
			return selErr
		}
		return memory.ApplyDigest(tx, sceneID, d)
	})
	if err != nil {
		return fail(err)
	}

	if len(d.Facts) > 0 {
		c.emit(telemetry.Event{
			Kind:    telemetry.KindBiblePatch,
			RunID:   st.RunID(),
			SceneID: sceneID,
			Data:    map[string]any{"facts": len(d.Facts)},
		})
	}

	ranges, err := c.consolidate(ctx, st)
	if err != nil {
		return fail(err)
	}
	return &StepResult{Kind: ResultAdvanced, Step: story.StepDrafting, SceneID: sceneID, Consolidated: ranges}, nil
}

func (c *Controller) consolidate(ctx context.Context, st *store.Store) ([]story.Range, error) {
	ranges, err := c.Memory.Consolidate(ctx, st)
	for _, r := range ranges {
		c.uiConsolidated(st.RunID(), r)
	}
	return ranges, err
}

// sceneTask renders the instruction block for drafting scene.
func (c *Controller) sceneTask(state *story.ProjectState, scene *story.SceneNode) (string, error) {
	return c.Prompts.Render(prompts.SceneTask, prompts.Data{Brief: state.Brief, Scene: scene})
}

// assemble builds the context payload for drafting scene.
func (c *Controller) assemble(state *story.ProjectState, scene *story.SceneNode) (*assembler.Payload, error) {
	task, err := c.sceneTask(state, scene)
	if err != nil {
		return nil, err
	}
	return c.Assembler.Assemble(state, scene.ID, task)
}

// generateCandidates drafts k versions of scene concurrently. Either every
// candidate succeeds or the first error is returned; nothing is written.
func (c *Controller) generateCandidates(ctx context.Context, state *story.ProjectState, scene *story.SceneNode, k int, origin string) ([]story.Version, error) {
	payload, err := c.assemble(state, scene)
	if err != nil {
		return nil, err
	}
	if len(payload.Skipped) > 0 {
		c.logger().Debug("context items skipped", "run", state.RunID, "scene", scene.ID, "skipped", payload.Skipped)
	}
	system, err := c.Prompts.SystemFor(state.Brief)
	if err != nil {
		return nil, err
	}
	req := llm.Request{
		Purpose: llm.PurposeSceneDraft,
		System:  system,
		Prompt:  payload.Text(),
		Options: c.Options,
	}

	out := make([]story.Version, k)
	g, gctx := errgroup.WithContext(llm.WithRun(ctx, state.RunID, scene.ID))
	for i := range k {
		g.Go(func() error {
			resp, err := c.Generator.Generate(gctx, req)
			if err != nil {
				return err
			}
			text := strings.TrimSpace(resp.Text)
			if text == "" {
				return llm.Transient(req.Purpose, fmt.Errorf("%w: empty draft", llm.ErrMalformedOutput))
			}
			out[i] = story.Version{
				Text:   text,
				Origin: origin,
				Cost:   story.Cost{TokensIn: resp.Usage.TokensIn, TokensOut: resp.Usage.TokensOut},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger().Info("candidates drafted", "run", state.RunID, "scene", scene.ID, "count", k,
		"context_tokens", payload.Used, "budget", payload.Budget)
	return out, nil
}
