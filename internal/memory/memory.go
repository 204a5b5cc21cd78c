// Package memory keeps the story's long-term memory bounded. Completed scenes
// are digested into a summary plus bible facts, and once enough summaries
// accumulate the oldest span is condensed into a single arc summary.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/prompts"
	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/story"
	"github.com/KeLes-Coding/novel-agent/internal/telemetry"
)

// Defaults for the consolidation window.
const (
	DefaultThreshold = 10
	DefaultWindow    = 5
)

// Consolidator digests finished scenes and folds old summaries into arcs.
type Consolidator struct {
	Generator llm.Generator
	Prompts   *prompts.Catalog
	Options   llm.Options

	// Threshold is the number of unarchived done scenes that triggers a
	// consolidation. Window is how many of them stay as individual summaries,
	// so each consolidation covers Threshold-Window scenes. Zero values
	// select the defaults.
	Threshold int
	Window    int

	Logger  *slog.Logger
	Emitter *telemetry.Emitter
}

func (c *Consolidator) limits() (threshold, span int) {
	threshold, window := c.Threshold, c.Window
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return threshold, max(threshold-window, 1)
}

func (c *Consolidator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Due reports the span that should be consolidated next, if any. Only the
// unbroken run of done scenes after the last archived scene counts.
func (c *Consolidator) Due(state *story.ProjectState) (story.Range, bool) {
	threshold, span := c.limits()
	last := state.LastArchivedSceneID

	var batch []*story.SceneNode
	latest := 0
	for _, n := range state.Scenes {
		if n.ID <= last {
			continue
		}
		if n.Status != story.SceneDone {
			break
		}
		latest = n.ID
		if len(batch) < span {
			batch = append(batch, n)
		}
	}
	if len(batch) == 0 || latest-last < threshold {
		return story.Range{}, false
	}
	return story.Range{From: batch[0].ID, To: batch[len(batch)-1].ID}, true
}

// Consolidate folds every due span of the run into arc summaries, oldest
// first, and returns the ranges archived. Generation happens outside the
// store transaction; a failure leaves the state as it was after the last
// committed arc.
func (c *Consolidator) Consolidate(ctx context.Context, st *store.Store) ([]story.Range, error) {
	var done []story.Range
	for {
		state := st.State()
		r, ok := c.Due(state)
		if !ok {
			return done, nil
		}
		text, usage, err := c.summarizeArc(ctx, state, r)
		if err != nil {
			return done, fmt.Errorf("consolidating scenes %s: %w", r, err)
		}
		if err := st.Tx(ctx, func(tx *store.Tx) error {
			return tx.AppendArchivedSummary(r, text)
		}); err != nil {
			return done, fmt.Errorf("archiving scenes %s: %w", r, err)
		}
		done = append(done, r)

		c.logger().Info("memory consolidated", "run", st.RunID(), "range", r.String(),
			"arcs", len(state.ActiveArcs())+1)
		if err := c.Emitter.Emit(telemetry.Event{
			Kind:  telemetry.KindConsolidation,
			RunID: st.RunID(),
			Data: map[string]any{
				"from":       r.From,
				"to":         r.To,
				"chars":      len(text),
				"tokens_in":  usage.TokensIn,
				"tokens_out": usage.TokensOut,
			},
		}); err != nil {
			c.logger().Warn("telemetry emit failed", "kind", telemetry.KindConsolidation, "error", err)
		}
	}
}

func (c *Consolidator) summarizeArc(ctx context.Context, state *story.ProjectState, r story.Range) (string, llm.Usage, error) {
	var scenes []*story.SceneNode
	for _, n := range state.Scenes {
		if !r.Contains(n.ID) {
			continue
		}
		if n.Summary == "" {
			c.logger().Warn("done scene has no summary", "run", state.RunID, "scene", n.ID)
			continue
		}
		scenes = append(scenes, n)
	}
	if len(scenes) == 0 {
		return "", llm.Usage{}, fmt.Errorf("no summaries in scenes %s", r)
	}

	system, err := c.Prompts.SystemFor(state.Brief)
	if err != nil {
		return "", llm.Usage{}, err
	}
	prompt, err := c.Prompts.Render(prompts.ArcSummary, prompts.Data{
		Brief:     state.Brief,
		From:      r.From,
		To:        r.To,
		Summaries: scenes,
	})
	if err != nil {
		return "", llm.Usage{}, err
	}
	resp, err := c.Generator.Generate(llm.WithRun(ctx, state.RunID, r.To), llm.Request{
		Purpose: llm.PurposeArcSummary,
		System:  system,
		Prompt:  prompt,
		Options: c.Options,
	})
	if err != nil {
		return "", llm.Usage{}, err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", resp.Usage, llm.Transient(llm.PurposeArcSummary, fmt.Errorf("%w: empty arc summary", llm.ErrMalformedOutput))
	}
	return text, resp.Usage, nil
}
