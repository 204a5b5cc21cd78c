package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/KeLes-Coding/novel-agent/internal/assembler"
	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// Context assembles the payload that drafting sceneID would send, without
// generating or changing anything. A sceneID of 0 previews the next open
// scene.
func (c *Controller) Context(ctx context.Context, runID string, sceneID int) (*assembler.Payload, error) {
	state, err := c.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	var scene *story.SceneNode
	if sceneID == 0 {
		if scene = state.NextOpenScene(); scene == nil {
			return nil, fmt.Errorf("run %s has no open scene", runID)
		}
	} else if scene, err = state.Scene(sceneID); err != nil {
		return nil, err
	}
	return c.assemble(state, scene)
}

// ExportStats reports what Export wrote.
type ExportStats struct {
	Scenes  int // scenes with a selected version
	Missing int // scenes skipped because nothing is selected yet
	Cost    story.Cost
}

// Export writes the manuscript of a run as markdown: the title followed by
// the selected version of every scene in narrative order.
func (c *Controller) Export(ctx context.Context, runID string, w io.Writer) (ExportStats, error) {
	state, err := c.Load(ctx, runID)
	if err != nil {
		return ExportStats{}, err
	}
	return WriteManuscript(w, state)
}

// WriteManuscript renders state's selected scene versions as markdown.
func WriteManuscript(w io.Writer, state *story.ProjectState) (ExportStats, error) {
	var stats ExportStats
	var sb strings.Builder
	title := state.Brief.Title
	if title == "" {
		title = state.RunID
	}
	fmt.Fprintf(&sb, "# %s\n", title)
	for _, n := range state.Scenes {
		stats.Cost = stats.Cost.Add(n.TotalCost())
		v, ok := n.SelectedVersion()
		if !ok {
			stats.Missing++
			continue
		}
		stats.Scenes++
		fmt.Fprintf(&sb, "\n## %d. %s\n\n%s\n", n.ID, n.Title, strings.TrimSpace(v.Text))
	}
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return stats, fmt.Errorf("writing manuscript: %w", err)
	}
	return stats, nil
}
