// Package ui renders pipeline progress and run summaries as ANSI text on
// stderr.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/pipeline"
	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// ANSI color codes.
const (
	reset   = "\033[0m"
	bold    = "\033[1m"
	dim     = "\033[2m"
	blue    = "\033[34m"
	yellow  = "\033[33m"
	green   = "\033[32m"
	red     = "\033[31m"
	cyan    = "\033[36m"
	magenta = "\033[35m"
)

// Printer writes human-readable progress. It implements pipeline.UI.
type Printer struct {
	w io.Writer
}

// New returns a Printer writing to stderr.
func New() *Printer {
	return &Printer{w: os.Stderr}
}

// NewWriter returns a Printer writing to w.
func NewWriter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Banner prints the program banner.
func (p *Printer) Banner() {
	fmt.Fprintln(p.w, bold+cyan+"  ╔═══════════════════════════════════╗"+reset)
	fmt.Fprintln(p.w, bold+cyan+"  ║"+reset+bold+"   NOVEL  "+dim+"scene-by-scene drafting "+reset+bold+cyan+" ║"+reset)
	fmt.Fprintln(p.w, bold+cyan+"  ╚═══════════════════════════════════╝"+reset)
	fmt.Fprintln(p.w)
}

// StepStarted announces the unit of work about to run.
func (p *Printer) StepStarted(runID string, step story.Step, sceneID int) {
	if sceneID > 0 {
		fmt.Fprintf(p.w, blue+bold+"▶ %s"+reset+" scene %d"+dim+" (%s) working..."+reset+"\n", step, sceneID, runID)
		return
	}
	fmt.Fprintf(p.w, blue+bold+"▶ %s"+reset+dim+" (%s) working..."+reset+"\n", step, runID)
}

// StepFinished reports the outcome of a step.
func (p *Printer) StepFinished(res *pipeline.StepResult) {
	switch res.Kind {
	case pipeline.ResultPendingSelection:
		fmt.Fprintf(p.w, yellow+bold+"⏸ scene %d"+reset+" awaiting selection — run "+bold+"novel select"+reset+" to continue\n", res.SceneID)
	case pipeline.ResultComplete:
		fmt.Fprintln(p.w, green+bold+"✓ COMPLETE"+reset+" — every scene is done")
	default:
		if res.SceneID > 0 {
			fmt.Fprintf(p.w, green+"✓ scene %d"+reset+dim+" done"+reset+"\n", res.SceneID)
		} else {
			fmt.Fprintf(p.w, green+"✓ %s"+reset+dim+" done"+reset+"\n", res.Step)
		}
	}
}

// StepFailed reports a failed step. Transient failures are marked retryable.
func (p *Printer) StepFailed(runID string, err error) {
	hint := ""
	if llm.IsTransient(err) {
		hint = dim + " (transient; safe to retry)" + reset
	}
	var se *pipeline.StepError
	if errors.As(err, &se) {
		fmt.Fprintf(p.w, red+bold+"✗ %s failed"+reset+" %s%s\n", se.Step, runID, hint)
		fmt.Fprintf(p.w, "  "+red+"• "+reset+"%v\n", se.Err)
		return
	}
	fmt.Fprintf(p.w, red+bold+"✗ step failed"+reset+" %s: %v%s\n", runID, err, hint)
}

// Consolidated reports scenes folded into an arc summary.
func (p *Printer) Consolidated(_ string, r story.Range) {
	fmt.Fprintf(p.w, magenta+"◆ memory"+reset+" scenes %s archived into an arc summary\n", r)
}

// Info prints a dim informational line.
func (p *Printer) Info(msg string) {
	fmt.Fprintf(p.w, dim+"%s"+reset+"\n", msg)
}

// Error prints an error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.w, red+bold+"error: "+reset+"%s\n", msg)
}

// statusColor picks the color for a scene status.
func statusColor(s story.SceneStatus) string {
	switch s {
	case story.SceneDone:
		return green
	case story.SceneReviewing:
		return yellow
	case story.SceneDrafting:
		return blue
	default:
		return dim
	}
}

// Status prints a run's step, memory and scene table.
func (p *Printer) Status(state *story.ProjectState) {
	title := state.Brief.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(p.w, bold+cyan+"run: %s"+reset+" — %s\n", state.RunID, title)
	fmt.Fprintf(p.w, "step:     %s\n", state.Step)
	var done int
	var cost story.Cost
	for _, n := range state.Scenes {
		if n.Status == story.SceneDone {
			done++
		}
		cost = cost.Add(n.TotalCost())
	}
	fmt.Fprintf(p.w, "scenes:   %d/%d done\n", done, len(state.Scenes))
	fmt.Fprintf(p.w, "memory:   %d arc(s), archived through scene %d, %d bible update(s)\n",
		len(state.ActiveArcs()), state.LastArchivedSceneID, len(state.Bible.Updates))
	fmt.Fprintf(p.w, "tokens:   %d in / %d out\n", cost.TokensIn, cost.TokensOut)
	if len(state.Scenes) == 0 {
		return
	}
	fmt.Fprintln(p.w)
	for _, n := range state.Scenes {
		sel := "-"
		if n.Selected != nil {
			sel = fmt.Sprintf("v%d", *n.Selected)
		}
		fmt.Fprintf(p.w, "  %3d %s%-10s"+reset+" %-4s %2d ver  %s\n",
			n.ID, statusColor(n.Status), n.Status, sel, len(n.Versions), n.Title)
	}
}

// Versions lists a scene's candidate versions with a short preview of each.
func (p *Printer) Versions(scene *story.SceneNode) {
	fmt.Fprintf(p.w, bold+"scene %d: %s"+reset+" "+statusColor(scene.Status)+"(%s)"+reset+"\n",
		scene.ID, scene.Title, scene.Status)
	if len(scene.Versions) == 0 {
		fmt.Fprintln(p.w, dim+"  (no versions)"+reset)
		return
	}
	for i, v := range scene.Versions {
		marker := " "
		if scene.Selected != nil && *scene.Selected == i {
			marker = green + "*" + reset
		}
		origin := v.Origin
		if v.Parent != nil {
			origin = fmt.Sprintf("%s of v%d", origin, *v.Parent)
		}
		fmt.Fprintf(p.w, " %s v%-2d "+dim+"%-14s %5d chars  %d/%d tok"+reset+"\n",
			marker, i, origin, utf8.RuneCountInString(v.Text), v.Cost.TokensIn, v.Cost.TokensOut)
		fmt.Fprintf(p.w, "       %s\n", Preview(v.Text, 72))
	}
}

// RunList prints one line per stored run.
func (p *Printer) RunList(runs []pipeline.RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(p.w, dim+"(no runs)"+reset)
		return
	}
	for _, r := range runs {
		fmt.Fprintf(p.w, "%-18s %-11s %3d/%-3d %s "+dim+"%s"+reset+"\n",
			r.RunID, r.Step, r.ScenesDone, r.Scenes, r.Title, r.UpdatedAt.Format("2006-01-02 15:04"))
	}
}

// Preview returns the first line of text cut to at most n runes.
func Preview(text string, n int) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if utf8.RuneCountInString(line) <= n {
		return line
	}
	r := []rune(line)
	return string(r[:n-1]) + "…"
}
