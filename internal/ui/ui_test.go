package ui

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/pipeline"
	"github.com/KeLes-Coding/novel-agent/internal/story"
)

func capture(fn func(p *Printer)) string {
	var buf bytes.Buffer
	fn(NewWriter(&buf))
	return buf.String()
}

func assertContains(t *testing.T, output string, substrs ...string) {
	t.Helper()
	for _, s := range substrs {
		if !strings.Contains(output, s) {
			t.Errorf("expected output to contain %q, got:\n%s", s, output)
		}
	}
}

func TestStepStarted(t *testing.T) {
	out := capture(func(p *Printer) { p.StepStarted("run-1", story.StepDrafting, 4) })
	assertContains(t, out, "drafting", "scene 4", "run-1")

	out = capture(func(p *Printer) { p.StepStarted("run-1", story.StepOutline, 0) })
	assertContains(t, out, "outline")
	if strings.Contains(out, "scene") {
		t.Errorf("global step should not mention a scene, got:\n%s", out)
	}
}

func TestStepFinished(t *testing.T) {
	tests := []struct {
		name string
		res  pipeline.StepResult
		want string
	}{
		{"scene", pipeline.StepResult{Kind: pipeline.ResultAdvanced, Step: story.StepDrafting, SceneID: 3}, "scene 3"},
		{"global", pipeline.StepResult{Kind: pipeline.ResultAdvanced, Step: story.StepBible}, "bible"},
		{"pending", pipeline.StepResult{Kind: pipeline.ResultPendingSelection, SceneID: 2}, "novel select"},
		{"complete", pipeline.StepResult{Kind: pipeline.ResultComplete}, "COMPLETE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := capture(func(p *Printer) { p.StepFinished(&tt.res) })
			assertContains(t, out, tt.want)
		})
	}
}

func TestStepFailed(t *testing.T) {
	se := &pipeline.StepError{Step: story.StepDrafting, SceneID: 2, Err: llm.Transient(llm.PurposeSceneDraft, errors.New("rate limited"))}
	out := capture(func(p *Printer) { p.StepFailed("run-1", fmt.Errorf("wrapped: %w", se)) })
	assertContains(t, out, "drafting failed", "rate limited", "safe to retry")

	out = capture(func(p *Printer) { p.StepFailed("run-1", errors.New("disk full")) })
	assertContains(t, out, "step failed", "disk full")
	if strings.Contains(out, "retry") {
		t.Errorf("permanent failure should not suggest retry, got:\n%s", out)
	}
}

func TestConsolidatedAndInfo(t *testing.T) {
	out := capture(func(p *Printer) {
		p.Consolidated("run-1", story.Range{From: 1, To: 5})
		p.Info("loaded 3 rules")
		p.Error("boom")
	})
	assertContains(t, out, "scenes 1-5", "loaded 3 rules", "error: ", "boom")
}

func sampleState() *story.ProjectState {
	st := story.New("run-9", story.Brief{Title: "Harbor Lights"}, time.Now())
	one := 1
	st.Step = story.StepDrafting
	st.Scenes = []*story.SceneNode{
		{ID: 1, Title: "Docks", Status: story.SceneDone, Selected: &one, Versions: []story.Version{
			{Text: "First take.", Origin: story.OriginDraft, Cost: story.Cost{TokensIn: 10, TokensOut: 5}},
			{Text: "Second take, longer.\nWith a second line.", Origin: story.OriginRevise, Parent: new(int), Cost: story.Cost{TokensIn: 7, TokensOut: 3}},
		}},
		{ID: 2, Title: "Storm", Status: story.ScenePending},
	}
	return st
}

func TestStatus(t *testing.T) {
	out := capture(func(p *Printer) { p.Status(sampleState()) })
	assertContains(t, out,
		"run-9", "Harbor Lights",
		"step:     drafting",
		"scenes:   1/2 done",
		"tokens:   17 in / 8 out",
		"Docks", "v1", "Storm",
	)
}

func TestVersions(t *testing.T) {
	st := sampleState()
	out := capture(func(p *Printer) { p.Versions(st.Scenes[0]) })
	assertContains(t, out, "scene 1: Docks", "v0", "v1", "revise of v0", "First take.", "Second take, longer.")
	if strings.Contains(out, "second line") {
		t.Errorf("preview should stop at the first line, got:\n%s", out)
	}

	out = capture(func(p *Printer) { p.Versions(st.Scenes[1]) })
	assertContains(t, out, "no versions")
}

func TestRunList(t *testing.T) {
	out := capture(func(p *Printer) { p.RunList(nil) })
	assertContains(t, out, "no runs")

	out = capture(func(p *Printer) {
		p.RunList([]pipeline.RunInfo{{RunID: "abc", Title: "Harbor", Step: story.StepDone, ScenesDone: 4, Scenes: 4}})
	})
	assertContains(t, out, "abc", "Harbor", "done", "4/4")
}

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"  padded\nsecond", 10, "padded"},
		{"abcdefghij", 5, "abcd…"},
		{"日本語のテキスト", 4, "日本語…"},
	}
	for _, tt := range tests {
		if got := Preview(tt.in, tt.n); got != tt.want {
			t.Errorf("Preview(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
