package story

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func intp(i int) *int { return &i }

func doneScene(id int) *SceneNode {
	return &SceneNode{
		ID:       id,
		Title:    "scene",
		Status:   SceneDone,
		Revision: 1,
		Selected: intp(0),
		Summary:  "summary",
		Versions: []Version{{Text: "text"}},
	}
}

func TestStepOrder(t *testing.T) {
	t.Parallel()

	steps := Steps()
	for i := 0; i < len(steps)-1; i++ {
		if got := steps[i].Next(); got != steps[i+1] {
			t.Errorf("%s.Next() = %s, want %s", steps[i], got, steps[i+1])
		}
		if !steps[i].Before(steps[i+1]) {
			t.Errorf("%s should run before %s", steps[i], steps[i+1])
		}
	}
	if StepDone.Next() != StepDone {
		t.Error("done should be its own successor")
	}
	if _, err := ParseStep("polish"); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("ParseStep(polish) error = %v, want ErrUnknownStep", err)
	}
	if s, err := ParseStep("scene_plan"); err != nil || s != StepScenePlan {
		t.Errorf("ParseStep(scene_plan) = %q, %v", s, err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(s *ProjectState)
		wantErr bool
	}{
		{"fresh state", func(s *ProjectState) {}, false},
		{"empty run id", func(s *ProjectState) { s.RunID = "" }, true},
		{"unknown step", func(s *ProjectState) { s.Step = "polish" }, true},
		{"selection while pending", func(s *ProjectState) {
			s.Scenes = []*SceneNode{{ID: 1, Status: ScenePending, Selected: intp(0), Versions: []Version{{}}}}
		}, true},
		{"summary without selection", func(s *ProjectState) {
			s.Scenes = []*SceneNode{{ID: 1, Status: SceneReviewing, Summary: "x", Versions: []Version{{}}}}
		}, true},
		{"selection out of range", func(s *ProjectState) {
			s.Scenes = []*SceneNode{{ID: 1, Status: SceneReviewing, Selected: intp(3), Versions: []Version{{}}}}
		}, true},
		{"duplicate scene ids", func(s *ProjectState) {
			s.Scenes = []*SceneNode{doneScene(1), doneScene(1)}
		}, true},
		{"contiguous arcs", func(s *ProjectState) {
			s.Scenes = []*SceneNode{doneScene(1), doneScene(2), doneScene(3), doneScene(4)}
			s.ArchivedSummaries = []ArcSummary{{Range: Range{1, 2}}, {Range: Range{3, 4}}}
			s.LastArchivedSceneID = 4
		}, false},
		{"gap between arcs", func(s *ProjectState) {
			s.ArchivedSummaries = []ArcSummary{{Range: Range{1, 2}}, {Range: Range{4, 5}}}
			s.LastArchivedSceneID = 5
		}, true},
		{"overlapping arcs", func(s *ProjectState) {
			s.ArchivedSummaries = []ArcSummary{{Range: Range{1, 3}}, {Range: Range{3, 5}}}
			s.LastArchivedSceneID = 5
		}, true},
		{"superseded arcs ignored", func(s *ProjectState) {
			s.ArchivedSummaries = []ArcSummary{{Range: Range{1, 2}}, {Range: Range{3, 5}, Superseded: true}, {Range: Range{3, 4}}}
			s.LastArchivedSceneID = 4
		}, false},
		{"last archived mismatch", func(s *ProjectState) {
			s.ArchivedSummaries = []ArcSummary{{Range: Range{1, 2}}}
			s.LastArchivedSceneID = 3
		}, true},
		{"misattributed fact", func(s *ProjectState) {
			s.Bible.Updates = []BibleUpdate{{SourceSceneID: 2, Facts: []Fact{{Subject: "x", SourceSceneID: 3}}}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New("run_test", Brief{Title: "t"}, time.Unix(0, 0))
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvariant) {
				t.Errorf("error %v should wrap ErrInvariant", err)
			}
		})
	}
}

func TestLiveFactsFiltersStaleRevisions(t *testing.T) {
	t.Parallel()

	s := New("run_test", Brief{}, time.Unix(0, 0))
	s.Scenes = []*SceneNode{doneScene(1), doneScene(2), {ID: 3, Status: ScenePending}}
	s.Scenes[1].Revision = 2
	s.Bible.Updates = []BibleUpdate{
		{SourceSceneID: 1, SceneRevision: 1, Facts: []Fact{{Subject: "Ava", Description: "lost her key", SourceSceneID: 1}}},
		{SourceSceneID: 2, SceneRevision: 1, Facts: []Fact{{Subject: "Ava", Description: "stale", SourceSceneID: 2}}},
		{SourceSceneID: 2, SceneRevision: 2, Facts: []Fact{{Subject: "Ava", Description: "found the key", SourceSceneID: 2}}},
		{SourceSceneID: 3, SceneRevision: 1, Facts: []Fact{{Subject: "Ava", Description: "undone", SourceSceneID: 3}}},
	}

	got := s.LiveFacts(3)
	if len(got) != 2 {
		t.Fatalf("LiveFacts(3) returned %d facts, want 2: %+v", len(got), got)
	}
	if got[1].Description != "found the key" {
		t.Errorf("second fact = %q, want current revision", got[1].Description)
	}
	if n := len(s.LiveFacts(2)); n != 1 {
		t.Errorf("LiveFacts(2) returned %d facts, want 1", n)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	s := New("run_test", Brief{Tags: []string{"noir"}}, time.Unix(0, 0))
	s.Scenes = []*SceneNode{doneScene(1)}
	s.Bible.Updates = []BibleUpdate{{SourceSceneID: 1, Facts: []Fact{{Subject: "a", SourceSceneID: 1}}}}
	s.Artifacts["outline"] = &Artifact{Text: "outline"}

	c := s.Clone()
	c.Scenes[0].Versions[0].Text = "changed"
	*c.Scenes[0].Selected = 5
	c.Bible.Updates[0].Facts[0].Subject = "b"
	c.Artifacts["outline"].Text = "changed"
	c.Brief.Tags[0] = "changed"

	if s.Scenes[0].Versions[0].Text != "text" || *s.Scenes[0].Selected != 0 {
		t.Error("clone shares scene data with original")
	}
	if s.Bible.Updates[0].Facts[0].Subject != "a" {
		t.Error("clone shares bible facts with original")
	}
	if s.Artifact(StepOutline) != "outline" || s.Brief.Tags[0] != "noir" {
		t.Error("clone shares artifacts or brief with original")
	}
}

func TestBibleTextAppendsDatedBlocks(t *testing.T) {
	t.Parallel()

	b := Bible{
		Canonical: "# Bible\n\nAva is a courier.\n",
		Updates: []BibleUpdate{{
			SourceSceneID: 4,
			RecordedAt:    time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
			Facts:         []Fact{{Kind: FactCharacter, Subject: "Ava", Description: "broke her arm", SourceSceneID: 4}},
		}},
	}
	text := b.Text()
	if !strings.HasPrefix(text, "# Bible\n\nAva is a courier.") {
		t.Errorf("canonical text not preserved: %q", text)
	}
	if !strings.Contains(text, "### Scene 4 (2026-03-01 09:30)\n- [character] Ava: broke her arm") {
		t.Errorf("missing dated update block: %q", text)
	}
}

func TestNewRunID(t *testing.T) {
	t.Parallel()

	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Error("run ids should be unique")
	}
	if !strings.HasPrefix(a, "run_") || len(a) != len("run_")+12 {
		t.Errorf("unexpected run id format %q", a)
	}
}

func TestNormalize_StoredDraftingIsPending(t *testing.T) {
	s := &ProjectState{Scenes: []*SceneNode{
		{ID: 1, Status: SceneDone},
		{ID: 2, Status: SceneDrafting},
		{ID: 3},
	}}
	s.Normalize()
	want := []SceneStatus{SceneDone, ScenePending, ScenePending}
	for i, n := range s.Scenes {
		if n.Status != want[i] {
			t.Errorf("scene %d status = %q, want %q", n.ID, n.Status, want[i])
		}
	}
}
