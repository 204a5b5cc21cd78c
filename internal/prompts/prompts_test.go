package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

func sampleData() Data {
	scene := &story.SceneNode{ID: 3, Title: "The Pier", Goal: "Ava meets the smuggler.", Characters: []string{"Ava", "Rook"}, Summary: "Ava waits."}
	return Data{
		Brief:        story.Brief{Title: "Harbor Lights", Genre: "noir", Tone: "bleak", Tags: []string{"crime"}},
		Ideation:     "A courier who cannot lie.",
		Outline:      "Act I ...",
		BibleExcerpt: "## Ava\nCourier.",
		TargetScenes: 12,
		Scene:        scene,
		Text:         "Fog rolled in.",
		Feedback:     "More tension.",
		From:         1,
		To:           5,
		Summaries:    []*story.SceneNode{scene},
	}
}

func TestDefaultCatalogRendersEveryPrompt(t *testing.T) {
	t.Parallel()
	c := Default()
	data := sampleData()

	tests := []struct {
		name string
		want string
	}{
		{System, `"Harbor Lights", a noir story`},
		{Ideation, "Tags: crime"},
		{Outline, "A courier who cannot lie."},
		{Bible, "# Outline\nAct I ..."},
		{ScenePlan, "about 12 scenes"},
		{SceneTask, "Characters present: Ava, Rook"},
		{Revise, "More tension."},
		{Digest, "# Scene 3: The Pier"},
		{ArcSummary, "- Scene 3: Ava waits."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := c.Render(tt.name, data)
			if err != nil {
				t.Fatalf("Render(%s): %v", tt.name, err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("Render(%s) missing %q:\n%s", tt.name, tt.want, out)
			}
		})
	}
}

func TestRenderUnknown(t *testing.T) {
	t.Parallel()
	if _, err := Default().Render("polish", Data{}); err == nil {
		t.Error("expected error for unknown prompt")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	path := filepath.Join(dir, "prompts.yaml")
	if err := os.WriteFile(path, []byte("outline: |\n  Outline in three acts: {{.Ideation}}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out, err := c.Render(Outline, sampleData())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Outline in three acts: A courier who cannot lie." {
		t.Errorf("override not applied: %q", out)
	}
	if _, err := c.Render(Bible, sampleData()); err != nil {
		t.Errorf("non-overridden prompt should still render: %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("polish: nope\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("expected error for unknown override")
	}
}
