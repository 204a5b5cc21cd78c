package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeRule(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAndSelect(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeRule(t, dir, "style.md", "+++\nalways = true\npriority = 1\n+++\nShow, don't tell.\n")
	writeRule(t, dir, "combat.md", "+++\nid = \"combat\"\ntags = [\"Combat\", \"action\"]\npriority = 5\n+++\nKeep blows short.\n")
	writeRule(t, dir, "romance.md", "+++\ntags = [\"romance\"]\n+++\nLet silence carry weight.\n")
	writeRule(t, dir, "notes.txt", "ignored")

	book, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(book.Rules) != 3 {
		t.Fatalf("loaded %d rules, want 3", len(book.Rules))
	}

	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"no tags gets always-on only", nil, []string{"style"}},
		{"case-insensitive tag match", []string{"combat"}, []string{"style", "combat"}},
		{"priority orders results", []string{"romance", "action"}, []string{"romance", "style", "combat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := book.Select(tt.tags)
			if len(got) != len(tt.want) {
				t.Fatalf("Select(%v) = %d rules, want %v", tt.tags, len(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("Select(%v)[%d] = %q, want %q", tt.tags, i, got[i].ID, id)
				}
			}
		})
	}
	if book.Rules[0].Body == "" {
		t.Error("rule body should be kept")
	}
}

func TestLoad_MissingDirIsEmpty(t *testing.T) {
	t.Parallel()
	book, err := Load(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(book.Select([]string{"x"})) != 0 {
		t.Error("expected no rules")
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	t.Run("no frontmatter", func(t *testing.T) {
		dir := t.TempDir()
		writeRule(t, dir, "bad.md", "Just prose.")
		if _, err := Load(dir); !errors.Is(err, ErrNoFrontmatter) {
			t.Errorf("expected ErrNoFrontmatter, got %v", err)
		}
	})
	t.Run("duplicate id", func(t *testing.T) {
		dir := t.TempDir()
		writeRule(t, dir, "a.md", "+++\nid = \"x\"\n+++\na")
		writeRule(t, dir, "b.md", "+++\nid = \"x\"\n+++\nb")
		if _, err := Load(dir); err == nil {
			t.Error("expected duplicate id error")
		}
	})
}
