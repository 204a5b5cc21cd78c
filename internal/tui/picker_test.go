package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

func testScene() *story.SceneNode {
	return &story.SceneNode{
		ID:     3,
		Title:  "The Lighthouse",
		Goal:   "Ava reaches the lamp room",
		Status: story.SceneReviewing,
		Versions: []story.Version{
			{Text: "Ava climbed.", Origin: story.OriginDraft},
			{Text: "Ava climbed the spiral stairs slowly.", Origin: story.OriginDraft},
			{Text: "She ran.", Origin: story.OriginRevise, Parent: new(int)},
		},
	}
}

func press(t *testing.T, m tea.Model, msgs ...tea.Msg) Picker {
	t.Helper()
	for _, msg := range msgs {
		m, _ = m.Update(msg)
	}
	p, ok := m.(Picker)
	if !ok {
		t.Fatalf("Update returned %T, want Picker", m)
	}
	return p
}

func runeKey(r rune) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}} }

func TestPickerNavigation(t *testing.T) {
	t.Parallel()

	t.Run("down and up clamp at the ends", func(t *testing.T) {
		t.Parallel()
		p := press(t, NewPicker(testScene()),
			tea.KeyMsg{Type: tea.KeyDown}, runeKey('j'), runeKey('j'), runeKey('j'))
		if p.Cursor() != 2 {
			t.Errorf("cursor = %d, want 2", p.Cursor())
		}
		p = press(t, p, tea.KeyMsg{Type: tea.KeyUp}, runeKey('k'), runeKey('k'))
		if p.Cursor() != 0 {
			t.Errorf("cursor = %d, want 0", p.Cursor())
		}
	})

	t.Run("starts on the current selection", func(t *testing.T) {
		t.Parallel()
		scene := testScene()
		one := 1
		scene.Selected = &one
		p := NewPicker(scene)
		if p.Cursor() != 1 {
			t.Errorf("cursor = %d, want 1", p.Cursor())
		}
		if !strings.Contains(p.View(), "selected") {
			t.Errorf("view should mark the current selection:\n%s", p.View())
		}
	})
}

func TestPickerSelect(t *testing.T) {
	t.Parallel()
	m := NewPicker(testScene())
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	p := next.(Picker)

	idx, ok := p.Chosen()
	if !ok || idx != 1 {
		t.Errorf("Chosen() = (%d, %v), want (1, true)", idx, ok)
	}
	if cmd == nil {
		t.Fatal("enter should return a quit command")
	}
	if _, isQuit := cmd().(tea.QuitMsg); !isQuit {
		t.Error("enter should quit the program")
	}
}

func TestPickerCancel(t *testing.T) {
	t.Parallel()
	for _, msg := range []tea.KeyMsg{runeKey('q'), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		p := press(t, NewPicker(testScene()), tea.KeyMsg{Type: tea.KeyDown}, msg)
		if _, ok := p.Chosen(); ok {
			t.Errorf("%s should cancel without choosing", msg)
		}
		if p.View() != "" {
			t.Errorf("%s: finished picker should render nothing", msg)
		}
	}
}

func TestPickerView(t *testing.T) {
	t.Parallel()
	p := press(t, NewPicker(testScene()),
		tea.WindowSizeMsg{Width: 100, Height: 30}, tea.KeyMsg{Type: tea.KeyDown})
	view := p.View()
	for _, want := range []string{
		"Scene 3: The Lighthouse",
		"Ava reaches the lamp room",
		"3 version(s)",
		"v0", "v1", "v2",
		"revise of v0",
		"spiral stairs",
		"enter",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestPickVersion(t *testing.T) {
	t.Parallel()

	t.Run("no versions", func(t *testing.T) {
		t.Parallel()
		_, err := PickVersion(&story.SceneNode{ID: 1})
		if !errors.Is(err, ErrNoVersions) {
			t.Errorf("err = %v, want ErrNoVersions", err)
		}
	})

	t.Run("keyboard input", func(t *testing.T) {
		t.Parallel()
		var out bytes.Buffer
		idx, err := PickVersion(testScene(), WithIO(strings.NewReader("jj\r"), &out)...)
		if err != nil {
			t.Fatalf("PickVersion: %v", err)
		}
		if idx != 2 {
			t.Errorf("idx = %d, want 2", idx)
		}
	})
}
