package tui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// Default dimensions used until the first tea.WindowSizeMsg arrives.
const (
	defaultWidth  = 80
	defaultHeight = 24
	minPreview    = 3
)

// Picker is a Bubble Tea model listing a scene's versions with a scrollable
// preview of the highlighted one. Enter chooses; q or esc cancels.
type Picker struct {
	scene   *story.SceneNode
	keys    KeyMap
	cursor  int
	chosen  int
	done    bool
	width   int
	height  int
	preview viewport.Model
}

// NewPicker creates a picker for scene. The cursor starts on the current
// selection when there is one.
func NewPicker(scene *story.SceneNode) Picker {
	p := Picker{
		scene:   scene,
		keys:    DefaultKeyMap(),
		chosen:  -1,
		width:   defaultWidth,
		height:  defaultHeight,
		preview: viewport.New(defaultWidth-4, minPreview),
	}
	if scene.Selected != nil && *scene.Selected < len(scene.Versions) {
		p.cursor = *scene.Selected
	}
	p.layout()
	return p
}

// Init implements tea.Model.
func (p Picker) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
		p.layout()
		return p, nil
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, p.keys.Quit):
			p.done = true
			return p, tea.Quit
		case key.Matches(msg, p.keys.Select):
			if len(p.scene.Versions) > 0 {
				p.chosen = p.cursor
			}
			p.done = true
			return p, tea.Quit
		case key.Matches(msg, p.keys.Up):
			if p.cursor > 0 {
				p.cursor--
				p.refresh()
			}
		case key.Matches(msg, p.keys.Down):
			if p.cursor < len(p.scene.Versions)-1 {
				p.cursor++
				p.refresh()
			}
		case key.Matches(msg, p.keys.PageUp):
			p.preview.HalfPageUp()
		case key.Matches(msg, p.keys.PageDown):
			p.preview.HalfPageDown()
		}
	}
	return p, nil
}

// Chosen returns the selected version index. ok is false when the picker was
// cancelled or has not finished.
func (p Picker) Chosen() (index int, ok bool) {
	return p.chosen, p.chosen >= 0
}

// Cursor returns the highlighted version index.
func (p Picker) Cursor() int { return p.cursor }

// layout sizes the preview to the space left below the version list.
func (p *Picker) layout() {
	// header (2) + blank + list + blank + preview border (2) + footer
	used := 2 + 1 + len(p.scene.Versions) + 1 + 2 + 1
	if p.scene.Goal != "" {
		used++
	}
	p.preview.Width = max(p.width-4, 10)
	p.preview.Height = max(p.height-used, minPreview)
	p.refresh()
}

// refresh loads the highlighted version into the preview.
func (p *Picker) refresh() {
	if len(p.scene.Versions) == 0 {
		p.preview.SetContent("")
		return
	}
	text := p.scene.Versions[p.cursor].Text
	p.preview.SetContent(lipgloss.NewStyle().Width(p.preview.Width).Render(text))
	p.preview.GotoTop()
}

// View implements tea.Model.
func (p Picker) View() string {
	if p.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(styleHeader.Render(fmt.Sprintf("Scene %d: %s", p.scene.ID, p.scene.Title)))
	b.WriteString("\n")
	b.WriteString(styleMeta.Render(fmt.Sprintf("%d version(s) · %s", len(p.scene.Versions), p.scene.Status)))
	b.WriteString("\n")
	if p.scene.Goal != "" {
		b.WriteString(styleGoal.Render(p.scene.Goal))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(p.scene.Versions) == 0 {
		b.WriteString(styleMeta.Render("  No versions to choose from."))
		b.WriteString("\n")
	}
	for i, v := range p.scene.Versions {
		b.WriteString(p.row(i, v))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(stylePreview.Render(p.preview.View()))
	b.WriteString("\n")
	b.WriteString(p.footer())
	return b.String()
}

func (p Picker) row(i int, v story.Version) string {
	indicator := " "
	style := styleRow
	if i == p.cursor {
		indicator = styleIndicator.Render(selectionIndicator)
		style = styleRowActive
	}
	label := fmt.Sprintf("v%d %-8s", i, v.Origin)
	if v.Parent != nil {
		label = fmt.Sprintf("v%d %s of v%d", i, v.Origin, *v.Parent)
	}
	meta := styleMeta.Render(fmt.Sprintf("%d chars", utf8.RuneCountInString(v.Text)))
	line := indicator + " " + style.Render(label) + "  " + meta
	if p.scene.Selected != nil && *p.scene.Selected == i {
		line += " " + styleChosen.Render("✓ selected")
	}
	return line
}

func (p Picker) footer() string {
	var parts []string
	for _, b := range p.keys.bindings() {
		h := b.Help()
		parts = append(parts, styleFooterKey.Render(h.Key)+":"+h.Desc)
	}
	return styleFooter.Width(p.width).Render(strings.Join(parts, "  "))
}
