// Package tui provides the interactive version picker used when a scene is
// suspended for review.
package tui

import (
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// ErrCancelled is returned when the user leaves the picker without choosing.
var ErrCancelled = errors.New("selection cancelled")

// ErrNoVersions is returned when the scene has nothing to choose from.
var ErrNoVersions = errors.New("scene has no versions")

// PickVersion runs the picker for scene on the alternate screen and returns
// the chosen version index.
func PickVersion(scene *story.SceneNode, opts ...tea.ProgramOption) (int, error) {
	if len(scene.Versions) == 0 {
		return 0, ErrNoVersions
	}
	allOpts := append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	final, err := tea.NewProgram(NewPicker(scene), allOpts...).Run()
	if err != nil {
		return 0, fmt.Errorf("TUI error: %w", err)
	}
	picker, ok := final.(Picker)
	if !ok {
		return 0, ErrCancelled
	}
	idx, ok := picker.Chosen()
	if !ok {
		return 0, ErrCancelled
	}
	return idx, nil
}

// WithIO directs the picker's input and output, for tests and pipes.
func WithIO(in io.Reader, out io.Writer) []tea.ProgramOption {
	return []tea.ProgramOption{tea.WithInput(in), tea.WithOutput(out)}
}
