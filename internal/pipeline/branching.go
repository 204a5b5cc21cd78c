package pipeline

import (
	"fmt"
	"unicode/utf8"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// SelectionPolicy decides how a scene's candidate versions are chosen.
type SelectionPolicy string

// Selection policies.
const (
	// SelectManual suspends the run until SelectVersion is called.
	SelectManual SelectionPolicy = "manual"
	// SelectFirst takes the first candidate.
	SelectFirst SelectionPolicy = "first"
	// SelectLongest takes the candidate with the most characters.
	SelectLongest SelectionPolicy = "longest"
)

// ParseSelectionPolicy validates a policy name. The empty string selects
// SelectManual.
func ParseSelectionPolicy(name string) (SelectionPolicy, error) {
	switch p := SelectionPolicy(name); p {
	case "":
		return SelectManual, nil
	case SelectManual, SelectFirst, SelectLongest:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// pick returns the index chosen by an automatic policy. Manual policies
// return false.
func (p SelectionPolicy) pick(versions []story.Version) (int, bool) {
	if len(versions) == 0 {
		return 0, false
	}
	switch p {
	case SelectFirst:
		return 0, true
	case SelectLongest:
		best, bestLen := 0, -1
		for i, v := range versions {
			if n := utf8.RuneCountInString(v.Text); n > bestLen {
				best, bestLen = i, n
			}
		}
		return best, true
	default:
		return 0, false
	}
}

// Branching configures multi-candidate drafting.
type Branching struct {
	Enabled    bool
	Candidates int // per-scene default when enabled; SceneNode.Candidates overrides it
	Selection  SelectionPolicy
}

// candidatesFor returns how many versions to draft for scene.
func (b Branching) candidatesFor(scene *story.SceneNode) int {
	if !b.Enabled {
		return 1
	}
	if scene.Candidates > 0 {
		return scene.Candidates
	}
	return max(b.Candidates, 1)
}

// autoPick chooses among freshly drafted versions. A single candidate, or
// branching being off, always selects without review.
func (b Branching) autoPick(versions []story.Version) (int, bool) {
	if !b.Enabled || len(versions) == 1 {
		return 0, true
	}
	return b.Selection.pick(versions)
}
