package assembler

import (
	"fmt"
	"strings"
)

// Tier is a context priority class. Lower tiers are filled first.
type Tier int

const (
	TierTask       Tier = iota // P0: task instructions and scene goal (mandatory)
	TierPrevious               // P1: ending of the previous scene (mandatory)
	TierRules                  // P2: writing rules matched by scene tags
	TierCharacters             // P3: character cards and live world facts
	TierRecent                 // P4: summaries of unarchived scenes
	TierArcs                   // P5: archived arc summaries
)

// String returns the tier's short name.
func (t Tier) String() string {
	switch t {
	case TierTask:
		return "P0 task"
	case TierPrevious:
		return "P1 previous"
	case TierRules:
		return "P2 rules"
	case TierCharacters:
		return "P3 characters"
	case TierRecent:
		return "P4 recent"
	case TierArcs:
		return "P5 arcs"
	default:
		return "unknown"
	}
}

// ParseTier accepts a tier's short name ("rules"), its label ("P2") or its
// String form ("P2 rules").
func ParseTier(name string) (Tier, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t := TierTask; t <= TierArcs; t++ {
		label, short, _ := strings.Cut(strings.ToLower(t.String()), " ")
		if name == label || name == short || name == label+" "+short {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, name)
}

// Mandatory reports whether content in t must fit or the assembly fails.
func (t Tier) Mandatory() bool {
	return t == TierTask || t == TierPrevious
}

func (t Tier) heading() string {
	switch t {
	case TierTask:
		return "## Task"
	case TierPrevious:
		return "## Previous scene (ending)"
	case TierRules:
		return "## Writing rules"
	case TierCharacters:
		return "## Characters and world"
	case TierRecent:
		return "## Recent scenes"
	case TierArcs:
		return "## Story so far"
	default:
		return ""
	}
}

// joiner separates items within a tier.
func (t Tier) joiner() string {
	if t == TierRecent || t == TierArcs {
		return "\n"
	}
	return "\n\n"
}

// renderOrder lists tiers from broadest background to the task itself, so
// the task is the last thing the model reads.
func renderOrder() []Tier {
	return []Tier{TierArcs, TierRecent, TierCharacters, TierRules, TierPrevious, TierTask}
}
