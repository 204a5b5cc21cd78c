package story

import (
	"fmt"
	"strings"
	"time"
)

// Fact kinds recognized by the bible renderer. Unknown kinds are kept as-is.
const (
	FactCharacter    = "character"
	FactWorld        = "world"
	FactRelationship = "relationship"
	FactEvent        = "event"
	FactItem         = "item"
)

// FactKinds returns the recognized fact kinds.
func FactKinds() []string {
	return []string{FactCharacter, FactWorld, FactRelationship, FactEvent, FactItem}
}

// Fact is one typed world-state change extracted from a completed scene.
type Fact struct {
	Kind          string `toml:"kind"`
	Subject       string `toml:"subject"`
	Description   string `toml:"description"`
	SourceSceneID int    `toml:"source_scene_id"`
}

// String renders the fact as a single bullet line.
func (f Fact) String() string {
	if f.Kind == "" {
		return fmt.Sprintf("%s: %s", f.Subject, f.Description)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Kind, f.Subject, f.Description)
}

// BibleUpdate is one append-only block of facts contributed by a scene.
type BibleUpdate struct {
	SourceSceneID int       `toml:"source_scene_id"`
	SceneRevision int       `toml:"scene_revision"`
	RecordedAt    time.Time `toml:"recorded_at"`
	Facts         []Fact    `toml:"facts"`
}

// Bible is the world and character reference for a run. Canonical holds the
// text produced by the bible step; Updates only ever grows.
type Bible struct {
	Canonical string        `toml:"canonical,multiline"`
	Updates   []BibleUpdate `toml:"updates,omitempty"`
}

// Text renders the canonical section followed by every dated update block.
func (b Bible) Text() string {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(b.Canonical, "\n"))
	if len(b.Updates) == 0 {
		return sb.String()
	}
	sb.WriteString("\n\n## Dynamic Updates\n")
	for _, u := range b.Updates {
		fmt.Fprintf(&sb, "\n### Scene %d (%s)\n", u.SourceSceneID, u.RecordedAt.UTC().Format("2006-01-02 15:04"))
		for _, f := range u.Facts {
			sb.WriteString("- " + f.String() + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b Bible) clone() Bible {
	c := Bible{Canonical: b.Canonical}
	if b.Updates != nil {
		c.Updates = make([]BibleUpdate, len(b.Updates))
		for i, u := range b.Updates {
			u.Facts = append([]Fact(nil), u.Facts...)
			c.Updates[i] = u
		}
	}
	return c
}
