package story

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current persisted layout version. Older layouts load
// unchanged because every field added since defaults to its zero value.
const SchemaVersion = 1

// Brief is the user-supplied seed for a run.
type Brief struct {
	Title        string   `toml:"title"`
	Genre        string   `toml:"genre,omitempty"`
	Premise      string   `toml:"premise,omitempty,multiline"`
	Tone         string   `toml:"tone,omitempty"`
	POV          string   `toml:"pov,omitempty"`
	Tags         []string `toml:"tags,omitempty"`
	TargetScenes int      `toml:"target_scenes,omitempty"`
}

// Artifact is the output of a global step. Regenerating it pushes the
// previous text onto History.
type Artifact struct {
	Text      string    `toml:"text,multiline"`
	History   []string  `toml:"history,omitempty,multiline"`
	UpdatedAt time.Time `toml:"updated_at"`
}

// Range is an inclusive span of scene ids.
type Range struct {
	From int `toml:"from" json:"from"`
	To   int `toml:"to" json:"to"`
}

// String renders the range as "from-to".
func (r Range) String() string { return fmt.Sprintf("%d-%d", r.From, r.To) }

// Contains reports whether id falls within r.
func (r Range) Contains(id int) bool { return id >= r.From && id <= r.To }

// Overlaps reports whether r and o share any scene id.
func (r Range) Overlaps(o Range) bool { return r.From <= o.To && o.From <= r.To }

// ArcSummary condenses a contiguous span of completed scenes. Superseded arcs
// were invalidated by a rollback; they are kept for history but ignored by
// readers.
type ArcSummary struct {
	Range      Range     `toml:"range"`
	Text       string    `toml:"text,multiline"`
	CreatedAt  time.Time `toml:"created_at"`
	Superseded bool      `toml:"superseded,omitempty"`
}

// ProjectState is the complete persisted state of one run.
type ProjectState struct {
	Version             int                  `toml:"version"`
	Revision            int                  `toml:"revision"` // bumped by every committed save
	RunID               string               `toml:"run_id"`
	Step                Step                 `toml:"step"`
	CreatedAt           time.Time            `toml:"created_at"`
	UpdatedAt           time.Time            `toml:"updated_at"`
	Brief               Brief                `toml:"brief"`
	Artifacts           map[string]*Artifact `toml:"artifacts,omitempty"`
	Bible               Bible                `toml:"bible"`
	LastArchivedSceneID int                  `toml:"last_archived_scene_id"`
	ArchivedSummaries   []ArcSummary         `toml:"archived_summaries,omitempty"`
	Scenes              []*SceneNode         `toml:"scenes,omitempty"`
	RetiredScenes       []*SceneNode         `toml:"retired_scenes,omitempty"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// New creates the initial state for a run.
func New(runID string, brief Brief, now time.Time) *ProjectState {
	return &ProjectState{
		Version:   SchemaVersion,
		RunID:     runID,
		Step:      StepIdeation,
		CreatedAt: now,
		UpdatedAt: now,
		Brief:     brief,
		Artifacts: make(map[string]*Artifact),
	}
}

// Normalize fills defaults for fields missing from older or hand-edited
// state files.
func (s *ProjectState) Normalize() {
	if s.Version == 0 {
		s.Version = SchemaVersion
	}
	if s.Step == "" {
		s.Step = StepIdeation
	}
	if s.Artifacts == nil {
		s.Artifacts = make(map[string]*Artifact)
	}
	for _, n := range s.Scenes {
		if n.Status == "" || n.Status == SceneDrafting {
			n.Status = ScenePending
		}
	}
}

// Artifact returns the artifact text for a global step, or "".
func (s *ProjectState) Artifact(step Step) string {
	if a, ok := s.Artifacts[string(step)]; ok && a != nil {
		return a.Text
	}
	return ""
}

// Scene returns the scene with the given id.
func (s *ProjectState) Scene(id int) (*SceneNode, error) {
	for _, n := range s.Scenes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, &UnknownSceneError{SceneID: id}
}

// PreviousScene returns the scene immediately before id in narrative order,
// or nil when id is first.
func (s *ProjectState) PreviousScene(id int) *SceneNode {
	var prev *SceneNode
	for _, n := range s.Scenes {
		if n.ID == id {
			return prev
		}
		prev = n
	}
	return nil
}

// NextOpenScene returns the first scene in narrative order that is not done.
func (s *ProjectState) NextOpenScene() *SceneNode {
	for _, n := range s.Scenes {
		if n.Status != SceneDone {
			return n
		}
	}
	return nil
}

// AllDone reports whether every scene is done. An empty plan is never done.
func (s *ProjectState) AllDone() bool {
	return len(s.Scenes) > 0 && s.NextOpenScene() == nil
}

// ActiveArcs returns the archived summaries not invalidated by rollback, in
// narrative order.
func (s *ProjectState) ActiveArcs() []ArcSummary {
	var out []ArcSummary
	for _, a := range s.ArchivedSummaries {
		if !a.Superseded {
			out = append(out, a)
		}
	}
	return out
}

// LiveFacts returns bible facts recorded by scenes before target whose source
// scene is still done at the revision that produced them. Facts from scenes
// undone by a rollback are excluded.
func (s *ProjectState) LiveFacts(target int) []Fact {
	rev := make(map[int]int, len(s.Scenes))
	for _, n := range s.Scenes {
		if n.Status == SceneDone {
			rev[n.ID] = n.Revision
		}
	}
	var out []Fact
	for _, u := range s.Bible.Updates {
		if u.SourceSceneID >= target {
			continue
		}
		if r, ok := rev[u.SourceSceneID]; !ok || r != u.SceneRevision {
			continue
		}
		out = append(out, u.Facts...)
	}
	return out
}

// Clone returns a deep copy of s.
func (s *ProjectState) Clone() *ProjectState {
	c := *s
	c.Brief.Tags = append([]string(nil), s.Brief.Tags...)
	c.Artifacts = make(map[string]*Artifact, len(s.Artifacts))
	for k, a := range s.Artifacts {
		if a == nil {
			continue
		}
		ac := *a
		ac.History = append([]string(nil), a.History...)
		c.Artifacts[k] = &ac
	}
	c.Bible = s.Bible.clone()
	c.ArchivedSummaries = append([]ArcSummary(nil), s.ArchivedSummaries...)
	c.Scenes = cloneScenes(s.Scenes)
	c.RetiredScenes = cloneScenes(s.RetiredScenes)
	return &c
}

func cloneScenes(in []*SceneNode) []*SceneNode {
	if in == nil {
		return nil
	}
	out := make([]*SceneNode, len(in))
	for i, n := range in {
		out[i] = n.clone()
	}
	return out
}
