package store

import (
	"time"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// Tx is a pending mutation of a run's state. Its methods are the only way
// state changes; the Store validates and persists the result on commit.
type Tx struct {
	state *story.ProjectState
	now   time.Time
}

// State returns the working copy. Reads see earlier writes in the same Tx.
func (t *Tx) State() *story.ProjectState { return t.state }

// Now returns the timestamp applied to this transaction's changes.
func (t *Tx) Now() time.Time { return t.now }

// SetStep moves the run to step.
func (t *Tx) SetStep(step story.Step) error {
	if !step.Valid() {
		return &story.InvariantError{Field: "step", Detail: "unknown step " + string(step)}
	}
	t.state.Step = step
	return nil
}

// SetArtifact records the output of a global step. A different previous text
// is pushed onto the artifact's history.
func (t *Tx) SetArtifact(step story.Step, text string) {
	key := string(step)
	a, ok := t.state.Artifacts[key]
	if !ok || a == nil {
		a = &story.Artifact{}
		t.state.Artifacts[key] = a
	}
	if a.Text != "" && a.Text != text {
		a.History = append(a.History, a.Text)
	}
	a.Text = text
	a.UpdatedAt = t.now
}

// SetCanonicalBible replaces the canonical bible section. Dynamic updates are
// kept.
func (t *Tx) SetCanonicalBible(text string) {
	t.state.Bible.Canonical = text
}

// ScenePlan describes one scene produced by the planning step.
type ScenePlan struct {
	Title      string
	Goal       string
	Characters []string
	Tags       []string
}

// PlanScenes merges a new scene plan into the outline by position: plan entry
// i becomes scene id i+1. Existing scenes keep their versions, status and
// summaries; scenes beyond the new plan are moved to RetiredScenes. It
// returns the ids that were retired.
func (t *Tx) PlanScenes(plans []ScenePlan) []int {
	existing := make(map[int]*story.SceneNode, len(t.state.Scenes))
	for _, n := range t.state.Scenes {
		existing[n.ID] = n
	}

	scenes := make([]*story.SceneNode, 0, len(plans))
	for i, p := range plans {
		id := i + 1
		n, ok := existing[id]
		if !ok {
			n = &story.SceneNode{ID: id, Status: story.ScenePending}
		}
		delete(existing, id)
		n.Title = p.Title
		n.Goal = p.Goal
		n.Characters = append([]string(nil), p.Characters...)
		n.Tags = append([]string(nil), p.Tags...)
		scenes = append(scenes, n)
	}

	var retired []int
	for _, n := range t.state.Scenes {
		if _, ok := existing[n.ID]; ok {
			t.state.RetiredScenes = append(t.state.RetiredScenes, n)
			retired = append(retired, n.ID)
		}
	}
	t.state.Scenes = scenes
	return retired
}

// UpdateScene applies patch to scene id.
func (t *Tx) UpdateScene(id int, patch func(n *story.SceneNode)) error {
	n, err := t.state.Scene(id)
	if err != nil {
		return err
	}
	patch(n)
	return nil
}

// AppendVersions adds candidate versions to scene id and returns the index of
// the first one added.
func (t *Tx) AppendVersions(id int, versions ...story.Version) (int, error) {
	n, err := t.state.Scene(id)
	if err != nil {
		return 0, err
	}
	first := len(n.Versions)
	for _, v := range versions {
		if v.CreatedAt.IsZero() {
			v.CreatedAt = t.now
		}
		n.Versions = append(n.Versions, v)
	}
	return first, nil
}

// AppendArchivedSummary records an arc summary for r and advances
// LastArchivedSceneID to r.To. It returns *story.RangeOverlapError when r
// intersects an active archived range or does not start after the last
// archived scene.
func (t *Tx) AppendArchivedSummary(r story.Range, text string) error {
	overlap := &story.RangeOverlapError{Range: r, LastArchived: t.state.LastArchivedSceneID}
	if r.From > r.To || r.From <= t.state.LastArchivedSceneID {
		return overlap
	}
	for _, a := range t.state.ActiveArcs() {
		if a.Range.Overlaps(r) {
			return overlap
		}
	}
	t.state.ArchivedSummaries = append(t.state.ArchivedSummaries, story.ArcSummary{
		Range:     r,
		Text:      text,
		CreatedAt: t.now,
	})
	t.state.LastArchivedSceneID = r.To
	return nil
}

// SupersedeArcsFrom marks every active arc that reaches scene id or later as
// superseded and rewinds LastArchivedSceneID to the end of the last arc that
// remains. Superseded arcs are retained. It returns the number of arcs
// affected.
func (t *Tx) SupersedeArcsFrom(id int) int {
	count := 0
	last := 0
	for i := range t.state.ArchivedSummaries {
		a := &t.state.ArchivedSummaries[i]
		if a.Superseded {
			continue
		}
		if a.Range.To >= id {
			a.Superseded = true
			count++
			continue
		}
		if a.Range.To > last {
			last = a.Range.To
		}
	}
	t.state.LastArchivedSceneID = last
	return count
}

// PatchBible appends a dated block of facts attributed to sourceSceneID. The
// block records the scene's current revision. Existing bible text is never
// modified. An empty fact list is a no-op.
func (t *Tx) PatchBible(sourceSceneID int, facts []story.Fact) error {
	n, err := t.state.Scene(sourceSceneID)
	if err != nil {
		return err
	}
	if len(facts) == 0 {
		return nil
	}
	block := story.BibleUpdate{
		SourceSceneID: sourceSceneID,
		SceneRevision: n.Revision,
		RecordedAt:    t.now,
		Facts:         make([]story.Fact, len(facts)),
	}
	for i, f := range facts {
		f.SourceSceneID = sourceSceneID
		block.Facts[i] = f
	}
	t.state.Bible.Updates = append(t.state.Bible.Updates, block)
	return nil
}

// ResetScenesFrom returns every scene with id >= from to pending, clearing
// selection and summary but keeping versions. It returns the ids reset.
func (t *Tx) ResetScenesFrom(from int) []int {
	var reset []int
	for _, n := range t.state.Scenes {
		if n.ID < from {
			continue
		}
		if n.Status != story.ScenePending || n.Selected != nil || n.Summary != "" {
			reset = append(reset, n.ID)
		}
		n.Reset()
	}
	return reset
}
