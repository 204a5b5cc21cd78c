package story

// Validate checks every structural invariant of the state. The store calls it
// before persisting any mutation.
func (s *ProjectState) Validate() error {
	if s.RunID == "" {
		return invariantf("run_id", "empty")
	}
	if !s.Step.Valid() {
		return invariantf("step", "unknown step %q", s.Step)
	}
	if err := validateScenes(s.Scenes); err != nil {
		return err
	}
	if err := s.validateArchive(); err != nil {
		return err
	}
	for i, u := range s.Bible.Updates {
		if u.SourceSceneID <= 0 {
			return invariantf("bible.updates", "update %d has no source scene", i)
		}
		for _, f := range u.Facts {
			if f.SourceSceneID != u.SourceSceneID {
				return invariantf("bible.updates", "fact %q attributed to scene %d inside update for scene %d",
					f.Subject, f.SourceSceneID, u.SourceSceneID)
			}
		}
	}
	return nil
}

func validateScenes(scenes []*SceneNode) error {
	last := 0
	for _, n := range scenes {
		if n.ID <= last {
			return invariantf("scenes", "scene id %d out of order or duplicated", n.ID)
		}
		last = n.ID
		if !n.Status.Valid() {
			return invariantf("scenes", "scene %d has unknown status %q", n.ID, n.Status)
		}
		if n.Selected != nil {
			if n.Status != SceneReviewing && n.Status != SceneDone {
				return invariantf("scenes", "scene %d has a selection while %s", n.ID, n.Status)
			}
			if *n.Selected < 0 || *n.Selected >= len(n.Versions) {
				return invariantf("scenes", "scene %d selects version %d of %d", n.ID, *n.Selected, len(n.Versions))
			}
		}
		if n.Summary != "" && n.Selected == nil {
			return invariantf("scenes", "scene %d has a summary without a selection", n.ID)
		}
		if n.Status == SceneDone && n.Selected == nil {
			return invariantf("scenes", "scene %d is done without a selection", n.ID)
		}
		if n.Status == SceneReviewing && len(n.Versions) == 0 {
			return invariantf("scenes", "scene %d is reviewing without versions", n.ID)
		}
	}
	return nil
}

// validateArchive checks that active arcs are ordered, contiguous, disjoint,
// and end at LastArchivedSceneID.
func (s *ProjectState) validateArchive() error {
	next := 1
	end := 0
	for _, a := range s.ActiveArcs() {
		if a.Range.From > a.Range.To {
			return invariantf("archived_summaries", "empty range %s", a.Range)
		}
		if a.Range.From < next {
			return invariantf("archived_summaries", "range %s overlaps earlier arcs", a.Range)
		}
		if end > 0 && a.Range.From != end+1 {
			return invariantf("archived_summaries", "gap before range %s", a.Range)
		}
		next = a.Range.To + 1
		end = a.Range.To
	}
	if s.LastArchivedSceneID != end {
		return invariantf("last_archived_scene_id", "is %d, archived ranges end at %d", s.LastArchivedSceneID, end)
	}
	return nil
}
