package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/prompts"
	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// Digest is what one summary call extracts from a finished scene.
type Digest struct {
	Summary string
	Facts   []story.Fact
	Usage   llm.Usage
}

type digestJSON struct {
	Summary string `json:"summary"`
	Facts   []struct {
		Kind        string `json:"kind"`
		Subject     string `json:"subject"`
		Description string `json:"description"`
	} `json:"facts"`
}

// Digest summarizes the selected version of a scene and extracts the lasting
// facts it introduces, in a single generation call. It does not modify state.
func (c *Consolidator) Digest(ctx context.Context, state *story.ProjectState, sceneID int) (Digest, error) {
	scene, err := state.Scene(sceneID)
	if err != nil {
		return Digest{}, err
	}
	text := scene.SelectedText()
	if text == "" {
		return Digest{}, &story.InvariantError{Field: "selected", Detail: fmt.Sprintf("scene %d has no selected version", sceneID)}
	}

	system, err := c.Prompts.SystemFor(state.Brief)
	if err != nil {
		return Digest{}, err
	}
	prompt, err := c.Prompts.Render(prompts.Digest, prompts.Data{
		Brief: state.Brief,
		Scene: scene,
		Text:  text,
	})
	if err != nil {
		return Digest{}, err
	}
	opts := c.Options
	opts.JSON = true
	resp, err := c.Generator.Generate(llm.WithRun(ctx, state.RunID, sceneID), llm.Request{
		Purpose: llm.PurposeDigest,
		System:  system,
		Prompt:  prompt,
		Options: opts,
	})
	if err != nil {
		return Digest{}, err
	}

	d, err := parseDigest(resp.Text)
	if err != nil {
		return Digest{}, llm.Transient(llm.PurposeDigest, err)
	}
	d.Usage = resp.Usage
	return d, nil
}

func parseDigest(text string) (Digest, error) {
	var raw digestJSON
	if err := llm.DecodeJSON(text, &raw); err != nil {
		return Digest{}, err
	}
	d := Digest{Summary: strings.TrimSpace(raw.Summary)}
	if d.Summary == "" {
		return Digest{}, fmt.Errorf("%w: digest has no summary", llm.ErrMalformedOutput)
	}
	for _, f := range raw.Facts {
		subject := strings.TrimSpace(f.Subject)
		desc := strings.TrimSpace(f.Description)
		if subject == "" || desc == "" {
			continue
		}
		d.Facts = append(d.Facts, story.Fact{
			Kind:        normalizeKind(f.Kind),
			Subject:     subject,
			Description: desc,
		})
	}
	return d, nil
}

// normalizeKind maps model-supplied kinds onto the known set. Anything else is
// recorded as an event.
func normalizeKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	for _, known := range story.FactKinds() {
		if k == known {
			return k
		}
	}
	return story.FactEvent
}

// ApplyDigest completes a scene inside tx: it stores the summary, marks the
// scene done, bumps its revision and appends the digest's facts to the bible
// tagged with the scene id and new revision.
func ApplyDigest(tx *store.Tx, sceneID int, d Digest) error {
	if err := tx.UpdateScene(sceneID, func(n *story.SceneNode) {
		n.Summary = d.Summary
		n.Status = story.SceneDone
		n.Revision++
	}); err != nil {
		return err
	}
	return tx.PatchBible(sceneID, d.Facts)
}
