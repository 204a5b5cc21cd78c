package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/store"
)

type planEntry struct {
	Title      string   `json:"title"`
	Goal       string   `json:"goal"`
	Characters []string `json:"characters"`
	Tags       []string `json:"tags"`
}

// parseScenePlan decodes the planner's JSON array. It returns the plans and
// the normalized JSON stored as the step's artifact. Malformed output is
// transient so a retry policy may ask again.
func parseScenePlan(text string) ([]store.ScenePlan, string, error) {
	var entries []planEntry
	if err := llm.DecodeJSON(text, &entries); err != nil {
		return nil, "", llm.Transient(llm.PurposeScenePlan, err)
	}
	if len(entries) == 0 {
		return nil, "", llm.Transient(llm.PurposeScenePlan, fmt.Errorf("%w: %w", llm.ErrMalformedOutput, ErrEmptyPlan))
	}

	plans := make([]store.ScenePlan, len(entries))
	for i, e := range entries {
		title := strings.TrimSpace(e.Title)
		if title == "" {
			title = fmt.Sprintf("Scene %d", i+1)
		}
		entries[i].Title = title
		plans[i] = store.ScenePlan{
			Title:      title,
			Goal:       strings.TrimSpace(e.Goal),
			Characters: compact(e.Characters),
			Tags:       compact(e.Tags),
		}
	}

	normalized, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return plans, string(normalized), nil
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
