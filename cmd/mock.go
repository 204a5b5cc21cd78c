package cmd

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
)

var (
	reTargetScenes = regexp.MustCompile(`about (\d+) scenes`)
	reSceneHeading = regexp.MustCompile(`(?m)^# Scene (\d+): (.*)$`)
	reSceneTask    = regexp.MustCompile(`Write scene (\d+) of "[^"]*": ([^\n]*)\.`)
)

// mockGenerator returns an offline generator producing placeholder text for
// every purpose. It exercises the whole pipeline without a model.
func mockGenerator() *llm.Scripted {
	return &llm.Scripted{Fallback: mockRespond}
}

func mockRespond(req llm.Request) (string, error) {
	switch req.Purpose {
	case llm.PurposeIdeation:
		return "## Concept\nA placeholder concept generated offline.", nil
	case llm.PurposeOutline:
		return "## Act I\n- The setup.\n\n## Act II\n- The complication.\n\n## Act III\n- The resolution.", nil
	case llm.PurposeBible:
		return "## Protagonist\nThe central character of the placeholder story.\n\n## Setting\nA city at the edge of the map.", nil
	case llm.PurposeScenePlan:
		n := 3
		if m := reTargetScenes.FindStringSubmatch(req.Prompt); m != nil {
			n, _ = strconv.Atoi(m[1])
		}
		plan := make([]map[string]any, n)
		for i := range plan {
			plan[i] = map[string]any{
				"title":      fmt.Sprintf("Scene %d", i+1),
				"goal":       fmt.Sprintf("Advance the story to beat %d.", i+1),
				"characters": []string{"Protagonist"},
			}
		}
		data, err := json.Marshal(plan)
		return string(data), err
	case llm.PurposeSceneDraft:
		if m := reSceneTask.FindStringSubmatch(req.Prompt); m != nil {
			return fmt.Sprintf("Placeholder prose for scene %s, %s.", m[1], m[2]), nil
		}
		return "Placeholder prose.", nil
	case llm.PurposeRevise:
		return "Revised placeholder prose.", nil
	case llm.PurposeDigest:
		summary := "The scene moves the story forward."
		if m := reSceneHeading.FindStringSubmatch(req.Prompt); m != nil {
			summary = fmt.Sprintf("Scene %s (%s) moves the story forward.", m[1], m[2])
		}
		data, err := json.Marshal(map[string]any{"summary": summary, "facts": []any{}})
		return string(data), err
	case llm.PurposeArcSummary:
		return "The story so far, condensed.", nil
	}
	return "", fmt.Errorf("mock generator: unsupported purpose %q", req.Purpose)
}
