package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KeLes-Coding/novel-agent/internal/assembler"
	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/memory"
	"github.com/KeLes-Coding/novel-agent/internal/prompts"
	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/store/filestore"
	"github.com/KeLes-Coding/novel-agent/internal/story"
	"github.com/KeLes-Coding/novel-agent/internal/telemetry"
	"github.com/KeLes-Coding/novel-agent/internal/tokens"
)

const testBible = "## Ava\nA courier who cannot lie.\n\n## Rook\nA smuggler."

// novelist is a deterministic generator backing the controller tests. Draft
// texts grow with each call so candidates are distinguishable.
type novelist struct {
	scenes    int
	drafts    atomic.Int64
	failDraft atomic.Int64 // fail the draft call with this sequence number
	failAll   atomic.Bool

	// When hold is set, each draft call signals drafting and then waits for
	// hold to be closed.
	hold     chan struct{}
	drafting chan struct{}
}

func (n *novelist) respond(req llm.Request) (string, error) {
	switch req.Purpose {
	case llm.PurposeIdeation:
		return "A courier who cannot lie must smuggle a secret.", nil
	case llm.PurposeOutline:
		return "Act one: the job. Act two: the chase. Act three: the truth.", nil
	case llm.PurposeBible:
		return testBible, nil
	case llm.PurposeScenePlan:
		var plan []map[string]any
		for i := 1; i <= n.scenes; i++ {
			plan = append(plan, map[string]any{
				"title":      fmt.Sprintf("Scene %d", i),
				"goal":       fmt.Sprintf("Goal %d", i),
				"characters": []string{"Ava"},
			})
		}
		data, _ := json.Marshal(plan)
		return "```json\n" + string(data) + "\n```", nil
	case llm.PurposeSceneDraft:
		if n.hold != nil {
			n.drafting <- struct{}{}
			<-n.hold
		}
		seq := n.drafts.Add(1)
		if n.failAll.Load() || seq == n.failDraft.Load() {
			return "", llm.Fatal(req.Purpose, errors.New("provider rejected request"))
		}
		return fmt.Sprintf("Draft %d.%s", seq, strings.Repeat(" More rain.", int(seq))), nil
	case llm.PurposeDigest:
		if strings.Contains(req.Prompt, "# Scene 7:") {
			return `{"summary": "X finds a sword.", "facts": [{"kind": "item", "subject": "X", "description": "acquires a sword"}]}`, nil
		}
		return `{"summary": "Ava keeps moving.", "facts": []}`, nil
	case llm.PurposeArcSummary:
		return "Ava survives the first days.", nil
	case llm.PurposeRevise:
		return "Revised prose with more rain.", nil
	}
	return "", fmt.Errorf("unexpected purpose %s", req.Purpose)
}

type harness struct {
	ctrl    *Controller
	gen     *llm.Scripted
	writer  *novelist
	backend *filestore.Backend
	events  *bytes.Buffer
}

var testClock = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

func newHarness(t *testing.T, scenes int, configure ...func(*Controller)) *harness {
	t.Helper()
	b, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	w := &novelist{scenes: scenes}
	gen := &llm.Scripted{Fallback: w.respond}
	events := &bytes.Buffer{}
	em := telemetry.NewWriterEmitter(events)
	catalog := prompts.Default()
	traced := llm.Traced(gen, em, nil)

	c := &Controller{
		Backend:   b,
		Generator: traced,
		Prompts:   catalog,
		Assembler: &assembler.Assembler{Estimator: tokens.Heuristic{}, Budget: 4000},
		Memory: &memory.Consolidator{
			Generator: traced,
			Prompts:   catalog,
			Threshold: 10,
			Window:    5,
			Emitter:   em,
		},
		Emitter: em,
		Now:     testClock,
	}
	for _, fn := range configure {
		fn(c)
	}
	return &harness{ctrl: c, gen: gen, writer: w, backend: b, events: events}
}

func (h *harness) init(t *testing.T) string {
	t.Helper()
	state, err := h.ctrl.Init(context.Background(), story.Brief{Title: "Harbor Lights", Premise: "A courier cannot lie."})
	require.NoError(t, err)
	return state.RunID
}

// step runs one ExecuteNextStep and requires success.
func (h *harness) step(t *testing.T, runID string) *StepResult {
	t.Helper()
	res, err := h.ctrl.ExecuteNextStep(context.Background(), runID)
	require.NoError(t, err)
	return res
}

// advanceTo steps until the run reaches step.
func (h *harness) advanceTo(t *testing.T, runID string, step story.Step) {
	t.Helper()
	for i := 0; i < 10; i++ {
		state, err := h.ctrl.Load(context.Background(), runID)
		require.NoError(t, err)
		if state.Step == step {
			return
		}
		h.step(t, runID)
	}
	t.Fatalf("run %s never reached %s", runID, step)
}

// draftThrough steps until scene id is done.
func (h *harness) draftThrough(t *testing.T, runID string, id int) {
	t.Helper()
	for i := 0; i < 5*id+10; i++ {
		state, err := h.ctrl.Load(context.Background(), runID)
		require.NoError(t, err)
		if n, err := state.Scene(id); err == nil && n.Status == story.SceneDone {
			return
		}
		h.step(t, runID)
	}
	t.Fatalf("scene %d never finished", id)
}

// persisted returns the run's encoded state on disk.
func (h *harness) persisted(t *testing.T, runID string) []byte {
	t.Helper()
	state, err := h.backend.Load(context.Background(), runID)
	require.NoError(t, err)
	data, err := store.Encode(state)
	require.NoError(t, err)
	return data
}

func withBranching(k int, policy SelectionPolicy) func(*Controller) {
	return func(c *Controller) {
		c.Branching = Branching{Enabled: true, Candidates: k, Selection: policy}
	}
}
