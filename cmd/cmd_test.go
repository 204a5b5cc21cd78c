package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/pipeline"
	"github.com/KeLes-Coding/novel-agent/internal/story"
	"github.com/KeLes-Coding/novel-agent/internal/ui"
)

func TestMockRespond(t *testing.T) {
	t.Parallel()

	text, err := mockRespond(llm.Request{Purpose: llm.PurposeScenePlan, Prompt: "Break the outline into about 4 scenes in narrative order."})
	require.NoError(t, err)
	var plan []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &plan))
	assert.Len(t, plan, 4)

	text, err = mockRespond(llm.Request{Purpose: llm.PurposeSceneDraft, Prompt: `Write scene 2 of "Harbor": The Storm.`})
	require.NoError(t, err)
	assert.Contains(t, text, "scene 2, The Storm")

	text, err = mockRespond(llm.Request{Purpose: llm.PurposeDigest, Prompt: "# Scene 3: Docks\nprose"})
	require.NoError(t, err)
	assert.Contains(t, text, "Scene 3 (Docks)")

	_, err = mockRespond(llm.Request{Purpose: "poetry"})
	assert.Error(t, err)
}

func briefCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "init"}
	f := cmd.Flags()
	for _, name := range []string{"brief", "title", "genre", "premise", "tone", "pov"} {
		f.String(name, "", "")
	}
	f.StringSlice("tags", nil, "")
	f.Int("scenes", 0, "")
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestBriefFromFlags(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "brief.toml")
	require.NoError(t, os.WriteFile(path, []byte("title = \"From File\"\ngenre = \"noir\"\ntarget_scenes = 8\n"), 0o644))

	b, err := briefFromFlags(briefCommand(t, "--brief", path, "--title", " Override ", "--tags", "heist,rain"))
	require.NoError(t, err)
	assert.Equal(t, "Override", b.Title)
	assert.Equal(t, "noir", b.Genre)
	assert.Equal(t, 8, b.TargetScenes)
	assert.Equal(t, []string{"heist", "rain"}, b.Tags)

	b, err = briefFromFlags(briefCommand(t, "--brief", path, "--scenes", "3"))
	require.NoError(t, err)
	assert.Equal(t, "From File", b.Title)
	assert.Equal(t, 3, b.TargetScenes)

	_, err = briefFromFlags(briefCommand(t))
	assert.ErrorContains(t, err, "title is required")
}

func TestPrintEvent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	printEvent(&buf, `{"ts":"2026-05-01T12:00:00Z","kind":"step_done","run":"r1","step":"drafting","scene":3,"data":{"versions":2,"auto":true}}`, "")
	out := buf.String()
	for _, want := range []string{"step_done", "run=r1", "step=drafting", "scene=3", "auto=true versions=2"} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	printEvent(&buf, `{"ts":"2026-05-01T12:00:00Z","kind":"step_done","run":"r1"}`, "r2")
	assert.Empty(t, buf.String(), "other runs are filtered")

	buf.Reset()
	printEvent(&buf, "not json", "")
	assert.Equal(t, "??? not json\n", buf.String())
}

// TestMockRunEndToEnd wires the app from configuration with the offline
// generator and drives a run to completion.
func TestMockRunEndToEnd(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	viper.Set("runs_dir", dir)
	viper.Set("generator", "mock")
	viper.Set("rules_dir", filepath.Join(dir, "no-rules"))
	viper.Set("memory.archive_threshold", 4)
	viper.Set("memory.retained_window", 2)

	ctx := context.Background()
	a, err := newApp(ctx)
	require.NoError(t, err)
	defer a.Close()
	a.ctrl.UI = nil

	state, err := a.ctrl.Init(ctx, story.Brief{Title: "Harbor Lights", TargetScenes: 5})
	require.NoError(t, err)

	var res *pipeline.StepResult
	for i := 0; i < 30; i++ {
		res, err = a.ctrl.ExecuteNextStep(ctx, state.RunID)
		require.NoError(t, err)
		if res.Kind == pipeline.ResultComplete {
			break
		}
	}
	require.Equal(t, pipeline.ResultComplete, res.Kind)

	final := res.State
	assert.Equal(t, story.StepDone, final.Step)
	require.Len(t, final.Scenes, 5)
	assert.Equal(t, 2, final.LastArchivedSceneID)
	report := newStatusReport(final)
	assert.Len(t, report.Scenes, 5)
	assert.Equal(t, []story.Range{{From: 1, To: 2}}, report.Arcs)

	var manuscript bytes.Buffer
	stats, err := a.ctrl.Export(ctx, state.RunID, &manuscript)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Scenes)
	assert.True(t, strings.HasPrefix(manuscript.String(), "# Harbor Lights\n"))
	assert.Contains(t, manuscript.String(), "Placeholder prose for scene 5")

	a.Close()
	events, err := os.ReadFile(filepath.Join(dir, eventsFile))
	require.NoError(t, err)
	assert.Contains(t, string(events), `"kind":"consolidation"`)
}

// pendingSelectionApp returns a mock-backed app whose run has scene 1 waiting
// for a manual selection.
func pendingSelectionApp(t *testing.T) (*app, string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	viper.Set("runs_dir", dir)
	viper.Set("generator", "mock")
	viper.Set("rules_dir", filepath.Join(dir, "no-rules"))
	viper.Set("branching.enabled", true)
	viper.Set("branching.candidates", 2)

	ctx := context.Background()
	a, err := newApp(ctx)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	a.ctrl.UI = nil
	a.printer = ui.NewWriter(io.Discard)

	state, err := a.ctrl.Init(ctx, story.Brief{Title: "Harbor Lights", TargetScenes: 2})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		res, err := a.ctrl.ExecuteNextStep(ctx, state.RunID)
		require.NoError(t, err)
		if res.Kind == pipeline.ResultPendingSelection {
			require.Equal(t, 1, res.SceneID)
			return a, state.RunID
		}
	}
	t.Fatal("scene 1 never awaited a selection")
	return nil, ""
}

func TestWaitForSelection_SelectionMadeBeforeWaiting(t *testing.T) {
	a, runID := pendingSelectionApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := a.ctrl.SelectVersion(ctx, runID, 1, 1)
	require.NoError(t, err)

	require.NoError(t, waitForSelection(ctx, a, runID, 1), "a selection saved before the watch must not be missed")
}

func TestWaitForSelection_WakesOnSelection(t *testing.T) {
	a, runID := pendingSelectionApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	selected := make(chan error, 1)
	go func() {
		time.Sleep(200 * time.Millisecond)
		_, err := a.ctrl.SelectVersion(ctx, runID, 1, 0)
		selected <- err
	}()
	require.NoError(t, waitForSelection(ctx, a, runID, 1))
	require.NoError(t, <-selected)

	state, err := a.ctrl.Load(ctx, runID)
	require.NoError(t, err)
	n, err := state.Scene(1)
	require.NoError(t, err)
	require.NotNil(t, n.Selected)
}

func TestWaitForSelection_HonorsCancel(t *testing.T) {
	a, runID := pendingSelectionApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := waitForSelection(ctx, a, runID, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
