// Package pipeline drives a run through its steps. Every operation takes a run
// id, loads the persisted state, performs one unit of work and returns the
// resulting state; nothing about a run is held between calls.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KeLes-Coding/novel-agent/internal/assembler"
	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/memory"
	"github.com/KeLes-Coding/novel-agent/internal/prompts"
	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/story"
	"github.com/KeLes-Coding/novel-agent/internal/telemetry"
)

const tracerName = "github.com/KeLes-Coding/novel-agent/internal/pipeline"

// UI receives progress notifications. All methods must be safe to call from
// the goroutine running the controller operation.
type UI interface {
	StepStarted(runID string, step story.Step, sceneID int)
	StepFinished(res *StepResult)
	StepFailed(runID string, err error)
	Consolidated(runID string, r story.Range)
	Info(msg string)
}

// Controller runs the generation pipeline over persisted runs. The zero value
// is not usable; Backend, Generator, Prompts, Assembler and Memory are
// required.
type Controller struct {
	Backend   store.Backend
	Generator llm.Generator
	Prompts   *prompts.Catalog
	Assembler *assembler.Assembler
	Memory    *memory.Consolidator
	Options   llm.Options
	Branching Branching

	UI      UI                 // Optional.
	Logger  *slog.Logger       // Optional; defaults to slog.Default().
	Emitter *telemetry.Emitter // Optional.
	Now     func() time.Time   // Optional; defaults to time.Now.

	locks runLocks
}

// ResultKind classifies the outcome of ExecuteNextStep.
type ResultKind string

// Step outcomes.
const (
	// ResultAdvanced means a unit of work was committed.
	ResultAdvanced ResultKind = "advanced"
	// ResultPendingSelection means a scene's candidates await SelectVersion.
	ResultPendingSelection ResultKind = "pending_selection"
	// ResultComplete means every scene is done. Further calls are no-ops.
	ResultComplete ResultKind = "complete"
)

// StepResult describes what one ExecuteNextStep call did.
type StepResult struct {
	Kind    ResultKind
	Step    story.Step // the step the unit of work belonged to
	SceneID int        // scene drafted, completed or awaiting selection
	// Consolidated lists scene ranges folded into arc summaries by this call.
	Consolidated []story.Range
	State        *story.ProjectState
}

// RunInfo summarizes a stored run for listings.
type RunInfo struct {
	RunID      string
	Title      string
	Step       story.Step
	ScenesDone int
	Scenes     int
	UpdatedAt  time.Time
}

// runLocks serializes operations per run id. Distinct runs never contend.
// Writers in other processes are caught by the store revision check instead.
type runLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *runLocks) lock(runID string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	m, ok := l.m[runID]
	if !ok {
		m = &sync.Mutex{}
		l.m[runID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (c *Controller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Controller) storeOptions() []store.Option {
	if c.Now == nil {
		return nil
	}
	return []store.Option{store.WithClock(c.Now)}
}

func (c *Controller) open(ctx context.Context, runID string) (*store.Store, error) {
	return store.Open(ctx, c.Backend, runID, c.storeOptions()...)
}

func (c *Controller) emit(evt telemetry.Event) {
	if err := c.Emitter.Emit(evt); err != nil {
		c.logger().Warn("telemetry emit failed", "kind", evt.Kind, "error", err)
	}
}

func (c *Controller) startSpan(ctx context.Context, name, runID string, step story.Step, sceneID int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(
		attribute.String("novel.run_id", runID),
		attribute.String("novel.step", string(step)),
		attribute.Int("novel.scene_id", sceneID),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Init creates a new run for brief and returns its initial state.
func (c *Controller) Init(ctx context.Context, brief story.Brief) (*story.ProjectState, error) {
	state := story.New(story.NewRunID(), brief, c.now().UTC())
	st, err := store.Create(ctx, c.Backend, state, c.storeOptions()...)
	if err != nil {
		return nil, err
	}
	c.logger().Info("run created", "run", state.RunID, "title", brief.Title)
	c.emit(telemetry.Event{
		Kind:  telemetry.KindRunCreated,
		RunID: state.RunID,
		Step:  string(state.Step),
		Data:  map[string]any{"title": brief.Title, "target_scenes": brief.TargetScenes},
	})
	return st.State(), nil
}

// Load returns the persisted state of a run.
func (c *Controller) Load(ctx context.Context, runID string) (*story.ProjectState, error) {
	st, err := c.open(ctx, runID)
	if err != nil {
		return nil, err
	}
	return st.State(), nil
}

// List summarizes every stored run, most recently updated first.
func (c *Controller) List(ctx context.Context) ([]RunInfo, error) {
	ids, err := c.Backend.List(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]RunInfo, 0, len(ids))
	for _, id := range ids {
		state, err := c.Backend.Load(ctx, id)
		if err != nil {
			c.logger().Warn("skipping unreadable run", "run", id, "error", err)
			continue
		}
		info := RunInfo{
			RunID:     state.RunID,
			Title:     state.Brief.Title,
			Step:      state.Step,
			Scenes:    len(state.Scenes),
			UpdatedAt: state.UpdatedAt,
		}
		for _, n := range state.Scenes {
			if n.Status == story.SceneDone {
				info.ScenesDone++
			}
		}
		infos = append(infos, info)
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].UpdatedAt.After(infos[j].UpdatedAt) })
	return infos, nil
}

// Delete removes a run from the backend.
func (c *Controller) Delete(ctx context.Context, runID string) error {
	unlock := c.locks.lock(runID)
	defer unlock()
	if err := c.Backend.Delete(ctx, runID); err != nil {
		return fmt.Errorf("deleting run %s: %w", runID, err)
	}
	c.logger().Info("run deleted", "run", runID)
	c.emit(telemetry.Event{Kind: telemetry.KindRunDeleted, RunID: runID})
	return nil
}

func (c *Controller) uiStepStarted(runID string, step story.Step, sceneID int) {
	if c.UI != nil {
		c.UI.StepStarted(runID, step, sceneID)
	}
}

func (c *Controller) uiStepFinished(res *StepResult) {
	if c.UI != nil {
		c.UI.StepFinished(res)
	}
}

func (c *Controller) uiStepFailed(runID string, err error) {
	if c.UI != nil {
		c.UI.StepFailed(runID, err)
	}
}

func (c *Controller) uiConsolidated(runID string, r story.Range) {
	if c.UI != nil {
		c.UI.Consolidated(runID, r)
	}
}

func (c *Controller) uiInfo(msg string) {
	if c.UI != nil {
		c.UI.Info(msg)
	}
}
