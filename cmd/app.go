package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KeLes-Coding/novel-agent/internal/assembler"
	"github.com/KeLes-Coding/novel-agent/internal/claude"
	"github.com/KeLes-Coding/novel-agent/internal/config"
	"github.com/KeLes-Coding/novel-agent/internal/llm"
	"github.com/KeLes-Coding/novel-agent/internal/memory"
	"github.com/KeLes-Coding/novel-agent/internal/pipeline"
	"github.com/KeLes-Coding/novel-agent/internal/prompts"
	"github.com/KeLes-Coding/novel-agent/internal/rules"
	"github.com/KeLes-Coding/novel-agent/internal/store"
	"github.com/KeLes-Coding/novel-agent/internal/store/filestore"
	"github.com/KeLes-Coding/novel-agent/internal/store/sqlitestore"
	"github.com/KeLes-Coding/novel-agent/internal/telemetry"
	"github.com/KeLes-Coding/novel-agent/internal/tokens"
	"github.com/KeLes-Coding/novel-agent/internal/ui"
)

// eventsFile is the telemetry stream written under the runs directory.
const eventsFile = "events.jsonl"

// app bundles the wired controller with the resources it owns.
type app struct {
	cfg     config.Config
	ctrl    *pipeline.Controller
	printer *ui.Printer
	files   *filestore.Backend // nil unless the file backend is selected
	closers []func() error
}

// newApp loads configuration and builds a controller from it.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Verbose)

	a := &app{cfg: cfg, printer: ui.New()}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func setupLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg
	if err := os.MkdirAll(cfg.RunsDir, 0o755); err != nil {
		return fmt.Errorf("creating runs dir: %w", err)
	}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return err
	}

	var em *telemetry.Emitter
	if cfg.Telemetry {
		em, err = telemetry.NewEmitter(filepath.Join(cfg.RunsDir, eventsFile))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, em.Close)
	}

	gen, err := a.generator(em)
	if err != nil {
		return err
	}

	catalog, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return err
	}

	asm := &assembler.Assembler{
		Estimator:  tokens.Heuristic{CharsPerToken: cfg.Context.CharsPerToken},
		Budget:     cfg.Context.BudgetTokens,
		PriorChars: cfg.Context.PriorTextChars,
	}
	book, err := rules.Load(cfg.RulesDir)
	if err != nil {
		return err
	}
	if len(book.Rules) > 0 {
		asm.Rules = book
		a.printer.Info(fmt.Sprintf("loaded %d writing rule(s) from %s", len(book.Rules), cfg.RulesDir))
	}

	policy, err := pipeline.ParseSelectionPolicy(cfg.Branching.Selection)
	if err != nil {
		return err
	}

	opts := llm.Options{Model: cfg.Model}
	a.ctrl = &pipeline.Controller{
		Backend:   backend,
		Generator: gen,
		Prompts:   catalog,
		Assembler: asm,
		Memory: &memory.Consolidator{
			Generator: gen,
			Prompts:   catalog,
			Options:   opts,
			Threshold: cfg.Memory.ArchiveThreshold,
			Window:    cfg.Memory.RetainedWindow,
			Emitter:   em,
		},
		Options: opts,
		Branching: pipeline.Branching{
			Enabled:    cfg.Branching.Enabled,
			Candidates: cfg.Branching.Candidates,
			Selection:  policy,
		},
		UI:      a.printer,
		Emitter: em,
	}
	return nil
}

func (a *app) openBackend(ctx context.Context) (store.Backend, error) {
	if a.cfg.Store == config.StoreSQLite {
		if err := os.MkdirAll(filepath.Dir(a.cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
		db, err := sqlitestore.Open(ctx, a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	}
	fb, err := filestore.New(a.cfg.RunsDir)
	if err != nil {
		return nil, err
	}
	a.files = fb
	return fb, nil
}

// generator builds the generation stack: backend, per-call timeout, retry
// of transient failures, then one traced span and event per logical call.
func (a *app) generator(em *telemetry.Emitter) (llm.Generator, error) {
	cfg := a.cfg
	var base llm.Generator
	switch cfg.Generator {
	case config.GeneratorMock:
		base = mockGenerator()
	default:
		inv := &claude.Invoker{ClaudePath: cfg.CLIPath, Model: cfg.Model, Verbose: cfg.Verbose}
		if err := inv.Validate(); err != nil {
			a.printer.Error(fmt.Sprintf("claude not available: %v", err))
			return nil, err
		}
		base = llm.WithTimeout(inv, cfg.Timeout)
	}
	gen := llm.WithRetry(base, llm.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		Logger:          slog.Default(),
	})
	return llm.Traced(gen, em, slog.Default()), nil
}

// Close releases the backend and telemetry file.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closing resource", "error", err)
		}
	}
	a.closers = nil
}

// withApp builds the app, runs fn under a signal-aware context and closes
// the app afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
