package llm

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KeLes-Coding/novel-agent/internal/telemetry"
)

const tracerName = "github.com/KeLes-Coding/novel-agent/internal/llm"

type runKey struct{}

// WithRun tags ctx with the run and scene a generation call belongs to so
// traced calls can be attributed.
func WithRun(ctx context.Context, runID string, sceneID int) context.Context {
	return context.WithValue(ctx, runKey{}, callScope{runID: runID, sceneID: sceneID})
}

type callScope struct {
	runID   string
	sceneID int
}

// CallRecord is the payload of a generation telemetry event.
type CallRecord struct {
	Purpose    Purpose `json:"purpose"`
	Model      string  `json:"model,omitempty"`
	PromptLen  int     `json:"prompt_chars"`
	OutputLen  int     `json:"output_chars"`
	TokensIn   int     `json:"tokens_in"`
	TokensOut  int     `json:"tokens_out"`
	DurationMs int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
	ErrorKind  Kind    `json:"error_kind,omitempty"`
}

type traced struct {
	next    Generator
	emitter *telemetry.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Traced wraps g so every call opens a span and emits one generation event.
// A nil emitter records spans only. Emit failures are logged to logger, or
// to slog.Default() when logger is nil.
func Traced(g Generator, em *telemetry.Emitter, logger *slog.Logger) Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &traced{next: g, emitter: em, logger: logger, tracer: otel.Tracer(tracerName)}
}

func (t *traced) Generate(ctx context.Context, req Request) (Response, error) {
	scope, _ := ctx.Value(runKey{}).(callScope)
	ctx, span := t.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.purpose", string(req.Purpose)),
		attribute.String("novel.run_id", scope.runID),
		attribute.Int("novel.scene_id", scope.sceneID),
	))
	defer span.End()

	start := time.Now()
	resp, err := t.next.Generate(ctx, req)
	rec := CallRecord{
		Purpose:    req.Purpose,
		Model:      req.Options.Model,
		PromptLen:  len(req.Prompt),
		OutputLen:  len(resp.Text),
		TokensIn:   resp.Usage.TokensIn,
		TokensOut:  resp.Usage.TokensOut,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
		rec.ErrorKind = KindFatal
		if IsTransient(err) {
			rec.ErrorKind = KindTransient
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(rec.ErrorKind))
	} else {
		span.SetAttributes(
			attribute.Int("llm.tokens_in", resp.Usage.TokensIn),
			attribute.Int("llm.tokens_out", resp.Usage.TokensOut),
		)
	}
	if emitErr := t.emitter.Emit(telemetry.Event{
		Kind:    telemetry.KindGeneration,
		RunID:   scope.runID,
		SceneID: scope.sceneID,
		Data:    rec,
	}); emitErr != nil {
		t.logger.Warn("telemetry emit failed", "kind", telemetry.KindGeneration, "error", emitErr)
	}
	return resp, err
}
