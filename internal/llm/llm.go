// Package llm defines the text generation capability used by every pipeline
// stage, along with composable wrappers for retry, timeouts and tracing.
package llm

import "context"

// Purpose identifies why a generation call is made. It selects the prompt
// template and labels trace events.
type Purpose string

// Generation purposes.
const (
	PurposeIdeation   Purpose = "ideation"
	PurposeOutline    Purpose = "outline"
	PurposeBible      Purpose = "bible"
	PurposeScenePlan  Purpose = "scene_plan"
	PurposeSceneDraft Purpose = "scene_draft"
	PurposeRevise     Purpose = "revise"
	PurposeDigest     Purpose = "digest"
	PurposeArcSummary Purpose = "arc_summary"
)

// Options tune a single generation call. Zero values defer to the backend.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	JSON        bool // the caller expects a JSON document in the response
}

// Request is one generation call.
type Request struct {
	Purpose Purpose
	System  string
	Prompt  string
	Options Options
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	TokensIn  int
	TokensOut int
}

// Response is the result of a successful generation call.
type Response struct {
	Text  string
	Usage Usage
}

// Generator produces text from a prompt. Implementations must be safe for
// concurrent use and must not retain the request after returning.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
