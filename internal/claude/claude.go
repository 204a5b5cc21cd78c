package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/KeLes-Coding/novel-agent/internal/llm"
)

// Invoker runs the claude CLI in print mode as a text generator.
type Invoker struct {
	ClaudePath string
	Model      string // default model when a request does not name one
	Verbose    bool
}

// transientMarkers are substrings of CLI errors that indicate the call may
// succeed if retried.
const transientMarkers = "rate limit|rate_limit|overloaded|529|timeout|timed out|temporarily unavailable|connection reset"

// buildEnv constructs the environment for a claude invocation.
// It strips the CLAUDECODE variable (to allow nested invocation) and adds
// CLAUDE_CODE_DISABLE_MCP_POPUPS=1 to suppress MCP server UI popups
// during headless runs.
func buildEnv(base []string) []string {
	env := make([]string, 0, len(base)+1)
	for _, e := range base {
		if !strings.HasPrefix(e, "CLAUDECODE=") {
			env = append(env, e)
		}
	}
	env = append(env, "CLAUDE_CODE_DISABLE_MCP_POPUPS=1")
	return env
}

// buildArgs constructs the CLI arguments for a generation request. Tools are
// disabled: generation is pure text in, text out.
func buildArgs(req llm.Request, defaultModel string) []string {
	args := []string{
		"-p", req.Prompt,
		"--output-format", "json",
		"--max-turns", "1",
	}

	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}

	model := req.Options.Model
	if model == "" {
		model = defaultModel
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	return args
}

// Generate invokes the CLI once and returns its result text with usage.
func (inv *Invoker) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	args := buildArgs(req, inv.Model)

	cmd := exec.CommandContext(ctx, inv.ClaudePath, args...)
	cmd.SysProcAttr = sessionAttr()
	cmd.Env = buildEnv(os.Environ())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if inv.Verbose {
		fmt.Fprintf(os.Stderr, "[claude] running %s (%s, %d prompt chars)\n", inv.ClaudePath, req.Purpose, len(req.Prompt))
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return llm.Response{}, llm.Classify(req.Purpose, ctxErr)
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return llm.Response{}, llm.Fatal(req.Purpose, fmt.Errorf("claude CLI not runnable: %w", err))
		}
		return llm.Response{}, classifyMessage(req.Purpose,
			fmt.Errorf("claude invocation failed: %w\nstderr: %s", err, stderr.String()), stderr.String())
	}

	resp, err := parseResponse(stdout.Bytes())
	if err != nil {
		return llm.Response{}, llm.Transient(req.Purpose, err)
	}
	if resp.IsError {
		return llm.Response{}, classifyMessage(req.Purpose, fmt.Errorf("claude returned error: %s", resp.Result), resp.Result)
	}

	return llm.Response{
		Text: resp.Result,
		Usage: llm.Usage{
			TokensIn:  resp.Usage.InputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.CacheCreationInputTokens,
			TokensOut: resp.Usage.OutputTokens,
		},
	}, nil
}

// Validate checks that the CLI is installed and runnable.
func (inv *Invoker) Validate() error {
	cmd := exec.Command(inv.ClaudePath, "--version")
	cmd.Env = buildEnv(os.Environ())

	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("claude CLI not found at %q: %w", inv.ClaudePath, err)
	}
	if inv.Verbose {
		fmt.Fprintf(os.Stderr, "[claude] version: %s", string(out))
	}
	return nil
}

func parseResponse(data []byte) (CLIResponse, error) {
	var resp CLIResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return CLIResponse{}, fmt.Errorf("%w: parsing claude JSON output: %v\nraw output: %s", llm.ErrMalformedOutput, err, string(data))
	}
	return resp, nil
}

func classifyMessage(purpose llm.Purpose, err error, msg string) error {
	lower := strings.ToLower(msg)
	for _, marker := range strings.Split(transientMarkers, "|") {
		if strings.Contains(lower, marker) {
			return llm.Transient(purpose, err)
		}
	}
	return llm.Fatal(purpose, err)
}
