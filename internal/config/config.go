// Package config loads runtime configuration from .novel.yaml, NOVEL_*
// environment variables and command-line flags through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Generator backends.
const (
	GeneratorCLI  = "cli"
	GeneratorMock = "mock"
)

// EnvPrefix is the prefix of environment variables that override config keys.
// Nested keys use underscores: NOVEL_MEMORY_ARCHIVE_THRESHOLD.
const EnvPrefix = "NOVEL"

// ErrInvalid indicates a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid configuration")

// RetryConfig is the caller-side retry policy for transient generation errors.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// ContextConfig sizes the drafting context window.
type ContextConfig struct {
	BudgetTokens   int `mapstructure:"budget_tokens"`
	PriorTextChars int `mapstructure:"prior_text_chars"`
	CharsPerToken  int `mapstructure:"chars_per_token"`
}

// MemoryConfig controls summary consolidation.
type MemoryConfig struct {
	ArchiveThreshold int `mapstructure:"archive_threshold"`
	RetainedWindow   int `mapstructure:"retained_window"`
}

// BranchingConfig controls multi-candidate drafting.
type BranchingConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Candidates int    `mapstructure:"candidates"`
	Selection  string `mapstructure:"selection"`
}

// Config holds all runtime configuration for a novel session.
type Config struct {
	RunsDir     string          `mapstructure:"runs_dir"`
	Store       string          `mapstructure:"store"`
	SQLitePath  string          `mapstructure:"sqlite_path"`
	Generator   string          `mapstructure:"generator"`
	CLIPath     string          `mapstructure:"cli_path"`
	Model       string          `mapstructure:"model"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	Retry       RetryConfig     `mapstructure:"retry"`
	Context     ContextConfig   `mapstructure:"context"`
	Memory      MemoryConfig    `mapstructure:"memory"`
	Branching   BranchingConfig `mapstructure:"branching"`
	RulesDir    string          `mapstructure:"rules_dir"`
	PromptsFile string          `mapstructure:"prompts_file"`
	Telemetry   bool            `mapstructure:"telemetry"`
	Verbose     bool            `mapstructure:"verbose"`
}

// SetDefaults registers the built-in default of every key with viper.
func SetDefaults() {
	viper.SetDefault("runs_dir", "runs")
	viper.SetDefault("store", StoreFile)
	viper.SetDefault("sqlite_path", "runs/novel.db")
	viper.SetDefault("generator", GeneratorCLI)
	viper.SetDefault("cli_path", "claude")
	viper.SetDefault("model", "")
	viper.SetDefault("timeout", 10*time.Minute)
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.initial_interval", 2*time.Second)
	viper.SetDefault("retry.max_interval", 30*time.Second)
	viper.SetDefault("context.budget_tokens", 8000)
	viper.SetDefault("context.prior_text_chars", 1500)
	viper.SetDefault("context.chars_per_token", 4)
	viper.SetDefault("memory.archive_threshold", 10)
	viper.SetDefault("memory.retained_window", 5)
	viper.SetDefault("branching.enabled", false)
	viper.SetDefault("branching.candidates", 2)
	viper.SetDefault("branching.selection", "manual")
	viper.SetDefault("rules_dir", "rules")
	viper.SetDefault("prompts_file", "")
	viper.SetDefault("telemetry", true)
	viper.SetDefault("verbose", false)
}

// BindEnv maps NOVEL_* variables onto config keys, including nested ones.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags, and validates it.
func Load() (Config, error) {
	SetDefaults()
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	bad := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s: %s", ErrInvalid, key, fmt.Sprintf(format, args...)))
	}
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		bad("store", "want %s or %s, got %q", StoreFile, StoreSQLite, c.Store)
	}
	switch c.Generator {
	case GeneratorCLI, GeneratorMock:
	default:
		bad("generator", "want %s or %s, got %q", GeneratorCLI, GeneratorMock, c.Generator)
	}
	if c.RunsDir == "" {
		bad("runs_dir", "must be set")
	}
	if c.Context.BudgetTokens <= 0 {
		bad("context.budget_tokens", "must be positive")
	}
	if c.Context.CharsPerToken <= 0 {
		bad("context.chars_per_token", "must be positive")
	}
	if c.Memory.RetainedWindow <= 0 || c.Memory.ArchiveThreshold <= c.Memory.RetainedWindow {
		bad("memory", "need 0 < retained_window < archive_threshold, got %d and %d",
			c.Memory.RetainedWindow, c.Memory.ArchiveThreshold)
	}
	if c.Branching.Candidates < 1 {
		bad("branching.candidates", "must be at least 1")
	}
	switch c.Branching.Selection {
	case "manual", "first", "longest":
	default:
		bad("branching.selection", "want manual, first or longest, got %q", c.Branching.Selection)
	}
	if c.Retry.MaxAttempts < 1 {
		bad("retry.max_attempts", "must be at least 1")
	}
	return errors.Join(errs...)
}
