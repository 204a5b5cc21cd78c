package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new run from a story brief",
	Long: `Creates a run at the ideation step and prints its id on stdout.

The brief comes from flags, or from a TOML file with --brief; flags override
values read from the file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	f := initCmd.Flags()
	f.String("brief", "", "TOML file holding the brief")
	f.String("title", "", "working title")
	f.String("genre", "", "genre")
	f.String("premise", "", "one-paragraph premise")
	f.String("tone", "", "tone")
	f.String("pov", "", "point of view")
	f.StringSlice("tags", nil, "brief tags")
	f.Int("scenes", 0, "approximate number of scenes to plan")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	brief, err := briefFromFlags(cmd)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		state, err := a.ctrl.Init(ctx, brief)
		if err != nil {
			return err
		}
		a.printer.Info(fmt.Sprintf("created run %q at step %s", brief.Title, state.Step))
		fmt.Fprintln(cmd.OutOrStdout(), state.RunID)
		return nil
	})
}

// briefFromFlags reads the optional brief file and applies flag overrides.
func briefFromFlags(cmd *cobra.Command) (story.Brief, error) {
	var b story.Brief
	if path, _ := cmd.Flags().GetString("brief"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return b, fmt.Errorf("reading brief: %w", err)
		}
		if err := toml.Unmarshal(data, &b); err != nil {
			return b, fmt.Errorf("parsing brief %s: %w", path, err)
		}
	}
	f := cmd.Flags()
	for flag, dst := range map[string]*string{
		"title": &b.Title, "genre": &b.Genre, "premise": &b.Premise, "tone": &b.Tone, "pov": &b.POV,
	} {
		if f.Changed(flag) {
			*dst, _ = f.GetString(flag)
		}
	}
	if f.Changed("tags") {
		b.Tags, _ = f.GetStringSlice("tags")
	}
	if f.Changed("scenes") {
		b.TargetScenes, _ = f.GetInt("scenes")
	}
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		return b, fmt.Errorf("a title is required (--title or in --brief)")
	}
	return b, nil
}
