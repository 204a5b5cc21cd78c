package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/KeLes-Coding/novel-agent/internal/assembler"
)

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write the manuscript of selected scene versions as markdown",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var contextCmd = &cobra.Command{
	Use:   "context <run-id>",
	Short: "Print the context a scene draft would be sent, without generating",
	Args:  cobra.ExactArgs(1),
	RunE:  runContext,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
	contextCmd.Flags().Int("scene", 0, "scene to preview (default: next open scene)")
	contextCmd.Flags().Bool("stats", false, "print only the token accounting")
	contextCmd.Flags().StringSlice("without", nil, "optional tiers to leave out (rules, characters, recent, arcs)")
	rootCmd.AddCommand(exportCmd, contextCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("output")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var w io.Writer = cmd.OutOrStdout()
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()
			w = f
		}
		stats, err := a.ctrl.Export(ctx, args[0], w)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("exported %d scene(s)", stats.Scenes)
		if stats.Missing > 0 {
			msg += fmt.Sprintf(", %d without a selected version", stats.Missing)
		}
		a.printer.Info(fmt.Sprintf("%s; %d tokens in / %d out", msg, stats.Cost.TokensIn, stats.Cost.TokensOut))
		return nil
	})
}

func runContext(cmd *cobra.Command, args []string) error {
	sceneID, _ := cmd.Flags().GetInt("scene")
	statsOnly, _ := cmd.Flags().GetBool("stats")
	without, _ := cmd.Flags().GetStringSlice("without")
	var drop []assembler.Tier
	for _, name := range without {
		t, err := assembler.ParseTier(name)
		if err != nil {
			return err
		}
		if t.Mandatory() {
			return fmt.Errorf("tier %s is mandatory", t)
		}
		drop = append(drop, t)
	}
	return withApp(cmd, func(ctx context.Context, a *app) error {
		p, err := a.ctrl.Context(ctx, args[0], sceneID)
		if err != nil {
			return err
		}
		for _, t := range drop {
			p = p.Without(t)
		}
		w := cmd.OutOrStdout()
		if !statsOnly {
			fmt.Fprintln(w, p.Text())
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "scene %d: %d/%d tokens\n", p.SceneID, p.Used, p.Budget)
		byTier := p.UsedByTier()
		for _, t := range slices.Sorted(maps.Keys(byTier)) {
			fmt.Fprintf(w, "  %-14s %6d\n", t, byTier[t])
		}
		for _, key := range p.Skipped {
			fmt.Fprintf(w, "  skipped %s\n", key)
		}
		return nil
	})
}
