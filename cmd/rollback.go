package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <run-id> <step>",
	Short: "Move a run back to an earlier step",
	Long: `Moves a run back so the given step runs again. Steps: ideation, outline,
bible, scene_plan, drafting.

For drafting, --scene names the first scene to redo: it and every later scene
return to pending and arc summaries reaching into that span are superseded.
Rolling back to a global step resets every scene. Drafted versions are kept.`,
	Args: cobra.ExactArgs(2),
	RunE: runRollback,
}

func init() {
	rollbackCmd.Flags().Int("scene", 0, "first scene to redo (drafting only)")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) error {
	step, err := story.ParseStep(args[1])
	if err != nil {
		return err
	}
	sceneID, _ := cmd.Flags().GetInt("scene")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		state, err := a.ctrl.Rollback(ctx, args[0], step, sceneID)
		if err != nil {
			return err
		}
		a.printer.Info(fmt.Sprintf("run %s is back at %s", state.RunID, state.Step))
		a.printer.Status(state)
		return nil
	})
}
