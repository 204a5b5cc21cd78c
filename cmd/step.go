package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KeLes-Coding/novel-agent/internal/pipeline"
	"github.com/KeLes-Coding/novel-agent/internal/story"
)

var stepCmd = &cobra.Command{
	Use:   "step <run-id>",
	Short: "Execute the next unit of work for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			_, err := a.ctrl.ExecuteNextStep(ctx, args[0])
			return err
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Execute steps until the run completes or needs a selection",
	Long: `Repeatedly executes the next step. Stops when every scene is done, when a
scene awaits a manual selection, or after --max-steps steps.

With --wait, a pending selection does not stop the run: it waits for the
selection to be made from another terminal (file backend only).`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Int("max-steps", 0, "stop after this many steps (0 = unlimited)")
	runCmd.Flags().Bool("wait", false, "wait for pending selections instead of stopping")
	rootCmd.AddCommand(stepCmd, runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	maxSteps, _ := cmd.Flags().GetInt("max-steps")
	wait, _ := cmd.Flags().GetBool("wait")
	runID := args[0]

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if wait && a.files == nil {
			return errors.New("--wait requires the file store backend")
		}
		a.printer.Banner()
		for n := 0; maxSteps == 0 || n < maxSteps; n++ {
			res, err := a.ctrl.ExecuteNextStep(ctx, runID)
			if err != nil {
				if ctx.Err() != nil {
					a.printer.Info("run interrupted; resume with the same command")
					return nil
				}
				return err
			}
			switch res.Kind {
			case pipeline.ResultComplete:
				return nil
			case pipeline.ResultPendingSelection:
				if !wait {
					return nil
				}
				if err := waitForSelection(ctx, a, runID, res.SceneID); err != nil {
					return err
				}
			}
		}
		a.printer.Info(fmt.Sprintf("stopped after %d step(s)", maxSteps))
		return nil
	})
}

// waitForSelection blocks until scene sceneID no longer awaits a selection.
// The watcher is armed before the state is read, so a selection saved right
// after the step returned is seen either by the read or by the watcher.
func waitForSelection(ctx context.Context, a *app, runID string, sceneID int) error {
	w, err := a.files.NewWatcher(runID)
	if err != nil {
		return fmt.Errorf("watching run %s: %w", runID, err)
	}
	defer w.Stop()

	if ok, err := selectionMade(ctx, a, runID, sceneID); err != nil || ok {
		return err
	}
	a.printer.Info("waiting for a selection (novel select " + runID + " ...)")
	for {
		select {
		case <-w.Changes:
			if ok, err := selectionMade(ctx, a, runID, sceneID); err != nil || ok {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// selectionMade reports whether the scene has a selection or has left review
// some other way, such as a rollback.
func selectionMade(ctx context.Context, a *app, runID string, sceneID int) (bool, error) {
	state, err := a.ctrl.Load(ctx, runID)
	if err != nil {
		return false, err
	}
	n, err := state.Scene(sceneID)
	if err != nil {
		return true, nil
	}
	return n.Selected != nil || n.Status != story.SceneReviewing, nil
}
