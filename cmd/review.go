package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/KeLes-Coding/novel-agent/internal/tui"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <run-id> <scene>",
	Short: "List a scene's candidate versions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sceneID, err := parseIndex("scene", args[1])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			state, err := a.ctrl.Load(ctx, args[0])
			if err != nil {
				return err
			}
			scene, err := state.Scene(sceneID)
			if err != nil {
				return err
			}
			a.printer.Versions(scene)
			return nil
		})
	},
}

var selectCmd = &cobra.Command{
	Use:   "select <run-id> <scene> [version]",
	Short: "Choose the version a reviewing scene continues with",
	Long: `Records the chosen version for a scene awaiting review. The next step
completes the scene with it. Without a version index, --tui opens an
interactive picker.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runSelect,
}

var reviseCmd = &cobra.Command{
	Use:   "revise <run-id> <scene> <version>",
	Short: "Generate a revised version from feedback",
	Args:  cobra.ExactArgs(3),
	RunE:  runRevise,
}

var rerollCmd = &cobra.Command{
	Use:   "reroll <run-id> <scene>",
	Short: "Draft additional candidate versions for a reviewing scene",
	Args:  cobra.ExactArgs(2),
	RunE:  runReroll,
}

func init() {
	selectCmd.Flags().Bool("tui", false, "pick the version interactively")
	reviseCmd.Flags().StringP("feedback", "m", "", "editor feedback (required)")
	_ = reviseCmd.MarkFlagRequired("feedback")
	rerollCmd.Flags().IntP("count", "k", 1, "number of new candidates")
	rootCmd.AddCommand(versionsCmd, selectCmd, reviseCmd, rerollCmd)
}

func parseIndex(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: want a non-negative integer", name, s)
	}
	return n, nil
}

func runSelect(cmd *cobra.Command, args []string) error {
	sceneID, err := parseIndex("scene", args[1])
	if err != nil {
		return err
	}
	useTUI, _ := cmd.Flags().GetBool("tui")
	if len(args) < 3 && !useTUI {
		return errors.New("give a version index or use --tui")
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		var idx int
		if len(args) == 3 {
			if idx, err = parseIndex("version", args[2]); err != nil {
				return err
			}
		} else {
			state, err := a.ctrl.Load(ctx, args[0])
			if err != nil {
				return err
			}
			scene, err := state.Scene(sceneID)
			if err != nil {
				return err
			}
			if idx, err = tui.PickVersion(scene); err != nil {
				return err
			}
		}
		if _, err := a.ctrl.SelectVersion(ctx, args[0], sceneID, idx); err != nil {
			return err
		}
		a.printer.Info(fmt.Sprintf("scene %d: selected v%d; run `novel step %s` to continue", sceneID, idx, args[0]))
		return nil
	})
}

func runRevise(cmd *cobra.Command, args []string) error {
	sceneID, err := parseIndex("scene", args[1])
	if err != nil {
		return err
	}
	idx, err := parseIndex("version", args[2])
	if err != nil {
		return err
	}
	feedback, _ := cmd.Flags().GetString("feedback")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		state, newIdx, err := a.ctrl.ReviseVersion(ctx, args[0], sceneID, idx, feedback)
		if err != nil {
			return err
		}
		scene, err := state.Scene(sceneID)
		if err != nil {
			return err
		}
		a.printer.Info(fmt.Sprintf("scene %d: added v%d", sceneID, newIdx))
		a.printer.Versions(scene)
		return nil
	})
}

func runReroll(cmd *cobra.Command, args []string) error {
	sceneID, err := parseIndex("scene", args[1])
	if err != nil {
		return err
	}
	k, _ := cmd.Flags().GetInt("count")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		state, err := a.ctrl.Reroll(ctx, args[0], sceneID, k)
		if err != nil {
			return err
		}
		scene, err := state.Scene(sceneID)
		if err != nil {
			return err
		}
		a.printer.Versions(scene)
		return nil
	})
}
