package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run's step, memory and scenes",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			runs, err := a.ctrl.List(ctx)
			if err != nil {
				return err
			}
			a.printer.RunList(runs)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run and its state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if force, _ := cmd.Flags().GetBool("force"); !force {
			return fmt.Errorf("refusing to delete %s without --force", args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			if err := a.ctrl.Delete(ctx, args[0]); err != nil {
				return err
			}
			a.printer.Info("deleted " + args[0])
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print a machine-readable summary on stdout")
	deleteCmd.Flags().Bool("force", false, "confirm deletion")
	rootCmd.AddCommand(statusCmd, listCmd, deleteCmd)
}

// statusReport is the --json form of status.
type statusReport struct {
	RunID        string        `json:"run_id"`
	Title        string        `json:"title"`
	Step         story.Step    `json:"step"`
	UpdatedAt    time.Time     `json:"updated_at"`
	LastArchived int           `json:"last_archived_scene_id"`
	Arcs         []story.Range `json:"arcs"`
	BibleUpdates int           `json:"bible_updates"`
	Scenes       []sceneReport `json:"scenes"`
}

type sceneReport struct {
	ID       int               `json:"id"`
	Title    string            `json:"title"`
	Status   story.SceneStatus `json:"status"`
	Versions int               `json:"versions"`
	Selected *int              `json:"selected,omitempty"`
	Summary  string            `json:"summary,omitempty"`
}

func newStatusReport(s *story.ProjectState) statusReport {
	r := statusReport{
		RunID:        s.RunID,
		Title:        s.Brief.Title,
		Step:         s.Step,
		UpdatedAt:    s.UpdatedAt,
		LastArchived: s.LastArchivedSceneID,
		BibleUpdates: len(s.Bible.Updates),
		Arcs:         []story.Range{},
		Scenes:       make([]sceneReport, 0, len(s.Scenes)),
	}
	for _, arc := range s.ActiveArcs() {
		r.Arcs = append(r.Arcs, arc.Range)
	}
	for _, n := range s.Scenes {
		r.Scenes = append(r.Scenes, sceneReport{
			ID:       n.ID,
			Title:    n.Title,
			Status:   n.Status,
			Versions: len(n.Versions),
			Selected: n.Selected,
			Summary:  n.Summary,
		})
	}
	return r
}

func runStatus(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	return withApp(cmd, func(ctx context.Context, a *app) error {
		state, err := a.ctrl.Load(ctx, args[0])
		if err != nil {
			return err
		}
		if !asJSON {
			a.printer.Status(state)
			return nil
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(newStatusReport(state))
	})
}
