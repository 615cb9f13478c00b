package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/rover/internal/model"
	"github.com/sells-group/rover/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect exploration run history",
	Long:  "Commands for listing and viewing exploration runs, their leaderboards, and their ensembles.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exploration runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs board --

var runsBoardCmd = &cobra.Command{
	Use:   "board <run-id>",
	Short: "Show a run's leaderboard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("limit")

		board, err := st.GetLeaderboard(ctx, args[0], limit)
		if err != nil {
			return eris.Wrap(err, "runs board")
		}

		if len(board.Entries) == 0 {
			fmt.Fprintln(os.Stderr, "No leaderboard entries.")
			return nil
		}

		formatLeaderboard(os.Stdout, board)
		return nil
	},
}

// -- runs ensemble --

var runsEnsembleCmd = &cobra.Command{
	Use:   "ensemble <run-id>",
	Short: "Show a run's blended ensemble",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		res, err := st.GetEnsemble(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs ensemble")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (queued, exploring, ensembling, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsBoardCmd.Flags().Int("limit", 25, "max number of leaderboard entries to display (0 for all)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsBoardCmd)
	runsCmd.AddCommand(runsEnsembleCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATASET\tSTATUS\tSUBSETS\tBEST\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t-------\t----\t-------\t--------")

	for _, r := range runs {
		dataset := r.Dataset
		if len(dataset) > 30 {
			dataset = dataset[:27] + "..."
		}

		subsets, best, dur := "", "", ""
		if r.Summary != nil {
			subsets = fmt.Sprintf("%d", r.Summary.Subsets)
			best = r.Summary.BestSubset
			dur = (time.Duration(r.Summary.DurationMs) * time.Millisecond).Round(time.Millisecond).String()
		}
		if len(best) > 40 {
			best = best[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			dataset,
			r.Status,
			subsets,
			best,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatLeaderboard writes the ranked subsets to w, best first.
func formatLeaderboard(out io.Writer, board *model.Leaderboard) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tSUBSET\tSCORE\tFLAGS")
	_, _ = fmt.Fprintln(w, "----\t------\t-----\t-----")

	for i := range board.Entries {
		e := &board.Entries[i]

		score := "-"
		if e.Scored() {
			score = fmt.Sprintf("%.6g", *e.Score)
		}

		flags := ""
		switch {
		case !e.Scored():
			flags = "unscored"
		case e.InSample:
			flags = "in-sample"
		case e.Degraded:
			flags = "degraded"
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, e.Subset.String(), score, flags)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
