package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"ideaboard/api/internal/bugs"
	"ideaboard/api/internal/config"
)

var bugStatus string

var bugsCmd = &cobra.Command{
	Use:   "bugs",
	Short: "List bug reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		errOut := cmd.ErrOrStderr()
		var status bugs.Status
		if bugStatus != "" {
			parsed, err := bugs.ParseStatus(bugStatus)
			if err != nil {
				return failure(errOut, "Invalid status", err, "Use one of: open, in-progress, closed.")
			}
			status = parsed
		}

		kvStore, err := openKV(config.Load())
		if err != nil {
			return failure(errOut, "Redis unavailable", err, "Check REDIS_URL.")
		}
		defer kvStore.Close()

		tracker := bugs.NewTracker(kvStore)
		ctx := cmd.Context()
		list, err := tracker.ListBugs(ctx, status)
		if err != nil {
			return failure(errOut, "Listing bugs failed", err, "")
		}
		counts, err := tracker.CommentCounts(ctx)
		if err != nil {
			return failure(errOut, "Counting comments failed", err, "")
		}

		out := cmd.OutOrStdout()
		if len(list) == 0 {
			warning(out, "No bugs")
			return nil
		}
		for _, bug := range list {
			statusColor(bug.Status).Fprintf(out, "%-12s", bug.Status)
			fmt.Fprintf(out, "%s  %s (%s, %d comments)\n", bug.ID, bug.Title, bug.ReporterName, counts[bug.ID])
		}
		return nil
	},
}

func init() {
	bugsCmd.Flags().StringVar(&bugStatus, "status", "", "Only list bugs in this status")
	rootCmd.AddCommand(bugsCmd)
}

func statusColor(status bugs.Status) *color.Color {
	switch status {
	case bugs.StatusOpen:
		return red
	case bugs.StatusInProgress:
		return yellow
	}
	return green
}
