package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"ideaboard/api/internal/config"
	"ideaboard/api/internal/feed"
	"ideaboard/api/internal/ideas"
)

var feedLimit int

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print the public feed, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kvStore, err := openKV(config.Load())
		if err != nil {
			return failure(cmd.ErrOrStderr(), "Redis unavailable", err, "Check REDIS_URL.")
		}
		defer kvStore.Close()

		items := feed.NewAggregator(ideas.NewRepository(kvStore), nil).Public(cmd.Context())
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			warning(out, "No shared ideas")
			return nil
		}
		if feedLimit > 0 && len(items) > feedLimit {
			items = items[:feedLimit]
		}
		for _, idea := range items {
			cyan.Fprintf(out, "%s  ", idea.UpdatedAt)
			fmt.Fprintf(out, "%s [%s/%s] by %s\n", idea.Title, idea.Status, idea.Priority, ownerLabel(idea))
		}
		return nil
	},
}

func ownerLabel(idea ideas.Idea) string {
	if idea.OwnerName != "" {
		return idea.OwnerName
	}
	return idea.OwnerID
}

func init() {
	feedCmd.Flags().IntVar(&feedLimit, "limit", 20, "Maximum ideas to print (0 for all)")
	rootCmd.AddCommand(feedCmd)
}
