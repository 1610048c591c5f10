package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"ideaboard/api/internal/config"
	"ideaboard/api/internal/search"
	"ideaboard/api/internal/store"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex-users",
	Short: "Push every user from Postgres into the Meilisearch index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		errOut := cmd.ErrOrStderr()
		if strings.TrimSpace(cfg.MeiliURL) == "" {
			return failure(errOut, "Search not configured", errors.New("MEILI_URL is empty"), "Set MEILI_URL and MEILI_MASTER_KEY.")
		}
		ctx := cmd.Context()

		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return failure(errOut, "Database unavailable", err, "Check DATABASE_URL.")
		}
		defer db.Close()

		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		service := search.NewService(meili, search.NewPgUsers(store.NewPostgresStore(db)))
		defer service.Close()
		if !meili.Healthy() {
			return failure(errOut, "Meilisearch unavailable", errors.New("health check failed"), "Check MEILI_URL.")
		}

		n := service.ReindexAllFromPG(ctx)
		if n == 0 {
			warning(cmd.OutOrStdout(), "No users indexed")
			return nil
		}
		success(cmd.OutOrStdout(), "Indexed %d users", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}
