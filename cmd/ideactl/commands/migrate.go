package commands

import (
	"github.com/spf13/cobra"

	"ideaboard/api/internal/config"
	"ideaboard/api/internal/store"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if migrationsDir != "" {
			cfg.MigrationsDir = migrationsDir
		}
		ctx := cmd.Context()
		errOut := cmd.ErrOrStderr()

		db, err := openDatabase(ctx, cfg)
		if err != nil {
			return failure(errOut, "Database unavailable", err, "Check DATABASE_URL.")
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			return failure(errOut, "Migration failed", err, "")
		}
		out := cmd.OutOrStdout()
		if len(applied) == 0 {
			warning(out, "Schema already up to date")
			return nil
		}
		for _, version := range applied {
			success(out, "Applied %s", version)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "", "Migrations directory (defaults to IDEABOARD_MIGRATIONS_DIR)")
	rootCmd.AddCommand(migrateCmd)
}
