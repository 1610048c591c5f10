package commands

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"ideaboard/api/internal/config"
	"ideaboard/api/internal/store"
)

var demote bool

var promoteCmd = &cobra.Command{
	Use:   "promote <email>",
	Short: "Grant (or with --demote, revoke) the admin role",
	Long: `Changes the role of the user registered under the given email.
The API reads roles on every request, so the change applies to the user's
existing sessions immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := strings.ToLower(strings.TrimSpace(args[0]))
		role := store.RoleAdmin
		if demote {
			role = store.RoleMember
		}
		ctx := cmd.Context()
		errOut := cmd.ErrOrStderr()

		db, err := openDatabase(ctx, config.Load())
		if err != nil {
			return failure(errOut, "Database unavailable", err, "Check DATABASE_URL.")
		}
		defer db.Close()

		users := store.NewPostgresStore(db)
		user, err := users.GetUserByEmail(ctx, email)
		if errors.Is(err, store.ErrUserNotFound) {
			return failure(errOut, "Unknown user", err, "Emails are matched case-insensitively; check for typos.")
		}
		if err != nil {
			return failure(errOut, "Lookup failed", err, "")
		}
		if user.Role == role {
			warning(cmd.OutOrStdout(), "%s already has role %s", email, role)
			return nil
		}
		if err := users.UpdateUserRole(ctx, user.ID, role); err != nil {
			return failure(errOut, "Role change failed", err, "")
		}
		success(cmd.OutOrStdout(), "%s is now %s", email, role)
		return nil
	},
}

func init() {
	promoteCmd.Flags().BoolVar(&demote, "demote", false, "Set the role back to member")
	rootCmd.AddCommand(promoteCmd)
}
