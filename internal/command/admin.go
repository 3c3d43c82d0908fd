package command

import (
	"fmt"
	"time"

	"github.com/forumpulse/internal/db"
	"github.com/forumpulse/internal/identity"
	"github.com/forumpulse/internal/service"
	"github.com/spf13/cobra"
)

// NewAdminCmd creates the admin command group.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage dashboard accounts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <username> <password>",
		Short: "Create a dashboard account if it does not exist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			created, err := db.EnsureUser(ctx.Env.DB, args[0], args[1])
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"username": args[0], "created": created})
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created account %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Account %s already exists\n", args[0])
			}
			return nil
		},
	})
	return cmd
}

// NewTokenCmd creates the token command used to mint identity tokens for local testing.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <uid>",
		Short: "Issue an identity token signed with the configured secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			verifier, err := identity.NewVerifier(cfg.IdentitySecret, cfg.IdentityIssuer)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			email, _ := cmd.Flags().GetString("email")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := verifier.Issue(service.Actor{ID: args[0], Email: email}, ttl)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"token": token})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("email", "", "email claim")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	return cmd
}
