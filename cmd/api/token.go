package main

import (
	"fmt"
	"time"

	"procurement/internal/config"
	"procurement/internal/identity"

	"github.com/spf13/cobra"
)

// newTokenCmd signs a bearer token with the configured secret, for local use against the API.
func newTokenCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			parsed, err := identity.ParseRole(role)
			if err != nil {
				return fmt.Errorf("invalid --role: %w", err)
			}
			if subject == "" {
				return fmt.Errorf("--sub is required")
			}

			tok, err := identity.IssueToken(cfg.Secret(), identity.Actor{ID: subject, Role: parsed}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "user id carried in the token")
	cmd.Flags().StringVar(&role, "role", string(identity.RoleStaff), "staff, approver_level_1, approver_level_2 or finance")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
