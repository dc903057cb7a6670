package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"tradeledger/internal/domain/auth"
)

func newTokenCmd(load configLoader) *cobra.Command {
	var user, name string
	var roles []string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if !cfg.AuthEnabled() {
				return errors.New("JWT_SECRET is not set")
			}
			svc := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret, cfg.JWTIssuer))
			token, expires, err := svc.GenerateAccessToken(user, name, roles, ttl)
			if err != nil {
				return err
			}
			cmd.Println(token)
			cmd.PrintErrf("expires %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringSliceVar(&roles, "role", []string{auth.RoleAccountant}, "roles (accountant, admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
