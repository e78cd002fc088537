package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/issue-service/internal/auth"
	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/domain"
)

func tokenCmd() *cobra.Command {
	var uid string
	cmd := &cobra.Command{
		Use:   "token [email]",
		Short: "Mint a development identity token signed with AUTH_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(domain.Identity{Email: args[0], UID: uid})
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "identity provider uid to embed")
	return cmd
}
