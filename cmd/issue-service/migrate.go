package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/issue-service/internal/config"
	"github.com/spec-kit/issue-service/internal/observability"
	"github.com/spec-kit/issue-service/internal/persistence"
)

func migrateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations to the configured Postgres database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Postgres.DSN == "" {
				return errors.New("POSTGRES_DSN is required for migrate")
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()

			if dir == "" {
				dir = cfg.Postgres.MigrationsDir
			}
			if err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), dir, logger); err != nil {
				return err
			}
			applied, err := persistence.AppliedMigrations(cmd.Context(), pg.PoolHandle())
			if err != nil {
				return err
			}
			for _, version := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migrations directory (defaults to POSTGRES_MIGRATIONS_DIR)")
	return cmd
}
