package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imis-health/casetracker/internal/shared/config"
	"github.com/imis-health/casetracker/internal/shared/database"
	"github.com/imis-health/casetracker/internal/shared/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "casetracker",
		Short: "Patient case ledger and search API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runServer(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.migrate, "migrate", true, "Apply pending migrations on startup")
	cmd.Flags().BoolVar(&opts.memory, "memory", false, "Keep all data in memory (no Postgres, development only)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.New(cfg.Log.Level, cfg.IsDev())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := database.New(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := database.Migrate(ctx, db.Pool, logger)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info().Int("applied", len(applied)).Strs("versions", applied).Msg("migrations complete")
			return nil
		},
	}
}
