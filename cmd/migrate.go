package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailgraph/pkg/db"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

func newMigrateCommand() *cobra.Command {
	var migrationsDir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.Connect(ctx, db.FromAppConfig(appCfg.Database))
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			result, err := db.RunMigrations(ctx, pool, migrationsDir)
			if err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			logger.Info("migrations applied",
				logging.F("applied", result.Applied),
				logging.F("skipped", result.Skipped),
			)
			for _, e := range result.Errors {
				logger.Error("migration error", logging.F("error", e.Error()))
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d migration(s) failed", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory containing .sql migration files")
	return cmd
}
