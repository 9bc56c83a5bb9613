package server

import (
	"fmt"

	"github.com/cosmiq-app/cosmiq/internal/app"
	"github.com/cosmiq-app/cosmiq/pkg/config"
	"github.com/cosmiq-app/cosmiq/pkg/observability"
	"github.com/spf13/cobra"
)

// MigrateCmd applies the schema migrations to DATABASE_URL.
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the schema migrations for the configured database.
SQLite databases are migrated automatically when opened; PostgreSQL
databases must be migrated with this command before first use.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if !cfg.HasStorage() {
			return app.ErrStorageRequired
		}

		container, err := app.NewContainer(ctx, cfg, observability.LoggerFromEnv())
		if err != nil {
			return err
		}
		defer container.Close()

		if err := container.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s)\n", container.DB.Driver())
		return nil
	},
}
