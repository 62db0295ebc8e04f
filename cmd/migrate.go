package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/catalog-crawler/internal/database"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
)

var runMigrations = database.RunMigrations

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "migrate",
		Short:       "Applies pending database migrations",
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			if !cfg.UsePostgres() {
				return errors.New("database.dsn is required for migrate")
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runMigrations(cfg.Database.DSN, logger)
		},
	}
}
