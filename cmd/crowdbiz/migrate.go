package main

import (
	"github.com/spf13/cobra"

	"github.com/tinusleroux/crowdbiz-graph/pkg/database"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  "Applies the migrations in DB_MIGRATION_FOLDER_PATH up to DB_MIGRATION_VERSION (latest when 0).",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, sync, err := bootstrap()
		if err != nil {
			return err
		}
		defer sync()

		a := newApp(cfg, logger)
		ctx := cmd.Context()
		if err := a.connectDatabase(ctx); err != nil {
			return err
		}
		defer a.Close(ctx)

		if migrateStatus {
			svc := database.NewMigrationService(logger, cfg.Migration())
			status, err := svc.Status(a.db.SQLX(), cfg.DatabaseName)
			if err != nil {
				return err
			}
			return printJSON(status)
		}
		return a.migrate()
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "Report the schema version instead of migrating")
	rootCmd.AddCommand(migrateCmd)
}
