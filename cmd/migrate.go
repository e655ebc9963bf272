package cmd

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/arnold/kumbara-api/internal/database"
	"github.com/spf13/cobra"
	gormlogger "gorm.io/gorm/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	db, err := database.Open(cfg.DatabaseURL, gormlogger.Warn)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("database migrated", "url", redactURL(cfg.DatabaseURL))
	return nil
}

// redactURL hides credentials in a database URL before it is logged.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
