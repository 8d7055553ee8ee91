/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/twelves/apiserver/internal/db"
)

var migrationsURL string

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations(true)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations(false)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	migrateCmd.PersistentFlags().StringVar(&migrationsURL, "source", db.DefaultMigrationsURL, "migration source URL")
}

func runMigrations(up bool) error {
	cfg, logger := loadRuntime()
	if err := db.Migrate(cfg, migrationsURL, up); err != nil {
		logger.Error("migration failed", "error", err)
		return err
	}
	logger.Info("migrations applied", "up", up, "source", migrationsURL)
	return nil
}
