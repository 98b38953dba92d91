/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/jjudge-oj/problemgen/config"
	"github.com/jjudge-oj/problemgen/internal/db"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all up migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations(db.Up)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert all migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations(db.Down)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func runMigrations(dir db.Direction) error {
	cfg := config.LoadConfig()
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("migrations only apply to the postgres store, STORE_DRIVER is %q", cfg.Store.Driver)
	}
	if err := db.Migrate(cfg.Database, dir); err != nil {
		return fmt.Errorf("migrate %s failed: %w", dir, err)
	}
	return nil
}
