package main

import (
	"fmt"

	"github.com/Priya8975/envelope-relay/internal/store"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			return err
		}
		logger.Info("database migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps <= 0 {
			return fmt.Errorf("--steps must be positive")
		}
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if err := store.RollbackMigrations(cfg.Database.URL, steps); err != nil {
			return err
		}
		logger.Info("database migrations rolled back", "steps", steps)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		version, dirty, err := store.MigrationVersion(cfg.Database.URL)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	migrateDownCmd.Flags().Int("steps", 1, "number of migrations to roll back")
}
