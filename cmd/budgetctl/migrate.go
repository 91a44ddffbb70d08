package main

import (
	"fmt"

	"github.com/dafibh/fortuna/fortuna-budget/internal/config"
	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/postgres"
	"github.com/spf13/cobra"
)

var flagSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		return printVersion(cfg.DatabaseURL)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		if flagSteps <= 0 {
			return fmt.Errorf("--steps must be positive")
		}
		cfg, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		if err := postgres.RollbackMigrations(cfg.DatabaseURL, flagSteps); err != nil {
			return err
		}
		return printVersion(cfg.DatabaseURL)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.LoadDatabase()
		if err != nil {
			return err
		}
		return printVersion(cfg.DatabaseURL)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&flagSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func printVersion(databaseURL string) error {
	version, dirty, err := postgres.MigrationVersion(databaseURL)
	if err != nil {
		return err
	}
	if dirty {
		fmt.Println(warnStyle.Render(fmt.Sprintf("schema version %d (dirty)", version)))
		return nil
	}
	fmt.Println(valueStyle.Render(fmt.Sprintf("schema version %d", version)))
	return nil
}
