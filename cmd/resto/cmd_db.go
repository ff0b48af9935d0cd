package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uvci/resto/app/providers"
	"github.com/uvci/resto/database/seeders"
	"github.com/uvci/resto/pkg/app"
	"github.com/uvci/resto/pkg/migration"
)

// resto migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run all pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return boot(cmd.Context(), func(a *providers.App) error {
			db, err := a.DB()
			if err != nil {
				return err
			}
			ran, err := migration.New(db, os.Stdout).Run()
			if err == nil && len(ran) == 0 {
				fmt.Println("Nothing to migrate.")
			}
			return err
		})
	},
}

// resto migrate:rollback
var migrateRollbackCmd = &cobra.Command{
	Use:   "migrate:rollback",
	Short: "Rollback the last batch of migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return boot(cmd.Context(), func(a *providers.App) error {
			db, err := a.DB()
			if err != nil {
				return err
			}
			rolled, err := migration.New(db, os.Stdout).Rollback()
			if err == nil && len(rolled) == 0 {
				fmt.Println("Nothing to rollback.")
			}
			return err
		})
	},
}

// resto migrate:status
var migrateStatusCmd = &cobra.Command{
	Use:   "migrate:status",
	Short: "Show the status of each migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return boot(cmd.Context(), func(a *providers.App) error {
			db, err := a.DB()
			if err != nil {
				return err
			}
			statuses, err := migration.New(db, os.Stdout).Status()
			if err != nil {
				return err
			}
			return app.PrintMigrations(os.Stdout, statuses)
		})
	},
}

// resto seed
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the starter menu and admin accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return boot(cmd.Context(), func(a *providers.App) error {
			db, err := a.DB()
			if err != nil {
				return err
			}
			return seeders.RunAll(cmd.Context(), db, os.Stdout)
		})
	},
}
