// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/cogwheel/internal/store"
)

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

type migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Pending() ([]uint, error)
	Close() error
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Manage the postgres alias schema",
		Long: `Apply (up, the default), roll back (down) or report (status) the
schema migrations of the postgres alias store.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			return runMigrate(cmd, cfg.Aliases.DatabaseURL, action)
		},
	}
	return cmd
}

func runMigrate(cmd *cobra.Command, databaseURL, action string) error {
	if databaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("aliases.database_url or DATABASE_URL is required")
	}
	switch action {
	case "up", "down", "status":
	default:
		return oops.Code("INVALID_ARGS").With("action", action).Errorf("unknown migrate action %q", action)
	}

	m, err := newMigrator(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("closing migrator: %v\n", closeErr)
		}
	}()

	switch action {
	case "up":
		cmd.Println("Running migrations...")
		if err := m.Up(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
		cmd.Println("Migrations completed successfully")
	case "down":
		cmd.Println("Rolling back migrations...")
		if err := m.Down(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
		}
		cmd.Println("Rollback completed successfully")
	case "status":
		version, dirty, err := m.Version()
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "read version").Wrap(err)
		}
		pending, err := m.Pending()
		if err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "list pending").Wrap(err)
		}
		cmd.Printf("version: %d\ndirty: %t\npending: %v\n", version, dirty, pending)
	}
	return nil
}
