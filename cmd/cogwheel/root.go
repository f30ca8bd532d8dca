// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/cogwheel/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the cogwheel CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cogwheel",
		Short: "cogwheel - a hot-reloadable command host",
		Long: `cogwheel hosts commands grouped into cogs, loaded from Lua modules
that can be reloaded, enabled and disabled while the process runs.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/cogwheel/config.yaml)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAliasesCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

// loadConfig reads the config file and the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}
