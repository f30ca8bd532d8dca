// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/holomush/cogwheel/internal/config"
)

// NewAliasesCmd creates the aliases subcommand.
func NewAliasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "aliases",
		Short: "Print the alias table",
		Long: `Print every command's aliases as stored by the configured backend,
merged with the configured defaults.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return printAliases(cmd.Context(), cfg.Aliases, cmd.OutOrStdout())
		},
	}
}

func printAliases(ctx context.Context, cfg config.AliasesConfig, out io.Writer) error {
	table, release, err := openAliasTable(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	commands := table.Commands()
	if len(commands) == 0 {
		_, err := fmt.Fprintln(out, "No aliases.")
		return err
	}
	for _, command := range commands {
		var others []string
		for _, a := range table.Aliases(command) {
			if a != command {
				others = append(others, a)
			}
		}
		if _, err := fmt.Fprintf(out, "%s: %s\n", command, strings.Join(others, ", ")); err != nil {
			return err
		}
	}
	return nil
}
