// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/cogwheel/internal/module"
	"github.com/holomush/cogwheel/internal/module/lua"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [module...]",
		Short: "Check that modules import and register cleanly",
		Long: `Import each module and run its registration without committing
anything or starting loops. Package manifests are checked against the
package.yaml schema. With no arguments every module in the directory is
checked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runValidate(cmd.Context(), cfg.Modules.Dir, args, cmd.OutOrStdout())
		},
	}
}

func runValidate(ctx context.Context, dir string, names []string, out io.Writer) error {
	importer := lua.NewImporter(dir)
	if len(names) == 0 {
		var err error
		if names, err = importer.Discover(ctx, ""); err != nil {
			return oops.Code("VALIDATION_FAILED").With("dir", dir).Wrapf(err, "discover modules")
		}
	}

	failed := 0
	for _, name := range names {
		if err := validateModule(ctx, importer, name); err != nil {
			failed++
			//nolint:errcheck // report output is best effort
			fmt.Fprintf(out, "FAIL %s: %s\n", name, module.FormatSchemaError(err))
			continue
		}
		//nolint:errcheck // report output is best effort
		fmt.Fprintf(out, "ok   %s\n", name)
	}
	if failed > 0 {
		return oops.Code("VALIDATION_FAILED").
			With("failed", failed).
			Errorf("%d of %d modules failed validation", failed, len(names))
	}
	return nil
}

// validateModule imports name and replays its registration into a scratch
// registrar. Containers are checked through their submodules.
func validateModule(ctx context.Context, importer *lua.Importer, name string) error {
	if err := validateManifest(importer.Dir(), name); err != nil {
		return err
	}

	def, err := importer.Import(ctx, name)
	if err != nil {
		return err
	}
	if def.Close != nil {
		defer def.Close()
	}

	if def.MultiCog {
		subs, err := module.ResolveSubmodules(ctx, importer, def)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if err := validateModule(ctx, importer, sub); err != nil {
				return oops.With("submodule", sub).Wrapf(err, "submodule %s", sub)
			}
		}
		return nil
	}

	if def.Setup == nil {
		return nil
	}
	reg := module.NewRegistrar(name)
	if err := def.Setup(reg); err != nil {
		return err
	}
	return reg.Err()
}

// validateManifest checks a package's package.yaml against the schema.
func validateManifest(dir, name string) error {
	path := filepath.Join(dir, filepath.FromSlash(strings.ReplaceAll(name, ".", "/")), module.ManifestFile)
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return module.ValidateSchema(data)
}
