// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Command gen-schema writes the JSON Schema for package.yaml manifests.
// With --check it fails when the committed schema is stale instead.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/cogwheel/internal/module"
)

func main() {
	out := pflag.StringP("out", "o", filepath.Join("schemas", "package.schema.json"), "schema output path")
	check := pflag.Bool("check", false, "verify the schema at --out is current without writing")
	pflag.Parse()

	if err := run(*out, *check); err != nil {
		fmt.Fprintf(os.Stderr, "gen-schema: %v\n", err)
		os.Exit(1)
	}
}

func run(out string, check bool) error {
	schema, err := module.GenerateSchema()
	if err != nil {
		return oops.Wrapf(err, "generate schema")
	}

	if check {
		current, err := os.ReadFile(filepath.Clean(out))
		if err != nil {
			return oops.With("path", out).Wrapf(err, "read schema")
		}
		if !bytes.Equal(bytes.TrimSpace(current), bytes.TrimSpace(schema)) {
			return oops.With("path", out).Errorf("%s is stale; run gen-schema", out)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return oops.With("path", out).Wrapf(err, "create directory")
	}
	if err := os.WriteFile(out, schema, 0o600); err != nil {
		return oops.With("path", out).Wrapf(err, "write schema")
	}
	fmt.Printf("Generated %s\n", out)
	return nil
}
