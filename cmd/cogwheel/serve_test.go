// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/cogwheel/internal/config"
)

func serveConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Aliases.Backend = config.BackendMemory
	cfg.Metrics.Addr = ""
	cfg.Modules.Dir = t.TempDir()
	return cfg
}

func TestRunServe_HelpThenQuit(t *testing.T) {
	cfg := serveConfig(t)
	out := new(bytes.Buffer)

	err := runServe(context.Background(), cfg, strings.NewReader("help\nquit\n"), out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Commands:")
	assert.Contains(t, out.String(), "reload")
}

func TestRunServe_Autoload(t *testing.T) {
	cfg := serveConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Modules.Dir, "greet.lua"), []byte(`
cog.name = "greeter"
cog.command("hello", function(call) return "hello " .. (call.args[1] or "world") end, {aliases = {"hi"}})
`), 0o600))
	cfg.Modules.Autoload = []string{"greet", "missing"}
	out := new(bytes.Buffer)

	err := runServe(context.Background(), cfg, strings.NewReader("hi there\nmodules\nquit\n"), out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "hello there\n")
	assert.Contains(t, out.String(), "greet: loaded")
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	cfg := serveConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runServe(ctx, cfg, strings.NewReader(""), new(bytes.Buffer))
	require.NoError(t, err)
}

func TestRunServe_InvalidConfig(t *testing.T) {
	cfg := serveConfig(t)
	cfg.Log.Format = "xml"

	err := runServe(context.Background(), cfg, strings.NewReader(""), new(bytes.Buffer))
	require.Error(t, err)
}
