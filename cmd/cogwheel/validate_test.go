// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/cogwheel/pkg/errutil"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	return dir
}

const goodPackage = `name: games
version: 1.0.0
multi_cog: true
modules: ALL
`

func TestRunValidate_AllGood(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"music.lua":         `cog.name = "music"` + "\n" + `cog.command("play", function(call) return "ok" end)`,
		"games/package.yaml": goodPackage,
		"games/dice.lua":    `cog.name = "dice"` + "\n" + `cog.command("roll", function(call) return 4 end)`,
	})
	out := new(bytes.Buffer)

	require.NoError(t, runValidate(context.Background(), dir, nil, out))
	assert.Equal(t, "ok   games\nok   music\n", out.String())
}

func TestRunValidate_Failures(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"music.lua":          `cog.name = "music"` + "\n" + `cog.command("play", function(call) return "ok" end)`,
		"dupes.lua":          `cog.name = "dupes"` + "\n" + `cog.command("x", function() end)` + "\n" + `cog.command("x", function() end)`,
		"broken.lua":         `error("import failure")`,
		"badpkg/package.yaml": "name: badpkg\nversion: one\nmulti_cog: true\n",
		"games/package.yaml":  goodPackage,
		"games/dice.lua":     `error("dice are loaded")`,
	})
	out := new(bytes.Buffer)

	err := runValidate(context.Background(), dir, []string{"music", "dupes", "broken", "badpkg", "games", "ghost"}, out)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "VALIDATION_FAILED")
	assert.Contains(t, err.Error(), "5 of 6 modules failed validation")

	report := out.String()
	assert.Contains(t, report, "ok   music\n")
	assert.Contains(t, report, "FAIL dupes:")
	assert.Contains(t, report, "FAIL broken:")
	assert.Contains(t, report, "FAIL badpkg:")
	assert.Contains(t, report, "FAIL games:")
	assert.Contains(t, report, "FAIL ghost:")
}

func TestRunValidate_ShippedCogs(t *testing.T) {
	out := new(bytes.Buffer)

	require.NoError(t, runValidate(context.Background(), filepath.Join("..", "..", "cogs"), nil, out))
	assert.Equal(t, "ok   games\nok   music\n", out.String())
}
