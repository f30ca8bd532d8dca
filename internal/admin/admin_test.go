// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package admin_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/cogwheel/internal/admin"
	"github.com/holomush/cogwheel/internal/alias"
	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/lifecycle"
	"github.com/holomush/cogwheel/internal/module"
)

type reload struct {
	module string
	err    error
}

func setup(t *testing.T) (*lifecycle.Manager, chan reload) {
	t.Helper()
	catalog := module.NewCatalog()
	catalog.Register("music", func() *module.Definition {
		return &module.Definition{Cog: "music", Setup: func(r *module.Registrar) error {
			r.Command("play", func(context.Context, *cog.Call) (any, error) { return "playing", nil },
				module.WithHelp("play <song>"))
			r.Command("pause", func(context.Context, *cog.Call) (any, error) { return "paused", nil })
			return nil
		}}
	})

	mgr := lifecycle.New(cog.NewRegistry(), alias.NewTable(), catalog)
	reloads := make(chan reload, 4)
	admin.Register(catalog, mgr, func(name string, err error) { reloads <- reload{name, err} })

	ctx := context.Background()
	require.NoError(t, mgr.LoadModule(ctx, admin.ModuleName))
	require.NoError(t, mgr.LoadModule(ctx, "music"))
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return mgr, reloads
}

func run(t *testing.T, mgr *lifecycle.Manager, name string, args []string, opts map[string]any) string {
	t.Helper()
	res, err := mgr.CallCommand(context.Background(), name, &cog.Call{Args: args, Options: opts})
	require.NoError(t, err)
	require.True(t, res.OK(), "admin command failed: %v", res.Err)
	out, ok := res.Value.(string)
	require.True(t, ok, "expected string output, got %T", res.Value)
	return out
}

func TestAdmin_Help(t *testing.T) {
	mgr, _ := setup(t)

	out := run(t, mgr, "help", nil, nil)
	assert.Contains(t, out, "play")
	assert.Contains(t, out, "reload")

	out = run(t, mgr, "?", []string{"play"}, nil)
	assert.Equal(t, "play <song> (cog music, aliases: play)", out)

	out = run(t, mgr, "help", []string{"nope"}, nil)
	assert.Equal(t, "Unknown command. Try 'help'.", out)
}

func TestAdmin_Reload(t *testing.T) {
	mgr, reloads := setup(t)

	out := run(t, mgr, "reload", []string{"music"}, nil)
	assert.Equal(t, "Reload of music scheduled.", out)

	select {
	case r := <-reloads:
		assert.Equal(t, "music", r.module)
		require.NoError(t, r.err)
	case <-time.After(5 * time.Second):
		t.Fatal("reload did not complete")
	}

	out = run(t, mgr, "load", []string{"ghost"}, nil)
	assert.Equal(t, "Reload of ghost scheduled.", out)
	r := <-reloads
	require.Error(t, r.err)
	assert.True(t, cog.HasCode(r.err, cog.CodeModuleLoad))

	out = run(t, mgr, "reload", nil, nil)
	assert.Equal(t, "Usage: reload <module> - load or reload a module", out)
}

func TestAdmin_ModulesAndCogs(t *testing.T) {
	mgr, _ := setup(t)

	assert.Equal(t, "admin: loaded\nmusic: loaded", run(t, mgr, "modules", nil, nil))

	out := run(t, mgr, "cogs", nil, nil)
	assert.Contains(t, out, "admin [enabled] 9 commands from admin")
	assert.Contains(t, out, "music [enabled] 2 commands from music")
}

func TestAdmin_EnableDisable(t *testing.T) {
	mgr, _ := setup(t)

	assert.Equal(t, "Cog music disabled.", run(t, mgr, "disable", []string{"music"}, nil))
	assert.Contains(t, run(t, mgr, "cogs", nil, nil), "music [disabled]")
	assert.NotContains(t, run(t, mgr, "commands", nil, nil), "music:")
	assert.Equal(t, "music: pause play", run(t, mgr, "commands", []string{"music"}, map[string]any{"all": true}))
	assert.Equal(t, "No commands.", run(t, mgr, "commands", []string{"music"}, nil))

	assert.Equal(t, "Cog music enabled.", run(t, mgr, "enable", []string{"music"}, nil))
	assert.Contains(t, run(t, mgr, "commands", nil, nil), "music: pause play")

	assert.Equal(t, "The admin cog cannot be disabled.", run(t, mgr, "disable", []string{"admin"}, nil))
	assert.Equal(t, "No such cog.", run(t, mgr, "enable", []string{"ghost"}, nil))
}

func TestAdmin_Aliases(t *testing.T) {
	mgr, _ := setup(t)

	assert.Equal(t, "p now runs play.", run(t, mgr, "alias", []string{"play", "p"}, nil))
	res, err := mgr.CallCommand(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "playing", res.Value)

	assert.Equal(t, "That alias already belongs to play.", run(t, mgr, "alias", []string{"pause", "p"}, nil))
	assert.Equal(t, "p now runs pause.", run(t, mgr, "alias", []string{"pause", "p"}, map[string]any{"force": true}))

	assert.Equal(t, "A command's own name cannot be removed as an alias.", run(t, mgr, "unalias", []string{"play"}, nil))
	assert.Equal(t, "Alias p removed.", run(t, mgr, "unalias", []string{"p"}, nil))
	assert.Equal(t, "No such alias.", run(t, mgr, "unalias", []string{"p"}, nil))
}

func TestAdmin_UsageDoesNotDisableCog(t *testing.T) {
	mgr, _ := setup(t)

	out := run(t, mgr, "alias", []string{"only-one"}, nil)
	assert.Contains(t, out, "Usage: alias")

	cogs, err := mgr.Cogs(context.Background())
	require.NoError(t, err)
	for _, c := range cogs {
		assert.True(t, c.Loaded(), "cog %s was disabled", c.Name)
	}
}
