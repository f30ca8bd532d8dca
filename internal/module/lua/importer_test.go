// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/module"
	cogLua "github.com/holomush/cogwheel/internal/module/lua"
)

const musicScript = `
cog.name = "music"
cog.doc = "Plays songs"

local queue = {}

cog.init("reset", function(host)
  queue = {}
end)

cog.command("play", function(call)
  table.insert(queue, call.args[1])
  return "playing " .. call.args[1]
end, {help = "Play a song", aliases = {"p"}})

cog.command("queue", function(call)
  return queue
end)

cog.command("fail", function(call)
  error("speaker on fire")
end)

cog.loop("tick", function(host) end, 0.5)
cog.cleanup("flush", function(host) queue = {} end)
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func setupTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "music.lua"), musicScript)
	writeFile(t, filepath.Join(dir, "games", "package.yaml"), `
name: games
version: 1.0.0
doc: Games
multi_cog: true
modules: ALL
`)
	writeFile(t, filepath.Join(dir, "games", "dice.lua"), `
cog.name = "dice"
cog.command("roll", function(call) return 4 end)
`)
	writeFile(t, filepath.Join(dir, "games", "cards", "init.lua"), `
cog.name = "cards"
cog.command("deal", function(call) return {"ace", "king"} end)
`)
	writeFile(t, filepath.Join(dir, "games", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "scripted", "init.lua"), `
cog.multi_cog = true
cog.modules = {"one"}
`)
	writeFile(t, filepath.Join(dir, "broken.lua"), `error("import failure")`)
	writeFile(t, filepath.Join(dir, "empty", "README"), "no module here")
	return dir
}

func setupModule(t *testing.T, def *module.Definition) *module.Registrar {
	t.Helper()
	r := module.NewRegistrar(def.Name)
	require.NotNil(t, def.Setup)
	require.NoError(t, def.Setup(r))
	require.NoError(t, r.Err())
	return r
}

func TestImporter_SingleCogFile(t *testing.T) {
	imp := cogLua.NewImporter(setupTree(t))
	ctx := context.Background()

	def, err := imp.Import(ctx, "music")
	require.NoError(t, err)
	defer def.Close()

	assert.Equal(t, "music", def.Name)
	assert.Equal(t, "music", def.Cog)
	assert.Equal(t, "Plays songs", def.Doc)
	assert.False(t, def.MultiCog)

	r := setupModule(t, def)
	require.Len(t, r.Inits(), 1)
	require.Len(t, r.Commands(), 3)
	require.Len(t, r.Loops(), 1)
	require.Len(t, r.Cleanups(), 1)
	assert.Equal(t, 500*time.Millisecond, r.Loops()[0].Delay)

	play := r.Commands()[0]
	assert.Equal(t, "play", play.Name)
	assert.Equal(t, "Play a song", play.Help)
	assert.Equal(t, []string{"p"}, play.Aliases)

	require.NoError(t, r.Inits()[0].Fn(ctx, "host"))

	got, err := play.Handler(ctx, &cog.Call{Command: "play", Args: []string{"song"}})
	require.NoError(t, err)
	assert.Equal(t, "playing song", got)

	got, err = r.Commands()[1].Handler(ctx, &cog.Call{Command: "queue"})
	require.NoError(t, err)
	assert.Equal(t, []any{"song"}, got)

	_, err = r.Commands()[2].Handler(ctx, &cog.Call{Command: "fail"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speaker on fire")
}

func TestImporter_ClosedStateRefusesCalls(t *testing.T) {
	imp := cogLua.NewImporter(setupTree(t))

	def, err := imp.Import(context.Background(), "music")
	require.NoError(t, err)
	r := setupModule(t, def)

	def.Close()
	_, err = r.Commands()[0].Handler(context.Background(), &cog.Call{Args: []string{"x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestImporter_ReimportIsFresh(t *testing.T) {
	imp := cogLua.NewImporter(setupTree(t))
	ctx := context.Background()

	first, err := imp.Import(ctx, "music")
	require.NoError(t, err)
	defer first.Close()
	r1 := setupModule(t, first)
	_, err = r1.Commands()[0].Handler(ctx, &cog.Call{Args: []string{"a"}})
	require.NoError(t, err)

	second, err := imp.Import(ctx, "music")
	require.NoError(t, err)
	defer second.Close()
	r2 := setupModule(t, second)

	got, err := r2.Commands()[1].Handler(ctx, &cog.Call{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, got, "new state starts with an empty queue")
}

func TestImporter_ManifestPackage(t *testing.T) {
	imp := cogLua.NewImporter(setupTree(t))
	ctx := context.Background()

	def, err := imp.Import(ctx, "games")
	require.NoError(t, err)
	assert.True(t, def.MultiCog)
	assert.Equal(t, "Games", def.Doc)
	assert.Equal(t, []string{"ALL"}, def.Submodules)

	names, err := module.ResolveSubmodules(ctx, imp, def)
	require.NoError(t, err)
	assert.Equal(t, []string{"games.cards", "games.dice"}, names)

	cards, err := imp.Import(ctx, "games.cards")
	require.NoError(t, err)
	defer cards.Close()
	assert.Equal(t, "cards", cards.Cog)

	r := setupModule(t, cards)
	got, err := r.Commands()[0].Handler(ctx, &cog.Call{})
	require.NoError(t, err)
	assert.Equal(t, []any{"ace", "king"}, got)
}

func TestImporter_ScriptDeclaresMultiCog(t *testing.T) {
	imp := cogLua.NewImporter(setupTree(t))

	def, err := imp.Import(context.Background(), "scripted")
	require.NoError(t, err)
	assert.True(t, def.MultiCog)
	assert.Equal(t, []string{"one"}, def.Submodules)
	assert.Nil(t, def.Setup)
}

func TestImporter_Errors(t *testing.T) {
	imp := cogLua.NewImporter(setupTree(t))
	ctx := context.Background()

	_, err := imp.Import(ctx, "missing")
	assert.ErrorIs(t, err, module.ErrUnknownModule)

	_, err = imp.Import(ctx, "../etc")
	assert.ErrorIs(t, err, module.ErrUnknownModule)

	_, err = imp.Import(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, module.ErrUnknownModule)
	assert.Contains(t, err.Error(), "import failure")

	_, err = imp.Import(ctx, "empty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init.lua")
}

func TestImporter_Discover(t *testing.T) {
	imp := cogLua.NewImporter(setupTree(t))
	ctx := context.Background()

	names, err := imp.Discover(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "games", "music", "scripted"}, names)

	names, err = imp.Discover(ctx, "music")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = imp.Discover(ctx, "nothing")
	assert.ErrorIs(t, err, module.ErrUnknownModule)
}

func TestImporter_ModuleFor(t *testing.T) {
	dir := setupTree(t)
	imp := cogLua.NewImporter(dir)

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{filepath.Join(dir, "music.lua"), "music", true},
		{filepath.Join(dir, "games", "cards", "init.lua"), "games", true},
		{filepath.Join(dir, "games"), "games", true},
		{dir, "", false},
		{filepath.Join(filepath.Dir(dir), "elsewhere.lua"), "", false},
		{filepath.Join(dir, ".hidden.lua"), "", false},
	}
	for _, tt := range tests {
		got, ok := imp.ModuleFor(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}
