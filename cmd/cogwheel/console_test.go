// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/cogwheel/internal/alias"
	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/lifecycle"
	"github.com/holomush/cogwheel/internal/module"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantName string
		wantArgs []string
		wantOpts map[string]any
		wantOK   bool
	}{
		{name: "blank", line: "   ", wantOK: false},
		{name: "comment", line: "# note", wantOK: false},
		{name: "bare command", line: "help", wantName: "help", wantOK: true},
		{
			name:     "args",
			line:     "  play  some song ",
			wantName: "play",
			wantArgs: []string{"some", "song"},
			wantOK:   true,
		},
		{
			name:     "options",
			line:     "alias pause p --force --by=console",
			wantName: "alias",
			wantArgs: []string{"pause", "p"},
			wantOpts: map[string]any{"force": true, "by": "console"},
			wantOK:   true,
		},
		{
			name:     "double dash alone is an argument",
			line:     "echo --",
			wantName: "echo",
			wantArgs: []string{"--"},
			wantOK:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, call, ok := parseLine(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, call.Args)
			assert.Equal(t, tt.wantOpts, call.Options)
		})
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "hi", formatValue("hi"))
	assert.Equal(t, "4", formatValue(int64(4)))
	assert.Equal(t, "ace\nking", formatValue([]any{"ace", "king"}))
}

func TestConsole_Run(t *testing.T) {
	catalog := module.NewCatalog()
	var seenHost any
	catalog.Register("music", func() *module.Definition {
		return &module.Definition{Cog: "music", Setup: func(r *module.Registrar) error {
			r.Command("play", func(_ context.Context, call *cog.Call) (any, error) {
				seenHost = call.Host
				return "playing " + strings.Join(call.Args, " "), nil
			})
			r.Command("silent", func(context.Context, *cog.Call) (any, error) { return nil, nil })
			r.Command("fail", func(context.Context, *cog.Call) (any, error) { return nil, errors.New("boom") })
			return nil
		}}
	})
	mgr := lifecycle.New(cog.NewRegistry(), alias.NewTable(), catalog)
	ctx := context.Background()
	require.NoError(t, mgr.LoadModule(ctx, "music"))
	defer mgr.Close(ctx)

	in := strings.NewReader("play blue moon\n\nsilent\nnope\nfail\nquit\nplay never\n")
	out := new(bytes.Buffer)
	con := newConsole(in, out)
	con.mgr = mgr

	err := con.Run(ctx)
	require.ErrorIs(t, err, errQuit)

	assert.Equal(t, strings.Join([]string{
		"playing blue moon",
		"Unknown command. Try 'help'.",
		"That command failed and its cog has been disabled.",
	}, "\n")+"\n", out.String())
	assert.Same(t, con, seenHost)
}

func TestConsole_RunStopsAtEndOfInput(t *testing.T) {
	mgr := lifecycle.New(cog.NewRegistry(), alias.NewTable(), module.NewCatalog())
	defer mgr.Close(context.Background())

	con := newConsole(strings.NewReader(""), new(bytes.Buffer))
	con.mgr = mgr
	require.NoError(t, con.Run(context.Background()))
}
