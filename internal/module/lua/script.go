// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/module"
)

type namedFn struct {
	name string
	fn   *lua.LFunction
}

type commandFn struct {
	namedFn
	help    string
	aliases []string
}

type loopFn struct {
	namedFn
	delay time.Duration
}

// script is one imported module: a Lua state plus what the module
// registered through the cog table. All access to L goes through mu.
type script struct {
	module string
	L      *lua.LState
	mu     sync.Mutex
	closed bool

	inits    []namedFn
	commands []commandFn
	loops    []loopFn
	cleanups []namedFn
}

// installAPI exposes the cog table to the module.
func (s *script) installAPI() {
	L := s.L
	api := L.NewTable()
	L.SetFuncs(api, map[string]lua.LGFunction{
		"init": func(L *lua.LState) int {
			s.inits = append(s.inits, namedFn{L.CheckString(1), L.CheckFunction(2)})
			return 0
		},
		"cleanup": func(L *lua.LState) int {
			s.cleanups = append(s.cleanups, namedFn{L.CheckString(1), L.CheckFunction(2)})
			return 0
		},
		"command": func(L *lua.LState) int {
			c := commandFn{namedFn: namedFn{L.CheckString(1), L.CheckFunction(2)}}
			if opts := L.OptTable(3, nil); opts != nil {
				if help, ok := opts.RawGetString("help").(lua.LString); ok {
					c.help = string(help)
				}
				if aliases, ok := opts.RawGetString("aliases").(*lua.LTable); ok {
					aliases.ForEach(func(_, v lua.LValue) {
						if a, ok := v.(lua.LString); ok {
							c.aliases = append(c.aliases, string(a))
						}
					})
				}
			}
			s.commands = append(s.commands, c)
			return 0
		},
		"loop": func(L *lua.LState) int {
			seconds := float64(L.OptNumber(3, 0))
			s.loops = append(s.loops, loopFn{
				namedFn: namedFn{L.CheckString(1), L.CheckFunction(2)},
				delay:   time.Duration(seconds * float64(time.Second)),
			})
			return 0
		},
		"log": s.logFn,
	})
	L.SetGlobal("cog", api)
}

func (s *script) logFn(L *lua.LState) int {
	level := L.CheckString(1)
	message := L.CheckString(2)

	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.Default().With("module", s.module)
	switch level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}
	return 0
}

// declaration is what the module set on the cog table.
type declaration struct {
	cog        string
	doc        string
	multiCog   bool
	submodules []string
}

func (s *script) declared() declaration {
	var d declaration
	api, ok := s.L.GetGlobal("cog").(*lua.LTable)
	if !ok {
		return d
	}
	if v, ok := api.RawGetString("name").(lua.LString); ok {
		d.cog = string(v)
	}
	if v, ok := api.RawGetString("doc").(lua.LString); ok {
		d.doc = string(v)
	}
	d.multiCog = lua.LVAsBool(api.RawGetString("multi_cog"))
	switch v := api.RawGetString("modules").(type) {
	case lua.LString:
		d.submodules = []string{string(v)}
	case *lua.LTable:
		v.ForEach(func(_, e lua.LValue) {
			if name, ok := e.(lua.LString); ok {
				d.submodules = append(d.submodules, string(name))
			}
		})
	}
	return d
}

// setup replays the module's registrations into r.
func (s *script) setup(r *module.Registrar) error {
	for _, h := range s.inits {
		r.Init(h.name, s.hook(h.fn))
	}
	for _, c := range s.commands {
		r.Command(c.name, s.handler(c.fn), module.WithHelp(c.help), module.WithAliases(c.aliases...))
	}
	for _, l := range s.loops {
		r.Loop(l.name, module.LoopFunc(s.hook(l.fn)), l.delay)
	}
	for _, h := range s.cleanups {
		r.Cleanup(h.name, s.hook(h.fn))
	}
	return nil
}

func (s *script) hook(fn *lua.LFunction) module.Hook {
	return func(ctx context.Context, host any) error {
		_, err := s.call(ctx, fn, func(L *lua.LState) lua.LValue { return hostValue(L, host) })
		return err
	}
}

func (s *script) handler(fn *lua.LFunction) cog.Handler {
	return func(ctx context.Context, call *cog.Call) (any, error) {
		return s.call(ctx, fn, func(L *lua.LState) lua.LValue { return callTable(L, call) })
	}
}

// call runs fn with one argument built inside the lock.
func (s *script) call(ctx context.Context, fn *lua.LFunction, arg func(*lua.LState) lua.LValue) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, oops.In("lua").With("module", s.module).Errorf("module state is closed")
	}

	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	if err := s.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, arg(s.L)); err != nil {
		return nil, oops.In("lua").With("module", s.module).Wrap(err)
	}

	ret := s.L.Get(-1)
	s.L.Pop(1)
	return fromLua(ret), nil
}

// close shuts the state down once no call holds it. A loop iteration that
// is still running when the module is torn down keeps the state alive until
// it returns.
func (s *script) close() {
	if s.mu.TryLock() {
		defer s.mu.Unlock()
		s.shutdownLocked()
		return
	}
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.shutdownLocked()
	}()
}

func (s *script) shutdownLocked() {
	if !s.closed {
		s.closed = true
		s.L.Close()
	}
}
