// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package module

import (
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/cogwheel/internal/cog"
)

// NamedHook is an init or cleanup hook.
type NamedHook struct {
	Name string
	Fn   Hook
}

// CommandSpec is a command staged for registration.
type CommandSpec struct {
	Name    string
	Help    string
	Aliases []string
	Handler cog.Handler
}

// LoopSpec is a background loop staged for start.
type LoopSpec struct {
	Name  string
	Fn    LoopFunc
	Delay time.Duration
}

// CommandOption configures a staged command.
type CommandOption func(*CommandSpec)

// WithHelp sets a command's help text.
func WithHelp(help string) CommandOption {
	return func(s *CommandSpec) { s.Help = help }
}

// WithAliases adds default aliases, bound only when no persisted entry
// claims them.
func WithAliases(aliases ...string) CommandOption {
	return func(s *CommandSpec) { s.Aliases = append(s.Aliases, aliases...) }
}

// Registrar collects a module's registrations. Nothing it holds is visible to
// the registry until the loader commits it.
type Registrar struct {
	module   string
	inits    []NamedHook
	commands []CommandSpec
	loops    []LoopSpec
	cleanups []NamedHook
	seen     map[string]map[string]struct{}
	errs     []error
}

// NewRegistrar creates a registrar for the named module.
func NewRegistrar(module string) *Registrar {
	return &Registrar{
		module: module,
		seen:   make(map[string]map[string]struct{}),
	}
}

func (r *Registrar) claim(kind, name string, valid bool) bool {
	if name == "" || !valid {
		r.errs = append(r.errs, oops.
			With("module", r.module).
			With("kind", kind).
			With("name", name).
			Errorf("%s registration requires a name and a function", kind))
		return false
	}
	names, ok := r.seen[kind]
	if !ok {
		names = make(map[string]struct{})
		r.seen[kind] = names
	}
	if _, dup := names[name]; dup {
		r.errs = append(r.errs, oops.
			With("module", r.module).
			With("kind", kind).
			With("name", name).
			Errorf("duplicate %s %q", kind, name))
		return false
	}
	names[name] = struct{}{}
	return true
}

// Init registers a hook run once when the module loads.
func (r *Registrar) Init(name string, fn Hook) {
	if r.claim("init", name, fn != nil) {
		r.inits = append(r.inits, NamedHook{Name: name, Fn: fn})
	}
}

// Command registers a command handler.
func (r *Registrar) Command(name string, handler cog.Handler, opts ...CommandOption) {
	if !r.claim("command", name, handler != nil) {
		return
	}
	spec := CommandSpec{Name: name, Handler: handler}
	for _, opt := range opts {
		opt(&spec)
	}
	r.commands = append(r.commands, spec)
}

// Loop registers a background loop that sleeps delay between iterations.
func (r *Registrar) Loop(name string, fn LoopFunc, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	if r.claim("loop", name, fn != nil) {
		r.loops = append(r.loops, LoopSpec{Name: name, Fn: fn, Delay: delay})
	}
}

// Cleanup registers a hook run before the module is torn down.
func (r *Registrar) Cleanup(name string, fn Hook) {
	if r.claim("cleanup", name, fn != nil) {
		r.cleanups = append(r.cleanups, NamedHook{Name: name, Fn: fn})
	}
}

// Err reports every invalid or duplicate registration.
func (r *Registrar) Err() error {
	return errors.Join(r.errs...)
}

// Module returns the module name the registrar collects for.
func (r *Registrar) Module() string { return r.module }

// Inits returns the init hooks in registration order.
func (r *Registrar) Inits() []NamedHook { return append([]NamedHook(nil), r.inits...) }

// Commands returns the staged commands in registration order.
func (r *Registrar) Commands() []CommandSpec { return append([]CommandSpec(nil), r.commands...) }

// Loops returns the staged loops in registration order.
func (r *Registrar) Loops() []LoopSpec { return append([]LoopSpec(nil), r.loops...) }

// Cleanups returns the cleanup hooks in registration order.
func (r *Registrar) Cleanups() []NamedHook { return append([]NamedHook(nil), r.cleanups...) }
