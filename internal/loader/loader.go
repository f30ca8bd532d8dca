// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package loader imports modules, commits their commands to the registry and
// runs their background loops. Callers serialise loads; the lifecycle
// manager does so by holding the barrier exclusively.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/cogwheel/internal/alias"
	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/lock"
	"github.com/holomush/cogwheel/internal/module"
	"github.com/holomush/cogwheel/pkg/errutil"
)

// State is the load state of a module.
type State int

// Module load states.
const (
	NotLoaded State = iota
	Loading
	Loaded
	Reloading
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Reloading:
		return "reloading"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// record is everything the loader remembers about one module.
type record struct {
	name       string
	state      State
	generation ulid.ULID
	def        *module.Definition
	cog        string
	children   []string
	cleanups   []module.NamedHook
	loops      []*Loop
	tornDown   bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithHost sets the opaque handle passed to hooks and loops.
func WithHost(host any) Option {
	return func(l *Loader) { l.host = host }
}

// WithDrainLoops makes teardown wait up to timeout for stopped loops to
// finish their current iteration. Without it, stop is soft: the loader moves
// on while an iteration that already started completes on its own.
func WithDrainLoops(timeout time.Duration) Option {
	return func(l *Loader) { l.drainTimeout = timeout }
}

// WithLocks shares a lock set with other components.
func WithLocks(locks *lock.Set) Option {
	return func(l *Loader) { l.locks = locks }
}

// Loader loads and reloads modules.
type Loader struct {
	registry     *cog.Registry
	aliases      *alias.Table
	importer     module.Importer
	locks        *lock.Set
	host         any
	drainTimeout time.Duration

	modules map[string]*record
	mu      sync.Mutex
}

// New creates a loader that commits to registry and restores aliases from
// aliases.
func New(registry *cog.Registry, aliases *alias.Table, importer module.Importer, opts ...Option) *Loader {
	l := &Loader{
		registry: registry,
		aliases:  aliases,
		importer: importer,
		locks:    lock.NewSet(),
		modules:  make(map[string]*record),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the load state of the named module.
func (l *Loader) State(name string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.modules[name]; ok {
		return r.state
	}
	return NotLoaded
}

// Generation returns the id of the named module's current load, or "".
func (l *Loader) Generation(name string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.modules[name]; ok && r.state == Loaded {
		return r.generation.String()
	}
	return ""
}

// Modules returns the names of loaded modules, sorted.
func (l *Loader) Modules() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.modules))
	for name, r := range l.modules {
		if r.state == Loaded {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Loops returns the running loops of the named module.
func (l *Loader) Loops(name string) []*Loop {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.modules[name]; ok {
		return append([]*Loop(nil), r.loops...)
	}
	return nil
}

func (l *Loader) record(name string) *record {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.modules[name]
	if !ok {
		r = &record{name: name}
		l.modules[name] = r
	}
	return r
}

func (l *Loader) setState(r *record, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r.state = s
}

// Load imports or reloads the named module. A module that was loaded before
// has its cleanup hooks run and its loops stopped first. Failures are
// reported as MODULE_LOAD_FAILED; the module keeps its previous registry
// entries. A container commits its submodules together: when one fails,
// none of them is committed.
func (l *Loader) Load(ctx context.Context, name string) error {
	start := time.Now()
	err := l.load(ctx, name)
	if err != nil {
		cog.RecordModuleLoad(name, "error", time.Since(start))
		return cog.ErrModuleLoad(name, err)
	}
	cog.RecordModuleLoad(name, "success", time.Since(start))
	return nil
}

func (l *Loader) load(ctx context.Context, name string) error {
	p, err := l.prepare(ctx, name)
	if err != nil {
		return err
	}

	before := l.aliases.Snapshot()
	if err := l.commit(ctx, p); err != nil {
		l.abandon(p)
		return err
	}
	l.persistAliases(ctx, before)
	return nil
}

// pending is a module that has been imported and set up but is not yet
// visible in the registry.
type pending struct {
	r        *record
	prev     State
	gen      ulid.ULID
	logger   *slog.Logger
	def      *module.Definition
	reg      *module.Registrar
	cmds     []*cog.Command
	subs     []string
	children []*pending
}

// prepare imports name, and every submodule of a container, and runs setup
// and init hooks without touching the registry. On failure every module it
// touched returns to its previous state and nothing is committed.
func (l *Loader) prepare(ctx context.Context, name string) (*pending, error) {
	r := l.record(name)
	prev := r.state
	switch prev {
	case Loading, Reloading:
		return nil, oops.With("module", name).Errorf("module %s is already being loaded", name)
	case Loaded:
		l.setState(r, Reloading)
	default:
		l.setState(r, Loading)
	}

	gen := ulid.Make()
	p := &pending{
		r:      r,
		prev:   prev,
		gen:    gen,
		logger: slog.Default().With("module", name, "generation", gen.String()),
	}
	p.logger.DebugContext(ctx, "loading module", "state", prev.String())

	if err := l.stage(ctx, p); err != nil {
		l.abandon(p)
		return nil, err
	}
	return p, nil
}

func (l *Loader) stage(ctx context.Context, p *pending) error {
	r := p.r
	if r.def != nil && !r.tornDown {
		l.teardown(ctx, r, p.logger)
	}

	def, err := l.importer.Import(ctx, r.name)
	if err != nil {
		return oops.With("module", r.name).Wrapf(err, "import")
	}
	p.def = def

	if def.MultiCog {
		subs, err := module.ResolveSubmodules(ctx, l.importer, def)
		if err != nil {
			return err
		}
		p.subs = subs
		for _, sub := range subs {
			child, err := l.prepare(ctx, sub)
			if err != nil {
				return oops.With("submodule", sub).Wrapf(err, "submodule %s", sub)
			}
			p.children = append(p.children, child)
		}
		return nil
	}

	if def.Cog == "" {
		return oops.With("module", r.name).Errorf("module %s does not declare a cog name", r.name)
	}

	reg := module.NewRegistrar(r.name)
	if def.Setup != nil {
		if err := def.Setup(reg); err != nil {
			return oops.With("module", r.name).Wrapf(err, "setup")
		}
	}
	if err := reg.Err(); err != nil {
		return oops.With("module", r.name).Wrapf(err, "registration")
	}

	for _, h := range reg.Inits() {
		if err := runHook(ctx, h.Fn, l.host); err != nil {
			return oops.With("module", r.name).With("hook", h.Name).Wrapf(err, "init hook %s", h.Name)
		}
	}

	specs := reg.Commands()
	p.cmds = make([]*cog.Command, 0, len(specs))
	for _, spec := range specs {
		cmd := cog.NewCommand(spec.Name, spec.Handler)
		cmd.Help = spec.Help
		p.cmds = append(p.cmds, cmd)
	}
	p.reg = reg
	return nil
}

// abandon releases what prepare staged for p and its submodules and restores
// their previous states. Modules already committed are left alone.
func (l *Loader) abandon(p *pending) {
	for _, child := range p.children {
		l.abandon(child)
	}
	l.mu.Lock()
	committed := p.def != nil && p.r.def == p.def
	if !committed {
		p.r.state = p.prev
	}
	l.mu.Unlock()
	if !committed && p.def != nil && p.def.Close != nil {
		p.def.Close()
	}
}

// commit makes a prepared module and its submodules visible.
func (l *Loader) commit(ctx context.Context, p *pending) error {
	if p.def.MultiCog {
		for _, child := range p.children {
			if err := l.commit(ctx, child); err != nil {
				return err
			}
		}
		l.mu.Lock()
		p.r.children = p.subs
		l.mu.Unlock()
	} else if err := l.commitCog(ctx, p); err != nil {
		return err
	}

	r := p.r
	l.mu.Lock()
	old := r.def
	r.def = p.def
	r.generation = p.gen
	r.tornDown = false
	r.state = Loaded
	l.mu.Unlock()
	if old != nil && old.Close != nil {
		old.Close()
	}

	p.logger.InfoContext(ctx, "module loaded",
		"cog", r.cog,
		"multi_cog", p.def.MultiCog,
		"loops", len(r.loops))
	return nil
}

func (l *Loader) commitCog(ctx context.Context, p *pending) error {
	r, def, cmds := p.r, p.def, p.cmds

	var retired []string
	if r.cog != "" && r.cog != def.Cog {
		retired = l.retireCog(ctx, r.cog, r.name)
	}

	removed, err := l.registry.ReplaceCog(def.Cog, r.name, def.Doc, cmds)
	if err != nil {
		return err
	}
	l.dropAliases(append(removed, retired...), cmds)
	if err := l.registry.EnableCog(def.Cog); err != nil {
		return err
	}
	l.restoreAliases(ctx, cmds, p.reg.Commands())

	loops := make([]*Loop, 0, len(p.reg.Loops()))
	for _, spec := range p.reg.Loops() {
		lp := newLoop(r.name+":"+spec.Name, r.name, spec, l.host, l.locks)
		lp.start(context.WithoutCancel(ctx))
		loops = append(loops, lp)
	}

	l.mu.Lock()
	r.cog = def.Cog
	r.cleanups = p.reg.Cleanups()
	r.loops = loops
	l.mu.Unlock()
	return nil
}

// persistAliases saves the alias table when committing a module changed it.
func (l *Loader) persistAliases(ctx context.Context, before map[string][]string) {
	if !l.aliases.Persistent() {
		return
	}
	if maps.EqualFunc(before, l.aliases.Snapshot(), slices.Equal[[]string]) {
		return
	}
	err := l.locks.With(ctx, lock.KeyAlias, func() error {
		return l.aliases.Save(ctx)
	})
	if err != nil {
		errutil.LogWarnContext(ctx, nil, "saving aliases after load", err)
	}
}

// restoreAliases binds each command's persisted aliases, then any default
// aliases the module asked for that nobody else owns.
func (l *Loader) restoreAliases(ctx context.Context, cmds []*cog.Command, specs []module.CommandSpec) {
	for i, cmd := range cmds {
		if owner, ok := l.aliases.Resolve(cmd.Name); ok && owner != cmd.Name {
			l.registry.RemoveAlias(owner, cmd.Name)
		}
		l.aliases.Ensure(cmd.Name)
		for _, a := range specs[i].Aliases {
			if owner, ok := l.aliases.Resolve(a); ok {
				if owner != cmd.Name {
					slog.DebugContext(ctx, "default alias already taken",
						"command", cmd.Name,
						"alias", a,
						"owner", owner)
				}
				continue
			}
			if _, err := l.aliases.Add(cmd.Name, a, false); err != nil {
				errutil.LogWarnContext(ctx, nil, "default alias rejected", err, "command", cmd.Name)
			}
		}
		cmd.SetAliases(l.aliases.Aliases(cmd.Name))
	}
}

// retireCog empties a cog the module no longer registers and returns the
// command names it held.
func (l *Loader) retireCog(ctx context.Context, cogName, moduleName string) []string {
	removed, err := l.registry.ReplaceCog(cogName, moduleName, "", nil)
	if err != nil {
		errutil.LogWarnContext(ctx, nil, "retire cog", err, "cog", cogName)
		return nil
	}
	if err := l.registry.DisableCog(cogName); err != nil {
		errutil.LogWarnContext(ctx, nil, "disable retired cog", err, "cog", cogName)
	}
	slog.WarnContext(ctx, "module renamed its cog; previous cog emptied",
		"module", moduleName,
		"cog", cogName)
	return removed
}

// dropAliases forgets the aliases of commands that are gone, keeping any
// that the new command set registers again.
func (l *Loader) dropAliases(names []string, current []*cog.Command) {
	keep := make(map[string]struct{}, len(current))
	for _, cmd := range current {
		keep[cmd.Name] = struct{}{}
	}
	for _, name := range names {
		if _, ok := keep[name]; !ok {
			l.aliases.Drop(name)
		}
	}
}

// teardown runs cleanup hooks and stops loops. Hook errors are logged.
func (l *Loader) teardown(ctx context.Context, r *record, logger *slog.Logger) {
	for _, h := range r.cleanups {
		if err := runHook(ctx, h.Fn, l.host); err != nil {
			errutil.LogErrorContext(ctx, logger, "cleanup hook failed", err, "hook", h.Name)
		}
	}
	for _, lp := range r.loops {
		lp.Stop()
	}
	if l.drainTimeout > 0 && len(r.loops) > 0 {
		drainCtx, cancel := context.WithTimeout(ctx, l.drainTimeout)
		for _, lp := range r.loops {
			if err := lp.Wait(drainCtx); err != nil {
				errutil.LogWarnContext(ctx, logger, "loop did not drain", err, "loop", lp.ID())
				break
			}
		}
		cancel()
	}

	l.mu.Lock()
	r.cleanups = nil
	r.loops = nil
	r.tornDown = true
	l.mu.Unlock()
}

// Shutdown tears down every loaded module and releases its resources.
func (l *Loader) Shutdown(ctx context.Context) {
	l.mu.Lock()
	records := make([]*record, 0, len(l.modules))
	for _, r := range l.modules {
		if r.def != nil {
			records = append(records, r)
		}
	}
	l.mu.Unlock()
	sort.Slice(records, func(i, j int) bool { return records[i].name > records[j].name })

	for _, r := range records {
		logger := slog.Default().With("module", r.name)
		if !r.tornDown {
			l.teardown(ctx, r, logger)
		}
		if r.def.Close != nil {
			r.def.Close()
		}
		l.mu.Lock()
		r.def = nil
		r.state = NotLoaded
		l.mu.Unlock()
		logger.DebugContext(ctx, "module shut down")
	}
}

func runHook(ctx context.Context, fn module.Hook, host any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = oops.
				With("stack", string(debug.Stack())).
				Errorf("hook panicked: %v", p)
		}
	}()
	return fn(ctx, host)
}

// Children returns the submodules a container loaded most recently.
func (l *Loader) Children(name string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.modules[name]; ok {
		return append([]string(nil), r.children...)
	}
	return nil
}
