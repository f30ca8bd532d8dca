// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package lifecycle is the entry point for hosts: it serialises module loads
// against command dispatch and listing, and translates every failure into
// one of the error kinds in package cog.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/cogwheel/internal/alias"
	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/loader"
	"github.com/holomush/cogwheel/internal/lock"
	"github.com/holomush/cogwheel/internal/module"
)

var tracer = otel.Tracer("cogwheel/lifecycle")

// ListOptions filter command listings.
type ListOptions struct {
	// IncludeDisabled lists commands of disabled cogs too.
	IncludeDisabled bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithFaultPolicy replaces the default policy of disabling a cog whose
// handler failed.
func WithFaultPolicy(p FaultPolicy) Option {
	return func(m *Manager) { m.fault = p }
}

// WithHost sets the opaque handle passed to init, cleanup and loop handlers.
func WithHost(host any) Option {
	return func(m *Manager) { m.loaderOpts = append(m.loaderOpts, loader.WithHost(host)) }
}

// WithDrainLoops makes reloads wait up to timeout for stopped loops.
func WithDrainLoops(timeout time.Duration) Option {
	return func(m *Manager) { m.loaderOpts = append(m.loaderOpts, loader.WithDrainLoops(timeout)) }
}

// Manager owns the registry, alias table and loader of one process.
type Manager struct {
	registry   *cog.Registry
	aliases    *alias.Table
	loader     *loader.Loader
	barrier    *lock.Barrier
	locks      *lock.Set
	fault      FaultPolicy
	loaderOpts []loader.Option

	scheduled sync.WaitGroup
	closed    atomic.Bool
}

// New creates a manager loading modules through importer.
func New(registry *cog.Registry, aliases *alias.Table, importer module.Importer, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		aliases:  aliases,
		barrier:  lock.NewBarrier(),
		locks:    lock.NewSet(),
		fault:    DisableOnFault,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.loader = loader.New(registry, aliases, importer,
		append([]loader.Option{loader.WithLocks(m.locks)}, m.loaderOpts...)...)
	return m
}

type dispatchKey struct{}

func inDispatch(ctx context.Context) bool {
	v, _ := ctx.Value(dispatchKey{}).(bool)
	return v
}

// LoadModule loads or reloads a module. It waits for in-flight dispatches
// and listings to finish and keeps new ones out until the load is done.
// Called from inside a command handler it fails with REENTRANT_LOAD, since
// the handler's own dispatch would never drain; use ScheduleLoad there.
func (m *Manager) LoadModule(ctx context.Context, name string) (err error) {
	if inDispatch(ctx) {
		return cog.ErrReentrantLoad(name)
	}
	if m.closed.Load() {
		return cog.ErrModuleLoad(name, oops.Errorf("manager is closed"))
	}

	ctx, span := tracer.Start(ctx, "cog.load",
		trace.WithAttributes(attribute.String("module.name", name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return m.barrier.Exclusive(ctx, func() error {
		if m.closed.Load() {
			return cog.ErrModuleLoad(name, oops.Errorf("manager is closed"))
		}
		return m.loader.Load(ctx, name)
	})
}

// ScheduleLoad runs LoadModule on its own goroutine and delivers the result
// on the returned channel. The load starts once the caller's dispatch, if
// any, has exited.
func (m *Manager) ScheduleLoad(ctx context.Context, name string) <-chan error {
	done := make(chan error, 1)
	if m.closed.Load() {
		done <- cog.ErrModuleLoad(name, oops.Errorf("manager is closed"))
		close(done)
		return done
	}

	ctx = context.WithValue(context.WithoutCancel(ctx), dispatchKey{}, false)
	m.scheduled.Add(1)
	go func() {
		defer m.scheduled.Done()
		defer close(done)
		done <- m.LoadModule(ctx, name)
	}()
	return done
}

// ModuleState reports the load state of a module.
func (m *Manager) ModuleState(ctx context.Context, name string) (state loader.State, err error) {
	err = m.barrier.Shared(ctx, func() error {
		state = m.loader.State(name)
		return nil
	})
	return state, err
}

// Modules lists loaded modules.
func (m *Manager) Modules(ctx context.Context) (names []string, err error) {
	err = m.barrier.Shared(ctx, func() error {
		names = m.loader.Modules()
		return nil
	})
	return names, err
}

// RegisterCommand adds a command outside any module, e.g. a host built-in.
// Its persisted aliases are restored from the alias table.
func (m *Manager) RegisterCommand(ctx context.Context, cogName string, cmd *cog.Command) error {
	if inDispatch(ctx) {
		return cog.ErrReentrantLoad(cogName)
	}
	return m.barrier.Exclusive(ctx, func() error {
		if err := m.registry.RegisterCommand(cogName, cmd); err != nil {
			return err
		}
		if owner, ok := m.aliases.Resolve(cmd.Name); ok && owner != cmd.Name {
			m.registry.RemoveAlias(owner, cmd.Name)
		}
		m.aliases.Ensure(cmd.Name)
		cmd.SetAliases(m.aliases.Aliases(cmd.Name))
		return nil
	})
}

// EnableCog marks a cog loaded.
func (m *Manager) EnableCog(ctx context.Context, name string) error {
	return m.barrier.Shared(ctx, func() error {
		return m.registry.EnableCog(name)
	})
}

// DisableCog marks a cog not loaded. Its commands stay callable but are
// hidden from default listings.
func (m *Manager) DisableCog(ctx context.Context, name string) error {
	return m.barrier.Shared(ctx, func() error {
		if err := m.registry.DisableCog(name); err != nil {
			return err
		}
		cog.RecordCogDisabled(name)
		return nil
	})
}

// CogModuleName returns the module that registered a cog.
func (m *Manager) CogModuleName(ctx context.Context, cogName string) (name string, err error) {
	err = m.barrier.Shared(ctx, func() error {
		name, err = m.registry.CogModule(cogName)
		return err
	})
	return name, err
}

// resolve maps a name or alias to a canonical command name.
func (m *Manager) resolve(name string) string {
	if canonical, ok := m.aliases.Resolve(name); ok {
		return canonical
	}
	return name
}

// Command looks up a command by name or alias.
func (m *Manager) Command(ctx context.Context, name string) (cmd *cog.Command, err error) {
	err = m.barrier.Shared(ctx, func() error {
		cmd, err = m.registry.Command(m.resolve(name))
		if err != nil {
			return cog.ErrCommandNotFound(name)
		}
		return nil
	})
	return cmd, err
}

// CallCommand dispatches a command by name or alias. An unknown name is
// returned as a NOT_FOUND error. A failing handler is not: the result
// carries OutcomeHandlerError and the fault policy has been applied.
func (m *Manager) CallCommand(ctx context.Context, name string, call *cog.Call) (res cog.Result, err error) {
	ctx, span := tracer.Start(ctx, "cog.call",
		trace.WithAttributes(attribute.String("command.invoked_as", name)))
	defer func() {
		if res.Command != "" {
			span.SetAttributes(
				attribute.String("command.name", res.Command),
				attribute.String("cog.name", res.Cog))
		}
		span.SetAttributes(attribute.String("command.outcome", res.Outcome.String()))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.End()
	}()

	if call == nil {
		call = &cog.Call{}
	}
	call.InvokedAs = name

	// The fault policy runs before the barrier is left so a queued load
	// always sees the cog state the failure produced.
	err = m.barrier.Shared(ctx, func() error {
		res = m.registry.Invoke(context.WithValue(ctx, dispatchKey{}, true), m.resolve(name), call)
		if res.Outcome == cog.OutcomeHandlerError && m.fault != nil {
			m.fault(ctx, m.registry, res)
		}
		return nil
	})
	if err != nil {
		return cog.Result{Outcome: cog.OutcomeNotFound, Err: err}, err
	}

	if res.Outcome == cog.OutcomeNotFound {
		res.Err = cog.ErrCommandNotFound(name)
		return res, res.Err
	}
	return res, nil
}

// AddAlias binds alias to a command. If the alias belongs to another
// command the call fails with ALREADY_EXISTS unless forced. A command's own
// name can never be taken.
func (m *Manager) AddAlias(ctx context.Context, command, alias string, forced bool) error {
	return m.barrier.Shared(ctx, func() error {
		return m.locks.With(ctx, lock.KeyAlias, func() error {
			canonical := m.resolve(command)
			if _, err := m.registry.Command(canonical); err != nil {
				return err
			}
			if other, err := m.registry.Command(alias); err == nil && other.Name != canonical {
				return cog.ErrAliasExists(alias, other.Name)
			}

			displaced, err := m.aliases.Add(canonical, alias, forced)
			if err != nil {
				return err
			}
			if displaced != "" {
				m.registry.RemoveAlias(displaced, alias)
			}
			if err := m.registry.AddAlias(canonical, alias); err != nil {
				return err
			}
			return m.persist(ctx)
		})
	})
}

// RemoveAlias unbinds an alias. Removing a command's own name fails with
// INVARIANT_VIOLATION and changes nothing.
func (m *Manager) RemoveAlias(ctx context.Context, alias string) error {
	return m.barrier.Shared(ctx, func() error {
		return m.locks.With(ctx, lock.KeyAlias, func() error {
			if m.aliases.Canonical(alias) {
				return cog.ErrCanonicalAlias(alias)
			}
			if _, err := m.registry.Command(alias); err == nil {
				return cog.ErrCanonicalAlias(alias)
			}

			command, err := m.aliases.Remove(alias)
			if err != nil {
				return err
			}
			m.registry.RemoveAlias(command, alias)
			return m.persist(ctx)
		})
	})
}

func (m *Manager) persist(ctx context.Context) error {
	if !m.aliases.Persistent() {
		return nil
	}
	return m.aliases.Save(ctx)
}

// Commands lists commands sorted by name. Commands of disabled cogs are left
// out unless opts asks for them.
func (m *Manager) Commands(ctx context.Context, opts ...ListOptions) (cmds []*cog.Command, err error) {
	err = m.barrier.Shared(ctx, func() error {
		cmds = m.visible(m.registry.Commands(), listOptions(opts))
		return nil
	})
	return cmds, err
}

// Cogs lists every cog, enabled or not.
func (m *Manager) Cogs(ctx context.Context) (cogs []*cog.Cog, err error) {
	err = m.barrier.Shared(ctx, func() error {
		cogs = m.registry.Cogs()
		return nil
	})
	return cogs, err
}

// CogCommands lists the commands of one cog. A disabled cog lists nothing
// unless opts asks for its commands.
func (m *Manager) CogCommands(ctx context.Context, cogName string, opts ...ListOptions) (cmds []*cog.Command, err error) {
	err = m.barrier.Shared(ctx, func() error {
		all, err := m.registry.CogCommands(cogName)
		if err != nil {
			return err
		}
		cmds = m.visible(all, listOptions(opts))
		return nil
	})
	return cmds, err
}

func listOptions(opts []ListOptions) ListOptions {
	if len(opts) == 0 {
		return ListOptions{}
	}
	return opts[0]
}

func (m *Manager) visible(cmds []*cog.Command, opts ListOptions) []*cog.Command {
	if opts.IncludeDisabled {
		return cmds
	}
	out := make([]*cog.Command, 0, len(cmds))
	for _, cmd := range cmds {
		if c, err := m.registry.Cog(cmd.Cog); err == nil && c.Loaded() {
			out = append(out, cmd)
		}
	}
	return out
}

// Close waits for scheduled loads, then runs every module's cleanup hooks
// and stops its loops. Loads requested after Close fail.
func (m *Manager) Close(ctx context.Context) error {
	if m.closed.Swap(true) {
		return nil
	}

	waited := make(chan struct{})
	go func() {
		m.scheduled.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return oops.Wrapf(ctx.Err(), "waiting for scheduled loads")
	}

	return m.locks.With(ctx, lock.KeyClear, func() error {
		return m.barrier.Exclusive(ctx, func() error {
			m.loader.Shutdown(ctx)
			return nil
		})
	})
}
