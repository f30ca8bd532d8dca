// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package alias provides the persistent alias table that maps alternate names
// to canonical command names.
package alias

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/cogwheel/internal/cog"
)

// Table maps aliases to canonical command names. Each canonical name owns an
// ordered alias list that always starts with the name itself.
// It is thread-safe for concurrent access.
type Table struct {
	byCommand map[string][]string // canonical → aliases, canonical first
	owner     map[string]string   // alias → canonical
	store     Store               // nil when persistence is disabled
	mu        sync.RWMutex
}

// Option configures a Table during construction.
type Option func(*Table)

// WithStore attaches a persistence backend. Without one, mutations live only
// for the process lifetime.
func WithStore(s Store) Option {
	return func(t *Table) {
		t.store = s
	}
}

// WithDefaults seeds the table with aliases used when nothing is persisted
// for a command.
func WithDefaults(defaults map[string][]string) Option {
	return func(t *Table) {
		t.mergeLocked(defaults, false)
	}
}

// NewTable creates an alias table.
func NewTable(opts ...Option) *Table {
	t := &Table{
		byCommand: make(map[string][]string),
		owner:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Persistent reports whether mutations are written to a store.
func (t *Table) Persistent() bool {
	return t.store != nil
}

// Load merges persisted aliases into the table. Persisted entries win over
// defaults. A table without a store loads nothing.
func (t *Table) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}

	persisted, err := t.store.Load(ctx)
	if err != nil {
		return oops.With("operation", "load aliases").Wrap(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.mergeLocked(persisted, true)

	slog.DebugContext(ctx, "aliases loaded", "commands", len(persisted))
	return nil
}

// Save writes the whole table to the store. A table without a store does
// nothing.
func (t *Table) Save(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.Save(ctx, t.Snapshot()); err != nil {
		return oops.With("operation", "save aliases").Wrap(err)
	}
	return nil
}

// mergeLocked folds entries into the table. With override set, an alias
// already owned by another command moves to the incoming command.
func (t *Table) mergeLocked(entries map[string][]string, override bool) {
	commands := slices.Sorted(maps.Keys(entries))
	for _, command := range commands {
		t.ensureLocked(command)
		for _, a := range entries[command] {
			if prev, ok := t.owner[a]; ok && prev != command {
				if !override || prev == a {
					continue
				}
				t.detachLocked(a)
			}
			t.attachLocked(command, a)
		}
	}
}

// Ensure guarantees the command has an entry containing its own name.
func (t *Table) Ensure(command string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLocked(command)
}

func (t *Table) ensureLocked(command string) {
	if prev, ok := t.owner[command]; ok && prev != command {
		// A canonical name always resolves to itself.
		t.detachLocked(command)
	}
	if _, ok := t.byCommand[command]; !ok {
		t.byCommand[command] = []string{command}
	}
	t.owner[command] = command
}

func (t *Table) attachLocked(command, alias string) {
	t.owner[alias] = command
	if !slices.Contains(t.byCommand[command], alias) {
		t.byCommand[command] = append(t.byCommand[command], alias)
	}
}

func (t *Table) detachLocked(alias string) {
	prev, ok := t.owner[alias]
	if !ok {
		return
	}
	delete(t.owner, alias)
	t.byCommand[prev] = slices.DeleteFunc(t.byCommand[prev], func(a string) bool { return a == alias })
}

// Add binds alias to command. If alias already resolves to a different
// command the call fails with ALREADY_EXISTS unless forced, in which case the
// alias moves and the previous owner loses it. It returns the previous owner
// when one was displaced.
func (t *Table) Add(command, alias string, forced bool) (displaced string, err error) {
	if command == "" || alias == "" {
		return "", oops.Code(cog.CodeInvariantViolation).Errorf("command and alias are required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.owner[alias]; ok && prev != command {
		if prev == alias {
			// Moving a canonical name would orphan its command.
			return "", cog.ErrAliasExists(alias, prev)
		}
		if !forced {
			return "", cog.ErrAliasExists(alias, prev)
		}
		t.detachLocked(alias)
		displaced = prev
	}

	t.ensureLocked(command)
	t.attachLocked(command, alias)
	return displaced, nil
}

// Remove unbinds alias and returns the command it pointed to. The table does
// not protect canonical names; callers that must keep a command reachable by
// its own name check Canonical first.
func (t *Table) Remove(alias string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	command, ok := t.owner[alias]
	if !ok {
		return "", cog.ErrAliasNotFound(alias)
	}
	t.detachLocked(alias)
	if alias == command && len(t.byCommand[command]) == 0 {
		delete(t.byCommand, command)
	}
	return command, nil
}

// Drop removes a command and every alias it owns.
func (t *Table) Drop(command string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, a := range t.byCommand[command] {
		if t.owner[a] == command {
			delete(t.owner, a)
		}
	}
	delete(t.byCommand, command)
}

// Resolve maps a name or alias to its canonical command name.
func (t *Table) Resolve(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	command, ok := t.owner[name]
	return command, ok
}

// Canonical reports whether name is a command's own name rather than an
// alternate alias.
func (t *Table) Canonical(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.owner[name] == name
}

// Aliases returns the alias list of command, canonical name first.
func (t *Table) Aliases(command string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.byCommand[command])
}

// Snapshot returns a copy of the canonical → aliases mapping.
func (t *Table) Snapshot() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string][]string, len(t.byCommand))
	for command, aliases := range t.byCommand {
		out[command] = slices.Clone(aliases)
	}
	return out
}

// Commands returns the canonical names known to the table, sorted.
func (t *Table) Commands() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.byCommand))
	for command := range t.byCommand {
		out = append(out, command)
	}
	sort.Strings(out)
	return out
}
