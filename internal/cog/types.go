// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package cog provides the in-memory registry of cogs and their commands and
// the dispatch boundary that isolates handler failures.
package cog

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// Handler is the function signature for command handlers.
type Handler func(ctx context.Context, call *Call) (any, error)

// Call carries the arguments of a single command invocation.
type Call struct {
	Command   string         // canonical command name, filled in by dispatch
	InvokedAs string         // the name or alias the caller used
	Args      []string       // positional arguments
	Options   map[string]any // named arguments
	Host      any            // opaque host runtime handle
}

// Command is a named handler owned by exactly one cog.
// Name, Cog, Help and Handler are fixed once the command is registered.
type Command struct {
	Name    string
	Cog     string
	Help    string
	Handler Handler

	aliases map[string]struct{}
	mu      sync.RWMutex
}

// NewCommand creates a command whose alias set contains its own name.
func NewCommand(name string, handler Handler) *Command {
	return &Command{
		Name:    name,
		Handler: handler,
		aliases: map[string]struct{}{name: {}},
	}
}

// Aliases returns the names this command answers to, sorted, including its own.
func (c *Command) Aliases() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.aliases))
	for a := range c.aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// HasAlias reports whether alias resolves to this command.
func (c *Command) HasAlias(alias string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.aliases[alias]
	return ok
}

// SetAliases replaces the alias set. The command's own name is always kept.
func (c *Command) SetAliases(aliases []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.aliases = make(map[string]struct{}, len(aliases)+1)
	c.aliases[c.Name] = struct{}{}
	for _, a := range aliases {
		c.aliases[a] = struct{}{}
	}
}

func (c *Command) addAlias(alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aliases[alias] = struct{}{}
}

func (c *Command) removeAlias(alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if alias != c.Name {
		delete(c.aliases, alias)
	}
}

// Cog is a named group of commands that can be enabled and disabled as a unit.
// Two cogs are the same cog when their names match.
type Cog struct {
	Name string

	loaded   atomic.Bool
	module   string
	doc      string
	commands map[string]*Command
	mu       sync.RWMutex
}

func newCog(name string) *Cog {
	c := &Cog{
		Name:     name,
		commands: make(map[string]*Command),
	}
	c.loaded.Store(true)
	return c
}

// Loaded reports whether the cog is enabled.
func (c *Cog) Loaded() bool {
	return c.loaded.Load()
}

// Module returns the name of the module that registered the cog.
func (c *Cog) Module() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.module
}

// Doc returns the cog's documentation.
func (c *Cog) Doc() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc
}

// Commands returns the cog's commands sorted by name.
func (c *Cog) Commands() []*Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedCommands(c.commands)
}

func sortedCommands(m map[string]*Command) []*Command {
	out := make([]*Command, 0, len(m))
	for _, cmd := range m {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
