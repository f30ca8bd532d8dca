// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package cog

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/oops"
)

// Registry manages cog and command registration and lookup.
// It is thread-safe for concurrent access. Command names here are canonical;
// alias resolution happens in front of the registry.
type Registry struct {
	cogs     map[string]*Cog
	commands map[string]*Command
	mu       sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		cogs:     make(map[string]*Cog),
		commands: make(map[string]*Command),
	}
}

// RegisterCommand adds cmd to the named cog, creating the cog (enabled) on
// first sight. A command with the same name is replaced, even if another cog
// owned it; that cog loses the command and a warning is logged.
func (r *Registry) RegisterCommand(cogName string, cmd *Command) error {
	if cogName == "" || cmd == nil || cmd.Name == "" || cmd.Handler == nil {
		return oops.Code(CodeInvariantViolation).
			With("cog", cogName).
			Errorf("command registration requires a cog, a name and a handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cogLocked(cogName)
	r.putLocked(c, cmd)
	return nil
}

// ReplaceCog swaps the full command set of a cog in one step and records the
// module and documentation it came from. Commands the cog previously owned
// that are not in cmds are removed; their names are returned so callers can
// drop their aliases.
func (r *Registry) ReplaceCog(cogName, module, doc string, cmds []*Command) (removed []string, err error) {
	if cogName == "" {
		return nil, oops.Code(CodeInvariantViolation).Errorf("cog name is required")
	}
	for _, cmd := range cmds {
		if cmd == nil || cmd.Name == "" || cmd.Handler == nil {
			return nil, oops.Code(CodeInvariantViolation).
				With("cog", cogName).
				Errorf("command registration requires a name and a handler")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cogLocked(cogName)

	keep := make(map[string]struct{}, len(cmds))
	for _, cmd := range cmds {
		keep[cmd.Name] = struct{}{}
	}

	c.mu.Lock()
	for name := range c.commands {
		if _, ok := keep[name]; !ok {
			delete(c.commands, name)
			delete(r.commands, name)
			removed = append(removed, name)
		}
	}
	c.module = module
	c.doc = doc
	c.mu.Unlock()

	for _, cmd := range cmds {
		r.putLocked(c, cmd)
	}

	sort.Strings(removed)
	return removed, nil
}

func (r *Registry) cogLocked(name string) *Cog {
	c, ok := r.cogs[name]
	if !ok {
		c = newCog(name)
		r.cogs[name] = c
	}
	return c
}

// putLocked stores cmd under c. Must be called with r.mu held for writing.
func (r *Registry) putLocked(c *Cog, cmd *Command) {
	if existing, ok := r.commands[cmd.Name]; ok && existing.Cog != c.Name {
		slog.Warn("command conflict: overwriting existing command",
			"command", cmd.Name,
			"previous_cog", existing.Cog,
			"new_cog", c.Name)
		if prev, ok := r.cogs[existing.Cog]; ok {
			prev.mu.Lock()
			delete(prev.commands, cmd.Name)
			prev.mu.Unlock()
		}
	}

	cmd.Cog = c.Name
	cmd.addAlias(cmd.Name)

	c.mu.Lock()
	c.commands[cmd.Name] = cmd
	c.mu.Unlock()
	r.commands[cmd.Name] = cmd
}

// Command retrieves a command by canonical name.
func (r *Registry) Command(name string) (*Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmd, ok := r.commands[name]
	if !ok {
		return nil, ErrCommandNotFound(name)
	}
	return cmd, nil
}

// Cog retrieves a cog by name.
func (r *Registry) Cog(name string) (*Cog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cogs[name]
	if !ok {
		return nil, ErrCogNotFound(name)
	}
	return c, nil
}

// EnableCog marks a cog as loaded.
func (r *Registry) EnableCog(name string) error {
	return r.setLoaded(name, true)
}

// DisableCog marks a cog as not loaded. Its commands stay registered.
func (r *Registry) DisableCog(name string) error {
	return r.setLoaded(name, false)
}

func (r *Registry) setLoaded(name string, loaded bool) error {
	c, err := r.Cog(name)
	if err != nil {
		return err
	}
	c.loaded.Store(loaded)
	return nil
}

// CogModule returns the module that registered the named cog.
func (r *Registry) CogModule(name string) (string, error) {
	c, err := r.Cog(name)
	if err != nil {
		return "", err
	}
	module := c.Module()
	if module == "" {
		return "", ErrModuleNotFound(name)
	}
	return module, nil
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedCommands(r.commands)
}

// Cogs returns all cogs sorted by name.
func (r *Registry) Cogs() []*Cog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Cog, 0, len(r.cogs))
	for _, c := range r.cogs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CogCommands returns the commands of the named cog sorted by name.
func (r *Registry) CogCommands(name string) ([]*Command, error) {
	c, err := r.Cog(name)
	if err != nil {
		return nil, err
	}
	return c.Commands(), nil
}

// AddAlias records alias on the named command's alias set.
func (r *Registry) AddAlias(command, alias string) error {
	cmd, err := r.Command(command)
	if err != nil {
		return err
	}
	cmd.addAlias(alias)
	return nil
}

// RemoveAlias drops alias from the named command's alias set. A command's own
// name is never removed.
func (r *Registry) RemoveAlias(command, alias string) {
	if cmd, err := r.Command(command); err == nil {
		cmd.removeAlias(alias)
	}
}

// Reset drops every cog and command.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cogs = make(map[string]*Cog)
	r.commands = make(map[string]*Command)
}
