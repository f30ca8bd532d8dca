// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package module

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Factory builds a fresh definition for a compiled-in module.
type Factory func() *Definition

// Catalog imports modules compiled into the binary. Each import calls the
// factory again so a reload starts from fresh state.
type Catalog struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a module factory. Registering a name twice replaces it.
func (c *Catalog) Register(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

// Names returns the registered module names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.factories))
	for name := range c.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Import calls the factory registered under name.
func (c *Catalog) Import(_ context.Context, name string) (*Definition, error) {
	c.mu.RLock()
	f, ok := c.factories[name]
	c.mu.RUnlock()

	if !ok {
		return nil, oops.With("module", name).Wrap(ErrUnknownModule)
	}
	def := f()
	if def == nil {
		return nil, oops.With("module", name).Errorf("module factory returned no definition")
	}
	if def.Name == "" {
		def.Name = name
	}
	return def, nil
}

// Discover lists the registered direct children of pkg.
func (c *Catalog) Discover(_ context.Context, pkg string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	prefix := pkg + "."
	seen := make(map[string]struct{})
	for name := range c.factories {
		rest, ok := strings.CutPrefix(name, prefix)
		if !ok || rest == "" {
			continue
		}
		child, _, _ := strings.Cut(rest, ".")
		seen[prefix+child] = struct{}{}
	}
	if len(seen) == 0 {
		if _, ok := c.factories[pkg]; !ok {
			return nil, oops.With("module", pkg).Wrap(ErrUnknownModule)
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
