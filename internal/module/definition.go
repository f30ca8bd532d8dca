// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package module describes loadable modules and the importers that produce
// them. A module registers its commands, init and cleanup hooks, and
// background loops explicitly through a Registrar.
package module

import (
	"context"
	"errors"
)

// APIVersion is the host API version modules may constrain with "requires".
const APIVersion = "1.0.0"

// AllSubmodules in a submodule list means "discover every submodule".
const AllSubmodules = "ALL"

// ErrUnknownModule is returned by an importer that does not recognise a name.
var ErrUnknownModule = errors.New("unknown module")

// Hook runs once at load (init) or before teardown (cleanup).
type Hook func(ctx context.Context, host any) error

// LoopFunc is one iteration of a background loop.
type LoopFunc func(ctx context.Context, host any) error

// Definition is the result of importing a module.
type Definition struct {
	// Name is the dotted module name, e.g. "games.dice".
	Name string
	// Cog is the cog the module's commands belong to. Required unless MultiCog.
	Cog string
	Doc string

	// MultiCog marks a container whose submodules are loaded as separate cogs.
	MultiCog bool
	// Submodules lists children to load. Nil or ["ALL"] loads every child the
	// importer discovers. Entries may be glob patterns.
	Submodules []string

	// Setup registers the module's handlers. It may be nil for containers.
	Setup func(r *Registrar) error
	// Close releases resources held by the import after teardown.
	Close func()
}

// Importer turns module names into definitions.
type Importer interface {
	// Import produces a fresh definition. Importers that do not know the
	// name return an error wrapping ErrUnknownModule.
	Import(ctx context.Context, name string) (*Definition, error)
	// Discover lists the direct submodules of a container, fully qualified.
	Discover(ctx context.Context, pkg string) ([]string, error)
}
