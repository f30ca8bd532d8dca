// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package module

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// Chain tries importers in order; the first that recognises a name wins.
type Chain []Importer

// Import implements Importer.
func (c Chain) Import(ctx context.Context, name string) (*Definition, error) {
	for _, imp := range c {
		def, err := imp.Import(ctx, name)
		if errors.Is(err, ErrUnknownModule) {
			continue
		}
		return def, err
	}
	return nil, oops.With("module", name).Wrap(ErrUnknownModule)
}

// Discover implements Importer.
func (c Chain) Discover(ctx context.Context, pkg string) ([]string, error) {
	for _, imp := range c {
		names, err := imp.Discover(ctx, pkg)
		if errors.Is(err, ErrUnknownModule) {
			continue
		}
		return names, err
	}
	return nil, oops.With("module", pkg).Wrap(ErrUnknownModule)
}
