// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package module

import (
	"context"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// ResolveSubmodules expands a container's submodule list into fully
// qualified module names. Plain entries are taken relative to the container;
// entries with glob metacharacters are matched against discovered children.
func ResolveSubmodules(ctx context.Context, imp Importer, def *Definition) ([]string, error) {
	if len(def.Submodules) == 0 || (len(def.Submodules) == 1 && def.Submodules[0] == AllSubmodules) {
		names, err := imp.Discover(ctx, def.Name)
		if err != nil {
			return nil, oops.With("module", def.Name).Wrapf(err, "discover submodules")
		}
		return names, nil
	}

	var (
		out        []string
		seen       = make(map[string]struct{})
		discovered []string
	)
	add := func(name string) {
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}

	for _, entry := range def.Submodules {
		if !isPattern(entry) {
			add(qualify(def.Name, entry))
			continue
		}

		g, err := glob.Compile(entry, '.')
		if err != nil {
			return nil, oops.
				With("module", def.Name).
				With("pattern", entry).
				Wrapf(err, "invalid submodule pattern")
		}
		if discovered == nil {
			discovered, err = imp.Discover(ctx, def.Name)
			if err != nil {
				return nil, oops.With("module", def.Name).Wrapf(err, "discover submodules")
			}
		}
		for _, name := range discovered {
			if g.Match(strings.TrimPrefix(name, def.Name+".")) {
				add(name)
			}
		}
	}
	return out, nil
}

func qualify(pkg, entry string) string {
	if strings.HasPrefix(entry, pkg+".") {
		return entry
	}
	return pkg + "." + entry
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}
