// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/cogwheel/internal/module"
)

const (
	scriptExt  = ".lua"
	initScript = "init.lua"
)

var segmentPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Importer loads modules from a directory. Module "a.b" is either the file
// <dir>/a/b.lua or the package directory <dir>/a/b/, which holds a
// package.yaml manifest, an init.lua script, or both.
type Importer struct {
	dir     string
	factory *StateFactory
}

// NewImporter creates an importer rooted at dir.
func NewImporter(dir string) *Importer {
	return &Importer{dir: dir, factory: NewStateFactory()}
}

// Dir returns the root directory.
func (i *Importer) Dir() string { return i.dir }

func (i *Importer) path(name string) (string, bool) {
	if name == "" {
		return i.dir, true
	}
	segments := strings.Split(name, ".")
	for _, s := range segments {
		if !segmentPattern.MatchString(s) {
			return "", false
		}
	}
	return filepath.Join(append([]string{i.dir}, segments...)...), true
}

// Import implements module.Importer.
func (i *Importer) Import(ctx context.Context, name string) (*module.Definition, error) {
	base, ok := i.path(name)
	if !ok || name == "" {
		return nil, oops.With("module", name).Wrap(module.ErrUnknownModule)
	}

	if isFile(base + scriptExt) {
		return i.importScript(ctx, name, base+scriptExt, nil)
	}
	if !isDir(base) {
		return nil, oops.With("module", name).Wrap(module.ErrUnknownModule)
	}

	manifest, err := readManifest(base)
	if err != nil {
		return nil, oops.In("lua").With("module", name).Wrap(err)
	}
	if manifest != nil && manifest.MultiCog {
		return &module.Definition{
			Name:       name,
			Doc:        manifest.Doc,
			MultiCog:   true,
			Submodules: manifest.Modules,
		}, nil
	}

	entry := filepath.Join(base, initScript)
	if !isFile(entry) {
		return nil, oops.In("lua").
			With("module", name).
			With("path", base).
			Errorf("package has neither a multi-cog %s nor %s", module.ManifestFile, initScript)
	}
	return i.importScript(ctx, name, entry, manifest)
}

func (i *Importer) importScript(ctx context.Context, name, path string, manifest *module.Manifest) (*module.Definition, error) {
	errb := oops.In("lua").With("module", name).With("path", path)

	L, err := i.factory.NewState(ctx)
	if err != nil {
		return nil, errb.Wrap(err)
	}
	s := &script{module: name, L: L}
	s.installAPI()

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, errb.Hint("module raised during import").Wrap(err)
	}
	L.RemoveContext()

	d := s.declared()
	if d.doc == "" && manifest != nil {
		d.doc = manifest.Doc
	}

	if d.multiCog {
		L.Close()
		return &module.Definition{
			Name:       name,
			Doc:        d.doc,
			MultiCog:   true,
			Submodules: d.submodules,
		}, nil
	}

	return &module.Definition{
		Name:  name,
		Cog:   d.cog,
		Doc:   d.doc,
		Setup: s.setup,
		Close: s.close,
	}, nil
}

// Discover implements module.Importer. It lists .lua files and package
// directories directly under pkg.
func (i *Importer) Discover(_ context.Context, pkg string) ([]string, error) {
	base, ok := i.path(pkg)
	if !ok {
		return nil, oops.With("module", pkg).Wrap(module.ErrUnknownModule)
	}
	if !isDir(base) {
		if pkg != "" && isFile(base+scriptExt) {
			return nil, nil
		}
		return nil, oops.With("module", pkg).Wrap(module.ErrUnknownModule)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, oops.In("lua").With("module", pkg).Wrap(err)
	}

	var names []string
	for _, e := range entries {
		child := e.Name()
		switch {
		case e.IsDir():
			if !isFile(filepath.Join(base, child, initScript)) &&
				!isFile(filepath.Join(base, child, module.ManifestFile)) {
				continue
			}
		case strings.HasSuffix(child, scriptExt) && child != initScript:
			child = strings.TrimSuffix(child, scriptExt)
		default:
			continue
		}
		if !segmentPattern.MatchString(child) {
			continue
		}
		if pkg != "" {
			child = pkg + "." + child
		}
		names = append(names, child)
	}
	sort.Strings(names)
	return names, nil
}

// ModuleFor maps a file under the root directory to the top-level module it
// belongs to.
func (i *Importer) ModuleFor(path string) (string, bool) {
	rel, err := filepath.Rel(i.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	top, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	top = strings.TrimSuffix(top, scriptExt)
	if !segmentPattern.MatchString(top) {
		return "", false
	}
	return top, true
}

func readManifest(dir string) (*module.Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(filepath.Join(dir, module.ManifestFile)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return module.ParseManifest(data)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
