// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package alias

import (
	"context"
	"errors"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Store persists the canonical → aliases mapping.
type Store interface {
	Load(ctx context.Context) (map[string][]string, error)
	Save(ctx context.Context, aliases map[string][]string) error
}

// MemoryStore keeps aliases in memory. It is useful in tests and when a
// process wants Load/Save semantics without touching disk.
type MemoryStore struct {
	data map[string][]string
	mu   sync.Mutex
}

// NewMemoryStore creates a store seeded with initial, which is copied.
func NewMemoryStore(initial map[string][]string) *MemoryStore {
	return &MemoryStore{data: cloneMapping(initial)}
}

// Load returns a copy of the stored mapping.
func (s *MemoryStore) Load(_ context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMapping(s.data), nil
}

// Save replaces the stored mapping with a copy of aliases.
func (s *MemoryStore) Save(_ context.Context, aliases map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = cloneMapping(aliases)
	return nil
}

func cloneMapping(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = slices.Clone(v)
	}
	return out
}

// fileFormat is the on-disk layout of the alias file.
type fileFormat struct {
	Version int                 `yaml:"version"`
	Aliases map[string][]string `yaml:"aliases"`
}

const fileFormatVersion = 1

// FileStore persists aliases as a YAML document. Writes go to a temporary
// file that is renamed over the target, so readers never see a partial file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the alias file. A missing file is an empty mapping.
func (s *FileStore) Load(_ context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Clean(s.path))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, oops.With("path", s.path).Hint("failed to read alias file").Wrap(err)
	}

	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, oops.With("path", s.path).Hint("invalid alias file").Wrap(err)
	}
	if doc.Version > fileFormatVersion {
		return nil, oops.With("path", s.path).
			With("version", doc.Version).
			Errorf("alias file version %d is newer than supported version %d", doc.Version, fileFormatVersion)
	}
	if doc.Aliases == nil {
		doc.Aliases = map[string][]string{}
	}
	return doc.Aliases, nil
}

// Save writes the mapping atomically.
func (s *FileStore) Save(_ context.Context, aliases map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := fileFormat{Version: fileFormatVersion, Aliases: make(map[string][]string, len(aliases))}
	for _, command := range slices.Sorted(maps.Keys(aliases)) {
		doc.Aliases[command] = slices.Clone(aliases[command])
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return oops.With("path", s.path).Wrap(err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.With("path", s.path).Hint("failed to create alias directory").Wrap(err)
	}

	tmp, err := os.CreateTemp(dir, ".aliases-*.yaml")
	if err != nil {
		return oops.With("path", s.path).Wrap(err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName) //nolint:errcheck // already renamed on success
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		return oops.With("path", s.path).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		return oops.With("path", s.path).Wrap(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return oops.With("path", s.path).Hint("failed to replace alias file").Wrap(err)
	}
	return nil
}
