// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package module

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the file name of a package manifest.
const ManifestFile = "package.yaml"

// Manifest represents a package.yaml file.
type Manifest struct {
	Name     string     `yaml:"name" json:"name" jsonschema:"pattern=^[a-z][a-z0-9_]*$"`
	Version  string     `yaml:"version" json:"version" jsonschema:"description=Semantic version of the package"`
	Doc      string     `yaml:"doc,omitempty" json:"doc,omitempty"`
	MultiCog bool       `yaml:"multi_cog,omitempty" json:"multi_cog,omitempty"`
	Modules  ModuleList `yaml:"modules,omitempty" json:"modules,omitempty"`
	Requires string     `yaml:"requires,omitempty" json:"requires,omitempty" jsonschema:"description=Semver constraint on the host API version"`
}

// ModuleList is either the string "ALL" or a list of names and glob patterns.
type ModuleList []string

// UnmarshalYAML accepts a scalar or a sequence.
func (l *ModuleList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = ModuleList{value.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*l = names
		return nil
	default:
		return oops.Errorf("modules must be %q or a list of names", AllSubmodules)
	}
}

// JSONSchema describes the two accepted shapes.
func (ModuleList) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Enum: []any{AllSubmodules}},
			{Type: "array", Items: &jsonschema.Schema{Type: "string", MinLength: ptr(uint64(1))}},
		},
	}
}

func ptr[T any](v T) *T { return &v }

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ParseManifest parses and validates a package.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, oops.In("manifest").Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.In("manifest").Wrapf(err, "invalid YAML")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	errb := oops.In("manifest").With("package", m.Name)

	if !namePattern.MatchString(m.Name) {
		return errb.Errorf("name %q must start with a-z and contain only a-z, 0-9 and underscores", m.Name)
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return errb.With("version", m.Version).Wrapf(err, "version must be a semantic version")
	}
	if !m.MultiCog && len(m.Modules) > 0 {
		return errb.Errorf("modules is only allowed when multi_cog is true")
	}
	for _, entry := range m.Modules {
		if entry == AllSubmodules && len(m.Modules) > 1 {
			return errb.Errorf("%q cannot be combined with other module names", AllSubmodules)
		}
		if isPattern(entry) {
			if _, err := glob.Compile(entry, '.'); err != nil {
				return errb.With("pattern", entry).Wrapf(err, "invalid module pattern")
			}
		}
	}
	if m.Requires != "" {
		if err := CheckAPIVersion(m.Requires); err != nil {
			return errb.Wrap(err)
		}
	}
	return nil
}

// CheckAPIVersion reports whether constraint admits APIVersion.
func CheckAPIVersion(constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return oops.With("requires", constraint).Wrapf(err, "invalid requires constraint")
	}
	v := semver.MustParse(APIVersion)
	if !c.Check(v) {
		return oops.
			With("requires", constraint).
			With("api_version", APIVersion).
			Errorf("host API %s does not satisfy %s", APIVersion, constraint)
	}
	return nil
}
