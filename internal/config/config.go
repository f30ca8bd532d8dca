// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads cogwheel's configuration from a YAML file and command
// line flags. Flags override the file; the file overrides defaults.
package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/cogwheel/internal/logging"
	"github.com/holomush/cogwheel/internal/xdg"
)

// Alias store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	Modules ModulesConfig `koanf:"modules"`
	Aliases AliasesConfig `koanf:"aliases"`
}

// LogConfig selects log output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// MetricsConfig configures the observability server. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// ModulesConfig configures where modules come from and how they reload.
type ModulesConfig struct {
	Dir          string        `koanf:"dir"`
	Autoload     []string      `koanf:"autoload"`
	Watch        bool          `koanf:"watch"`
	Debounce     time.Duration `koanf:"debounce"`
	DrainLoops   bool          `koanf:"drain_loops"`
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// AliasesConfig selects the alias store and its seed aliases.
type AliasesConfig struct {
	Backend     string              `koanf:"backend"`
	File        string              `koanf:"file"`
	DatabaseURL string              `koanf:"database_url"`
	Defaults    map[string][]string `koanf:"defaults"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Format: "json", Level: "info"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Modules: ModulesConfig{
			Dir:          "./cogs",
			Debounce:     250 * time.Millisecond,
			DrainTimeout: 5 * time.Second,
		},
		Aliases: AliasesConfig{Backend: BackendFile},
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"log-format":    "log.format",
	"log-level":     "log.level",
	"metrics-addr":  "metrics.addr",
	"modules-dir":   "modules.dir",
	"autoload":      "modules.autoload",
	"watch":         "modules.watch",
	"drain-loops":   "modules.drain_loops",
	"alias-backend": "aliases.backend",
	"alias-file":    "aliases.file",
	"database-url":  "aliases.database_url",
}

// BindFlags registers the flags Load understands. Only flags the user sets
// override the file.
func BindFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	flags.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	flags.String("modules-dir", d.Modules.Dir, "directory of Lua modules")
	flags.StringSlice("autoload", nil, "modules to load at startup")
	flags.Bool("watch", false, "reload loaded modules when their files change")
	flags.Bool("drain-loops", false, "wait for stopped loops before reloading a module")
	flags.String("alias-backend", d.Aliases.Backend, "alias store (memory, file or postgres)")
	flags.String("alias-file", "", "alias file (default: XDG_DATA_HOME/cogwheel/aliases.yaml)")
	flags.String("database-url", "", "PostgreSQL URL for the postgres alias store (default: $DATABASE_URL)")
}

// Load reads path (or the XDG default when path is empty and the file
// exists), then applies changed flags, which may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		def, err := xdg.ConfigFile()
		if err == nil {
			path = def
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "load config file")
			}
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "load flags")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "decode config")
	}

	if cfg.Aliases.DatabaseURL == "" {
		cfg.Aliases.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.Aliases.Backend == BackendFile && cfg.Aliases.File == "" {
		aliasFile, err := xdg.AliasFile()
		if err != nil {
			return nil, oops.Code("CONFIG_INVALID").Wrapf(err, "default alias file")
		}
		cfg.Aliases.File = aliasFile
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Modules.Dir == "" {
		return oops.Code("CONFIG_INVALID").Errorf("modules.dir is required")
	}
	if c.Modules.DrainTimeout < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("modules.drain_timeout must not be negative")
	}
	if c.Modules.Watch && c.Modules.Debounce <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("modules.debounce must be positive when watching")
	}
	switch c.Aliases.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Aliases.File == "" {
			return oops.Code("CONFIG_INVALID").Errorf("aliases.file is required for the file backend")
		}
	case BackendPostgres:
		if c.Aliases.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("aliases.database_url or DATABASE_URL is required for the postgres backend")
		}
	default:
		return oops.Code("CONFIG_INVALID").
			Errorf("aliases.backend must be %q, %q or %q, got %q", BackendMemory, BackendFile, BackendPostgres, c.Aliases.Backend)
	}
	for command, aliases := range c.Aliases.Defaults {
		if command == "" || len(aliases) == 0 {
			return oops.Code("CONFIG_INVALID").With("command", command).Errorf("aliases.defaults entries need a command and at least one alias")
		}
	}
	return nil
}
