// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/cogwheel/internal/alias"
	"github.com/holomush/cogwheel/internal/config"
	"github.com/holomush/cogwheel/internal/store"
)

// openAliasTable builds the alias table for the configured backend and loads
// what it has persisted. The returned func releases the backend.
func openAliasTable(ctx context.Context, cfg config.AliasesConfig) (*alias.Table, func(), error) {
	opts := []alias.Option{alias.WithDefaults(cfg.Defaults)}
	release := func() {}

	switch cfg.Backend {
	case config.BackendMemory:
	case config.BackendFile:
		opts = append(opts, alias.WithStore(alias.NewFileStore(cfg.File)))
	case config.BackendPostgres:
		pool, err := store.Connect(ctx, cfg.DatabaseURL, store.DefaultConnectOptions)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, alias.WithStore(store.NewPostgresAliasStore(pool)))
		release = pool.Close
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").Errorf("unknown alias backend %q", cfg.Backend)
	}

	table := alias.NewTable(opts...)
	if err := table.Load(ctx); err != nil {
		release()
		return nil, nil, err
	}
	slog.InfoContext(ctx, "alias table ready", "backend", cfg.Backend, "commands", len(table.Commands()))
	return table, release, nil
}
