// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// PostgresAliasStore persists the alias table in the command_aliases table.
// It satisfies alias.Store.
type PostgresAliasStore struct {
	pool poolIface
}

// NewPostgresAliasStore creates a store over pool.
func NewPostgresAliasStore(pool poolIface) *PostgresAliasStore {
	return &PostgresAliasStore{pool: pool}
}

// Load reads every alias grouped by canonical command, in stored order.
func (s *PostgresAliasStore) Load(ctx context.Context) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT command, alias FROM command_aliases ORDER BY command, position`)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, oops.With("operation", "load aliases").
				Hint("alias schema missing; run 'cogwheel migrate'").
				Wrap(err)
		}
		return nil, oops.With("operation", "load aliases").Wrap(err)
	}
	defer rows.Close()

	aliases := make(map[string][]string)
	for rows.Next() {
		var command, alias string
		if err := rows.Scan(&command, &alias); err != nil {
			return nil, oops.With("operation", "scan alias row").Wrap(err)
		}
		aliases[command] = append(aliases[command], alias)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate aliases").Wrap(err)
	}
	return aliases, nil
}

// Save replaces the stored table with aliases in a single transaction.
func (s *PostgresAliasStore) Save(ctx context.Context, aliases map[string][]string) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.With("operation", "begin alias save").Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // save error takes precedence
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM command_aliases`); err != nil {
		return oops.With("operation", "clear aliases").Wrap(err)
	}

	for _, command := range slices.Sorted(maps.Keys(aliases)) {
		for pos, alias := range aliases[command] {
			if _, err = tx.Exec(ctx,
				`INSERT INTO command_aliases (alias, command, position) VALUES ($1, $2, $3)`,
				alias, command, pos); err != nil {
				return oops.With("operation", "insert alias").
					With("alias", alias).
					With("command", command).
					Wrap(err)
			}
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return oops.With("operation", "commit alias save").Wrap(err)
	}
	return nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}
