// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/cogwheel/pkg/errutil"
)

type fakeMigrator struct {
	upErr   error
	ups     int
	downs   int
	closed  bool
	version uint
	pending []uint
}

func (m *fakeMigrator) Up() error {
	m.ups++
	return m.upErr
}

func (m *fakeMigrator) Down() error {
	m.downs++
	return nil
}

func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, false, nil }
func (m *fakeMigrator) Pending() ([]uint, error)     { return m.pending, nil }

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func useMigrator(t *testing.T, m migrator, err error) {
	t.Helper()
	orig := newMigrator
	newMigrator = func(string) (migrator, error) { return m, err }
	t.Cleanup(func() { newMigrator = orig })
}

func migrateCmd() (*cobra.Command, *bytes.Buffer) {
	out := new(bytes.Buffer)
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd, out
}

func TestRunMigrate_Up(t *testing.T) {
	m := &fakeMigrator{}
	useMigrator(t, m, nil)
	cmd, out := migrateCmd()

	require.NoError(t, runMigrate(cmd, "postgres://localhost/cogwheel", "up"))
	assert.Equal(t, 1, m.ups)
	assert.True(t, m.closed)
	assert.Contains(t, out.String(), "Migrations completed successfully")
}

func TestRunMigrate_Down(t *testing.T) {
	m := &fakeMigrator{}
	useMigrator(t, m, nil)
	cmd, out := migrateCmd()

	require.NoError(t, runMigrate(cmd, "postgres://localhost/cogwheel", "down"))
	assert.Equal(t, 1, m.downs)
	assert.Contains(t, out.String(), "Rollback completed successfully")
}

func TestRunMigrate_Status(t *testing.T) {
	useMigrator(t, &fakeMigrator{version: 1, pending: []uint{2}}, nil)
	cmd, out := migrateCmd()

	require.NoError(t, runMigrate(cmd, "postgres://localhost/cogwheel", "status"))
	assert.Equal(t, "version: 1\ndirty: false\npending: [2]\n", out.String())
}

func TestRunMigrate_Errors(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		cmd, _ := migrateCmd()
		errutil.AssertErrorCode(t, runMigrate(cmd, "", "up"), "CONFIG_INVALID")
	})

	t.Run("unknown action", func(t *testing.T) {
		cmd, _ := migrateCmd()
		errutil.AssertErrorCode(t, runMigrate(cmd, "postgres://x", "sideways"), "INVALID_ARGS")
	})

	t.Run("connect failure", func(t *testing.T) {
		useMigrator(t, nil, errors.New("connection refused"))
		cmd, _ := migrateCmd()
		errutil.AssertErrorCode(t, runMigrate(cmd, "postgres://x", "up"), "DB_CONNECT_FAILED")
	})

	t.Run("migration failure still closes", func(t *testing.T) {
		m := &fakeMigrator{upErr: errors.New("syntax error")}
		useMigrator(t, m, nil)
		cmd, _ := migrateCmd()
		errutil.AssertErrorCode(t, runMigrate(cmd, "postgres://x", "up"), "MIGRATION_FAILED")
		assert.True(t, m.closed)
	})
}
