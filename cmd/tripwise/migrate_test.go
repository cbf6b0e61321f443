// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/pkg/errutil"
)

type fakeMigrator struct {
	version uint
	dirty   bool
	calls   []string
	forced  int
	upErr   error
	closed  bool
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	if f.upErr != nil {
		return f.upErr
	}
	f.version = 2
	return nil
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	f.version = 0
	return nil
}

func (f *fakeMigrator) Steps(int) error {
	f.calls = append(f.calls, "steps")
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, f.dirty, nil
}

func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return nil
}

func (f *fakeMigrator) PendingMigrations() ([]uint, error) {
	var out []uint
	for _, v := range []uint{1, 2} {
		if v > f.version {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeMigrator) AppliedMigrations() ([]uint, error) {
	var out []uint
	for _, v := range []uint{1, 2} {
		if v <= f.version {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func runMigrate(t *testing.T, m *fakeMigrator, args ...string) (string, string, error) {
	t.Helper()
	var gotURL string
	deps := &MigrateDeps{MigratorFactory: func(url string) (Migrator, error) {
		gotURL = url
		return m, nil
	}}

	root := &cobra.Command{Use: "tripwise", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(newMigrateCmd(deps))
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"migrate"}, args...))
	err := root.Execute()
	return buf.String(), gotURL, err
}

func TestMigrate_URLSources(t *testing.T) {
	t.Run("missing url", func(t *testing.T) {
		isolateConfig(t)
		_, _, err := runMigrate(t, &fakeMigrator{})
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("flag", func(t *testing.T) {
		isolateConfig(t)
		_, url, err := runMigrate(t, &fakeMigrator{}, "--database-url", "postgres://flag/db")
		require.NoError(t, err)
		assert.Equal(t, "postgres://flag/db", url)
	})

	t.Run("env beats config file", func(t *testing.T) {
		isolateConfig(t)
		t.Setenv("DATABASE_URL", "postgres://env/db")
		path := writeFile(t, "database:\n  url: postgres://file/db\n")
		_, url, err := runMigrate(t, &fakeMigrator{}, "--config", path)
		require.NoError(t, err)
		assert.Equal(t, "postgres://env/db", url)
	})

	t.Run("token secret is not required", func(t *testing.T) {
		isolateConfig(t)
		path := writeFile(t, "database:\n  url: postgres://file/db\n")
		_, url, err := runMigrate(t, &fakeMigrator{}, "--config", path)
		require.NoError(t, err)
		assert.Equal(t, "postgres://file/db", url)
	})
}

func TestMigrate_Subcommands(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://env/db")

	t.Run("default applies pending", func(t *testing.T) {
		m := &fakeMigrator{}
		out, _, err := runMigrate(t, m)
		require.NoError(t, err)
		assert.Equal(t, []string{"up"}, m.calls)
		assert.Contains(t, out, "Applying 2 migration(s)")
		assert.True(t, m.closed)
	})

	t.Run("up when current skips", func(t *testing.T) {
		m := &fakeMigrator{version: 2}
		out, _, err := runMigrate(t, m, "up")
		require.NoError(t, err)
		assert.Empty(t, m.calls)
		assert.Contains(t, out, "up to date")
	})

	t.Run("up failure closes migrator", func(t *testing.T) {
		m := &fakeMigrator{upErr: oops.Code("MIGRATION_UP_FAILED").Wrap(errors.New("syntax error"))}
		_, _, err := runMigrate(t, m, "up")
		errutil.AssertErrorCode(t, err, "MIGRATION_UP_FAILED")
		assert.True(t, m.closed)
	})

	t.Run("down requires confirmation", func(t *testing.T) {
		m := &fakeMigrator{version: 2}
		_, _, err := runMigrate(t, m, "down")
		errutil.AssertErrorCode(t, err, "CONFIRMATION_REQUIRED")
		assert.Empty(t, m.calls)

		_, _, err = runMigrate(t, m, "down", "--yes")
		require.NoError(t, err)
		assert.Equal(t, []string{"down"}, m.calls)
	})

	t.Run("version", func(t *testing.T) {
		out, _, err := runMigrate(t, &fakeMigrator{version: 1}, "version")
		require.NoError(t, err)
		assert.Equal(t, "1\n", out)

		out, _, err = runMigrate(t, &fakeMigrator{version: 2, dirty: true}, "version")
		require.NoError(t, err)
		assert.Contains(t, out, "dirty")
	})

	t.Run("force", func(t *testing.T) {
		m := &fakeMigrator{dirty: true}
		_, _, err := runMigrate(t, m, "force", "1")
		require.NoError(t, err)
		assert.Equal(t, 1, m.forced)

		_, _, err = runMigrate(t, &fakeMigrator{}, "force", "abc")
		errutil.AssertErrorCode(t, err, "INVALID_VERSION")
	})

	t.Run("status", func(t *testing.T) {
		out, _, err := runMigrate(t, &fakeMigrator{version: 1}, "status")
		require.NoError(t, err)
		assert.Contains(t, out, "applied  000001_accounts")
		assert.Contains(t, out, "pending  000002_audit_log")
	})
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
	}{
		{name: "valid integer", input: "3", wantVersion: 3},
		{name: "zero is valid", input: "0", wantVersion: 0},
		{name: "trailing chars are ignored", input: "3abc", wantVersion: 3},
		{name: "leading whitespace is handled", input: "  42", wantVersion: 42},
		{name: "negative parses", input: "-1", wantVersion: -1},
		{name: "non-numeric", input: "abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "INVALID_VERSION")
				assert.Equal(t, 0, version)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
		})
	}
}
