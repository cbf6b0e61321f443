// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/auth"
	"github.com/tripwise/tripwise/pkg/errutil"
)

type fakeHistory struct {
	entries []auth.AuditEntry
	err     error
	gotID   ulid.ULID
	gotMax  int
	closed  bool
}

func (f *fakeHistory) ListByUser(_ context.Context, userID ulid.ULID, limit int) ([]auth.AuditEntry, error) {
	f.gotID = userID
	f.gotMax = limit
	return f.entries, f.err
}

func runAuditCmd(t *testing.T, h *fakeHistory, args ...string) (string, string, error) {
	t.Helper()
	var gotURL string
	deps := &AuditDeps{HistoryFactory: func(_ context.Context, url string) (AuditHistory, func(), error) {
		gotURL = url
		return h, func() { h.closed = true }, nil
	}}

	root := &cobra.Command{Use: "tripwise", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(newAuditCmd(deps))
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"audit"}, args...))
	err := root.Execute()
	return buf.String(), gotURL, err
}

func TestAudit_ListsEntries(t *testing.T) {
	isolateConfig(t)
	t.Setenv("DATABASE_URL", "postgres://env/db")

	userID := ulid.Make()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &fakeHistory{entries: []auth.AuditEntry{
		{ID: ulid.Make(), UserID: &userID, EventType: auth.EventLoginSucceeded, Timestamp: at.Add(time.Minute)},
		{ID: ulid.Make(), UserID: &userID, EventType: auth.EventUserRegistered, Timestamp: at,
			Details: map[string]any{"email": "a@b.com"}},
	}}

	out, url, err := runAuditCmd(t, h, userID.String(), "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", url)
	assert.Equal(t, userID, h.gotID)
	assert.Equal(t, 5, h.gotMax)
	assert.True(t, h.closed)

	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "2026-03-01T12:01:00Z")
	assert.Contains(t, string(lines[0]), "auth.login")
	assert.Contains(t, string(lines[0]), "{}")
	assert.Contains(t, string(lines[1]), "auth.registered")
	assert.Contains(t, string(lines[1]), `{"email":"a@b.com"}`)
}

func TestAudit_DefaultLimitAndEmptyHistory(t *testing.T) {
	isolateConfig(t)
	t.Setenv("DATABASE_URL", "postgres://env/db")

	userID := ulid.Make()
	h := &fakeHistory{}
	out, _, err := runAuditCmd(t, h, userID.String())
	require.NoError(t, err)
	assert.Equal(t, defaultAuditLimit, h.gotMax)
	assert.Contains(t, out, "No audit entries for "+userID.String())
}

func TestAudit_Errors(t *testing.T) {
	t.Run("invalid user id", func(t *testing.T) {
		isolateConfig(t)
		_, _, err := runAuditCmd(t, &fakeHistory{}, "not-a-ulid")
		errutil.AssertErrorCode(t, err, "INVALID_USER_ID")
	})

	t.Run("non-positive limit", func(t *testing.T) {
		isolateConfig(t)
		_, _, err := runAuditCmd(t, &fakeHistory{}, ulid.Make().String(), "--limit", "0")
		errutil.AssertErrorCode(t, err, "INVALID_LIMIT")
	})

	t.Run("missing database url", func(t *testing.T) {
		isolateConfig(t)
		_, _, err := runAuditCmd(t, &fakeHistory{}, ulid.Make().String())
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("flag database url", func(t *testing.T) {
		isolateConfig(t)
		_, url, err := runAuditCmd(t, &fakeHistory{}, ulid.Make().String(), "--database-url", "postgres://flag/db")
		require.NoError(t, err)
		assert.Equal(t, "postgres://flag/db", url)
	})

	t.Run("repository failure closes the pool", func(t *testing.T) {
		isolateConfig(t)
		t.Setenv("DATABASE_URL", "postgres://env/db")
		h := &fakeHistory{err: errors.New("connection refused")}
		_, _, err := runAuditCmd(t, h, ulid.Make().String())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.True(t, h.closed)
	})
}
