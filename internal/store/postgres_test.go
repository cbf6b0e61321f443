// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/pkg/errutil"
)

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", ConnectOptions{})
	errutil.AssertErrorCode(t, err, "DB_CONFIG_INVALID")
}

func TestConnect_RetriesThenGivesUp(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	_, err := Connect(context.Background(),
		"postgres://tripwise@127.0.0.1:1/tripwise?connect_timeout=1",
		ConnectOptions{Retries: 2, Backoff: time.Millisecond, Logger: logger})

	errutil.AssertErrorCode(t, err, "DB_CONNECT_FAILED")
	errutil.AssertErrorContext(t, err, "attempts", 3)
	assert.Equal(t, 3, strings.Count(buf.String(), "database not ready"))
}

func TestConnect_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Connect(ctx, "postgres://tripwise@127.0.0.1:1/tripwise", ConnectOptions{Retries: 100})
	require.Error(t, err)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestReadiness(t *testing.T) {
	assert.True(t, Readiness(stubPinger{}, time.Second)())
	assert.False(t, Readiness(stubPinger{err: errors.New("down")}, time.Second)())
}
