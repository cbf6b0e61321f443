// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package errutil

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails t unless err is an oops error whose code is code.
// The failure message carries the full error so wrapped causes are visible.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	require.Error(t, err, "expected an error with code %s", code)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error with code %s, got %T: %v", code, err, err)
	assert.Equal(t, code, oopsErr.Code(), "error: %v", err)
}

// AssertErrorContext fails t unless err carries key=value in its oops
// context. A missing key is reported with the keys that are present.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	ctx := oopsErr.Context()
	got, present := ctx[key]
	if !present {
		assert.Failf(t, "missing error context", "key %q not in %v", key, slices.Sorted(maps.Keys(ctx)))
		return
	}
	assert.Equal(t, value, got, "error context %q", key)
}

// AssertNoSecret fails t if secret appears in err's message or in any value
// of its oops context. Credential errors end up in logs and responses, so
// passwords, tokens and signing keys must never ride along.
func AssertNoSecret(t testing.TB, err error, secret string) {
	t.Helper()
	require.NotEmpty(t, secret)
	if err == nil {
		return
	}
	assert.NotContains(t, err.Error(), secret, "secret leaked into error message")
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return
	}
	for key, v := range oopsErr.Context() {
		assert.False(t, strings.Contains(fmt.Sprint(v), secret), "secret leaked into error context %q", key)
	}
}
