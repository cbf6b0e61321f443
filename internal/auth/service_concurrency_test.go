// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tripwise/tripwise/internal/auth"
)

func TestCredentialService_ConcurrentRefresh(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	f := newFixture(t)
	login := f.registerAndLogin(t)

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []*auth.RefreshResult
		failures  []error
	)
	start := make(chan struct{})
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := f.svc.Refresh(ctx, login.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			successes = append(successes, result)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, successes, 1, "exactly one refresh may win")
	assert.Len(t, failures, racers-1)
	for _, err := range failures {
		assert.Equal(t, auth.CodeInvalidRefreshToken, auth.Code(err))
	}

	stored := f.accounts.Snapshot(login.User.ID)
	assert.Equal(t, auth.HashToken(successes[0].RefreshToken), *stored.RefreshTokenHash)
}

func TestCredentialService_ConcurrentRefreshAndLogout(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	f := newFixture(t)
	login := f.registerAndLogin(t)

	var (
		wg                   sync.WaitGroup
		refreshErr, logoutErr error
	)
	start := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, refreshErr = f.svc.Refresh(ctx, login.RefreshToken)
	}()
	go func() {
		defer wg.Done()
		<-start
		_, logoutErr = f.svc.Logout(ctx, login.RefreshToken)
	}()
	close(start)
	wg.Wait()

	// One of the two wins; the loser sees an invalid token.
	if refreshErr == nil {
		assert.Equal(t, auth.CodeInvalidRefreshToken, auth.Code(logoutErr))
		assert.True(t, f.accounts.Snapshot(login.User.ID).HasRefreshToken())
	} else {
		require.NoError(t, logoutErr)
		assert.Equal(t, auth.CodeInvalidRefreshToken, auth.Code(refreshErr))
		assert.False(t, f.accounts.Snapshot(login.User.ID).HasRefreshToken())
	}
}

func TestCredentialService_ConcurrentReset(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	f := newFixture(t)
	token := f.requestReset(t)

	const racers = 4
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	start := make(chan struct{})
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.ResetPassword(ctx, token, "New123!"+string(rune('a'+i)))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.Equal(t, auth.CodeTokenNotFound, auth.Code(err))
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins, "a reset token is redeemed at most once")
}
