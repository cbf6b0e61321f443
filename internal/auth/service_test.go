// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/auth"
	"github.com/tripwise/tripwise/internal/auth/authtest"
	"github.com/tripwise/tripwise/pkg/errutil"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *auth.CredentialService
	accounts *authtest.AccountStore
	roles    *authtest.RoleStore
	audit    *authtest.AuditRecorder
	mail     *authtest.MailRecorder
	clock    *clockwork.FakeClock
	tokens   *auth.TokenIssuer
}

func newFixture(t *testing.T, mutate ...func(*auth.ServiceDeps)) *fixture {
	t.Helper()

	f := &fixture{
		accounts: authtest.NewAccountStore(),
		roles:    authtest.NewRoleStore(),
		audit:    &authtest.AuditRecorder{},
		mail:     &authtest.MailRecorder{},
		clock:    clockwork.NewFakeClockAt(testNow),
	}
	f.tokens = newTestIssuer(t, f.clock)

	deps := auth.ServiceDeps{
		Accounts: f.accounts,
		Roles:    f.roles,
		Audit:    f.audit,
		Mailer:   f.mail,
		Hasher:   fastHasher(),
		Tokens:   f.tokens,
		Clock:    f.clock,
	}
	for _, m := range mutate {
		m(&deps)
	}

	svc, err := auth.NewCredentialService(context.Background(), deps)
	require.NoError(t, err)
	t.Cleanup(svc.Wait)
	f.svc = svc
	return f
}

// registerAndLogin creates a@b.com and logs it in.
func (f *fixture) registerAndLogin(t *testing.T) *auth.LoginResult {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
	require.NoError(t, err)
	result, err := f.svc.Login(ctx, "a@b.com", "Secret123!")
	require.NoError(t, err)
	return result
}

func TestNewCredentialService_NilDependencies(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*auth.ServiceDeps)
		expectError string
	}{
		{"nil accounts", func(d *auth.ServiceDeps) { d.Accounts = nil }, "account repository is required"},
		{"nil roles", func(d *auth.ServiceDeps) { d.Roles = nil }, "role repository is required"},
		{"nil audit", func(d *auth.ServiceDeps) { d.Audit = nil }, "audit sink is required"},
		{"nil mailer", func(d *auth.ServiceDeps) { d.Mailer = nil }, "mailer is required"},
		{"nil hasher", func(d *auth.ServiceDeps) { d.Hasher = nil }, "password hasher is required"},
		{"nil tokens", func(d *auth.ServiceDeps) { d.Tokens = nil }, "token issuer is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := auth.ServiceDeps{
				Accounts: authtest.NewAccountStore(),
				Roles:    authtest.NewRoleStore(),
				Audit:    &authtest.AuditRecorder{},
				Mailer:   &authtest.MailRecorder{},
				Hasher:   fastHasher(),
				Tokens:   newTestIssuer(t, nil),
			}
			tt.mutate(&deps)

			svc, err := auth.NewCredentialService(context.Background(), deps)
			require.Error(t, err)
			assert.Nil(t, svc)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestNewCredentialService_MissingDefaultRole(t *testing.T) {
	roles := authtest.NewRoleStore(auth.Role{ID: authtest.AdminRoleID, Name: "Admin"})

	svc, err := auth.NewCredentialService(context.Background(), auth.ServiceDeps{
		Accounts: authtest.NewAccountStore(),
		Roles:    roles,
		Audit:    &authtest.AuditRecorder{},
		Mailer:   &authtest.MailRecorder{},
		Hasher:   fastHasher(),
		Tokens:   newTestIssuer(t, nil),
	})
	require.Error(t, err)
	assert.Nil(t, svc)
	errutil.AssertErrorCode(t, err, auth.CodeDefaultRoleMissing)
	assert.Equal(t, auth.KindConfiguration, auth.KindOf(err))
}

func TestCredentialService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account with default role", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.svc.Register(ctx, "  A@B.com ", "alice", "Secret123!")
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", result.Email)
		assert.Equal(t, testNow, result.CreatedAt)

		stored := f.accounts.Snapshot(result.ID)
		require.NotNil(t, stored)
		assert.Equal(t, "alice", stored.UserName)
		assert.Len(t, stored.PasswordHash, auth.PBKDF2KeyLength)
		assert.Len(t, stored.PasswordSalt, auth.PBKDF2SaltLength)
		assert.Equal(t, authtest.UserRoleID, stored.RoleIDs[0])
		assert.False(t, stored.HasRefreshToken(), "registration must not issue tokens")
		assert.Equal(t, []auth.EventType{auth.EventUserRegistered}, f.audit.Events())
	})

	t.Run("duplicate email fails with conflict", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
		require.NoError(t, err)

		_, err = f.svc.Register(ctx, "A@B.COM", "alice2", "Other123!")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeEmailAlreadyExists)
		assert.Equal(t, auth.KindConflict, auth.KindOf(err))
		assert.Equal(t, 1, f.accounts.Len())
		assert.Contains(t, f.audit.Events(), auth.EventRegistrationFailed)
	})

	t.Run("concurrent insert maps to conflict", func(t *testing.T) {
		f := newFixture(t)
		f.accounts.Fail("Create", auth.ErrEmailTaken)

		_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeEmailAlreadyExists)
	})

	t.Run("invalid input never reaches the store", func(t *testing.T) {
		accounts := authtest.NewMockAccountRepository(t)
		f := newFixture(t, func(d *auth.ServiceDeps) { d.Accounts = accounts })

		tests := []struct {
			name, email, userName, password string
		}{
			{"empty email", "", "alice", "Secret123!"},
			{"malformed email", "not-an-email", "alice", "Secret123!"},
			{"empty user name", "a@b.com", "  ", "Secret123!"},
			{"empty password", "a@b.com", "alice", ""},
		}
		for _, tt := range tests {
			_, err := f.svc.Register(ctx, tt.email, tt.userName, tt.password)
			require.Error(t, err, tt.name)
			errutil.AssertErrorCode(t, err, auth.CodeValidation)
			assert.Equal(t, auth.KindValidation, auth.KindOf(err), tt.name)
			if tt.password != "" {
				errutil.AssertNoSecret(t, err, tt.password)
			}
		}
	})

	t.Run("create failure is audited and propagated", func(t *testing.T) {
		f := newFixture(t)
		storeErr := errors.New("disk full")
		f.accounts.Fail("Create", storeErr)

		_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
		require.Error(t, err)
		assert.ErrorIs(t, err, storeErr)
		errutil.AssertErrorCode(t, err, "AUTH_REGISTER_FAILED")
		assert.Equal(t, auth.KindInfrastructure, auth.KindOf(err))

		entries := f.audit.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, auth.EventRegistrationFailed, entries[0].EventType)
		assert.Nil(t, entries[0].UserID)
		assert.Equal(t, "account_create", entries[0].Details["reason"])
		assert.Equal(t, "a@b.com", entries[0].Details["email"])
	})

	t.Run("hashing failure is audited", func(t *testing.T) {
		f := newFixture(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.svc.Register(cancelled, "a@b.com", "alice", "Secret123!")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_HASH_CANCELLED")
		assert.Zero(t, f.accounts.Len())

		entries := f.audit.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, auth.EventRegistrationFailed, entries[0].EventType)
		assert.Equal(t, "password_hash", entries[0].Details["reason"])
	})

	t.Run("store failure propagates as infrastructure", func(t *testing.T) {
		f := newFixture(t)
		storeErr := errors.New("connection refused")
		f.accounts.Fail("GetByEmail", storeErr)

		_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
		require.Error(t, err)
		assert.ErrorIs(t, err, storeErr)
		assert.Equal(t, auth.KindInfrastructure, auth.KindOf(err))
	})
}

func TestCredentialService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("issues tokens and persists refresh digest", func(t *testing.T) {
		f := newFixture(t)
		result := f.registerAndLogin(t)

		assert.NotEmpty(t, result.AccessToken)
		assert.NotEmpty(t, result.RefreshToken)
		assert.Equal(t, int64(900), result.ExpiresIn)
		assert.Equal(t, "a@b.com", result.User.Email)
		assert.Equal(t, "alice", result.User.UserName)
		assert.Equal(t, []string{auth.DefaultRoleName}, result.User.Roles)

		stored := f.accounts.Snapshot(result.User.ID)
		require.NotNil(t, stored)
		require.True(t, stored.HasRefreshToken())
		assert.Equal(t, auth.HashToken(result.RefreshToken), *stored.RefreshTokenHash)
		assert.Equal(t, testNow.Add(7*24*time.Hour), *stored.RefreshTokenExpiry)

		claims, err := f.tokens.ValidateAccessToken(result.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, result.User.ID.String(), claims.Subject)
		assert.Equal(t, []string{auth.DefaultRoleName}, claims.Roles)
	})

	t.Run("wrong password and unknown email are indistinguishable", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
		require.NoError(t, err)

		_, wrongErr := f.svc.Login(ctx, "a@b.com", "wrong")
		_, unknownErr := f.svc.Login(ctx, "nope@x.com", "whatever")

		require.Error(t, wrongErr)
		require.Error(t, unknownErr)
		errutil.AssertErrorCode(t, wrongErr, auth.CodeInvalidCredentials)
		errutil.AssertErrorCode(t, unknownErr, auth.CodeInvalidCredentials)
		assert.Equal(t, wrongErr.Error(), unknownErr.Error())
		assert.Equal(t, auth.KindAuthentication, auth.KindOf(unknownErr))
		errutil.AssertNoSecret(t, wrongErr, "wrong")
		errutil.AssertNoSecret(t, unknownErr, "whatever")
	})

	t.Run("email match is case-insensitive", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
		require.NoError(t, err)

		_, err = f.svc.Login(ctx, "A@B.com", "Secret123!")
		require.NoError(t, err)
	})

	t.Run("second login replaces the stored refresh token", func(t *testing.T) {
		f := newFixture(t)
		first := f.registerAndLogin(t)

		second, err := f.svc.Login(ctx, "a@b.com", "Secret123!")
		require.NoError(t, err)

		_, err = f.svc.Refresh(ctx, first.RefreshToken)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidRefreshToken)
		_, err = f.svc.Refresh(ctx, second.RefreshToken)
		require.NoError(t, err)
	})

	t.Run("audit failure does not block login", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
		require.NoError(t, err)

		f.audit.Err = errors.New("audit store down")
		_, err = f.svc.Login(ctx, "a@b.com", "Secret123!")
		require.NoError(t, err)
	})

	t.Run("refresh token store failure propagates", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
		require.NoError(t, err)

		f.accounts.Fail("SetRefreshToken", errors.New("disk full"))
		_, err = f.svc.Login(ctx, "a@b.com", "Secret123!")
		require.Error(t, err)
		assert.Equal(t, auth.KindInfrastructure, auth.KindOf(err))
	})

	t.Run("corrupt stored credential is an infrastructure failure", func(t *testing.T) {
		f := newFixture(t)
		account := &auth.Account{
			ID:        ulid.Make(),
			Email:     "a@b.com",
			UserName:  "alice",
			RoleIDs:   []ulid.ULID{authtest.UserRoleID},
			CreatedAt: testNow,
		}
		require.NoError(t, f.accounts.Create(ctx, account))

		_, err := f.svc.Login(ctx, "a@b.com", "Secret123!")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeCorruptCredential)
		assert.Equal(t, auth.KindInfrastructure, auth.KindOf(err))
	})

	t.Run("cancelled context aborts hashing", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
		require.NoError(t, err)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = f.svc.Login(cancelled, "a@b.com", "Secret123!")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_HASH_CANCELLED")
	})
}

func TestCredentialService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates the refresh token", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		rotated, err := f.svc.Refresh(ctx, login.RefreshToken)
		require.NoError(t, err)
		assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)
		assert.Equal(t, int64(900), rotated.ExpiresIn)

		stored := f.accounts.Snapshot(login.User.ID)
		assert.Equal(t, auth.HashToken(rotated.RefreshToken), *stored.RefreshTokenHash)

		_, err = f.svc.Refresh(ctx, login.RefreshToken)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidRefreshToken)

		_, err = f.svc.Refresh(ctx, rotated.RefreshToken)
		require.NoError(t, err)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		f.clock.Advance(7 * 24 * time.Hour)
		_, err := f.svc.Refresh(ctx, login.RefreshToken)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidRefreshToken)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		_, err := f.svc.Refresh(ctx, login.AccessToken)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidRefreshToken)
	})

	t.Run("every rejection carries the same message", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)
		_, err := f.svc.Refresh(ctx, login.RefreshToken)
		require.NoError(t, err)

		_, garbage := f.svc.Refresh(ctx, "garbage")
		_, stale := f.svc.Refresh(ctx, login.RefreshToken)
		require.Error(t, garbage)
		require.Error(t, stale)
		assert.Equal(t, garbage.Error(), stale.Error())
	})

	t.Run("empty token is a validation error", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Refresh(ctx, "")
		errutil.AssertErrorCode(t, err, auth.CodeValidation)
	})
}

func TestCredentialService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("clears the stored refresh token", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		msg, err := f.svc.Logout(ctx, login.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, auth.LogoutMessage, msg)

		stored := f.accounts.Snapshot(login.User.ID)
		assert.False(t, stored.HasRefreshToken())
		assert.Nil(t, stored.RefreshTokenExpiry)
	})

	t.Run("rotated token cannot log out", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)
		rotated, err := f.svc.Refresh(ctx, login.RefreshToken)
		require.NoError(t, err)

		_, err = f.svc.Logout(ctx, login.RefreshToken)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidRefreshToken)

		stored := f.accounts.Snapshot(login.User.ID)
		assert.Equal(t, auth.HashToken(rotated.RefreshToken), *stored.RefreshTokenHash)
	})

	t.Run("second logout fails", func(t *testing.T) {
		f := newFixture(t)
		login := f.registerAndLogin(t)

		_, err := f.svc.Logout(ctx, login.RefreshToken)
		require.NoError(t, err)
		_, err = f.svc.Logout(ctx, login.RefreshToken)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidRefreshToken)
	})
}

func TestCredentialService_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, "a@b.com", "alice", "Secret123!")
	require.NoError(t, err)

	login, err := f.svc.Login(ctx, "a@b.com", "Secret123!")
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(ctx, login.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Logout(ctx, rotated.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, rotated.RefreshToken)
	errutil.AssertErrorCode(t, err, auth.CodeInvalidRefreshToken)

	again, err := f.svc.Login(ctx, "a@b.com", "Secret123!")
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, again.RefreshToken)
	assert.NotEqual(t, rotated.RefreshToken, again.RefreshToken)

	assert.Equal(t, []auth.EventType{
		auth.EventUserRegistered,
		auth.EventLoginSucceeded,
		auth.EventTokenRefreshed,
		auth.EventLoggedOut,
		auth.EventTokenRefreshFailed,
		auth.EventLoginSucceeded,
	}, f.audit.Events())
}

func TestCredentialService_Authenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	login := f.registerAndLogin(t)

	t.Run("access token resolves the account", func(t *testing.T) {
		user, err := f.svc.Authenticate(ctx, login.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, login.User.ID, user.ID)
		assert.Equal(t, []string{auth.DefaultRoleName}, user.Roles)
	})

	t.Run("refresh token is rejected", func(t *testing.T) {
		_, err := f.svc.Authenticate(ctx, login.RefreshToken)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidAccessToken)
	})

	t.Run("expired access token is rejected", func(t *testing.T) {
		f.clock.Advance(15 * time.Minute)
		_, err := f.svc.Authenticate(ctx, login.AccessToken)
		errutil.AssertErrorCode(t, err, auth.CodeInvalidAccessToken)
	})
}
