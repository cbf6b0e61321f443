// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/samber/oops"
)

// Login authenticates an email and password and issues a token pair.
// Unknown emails and wrong passwords fail with the same error after the
// same amount of hashing work.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	result, err := s.login(ctx, NormalizeEmail(email), password)
	s.metrics.observeOperation("login", err)
	return result, err
}

func (s *CredentialService) login(ctx context.Context, email, password string) (*LoginResult, error) {
	if err := validateInput(loginInput{Email: email, Password: password}); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, s.infraFailure("login: account lookup failed",
			oops.Code("AUTH_LOGIN_FAILED").With("operation", "get account by email").Wrap(err))
	}

	cred := dummyCredential
	if account != nil {
		cred = Credential{Hash: account.PasswordHash, Salt: account.PasswordSalt}
	}
	ok, verr := s.verify(ctx, password, cred.Hash, cred.Salt)
	if verr != nil {
		return nil, s.infraFailure("login: password verification failed", verr)
	}

	if account == nil {
		s.audit(ctx, EventLoginFailed, nil, map[string]any{"email": email, "reason": "unknown_email"})
		return nil, errInvalidCredentials()
	}
	if !ok {
		s.audit(ctx, EventLoginFailed, idRef(account.ID), map[string]any{"email": email, "reason": "wrong_password"})
		return nil, errInvalidCredentials()
	}

	roles, err := s.roleNames(ctx, account.RoleIDs)
	if err != nil {
		return nil, s.infraFailure("login: role lookup failed", err)
	}

	pair, err := s.issuePair(account, roles)
	if err != nil {
		return nil, s.infraFailure("login: token issue failed", err)
	}

	// Login overwrites any previous refresh token: one session per account.
	grant := TokenGrant{Hash: HashToken(pair.refresh.Token), ExpiresAt: pair.refresh.ExpiresAt}
	if err := s.accounts.SetRefreshToken(ctx, account.ID, grant); err != nil {
		return nil, s.infraFailure("login: refresh token store failed",
			oops.Code("AUTH_LOGIN_FAILED").With("operation", "set refresh token").Wrap(err))
	}

	s.audit(ctx, EventLoginSucceeded, idRef(account.ID), map[string]any{"email": account.Email})
	s.logger.InfoContext(ctx, "login succeeded", "account_id", account.ID.String())

	return &LoginResult{
		AccessToken:  pair.access.Token,
		RefreshToken: pair.refresh.Token,
		ExpiresIn:    s.expiresIn(),
		User: UserSummary{
			ID:       account.ID,
			Email:    account.Email,
			UserName: account.UserName,
			Roles:    roles,
		},
	}, nil
}

// Refresh exchanges a valid refresh token for a new pair and revokes the
// presented one. Of two concurrent refreshes with the same token at most
// one succeeds.
func (s *CredentialService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	result, err := s.refresh(ctx, refreshToken)
	s.metrics.observeOperation("refresh", err)
	return result, err
}

func (s *CredentialService) refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := validateInput(tokenInput{Token: refreshToken}); err != nil {
		return nil, err
	}

	account, presented, err := s.currentSession(ctx, refreshToken, "refresh")
	if err != nil {
		return nil, err
	}

	roles, err := s.roleNames(ctx, account.RoleIDs)
	if err != nil {
		return nil, s.infraFailure("refresh: role lookup failed", err)
	}

	pair, err := s.issuePair(account, roles)
	if err != nil {
		return nil, s.infraFailure("refresh: token issue failed", err)
	}

	next := &TokenGrant{Hash: HashToken(pair.refresh.Token), ExpiresAt: pair.refresh.ExpiresAt}
	if err := s.accounts.SwapRefreshToken(ctx, account.ID, presented, next); err != nil {
		if errors.Is(err, ErrStaleToken) || errors.Is(err, ErrNotFound) {
			s.audit(ctx, EventTokenRefreshFailed, idRef(account.ID), map[string]any{"reason": "rotated", "operation": "refresh"})
			return nil, errInvalidRefreshToken()
		}
		return nil, s.infraFailure("refresh: refresh token swap failed",
			oops.Code("AUTH_REFRESH_FAILED").With("operation", "swap refresh token").Wrap(err))
	}

	s.audit(ctx, EventTokenRefreshed, idRef(account.ID), nil)

	return &RefreshResult{
		AccessToken:  pair.access.Token,
		RefreshToken: pair.refresh.Token,
		ExpiresIn:    s.expiresIn(),
	}, nil
}

// Logout revokes the presented refresh token. The stored token is cleared
// only if it still matches, so a concurrent refresh and logout cannot both
// succeed.
func (s *CredentialService) Logout(ctx context.Context, refreshToken string) (string, error) {
	msg, err := s.logout(ctx, refreshToken)
	s.metrics.observeOperation("logout", err)
	return msg, err
}

func (s *CredentialService) logout(ctx context.Context, refreshToken string) (string, error) {
	if err := validateInput(tokenInput{Token: refreshToken}); err != nil {
		return "", err
	}

	account, presented, err := s.currentSession(ctx, refreshToken, "logout")
	if err != nil {
		return "", err
	}

	if err := s.accounts.SwapRefreshToken(ctx, account.ID, presented, nil); err != nil {
		if errors.Is(err, ErrStaleToken) || errors.Is(err, ErrNotFound) {
			s.audit(ctx, EventTokenRefreshFailed, idRef(account.ID), map[string]any{"reason": "rotated", "operation": "logout"})
			return "", errInvalidRefreshToken()
		}
		return "", s.infraFailure("logout: refresh token clear failed",
			oops.Code("AUTH_LOGOUT_FAILED").With("operation", "clear refresh token").Wrap(err))
	}

	s.audit(ctx, EventLoggedOut, idRef(account.ID), nil)
	return LogoutMessage, nil
}

// currentSession validates a refresh token against both its signature and
// the account's stored digest. It returns the account and the presented
// token's digest. Every rejection is the uniform invalid-refresh-token error.
func (s *CredentialService) currentSession(ctx context.Context, refreshToken, operation string) (*Account, string, error) {
	id, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.audit(ctx, EventTokenRefreshFailed, nil, map[string]any{"reason": "invalid_token", "operation": operation})
		return nil, "", err
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.audit(ctx, EventTokenRefreshFailed, nil, map[string]any{"reason": "unknown_account", "operation": operation})
			return nil, "", errInvalidRefreshToken()
		}
		return nil, "", s.infraFailure("refresh token: account lookup failed",
			oops.Code("AUTH_REFRESH_FAILED").With("operation", "get account by id").Wrap(err))
	}

	presented := HashToken(refreshToken)
	if !account.HasRefreshToken() ||
		expired(account.RefreshTokenExpiry, s.clock.Now()) ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(*account.RefreshTokenHash)) != 1 {
		s.audit(ctx, EventTokenRefreshFailed, idRef(account.ID), map[string]any{"reason": "not_current", "operation": operation})
		return nil, "", errInvalidRefreshToken()
	}

	return account, presented, nil
}

// Authenticate validates an access token and returns the account it names.
// Tokens for deleted accounts are rejected like any other invalid token.
func (s *CredentialService) Authenticate(ctx context.Context, accessToken string) (*UserSummary, error) {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	id, err := claims.AccountID()
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errInvalidAccessToken()
		}
		return nil, s.infraFailure("authenticate: account lookup failed",
			oops.Code("AUTH_AUTHENTICATE_FAILED").With("operation", "get account by id").Wrap(err))
	}

	roles, err := s.roleNames(ctx, account.RoleIDs)
	if err != nil {
		return nil, s.infraFailure("authenticate: role lookup failed", err)
	}

	return &UserSummary{
		ID:       account.ID,
		Email:    account.Email,
		UserName: account.UserName,
		Roles:    roles,
	}, nil
}
