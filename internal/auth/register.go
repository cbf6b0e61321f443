// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Register creates an account holding the default role. The email is
// normalized before the uniqueness check. No tokens are issued.
func (s *CredentialService) Register(ctx context.Context, email, userName, password string) (*RegisterResult, error) {
	result, err := s.register(ctx, NormalizeEmail(email), strings.TrimSpace(userName), password)
	s.metrics.observeOperation("register", err)
	return result, err
}

func (s *CredentialService) register(ctx context.Context, email, userName, password string) (*RegisterResult, error) {
	if err := validateInput(registerInput{Email: email, UserName: userName, Password: password}); err != nil {
		return nil, err
	}

	_, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case err == nil:
		s.audit(ctx, EventRegistrationFailed, nil, map[string]any{"email": email, "reason": "email_exists"})
		return nil, errEmailTaken()
	case !errors.Is(err, ErrNotFound):
		s.registrationFailed(ctx, email, "account_lookup")
		return nil, s.infraFailure("register: account lookup failed",
			oops.Code("AUTH_REGISTER_FAILED").With("operation", "get account by email").Wrap(err))
	}

	role, err := s.lookupDefaultRole(ctx)
	if err != nil {
		s.registrationFailed(ctx, email, "default_role")
		return nil, s.infraFailure("register: default role unavailable", err)
	}

	cred, err := s.hash(ctx, password)
	if err != nil {
		s.registrationFailed(ctx, email, "password_hash")
		return nil, s.infraFailure("register: password hashing failed", err)
	}

	account, err := NewAccount(email, userName, cred.Hash, cred.Salt, []ulid.ULID{role.ID}, s.clock.Now())
	if err != nil {
		s.registrationFailed(ctx, email, "invalid_account")
		return nil, err
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		// A concurrent registration can win between the lookup and the insert.
		if errors.Is(err, ErrEmailTaken) {
			s.audit(ctx, EventRegistrationFailed, nil, map[string]any{"email": email, "reason": "email_exists"})
			return nil, errEmailTaken()
		}
		s.registrationFailed(ctx, email, "account_create")
		return nil, s.infraFailure("register: account create failed",
			oops.Code("AUTH_REGISTER_FAILED").With("operation", "create account").Wrap(err))
	}

	s.audit(ctx, EventUserRegistered, idRef(account.ID), map[string]any{"email": account.Email})
	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID.String())

	return &RegisterResult{
		ID:        account.ID,
		Email:     account.Email,
		CreatedAt: account.CreatedAt,
	}, nil
}

// registrationFailed audits a registration that failed after validation.
func (s *CredentialService) registrationFailed(ctx context.Context, email, reason string) {
	s.audit(ctx, EventRegistrationFailed, nil, map[string]any{"email": email, "reason": reason})
}

func errEmailTaken() error {
	return oops.Code(CodeEmailAlreadyExists).Errorf("email already exists")
}
