// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

// Package authtest provides in-memory implementations of the auth
// collaborators for tests.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tripwise/tripwise/internal/auth"
)

// AccountStore is an in-memory auth.AccountRepository with the same
// conditional update semantics as the Postgres repository.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[ulid.ULID]auth.Account
	failures map[string]error
}

// NewAccountStore creates an empty store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[ulid.ULID]auth.Account),
		failures: make(map[string]error),
	}
}

// Fail makes every subsequent call to the named method return err.
// A nil err clears the failure.
func (s *AccountStore) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Snapshot returns a copy of the stored account, or nil.
func (s *AccountStore) Snapshot(id ulid.ULID) *auth.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil
	}
	return clone(a)
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// Create stores a new account.
func (s *AccountStore) Create(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["Create"]; err != nil {
		return err
	}
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return auth.ErrEmailTaken
		}
	}
	s.accounts[account.ID] = *clone(*account)
	return nil
}

// GetByID retrieves an account by ID.
func (s *AccountStore) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["GetByID"]; err != nil {
		return nil, err
	}
	a, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return clone(a), nil
}

// GetByEmail retrieves an account by normalized email.
func (s *AccountStore) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["GetByEmail"]; err != nil {
		return nil, err
	}
	for _, a := range s.accounts {
		if a.Email == email {
			return clone(a), nil
		}
	}
	return nil, auth.ErrNotFound
}

// GetByResetTokenHash retrieves the account holding a reset digest.
func (s *AccountStore) GetByResetTokenHash(_ context.Context, tokenHash string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["GetByResetTokenHash"]; err != nil {
		return nil, err
	}
	for _, a := range s.accounts {
		if a.ResetTokenHash != nil && *a.ResetTokenHash == tokenHash {
			return clone(a), nil
		}
	}
	return nil, auth.ErrNotFound
}

// SetRefreshToken replaces the stored refresh token.
func (s *AccountStore) SetRefreshToken(_ context.Context, id ulid.ULID, grant auth.TokenGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["SetRefreshToken"]; err != nil {
		return err
	}
	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.RefreshTokenHash, a.RefreshTokenExpiry = ptr(grant.Hash), ptr(grant.ExpiresAt)
	s.accounts[id] = a
	return nil
}

// SwapRefreshToken replaces the refresh token if it still equals expectedHash.
func (s *AccountStore) SwapRefreshToken(_ context.Context, id ulid.ULID, expectedHash string, next *auth.TokenGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["SwapRefreshToken"]; err != nil {
		return err
	}
	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	if a.RefreshTokenHash == nil || *a.RefreshTokenHash != expectedHash {
		return auth.ErrStaleToken
	}
	if next == nil {
		a.RefreshTokenHash, a.RefreshTokenExpiry = nil, nil
	} else {
		a.RefreshTokenHash, a.RefreshTokenExpiry = ptr(next.Hash), ptr(next.ExpiresAt)
	}
	s.accounts[id] = a
	return nil
}

// SetResetToken replaces the stored reset token.
func (s *AccountStore) SetResetToken(_ context.Context, id ulid.ULID, grant auth.TokenGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["SetResetToken"]; err != nil {
		return err
	}
	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.ResetTokenHash, a.ResetTokenExpiry = ptr(grant.Hash), ptr(grant.ExpiresAt)
	s.accounts[id] = a
	return nil
}

// CompleteReset installs cred and clears both token pairs if the reset
// digest still equals expectedResetHash.
func (s *AccountStore) CompleteReset(_ context.Context, id ulid.ULID, expectedResetHash string, cred auth.Credential, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["CompleteReset"]; err != nil {
		return err
	}
	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	if a.ResetTokenHash == nil || *a.ResetTokenHash != expectedResetHash {
		return auth.ErrStaleToken
	}
	a.PasswordHash = append([]byte(nil), cred.Hash...)
	a.PasswordSalt = append([]byte(nil), cred.Salt...)
	a.ResetTokenHash, a.ResetTokenExpiry = nil, nil
	a.RefreshTokenHash, a.RefreshTokenExpiry = nil, nil
	a.UpdatedAt = now
	s.accounts[id] = a
	return nil
}

func clone(a auth.Account) *auth.Account {
	c := a
	c.PasswordHash = append([]byte(nil), a.PasswordHash...)
	c.PasswordSalt = append([]byte(nil), a.PasswordSalt...)
	c.RoleIDs = append([]ulid.ULID(nil), a.RoleIDs...)
	if a.ResetTokenHash != nil {
		c.ResetTokenHash = ptr(*a.ResetTokenHash)
	}
	if a.ResetTokenExpiry != nil {
		c.ResetTokenExpiry = ptr(*a.ResetTokenExpiry)
	}
	if a.RefreshTokenHash != nil {
		c.RefreshTokenHash = ptr(*a.RefreshTokenHash)
	}
	if a.RefreshTokenExpiry != nil {
		c.RefreshTokenExpiry = ptr(*a.RefreshTokenExpiry)
	}
	return &c
}

func ptr[T any](v T) *T {
	return &v
}

var _ auth.AccountRepository = (*AccountStore)(nil)
