// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package authtest

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/tripwise/tripwise/internal/auth"
)

// MockAccountRepository is a testify mock of auth.AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

// NewMockAccountRepository creates a mock whose expectations are asserted
// when the test ends.
func NewMockAccountRepository(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockAccountRepository {
	m := &MockAccountRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAccountRepository) Create(ctx context.Context, account *auth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	args := m.Called(ctx, id)
	return account(args, 0), args.Error(1)
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	args := m.Called(ctx, email)
	return account(args, 0), args.Error(1)
}

func (m *MockAccountRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*auth.Account, error) {
	args := m.Called(ctx, tokenHash)
	return account(args, 0), args.Error(1)
}

func (m *MockAccountRepository) SetRefreshToken(ctx context.Context, id ulid.ULID, grant auth.TokenGrant) error {
	args := m.Called(ctx, id, grant)
	return args.Error(0)
}

func (m *MockAccountRepository) SwapRefreshToken(ctx context.Context, id ulid.ULID, expectedHash string, next *auth.TokenGrant) error {
	args := m.Called(ctx, id, expectedHash, next)
	return args.Error(0)
}

func (m *MockAccountRepository) SetResetToken(ctx context.Context, id ulid.ULID, grant auth.TokenGrant) error {
	args := m.Called(ctx, id, grant)
	return args.Error(0)
}

func (m *MockAccountRepository) CompleteReset(ctx context.Context, id ulid.ULID, expectedResetHash string, cred auth.Credential, now time.Time) error {
	args := m.Called(ctx, id, expectedResetHash, cred, now)
	return args.Error(0)
}

func account(args mock.Arguments, i int) *auth.Account {
	if v := args.Get(i); v != nil {
		return v.(*auth.Account)
	}
	return nil
}

var _ auth.AccountRepository = (*MockAccountRepository)(nil)
