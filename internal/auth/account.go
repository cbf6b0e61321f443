// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultRoleName is the role attached to every newly registered account.
const DefaultRoleName = "User"

// Account is a registered user and its credential state.
//
// PasswordHash and PasswordSalt are always set together. The reset token
// pair and the refresh token pair are each either fully set or fully nil.
// Token fields hold SHA-256 digests, never the raw token.
type Account struct {
	ID                 ulid.ULID
	Email              string
	UserName           string
	PasswordHash       []byte
	PasswordSalt       []byte
	ResetTokenHash     *string
	ResetTokenExpiry   *time.Time
	RefreshTokenHash   *string
	RefreshTokenExpiry *time.Time
	RoleIDs            []ulid.ULID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewAccount creates a validated Account with a fresh ID.
// The email is normalized before it is stored.
func NewAccount(email, userName string, hash, salt []byte, roleIDs []ulid.ULID, now time.Time) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("email cannot be empty")
	}
	if len(hash) == 0 || len(salt) == 0 {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash and salt are required")
	}
	return &Account{
		ID:           ulid.Make(),
		Email:        email,
		UserName:     strings.TrimSpace(userName),
		PasswordHash: hash,
		PasswordSalt: salt,
		RoleIDs:      append([]ulid.ULID(nil), roleIDs...),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasRefreshToken reports whether a refresh token is currently stored.
func (a *Account) HasRefreshToken() bool {
	return a.RefreshTokenHash != nil && a.RefreshTokenExpiry != nil
}

// HasResetToken reports whether a reset token is currently stored.
func (a *Account) HasResetToken() bool {
	return a.ResetTokenHash != nil && a.ResetTokenExpiry != nil
}

// NormalizeEmail trims and lower-cases an email so uniqueness checks
// compare equal for equivalent spellings.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Role is immutable reference data.
type Role struct {
	ID   ulid.ULID
	Name string
}

// TokenGrant is a stored token digest with its expiry.
type TokenGrant struct {
	Hash      string
	ExpiresAt time.Time
}

// Credential is a derived password hash with its salt.
type Credential struct {
	Hash []byte
	Salt []byte
}

// AccountRepository manages account persistence.
//
// The Swap* and CompleteReset methods are conditional updates: they apply
// only while the stored digest still equals the expected one and return
// ErrStaleToken otherwise. They are the per-account critical sections.
type AccountRepository interface {
	// Create stores a new account together with its role assignments.
	// Returns ErrEmailTaken if the normalized email is already registered.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByResetTokenHash retrieves the account holding the given reset token digest.
	GetByResetTokenHash(ctx context.Context, tokenHash string) (*Account, error)

	// SetRefreshToken unconditionally replaces the stored refresh token.
	SetRefreshToken(ctx context.Context, id ulid.ULID, grant TokenGrant) error

	// SwapRefreshToken replaces the stored refresh token only if it still
	// equals expectedHash. A nil next clears both refresh token fields.
	SwapRefreshToken(ctx context.Context, id ulid.ULID, expectedHash string, next *TokenGrant) error

	// SetResetToken replaces the stored reset token.
	SetResetToken(ctx context.Context, id ulid.ULID, grant TokenGrant) error

	// CompleteReset installs a new credential, clears the reset token and the
	// refresh token in one update, conditioned on the stored reset digest.
	CompleteReset(ctx context.Context, id ulid.ULID, expectedResetHash string, cred Credential, now time.Time) error
}

// RoleRepository provides read access to role reference data.
type RoleRepository interface {
	// GetByName retrieves a role by its unique name.
	GetByName(ctx context.Context, name string) (*Role, error)

	// GetByID retrieves a role by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Role, error)
}
