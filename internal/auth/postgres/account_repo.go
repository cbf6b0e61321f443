// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tripwise/tripwise/internal/auth"
)

// emailConstraint is the unique constraint on accounts.email.
const emailConstraint = "accounts_email_key"

const selectAccount = `
	SELECT a.id, a.email, a.user_name, a.password_hash, a.password_salt,
	       a.password_reset_token_hash, a.password_reset_token_expiry,
	       a.refresh_token_hash, a.refresh_token_expiry,
	       a.created_at, a.updated_at,
	       COALESCE(ARRAY_AGG(ar.role_id ORDER BY ar.role_id)
	                FILTER (WHERE ar.role_id IS NOT NULL), '{}') AS role_ids
	FROM accounts a
	LEFT JOIN account_roles ar ON ar.account_id = a.id
`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
//
// Conditional updates run as a single UPDATE ... WHERE guarded on the
// stored digest, so concurrent callers serialize on the row lock.
type AccountRepository struct {
	pool poolIface
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account and its role assignments in one transaction.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "begin transaction").Wrap(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (id, email, user_name, password_hash, password_salt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		account.ID.String(),
		account.Email,
		account.UserName,
		account.PasswordHash,
		account.PasswordSalt,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // insert error takes precedence
		if isUniqueViolation(err, emailConstraint) {
			return oops.Code("ACCOUNT_EMAIL_TAKEN").
				With("email", account.Email).
				Wrap(auth.ErrEmailTaken)
		}
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", account.Email).
			Wrap(err)
	}

	for _, roleID := range account.RoleIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO account_roles (account_id, role_id) VALUES ($1, $2)
		`, account.ID.String(), roleID.String()); err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // insert error takes precedence
			return oops.Code("ACCOUNT_CREATE_FAILED").
				With("operation", "insert account role").
				With("role_id", roleID.String()).
				Wrap(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+`
		WHERE a.id = $1
		GROUP BY a.id
	`, id.String())

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by id").
			With("id", id.String()).
			Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+`
		WHERE a.email = $1
		GROUP BY a.id
	`, email)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by email").
			Wrap(err)
	}
	return account, nil
}

// GetByResetTokenHash retrieves the account holding a reset token digest.
func (r *AccountRepository) GetByResetTokenHash(ctx context.Context, tokenHash string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, selectAccount+`
		WHERE a.password_reset_token_hash = $1
		GROUP BY a.id
	`, tokenHash)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").
			With("operation", "get account by reset token").
			Wrap(err)
	}
	return account, nil
}

// SetRefreshToken unconditionally replaces the stored refresh token.
func (r *AccountRepository) SetRefreshToken(ctx context.Context, id ulid.ULID, grant auth.TokenGrant) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET refresh_token_hash = $2, refresh_token_expiry = $3, updated_at = now()
		WHERE id = $1
	`, id.String(), grant.Hash, grant.ExpiresAt)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "set refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// SwapRefreshToken replaces the refresh token only while it still equals
// expectedHash. A nil next clears it. A missing account and a stale digest
// both report ErrStaleToken.
func (r *AccountRepository) SwapRefreshToken(ctx context.Context, id ulid.ULID, expectedHash string, next *auth.TokenGrant) error {
	var (
		hash   *string
		expiry *time.Time
	)
	if next != nil {
		hash, expiry = &next.Hash, &next.ExpiresAt
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET refresh_token_hash = $3, refresh_token_expiry = $4, updated_at = now()
		WHERE id = $1 AND refresh_token_hash = $2
	`, id.String(), expectedHash, hash, expiry)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "swap refresh token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_TOKEN_STALE").With("id", id.String()).Wrap(auth.ErrStaleToken)
	}
	return nil
}

// SetResetToken replaces the stored reset token.
func (r *AccountRepository) SetResetToken(ctx context.Context, id ulid.ULID, grant auth.TokenGrant) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET password_reset_token_hash = $2, password_reset_token_expiry = $3, updated_at = now()
		WHERE id = $1
	`, id.String(), grant.Hash, grant.ExpiresAt)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// CompleteReset installs cred and clears the reset and refresh tokens,
// guarded on the stored reset digest.
func (r *AccountRepository) CompleteReset(ctx context.Context, id ulid.ULID, expectedResetHash string, cred auth.Credential, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $3, password_salt = $4,
		    password_reset_token_hash = NULL, password_reset_token_expiry = NULL,
		    refresh_token_hash = NULL, refresh_token_expiry = NULL,
		    updated_at = $5
		WHERE id = $1 AND password_reset_token_hash = $2
	`, id.String(), expectedResetHash, cred.Hash, cred.Salt, now)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").
			With("operation", "complete reset").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_TOKEN_STALE").With("id", id.String()).Wrap(auth.ErrStaleToken)
	}
	return nil
}

// scanAccount scans a single row into an Account.
// Callers are responsible for handling pgx.ErrNoRows.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		idStr      string
		account    auth.Account
		roleIDStrs []string
	)

	err := row.Scan(
		&idStr,
		&account.Email,
		&account.UserName,
		&account.PasswordHash,
		&account.PasswordSalt,
		&account.ResetTokenHash,
		&account.ResetTokenExpiry,
		&account.RefreshTokenHash,
		&account.RefreshTokenExpiry,
		&account.CreatedAt,
		&account.UpdatedAt,
		&roleIDStrs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.Code("ACCOUNT_SCAN_FAILED").With("operation", "scan account").Wrap(err)
	}

	account.ID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ACCOUNT_INVALID_ID").With("id", idStr).Wrap(err)
	}

	account.RoleIDs = make([]ulid.ULID, 0, len(roleIDStrs))
	for _, s := range roleIDStrs {
		roleID, err := ulid.Parse(s)
		if err != nil {
			return nil, oops.Code("ACCOUNT_INVALID_ROLE_ID").With("role_id", s).Wrap(err)
		}
		account.RoleIDs = append(account.RoleIDs, roleID)
	}
	return &account, nil
}

// Compile-time interface check.
var _ auth.AccountRepository = (*AccountRepository)(nil)
