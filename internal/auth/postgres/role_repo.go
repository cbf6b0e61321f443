// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tripwise/tripwise/internal/auth"
)

// RoleRepository implements auth.RoleRepository using PostgreSQL.
type RoleRepository struct {
	pool poolIface
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(pool poolIface) *RoleRepository {
	return &RoleRepository{pool: pool}
}

// GetByName retrieves a role by its unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name string) (*auth.Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ROLE_NOT_FOUND").With("name", name).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ROLE_GET_FAILED").
			With("operation", "get role by name").
			With("name", name).
			Wrap(err)
	}
	return role, nil
}

// GetByID retrieves a role by ID.
func (r *RoleRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name FROM roles WHERE id = $1`, id.String())
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ROLE_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ROLE_GET_FAILED").
			With("operation", "get role by id").
			With("id", id.String()).
			Wrap(err)
	}
	return role, nil
}

func scanRole(row pgx.Row) (*auth.Role, error) {
	var idStr, name string
	if err := row.Scan(&idStr, &name); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with lookup context
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("ROLE_INVALID_ID").With("id", idStr).Wrap(err)
	}
	return &auth.Role{ID: id, Name: name}, nil
}

// Compile-time interface check.
var _ auth.RoleRepository = (*RoleRepository)(nil)
