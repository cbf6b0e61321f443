// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultRoleCacheSize bounds the number of cached roles per index.
const DefaultRoleCacheSize = 128

// CachedRoleRepository is a read-through cache over a RoleRepository.
// Roles are immutable, so entries never need invalidation. Misses are
// not cached.
type CachedRoleRepository struct {
	next   RoleRepository
	byName *lru.Cache[string, Role]
	byID   *lru.Cache[ulid.ULID, Role]
}

// NewCachedRoleRepository wraps next with an LRU cache of the given size.
func NewCachedRoleRepository(next RoleRepository, size int) (*CachedRoleRepository, error) {
	if next == nil {
		return nil, oops.Code("ROLE_CACHE_INVALID").Errorf("role repository is required")
	}
	if size <= 0 {
		size = DefaultRoleCacheSize
	}
	byName, err := lru.New[string, Role](size)
	if err != nil {
		return nil, oops.Code("ROLE_CACHE_INVALID").Wrap(err)
	}
	byID, err := lru.New[ulid.ULID, Role](size)
	if err != nil {
		return nil, oops.Code("ROLE_CACHE_INVALID").Wrap(err)
	}
	return &CachedRoleRepository{next: next, byName: byName, byID: byID}, nil
}

// GetByName retrieves a role by name, consulting the cache first.
func (c *CachedRoleRepository) GetByName(ctx context.Context, name string) (*Role, error) {
	if role, ok := c.byName.Get(name); ok {
		return &role, nil
	}
	role, err := c.next.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	c.remember(*role)
	return role, nil
}

// GetByID retrieves a role by ID, consulting the cache first.
func (c *CachedRoleRepository) GetByID(ctx context.Context, id ulid.ULID) (*Role, error) {
	if role, ok := c.byID.Get(id); ok {
		return &role, nil
	}
	role, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.remember(*role)
	return role, nil
}

func (c *CachedRoleRepository) remember(role Role) {
	c.byName.Add(role.Name, role)
	c.byID.Add(role.ID, role)
}

var _ RoleRepository = (*CachedRoleRepository)(nil)
