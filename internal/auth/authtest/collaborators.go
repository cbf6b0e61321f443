// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package authtest

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	"github.com/tripwise/tripwise/internal/auth"
)

// Seeded role IDs, matching the roles migration.
var (
	UserRoleID  = ulid.MustParse("00000000000000000000000001")
	AdminRoleID = ulid.MustParse("00000000000000000000000002")
)

// RoleStore is an in-memory auth.RoleRepository.
type RoleStore struct {
	mu      sync.Mutex
	roles   map[ulid.ULID]auth.Role
	lookups atomic.Int64
}

// NewRoleStore creates a store holding roles. With no arguments it holds
// the seeded User and Admin roles.
func NewRoleStore(roles ...auth.Role) *RoleStore {
	if len(roles) == 0 {
		roles = []auth.Role{
			{ID: UserRoleID, Name: auth.DefaultRoleName},
			{ID: AdminRoleID, Name: "Admin"},
		}
	}
	s := &RoleStore{roles: make(map[ulid.ULID]auth.Role, len(roles))}
	for _, r := range roles {
		s.roles[r.ID] = r
	}
	return s
}

// Lookups returns how many reads reached the store.
func (s *RoleStore) Lookups() int64 {
	return s.lookups.Load()
}

// GetByName retrieves a role by name.
func (s *RoleStore) GetByName(_ context.Context, name string) (*auth.Role, error) {
	s.lookups.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			role := r
			return &role, nil
		}
	}
	return nil, auth.ErrNotFound
}

// GetByID retrieves a role by ID.
func (s *RoleStore) GetByID(_ context.Context, id ulid.ULID) (*auth.Role, error) {
	s.lookups.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &r, nil
}

// AuditRecorder is an auth.AuditSink that keeps entries in memory.
// Setting Err makes Append fail after recording nothing.
type AuditRecorder struct {
	mu      sync.Mutex
	entries []auth.AuditEntry
	Err     error
}

// Append records entry, or returns Err when set.
func (r *AuditRecorder) Append(_ context.Context, entry auth.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.entries = append(r.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (r *AuditRecorder) Entries() []auth.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]auth.AuditEntry(nil), r.entries...)
}

// Events returns the recorded event types in order.
func (r *AuditRecorder) Events() []auth.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]auth.EventType, 0, len(r.entries))
	for _, e := range r.entries {
		events = append(events, e.EventType)
	}
	return events
}

// SentMail is one recorded reset email.
type SentMail struct {
	To       string
	UserName string
	Token    string
}

// MailRecorder is an auth.Mailer that keeps messages in memory.
type MailRecorder struct {
	mu   sync.Mutex
	sent []SentMail
	Err  error
	// Hold, when set, delays every send until it is closed.
	Hold chan struct{}
}

// SendPasswordReset records the message, or returns Err when set.
func (m *MailRecorder) SendPasswordReset(ctx context.Context, to, userName, token string) error {
	if m.Hold != nil {
		select {
		case <-m.Hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMail{To: to, UserName: userName, Token: token})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MailRecorder) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// Last returns the most recent message and whether there was one.
func (m *MailRecorder) Last() (SentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

var (
	_ auth.RoleRepository = (*RoleStore)(nil)
	_ auth.AuditSink      = (*AuditRecorder)(nil)
	_ auth.Mailer         = (*MailRecorder)(nil)
)
