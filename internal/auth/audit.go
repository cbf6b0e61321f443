// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType identifies an audited credential event.
type EventType string

// Audited events.
const (
	EventUserRegistered         EventType = "auth.registered"
	EventRegistrationFailed     EventType = "auth.registration_failed"
	EventLoginSucceeded         EventType = "auth.login"
	EventLoginFailed            EventType = "auth.login_failed"
	EventTokenRefreshed         EventType = "auth.token_refreshed"
	EventTokenRefreshFailed     EventType = "auth.token_refresh_failed"
	EventLoggedOut              EventType = "auth.logout"
	EventPasswordResetRequested EventType = "auth.password_reset_requested"
	EventPasswordReset          EventType = "auth.password_reset"
	EventPasswordResetFailed    EventType = "auth.password_reset_failed"
)

// AuditEntry is one append-only audit record. UserID is nil for anonymous
// failures such as a login against an unknown email.
type AuditEntry struct {
	ID        ulid.ULID
	UserID    *ulid.ULID
	EventType EventType
	Timestamp time.Time
	Details   map[string]any
}

// AuditSink appends audit entries. Callers treat failures as non-fatal.
type AuditSink interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// Mailer delivers password reset links.
type Mailer interface {
	// SendPasswordReset sends the raw reset token to the account's address.
	SendPasswordReset(ctx context.Context, to, userName, token string) error
}
