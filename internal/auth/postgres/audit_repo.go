// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tripwise/tripwise/internal/auth"
)

// AuditRepository implements auth.AuditSink using PostgreSQL.
// The audit_log table is append-only.
type AuditRepository struct {
	pool poolIface
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool poolIface) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Append writes one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry auth.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return oops.Code("AUDIT_APPEND_FAILED").
			With("operation", "marshal details").
			With("event_type", string(entry.EventType)).
			Wrap(err)
	}
	if entry.Details == nil {
		details = []byte("{}")
	}

	var userID *string
	if entry.UserID != nil {
		s := entry.UserID.String()
		userID = &s
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, user_id, event_type, occurred_at, details)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID.String(), userID, string(entry.EventType), entry.Timestamp, details)
	if err != nil {
		return oops.Code("AUDIT_APPEND_FAILED").
			With("operation", "insert audit entry").
			With("event_type", string(entry.EventType)).
			Wrap(err)
	}
	return nil
}

// ListByUser returns the most recent entries for a user, newest first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID ulid.ULID, limit int) ([]auth.AuditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, occurred_at, details
		FROM audit_log
		WHERE user_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, userID.String(), limit)
	if err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").
			With("operation", "query audit entries").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var entries []auth.AuditEntry
	for rows.Next() {
		var (
			idStr      string
			eventType  string
			occurredAt time.Time
			details    []byte
		)
		if err := rows.Scan(&idStr, &eventType, &occurredAt, &details); err != nil {
			return nil, oops.Code("AUDIT_LIST_FAILED").With("operation", "scan audit entry").Wrap(err)
		}
		id, err := ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("AUDIT_INVALID_ID").With("id", idStr).Wrap(err)
		}
		entry := auth.AuditEntry{
			ID:        id,
			UserID:    &userID,
			EventType: auth.EventType(eventType),
			Timestamp: occurredAt,
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, oops.Code("AUDIT_INVALID_DETAILS").With("id", idStr).Wrap(err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("AUDIT_LIST_FAILED").With("operation", "iterate audit entries").Wrap(err)
	}
	return entries, nil
}

// Compile-time interface check.
var _ auth.AuditSink = (*AuditRepository)(nil)
