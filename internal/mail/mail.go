// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

// Package mail delivers password reset links.
package mail

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/oops"
)

// LogMailer records that a reset mail would have been sent. It never logs
// the token. Use it in development.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer returns a LogMailer writing to logger (slog.Default when nil).
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// SendPasswordReset implements auth.Mailer.
func (m *LogMailer) SendPasswordReset(ctx context.Context, to, userName, _ string) error {
	if err := checkRecipient(to); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "password reset mail not delivered: log driver",
		"to", to, "user_name", userName)
	return nil
}

// ResetLink appends token as the "token" query parameter of base.
func ResetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", oops.Code("MAIL_LINK_INVALID").With("base", base).Wrap(err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", oops.Code("MAIL_LINK_INVALID").With("base", base).Errorf("reset link base must be an absolute URL")
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// checkRecipient rejects addresses that could inject message headers.
func checkRecipient(to string) error {
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return oops.Code("MAIL_RECIPIENT_INVALID").Errorf("invalid recipient address")
	}
	return nil
}
