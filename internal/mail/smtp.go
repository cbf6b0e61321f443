// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package mail

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/samber/oops"
)

const resetSubject = "Reset your Tripwise password"

var resetBody = template.Must(template.New("reset").Parse(`Hi {{.UserName}},

We received a request to reset the password for your Tripwise account.
Open the link below to choose a new password. It expires in {{.Lifetime}}.

{{.Link}}

If you did not ask for a reset you can ignore this message.
`))

// SMTPConfig configures an SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// LinkBaseURL is the frontend page that accepts ?token=.
	LinkBaseURL string
	// Lifetime is the reset token lifetime shown to the recipient.
	Lifetime time.Duration
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer sends reset links through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	cfg    SMTPConfig
	addr   string
	auth   smtp.Auth
	send   sendFunc
	logger *slog.Logger
}

// NewSMTPMailer validates cfg and returns a mailer.
func NewSMTPMailer(cfg SMTPConfig, logger *slog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").Errorf("smtp host and from address are required")
	}
	if _, err := ResetLink(cfg.LinkBaseURL, "check"); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &SMTPMailer{
		cfg:    cfg,
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		send:   smtp.SendMail,
		logger: logger,
	}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m, nil
}

// SendPasswordReset implements auth.Mailer.
func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, userName, token string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("MAIL_SEND_CANCELLED").Wrap(err)
	}
	if err := checkRecipient(to); err != nil {
		return err
	}
	msg, err := m.render(to, userName, token)
	if err != nil {
		return err
	}
	if err := m.send(m.addr, m.auth, m.cfg.From, []string{to}, msg); err != nil {
		return oops.Code("MAIL_SEND_FAILED").With("relay", m.addr).Wrap(err)
	}
	m.logger.InfoContext(ctx, "password reset mail sent", "to", to)
	return nil
}

func (m *SMTPMailer) render(to, userName, token string) ([]byte, error) {
	link, err := ResetLink(m.cfg.LinkBaseURL, token)
	if err != nil {
		return nil, err
	}
	lifetime := humanDuration(m.cfg.Lifetime)

	var body bytes.Buffer
	err = resetBody.Execute(&body, struct{ UserName, Link, Lifetime string }{
		UserName: userName, Link: link, Lifetime: lifetime,
	})
	if err != nil {
		return nil, oops.Code("MAIL_RENDER_FAILED").Wrap(err)
	}

	var msg bytes.Buffer
	for _, h := range [][2]string{
		{"From", m.cfg.From},
		{"To", to},
		{"Subject", resetSubject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
	} {
		msg.WriteString(h[0] + ": " + h[1] + "\r\n")
	}
	msg.WriteString("\r\n")
	msg.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return msg.Bytes(), nil
}

// humanDuration renders whole hours or minutes, e.g. "1 hour", "30 minutes".
func humanDuration(d time.Duration) string {
	if d <= 0 {
		d = time.Hour
	}
	unit, n := "minute", int(d/time.Minute)
	if d%time.Hour == 0 {
		unit, n = "hour", int(d/time.Hour)
	}
	if n != 1 {
		unit += "s"
	}
	return strconv.Itoa(n) + " " + unit
}
