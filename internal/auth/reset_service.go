// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/tripwise/tripwise/pkg/errutil"
)

// resetDeliveryTimeout bounds the background work of one forgot-password
// request once the caller has been answered.
const resetDeliveryTimeout = 30 * time.Second

// ForgotPassword starts a password reset. It returns ForgotPasswordMessage
// whether or not the email is registered. Only the account lookup runs on the
// caller's path; storing the token and sending the email happen in the
// background, so a registered email does not answer slower than an unknown
// one. Failures there are logged and audited. Wait blocks until background
// deliveries finish.
func (s *CredentialService) ForgotPassword(ctx context.Context, email string) (string, error) {
	msg, err := s.forgotPassword(ctx, NormalizeEmail(email))
	s.metrics.observeOperation("forgot_password", err)
	return msg, err
}

func (s *CredentialService) forgotPassword(ctx context.Context, email string) (string, error) {
	if err := validateInput(emailInput{Email: email}); err != nil {
		return "", err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		account = nil
	case err != nil:
		return "", s.infraFailure("forgot password: account lookup failed",
			oops.Code("RESET_REQUEST_FAILED").With("operation", "get account by email").Wrap(err))
	}

	background := context.WithoutCancel(ctx)
	s.background.Go(func() {
		ctx, cancel := context.WithTimeout(background, resetDeliveryTimeout)
		defer cancel()
		if account == nil {
			s.audit(ctx, EventPasswordResetRequested, nil, map[string]any{"email": email, "account_found": false})
			return
		}
		s.deliverReset(ctx, account)
	})
	return ForgotPasswordMessage, nil
}

// deliverReset stores a fresh reset token on account and mails it.
func (s *CredentialService) deliverReset(ctx context.Context, account *Account) {
	token, hash, err := GenerateResetToken()
	if err != nil {
		s.resetRequestDropped(ctx, account, "token_generation", err)
		return
	}

	grant := TokenGrant{Hash: hash, ExpiresAt: s.clock.Now().Add(s.resetLifetime)}
	if err := s.accounts.SetResetToken(ctx, account.ID, grant); err != nil {
		s.resetRequestDropped(ctx, account, "token_store",
			oops.Code("RESET_REQUEST_FAILED").With("operation", "set reset token").Wrap(err))
		return
	}

	if err := s.mailer.SendPasswordReset(ctx, account.Email, account.UserName, token); err != nil {
		s.resetRequestDropped(ctx, account, "mail_delivery",
			oops.Code("RESET_MAIL_FAILED").With("operation", "send reset email").Wrap(err))
		return
	}

	s.audit(ctx, EventPasswordResetRequested, idRef(account.ID), map[string]any{"email": account.Email, "account_found": true})
	s.logger.InfoContext(ctx, "password reset requested", "account_id", account.ID.String())
}

// Wait blocks until the background work started by ForgotPassword is done.
// Callers shutting down should call it after they stop accepting requests.
func (s *CredentialService) Wait() {
	s.background.Wait()
}

func (s *CredentialService) resetRequestDropped(ctx context.Context, account *Account, stage string, err error) {
	errutil.LogError(s.logger, "forgot password: reset request dropped", err)
	s.audit(ctx, EventPasswordResetFailed, idRef(account.ID), map[string]any{"stage": stage})
}

// ResetPassword redeems a reset token. The token is single-use: redeeming it
// clears both the reset token and any refresh token on the account.
func (s *CredentialService) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	msg, err := s.resetPassword(ctx, token, newPassword)
	s.metrics.observeOperation("reset_password", err)
	return msg, err
}

func (s *CredentialService) resetPassword(ctx context.Context, token, newPassword string) (string, error) {
	if err := validateInput(resetInput{Token: token, NewPassword: newPassword}); err != nil {
		return "", err
	}

	tokenHash := HashToken(token)
	account, err := s.accounts.GetByResetTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.audit(ctx, EventPasswordResetFailed, nil, map[string]any{"reason": "token_not_found"})
			return "", errResetTokenNotFound()
		}
		return "", s.infraFailure("reset password: account lookup failed",
			oops.Code("RESET_FAILED").With("operation", "get account by reset token").Wrap(err))
	}

	if expired(account.ResetTokenExpiry, s.clock.Now()) {
		s.audit(ctx, EventPasswordResetFailed, idRef(account.ID), map[string]any{"reason": "token_expired"})
		return "", oops.Code(CodeTokenExpired).Errorf("reset token has expired")
	}

	same, err := s.verify(ctx, newPassword, account.PasswordHash, account.PasswordSalt)
	if err != nil {
		return "", s.infraFailure("reset password: password comparison failed", err)
	}
	if same {
		s.audit(ctx, EventPasswordResetFailed, idRef(account.ID), map[string]any{"reason": "same_password"})
		return "", oops.Code(CodeSamePassword).Errorf("new password must differ from the current password")
	}

	cred, err := s.hash(ctx, newPassword)
	if err != nil {
		return "", s.infraFailure("reset password: password hashing failed", err)
	}

	if err := s.accounts.CompleteReset(ctx, account.ID, tokenHash, cred, s.clock.Now()); err != nil {
		// Another redemption of the same token won the race.
		if errors.Is(err, ErrStaleToken) || errors.Is(err, ErrNotFound) {
			s.audit(ctx, EventPasswordResetFailed, idRef(account.ID), map[string]any{"reason": "token_consumed"})
			return "", errResetTokenNotFound()
		}
		return "", s.infraFailure("reset password: credential update failed",
			oops.Code("RESET_FAILED").With("operation", "complete reset").Wrap(err))
	}

	s.audit(ctx, EventPasswordReset, idRef(account.ID), nil)
	s.logger.InfoContext(ctx, "password reset completed", "account_id", account.ID.String())
	return ResetPasswordMessage, nil
}

func errResetTokenNotFound() error {
	return oops.Code(CodeTokenNotFound).Errorf("invalid or unknown reset token")
}
