// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token type claim values.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Default token lifetimes.
const (
	DefaultAccessTokenLifetime  = 15 * time.Minute
	DefaultRefreshTokenLifetime = 7 * 24 * time.Hour
)

// MinSecretLength is the shortest accepted HMAC signing secret, in bytes.
const MinSecretLength = 32

// TokenConfig configures a TokenIssuer.
type TokenConfig struct {
	Secret          []byte
	Issuer          string
	Audience        string
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
}

// Validate checks that the configuration can sign tokens.
func (c TokenConfig) Validate() error {
	if len(c.Secret) < MinSecretLength {
		return oops.Code("TOKEN_CONFIG_INVALID").
			With("min_length", MinSecretLength).
			Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	if c.AccessLifetime <= 0 {
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("access token lifetime must be positive")
	}
	if c.RefreshLifetime <= 0 {
		return oops.Code("TOKEN_CONFIG_INVALID").Errorf("refresh token lifetime must be positive")
	}
	return nil
}

// AccessClaims are the claims carried by an access token.
// Tokens are signed, not encrypted: nothing here is confidential.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	Type  string   `json:"type,omitempty"`
}

// AccountID returns the subject as an account ID.
func (c *AccessClaims) AccountID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, errInvalidAccessToken()
	}
	return id, nil
}

// RefreshClaims are the claims carried by a refresh token.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type string `json:"type"`
}

// IssuedToken is a signed token with its expiry.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer signs and validates access and refresh tokens.
// Validation is pure: it reads only the secret and the clock.
type TokenIssuer struct {
	cfg    TokenConfig
	clock  clockwork.Clock
	parser *jwt.Parser
}

// NewTokenIssuer creates a TokenIssuer. A nil clock uses the real clock.
func NewTokenIssuer(cfg TokenConfig, clock clockwork.Clock) (*TokenIssuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(clock.Now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &TokenIssuer{
		cfg:    cfg,
		clock:  clock,
		parser: jwt.NewParser(opts...),
	}, nil
}

// AccessLifetime returns the configured access token lifetime.
func (t *TokenIssuer) AccessLifetime() time.Duration {
	return t.cfg.AccessLifetime
}

// IssueAccessToken signs a short-lived access token for account.
func (t *TokenIssuer) IssueAccessToken(account *Account, roles []string) (IssuedToken, error) {
	if account == nil {
		return IssuedToken{}, oops.Code(CodeInvalidInput).Errorf("account is required")
	}
	now := t.clock.Now()
	expiresAt := now.Add(t.cfg.AccessLifetime)

	claims := AccessClaims{
		RegisteredClaims: t.registered(account.ID, now, expiresAt),
		Email:            account.Email,
		Roles:            append([]string{}, roles...),
		Type:             TokenTypeAccess,
	}
	return t.sign(claims, expiresAt)
}

// IssueRefreshToken signs a long-lived refresh token for accountID.
func (t *TokenIssuer) IssueRefreshToken(accountID ulid.ULID) (IssuedToken, error) {
	now := t.clock.Now()
	expiresAt := now.Add(t.cfg.RefreshLifetime)

	claims := RefreshClaims{
		RegisteredClaims: t.registered(accountID, now, expiresAt),
		Type:             TokenTypeRefresh,
	}
	return t.sign(claims, expiresAt)
}

// ValidateRefreshToken verifies a refresh token and returns its subject.
// Every failure returns the same AUTH_INVALID_REFRESH_TOKEN error.
func (t *TokenIssuer) ValidateRefreshToken(token string) (ulid.ULID, error) {
	claims := &RefreshClaims{}
	if _, err := t.parser.ParseWithClaims(token, claims, t.keyFunc); err != nil {
		return ulid.ULID{}, errInvalidRefreshToken()
	}
	if claims.Type != TokenTypeRefresh {
		return ulid.ULID{}, errInvalidRefreshToken()
	}
	id, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, errInvalidRefreshToken()
	}
	return id, nil
}

// ValidateAccessToken verifies an access token and returns its claims.
// Refresh tokens are rejected.
func (t *TokenIssuer) ValidateAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := t.parser.ParseWithClaims(token, claims, t.keyFunc); err != nil {
		return nil, errInvalidAccessToken()
	}
	if claims.Type != "" && claims.Type != TokenTypeAccess {
		return nil, errInvalidAccessToken()
	}
	if _, err := claims.AccountID(); err != nil {
		return nil, err
	}
	return claims, nil
}

func (t *TokenIssuer) registered(subject ulid.ULID, now, expiresAt time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject.String(),
		ID:        ulid.Make().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    t.cfg.Issuer,
	}
	if t.cfg.Audience != "" {
		rc.Audience = jwt.ClaimStrings{t.cfg.Audience}
	}
	return rc
}

func (t *TokenIssuer) sign(claims jwt.Claims, expiresAt time.Time) (IssuedToken, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.Secret)
	if err != nil {
		return IssuedToken{}, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

func (t *TokenIssuer) keyFunc(_ *jwt.Token) (any, error) {
	return t.cfg.Secret, nil
}

func errInvalidRefreshToken() error {
	return oops.Code(CodeInvalidRefreshToken).Errorf("invalid refresh token")
}

func errInvalidAccessToken() error {
	return oops.Code(CodeInvalidAccessToken).Errorf("invalid access token")
}
