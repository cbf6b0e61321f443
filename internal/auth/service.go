// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/tripwise/tripwise/pkg/errutil"
)

// User-visible messages. The forgot-password message is identical whether
// or not the account exists.
const (
	ForgotPasswordMessage = "If an account with this email exists, a reset link has been sent"
	LogoutMessage         = "Logged out successfully"
	ResetPasswordMessage  = "Password has been reset successfully"
)

// dummyCredential is verified against when a login names an unknown email,
// so both failure paths pay for a full derivation. The all-zero key never
// matches a real derivation.
var dummyCredential = Credential{
	Hash: make([]byte, PBKDF2KeyLength),
	Salt: bytes.Repeat([]byte{0x5a}, PBKDF2SaltLength),
}

// ServiceDeps are the collaborators of a CredentialService.
type ServiceDeps struct {
	Accounts AccountRepository
	Roles    RoleRepository
	Audit    AuditSink
	Mailer   Mailer
	Hasher   PasswordHasher
	Tokens   *TokenIssuer

	// Optional.
	Clock              clockwork.Clock
	Logger             *slog.Logger
	Metrics            *Metrics
	DefaultRole        string
	ResetTokenLifetime time.Duration
}

// CredentialService orchestrates registration, login, token refresh,
// logout and password reset.
type CredentialService struct {
	accounts      AccountRepository
	roles         RoleRepository
	auditSink     AuditSink
	mailer        Mailer
	hasher        PasswordHasher
	tokens        *TokenIssuer
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *Metrics
	defaultRole   string
	resetLifetime time.Duration

	background sync.WaitGroup
}

// RegisterResult summarizes a newly created account.
type RegisterResult struct {
	ID        ulid.ULID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserSummary describes the authenticated account in a login response.
type UserSummary struct {
	ID       ulid.ULID `json:"id"`
	Email    string    `json:"email"`
	UserName string    `json:"userName"`
	Roles    []string  `json:"roles"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresIn    int64       `json:"expiresIn"`
	User         UserSummary `json:"user"`
}

// RefreshResult is returned by a successful refresh.
type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// NewCredentialService validates its dependencies and resolves the default
// role. A missing default role returns AUTH_DEFAULT_ROLE_MISSING, which
// callers treat as a fatal startup error.
func NewCredentialService(ctx context.Context, deps ServiceDeps) (*CredentialService, error) {
	switch {
	case deps.Accounts == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("account repository is required")
	case deps.Roles == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("role repository is required")
	case deps.Audit == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("audit sink is required")
	case deps.Mailer == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("mailer is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	case deps.Tokens == nil:
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token issuer is required")
	}

	roles, err := NewCachedRoleRepository(deps.Roles, DefaultRoleCacheSize)
	if err != nil {
		return nil, err
	}

	s := &CredentialService{
		accounts:      deps.Accounts,
		roles:         roles,
		auditSink:     deps.Audit,
		mailer:        deps.Mailer,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		clock:         deps.Clock,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		defaultRole:   deps.DefaultRole,
		resetLifetime: deps.ResetTokenLifetime,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.defaultRole == "" {
		s.defaultRole = DefaultRoleName
	}
	if s.resetLifetime <= 0 {
		s.resetLifetime = ResetTokenExpiry
	}

	if _, err := s.lookupDefaultRole(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// lookupDefaultRole resolves the role attached to new accounts.
func (s *CredentialService) lookupDefaultRole(ctx context.Context) (*Role, error) {
	role, err := s.roles.GetByName(ctx, s.defaultRole)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeDefaultRoleMissing).
				With("role", s.defaultRole).
				Errorf("default role %q does not exist", s.defaultRole)
		}
		return nil, oops.Code("AUTH_ROLE_LOOKUP_FAILED").
			With("operation", "get default role").
			With("role", s.defaultRole).
			Wrap(err)
	}
	return role, nil
}

// roleNames resolves role IDs to names for token claims.
func (s *CredentialService) roleNames(ctx context.Context, ids []ulid.ULID) ([]string, error) {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		role, err := s.roles.GetByID(ctx, id)
		if err != nil {
			return nil, oops.Code("AUTH_ROLE_LOOKUP_FAILED").
				With("operation", "get role by id").
				With("role_id", id.String()).
				Wrap(err)
		}
		names = append(names, role.Name)
	}
	return names, nil
}

// tokenPair is a freshly issued access and refresh token.
type tokenPair struct {
	access  IssuedToken
	refresh IssuedToken
}

func (s *CredentialService) issuePair(account *Account, roles []string) (tokenPair, error) {
	access, err := s.tokens.IssueAccessToken(account, roles)
	if err != nil {
		return tokenPair{}, oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("operation", "issue access token").Wrap(err)
	}
	refresh, err := s.tokens.IssueRefreshToken(account.ID)
	if err != nil {
		return tokenPair{}, oops.Code("AUTH_TOKEN_ISSUE_FAILED").With("operation", "issue refresh token").Wrap(err)
	}
	return tokenPair{access: access, refresh: refresh}, nil
}

func (s *CredentialService) expiresIn() int64 {
	return int64(s.tokens.AccessLifetime() / time.Second)
}

func (s *CredentialService) hash(ctx context.Context, password string) (Credential, error) {
	start := s.clock.Now()
	cred, err := s.hasher.Hash(ctx, password)
	s.metrics.observeHash("hash", s.clock.Since(start).Seconds())
	return cred, err
}

func (s *CredentialService) verify(ctx context.Context, password string, hash, salt []byte) (bool, error) {
	start := s.clock.Now()
	ok, err := s.hasher.Verify(ctx, password, hash, salt)
	s.metrics.observeHash("verify", s.clock.Since(start).Seconds())
	// A stored pair the hasher rejects is corrupt data, not caller input.
	if err != nil && Code(err) == CodeInvalidInput {
		return false, oops.Code(CodeCorruptCredential).
			With("operation", "verify stored credential").
			Errorf("stored credential is unusable: %v", err)
	}
	return ok, err
}

// audit appends an entry and swallows failures. It detaches from the
// request's cancellation so an abandoned request is still recorded.
func (s *CredentialService) audit(ctx context.Context, event EventType, userID *ulid.ULID, details map[string]any) {
	entry := AuditEntry{
		ID:        ulid.Make(),
		UserID:    userID,
		EventType: event,
		Timestamp: s.clock.Now(),
		Details:   details,
	}
	if err := s.auditSink.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.metrics.auditFailed()
		errutil.Log(ctx, s.logger, slog.LevelWarn, "audit entry dropped", err,
			"event_type", string(event))
	}
}

// infraFailure logs an infrastructure error before it is returned.
func (s *CredentialService) infraFailure(msg string, err error) error {
	errutil.LogError(s.logger, msg, err)
	return err
}

func idRef(id ulid.ULID) *ulid.ULID {
	return &id
}

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid email or password")
}
