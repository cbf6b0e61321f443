// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

// Package auth provides the credential core for Tripwise.
//
// # Domain Types
//
// Accounts should be created with NewAccount, which normalizes the email
// and checks that a password hash and salt are present. Roles are
// immutable reference data resolved through a RoleRepository.
//
// Refresh and reset tokens are stored as SHA-256 digests. The raw token is
// only ever returned to the caller or written into a reset email.
//
// # Components
//
//   - PBKDF2Hasher - salted PBKDF2-HMAC-SHA256 hashing with constant-time verify
//   - TokenIssuer - signed access and refresh tokens with zero clock skew
//   - CredentialService - register, login, refresh, logout, forgot and reset password
//
// # Errors
//
// Expected outcomes are returned as oops errors carrying one of the Code*
// constants. KindOf maps an error to the taxonomy transports translate into
// responses. Authentication failures are deliberately uninformative.
package auth
