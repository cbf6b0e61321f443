// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Repository sentinels. Repositories wrap these with oops codes, so callers
// must match with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when an account with the same normalized email exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrStaleToken is returned by conditional updates whose expected token
	// no longer matches the stored value.
	ErrStaleToken = errors.New("stored token changed")
)

// Error codes returned by CredentialService and its components.
const (
	CodeValidation          = "AUTH_VALIDATION_FAILED"
	CodeInvalidInput        = "AUTH_INVALID_INPUT"
	CodeEmailAlreadyExists  = "AUTH_EMAIL_ALREADY_EXISTS"
	CodeInvalidCredentials  = "AUTH_INVALID_CREDENTIALS"
	CodeInvalidRefreshToken = "AUTH_INVALID_REFRESH_TOKEN"
	CodeInvalidAccessToken  = "AUTH_INVALID_ACCESS_TOKEN"
	CodeTokenNotFound       = "RESET_TOKEN_NOT_FOUND"
	CodeTokenExpired        = "RESET_TOKEN_EXPIRED"
	CodeSamePassword        = "RESET_SAME_PASSWORD"
	CodeDefaultRoleMissing  = "AUTH_DEFAULT_ROLE_MISSING"
	CodeCorruptCredential   = "AUTH_CREDENTIAL_CORRUPT"
)

// Kind classifies an error for callers that translate errors into transport
// responses.
type Kind int

// Error kinds.
const (
	KindInfrastructure Kind = iota
	KindValidation
	KindConflict
	KindAuthentication
	KindNotFound
	KindExpired
	KindConfiguration
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindConfiguration:
		return "configuration"
	default:
		return "infrastructure"
	}
}

var codeKinds = map[string]Kind{
	CodeValidation:          KindValidation,
	CodeInvalidInput:        KindValidation,
	CodeEmailAlreadyExists:  KindConflict,
	CodeSamePassword:        KindConflict,
	CodeInvalidCredentials:  KindAuthentication,
	CodeInvalidRefreshToken: KindAuthentication,
	CodeInvalidAccessToken:  KindAuthentication,
	CodeTokenNotFound:       KindNotFound,
	CodeTokenExpired:        KindExpired,
	CodeDefaultRoleMissing:  KindConfiguration,
}

// KindOf returns the kind of err. Errors without a known code are
// infrastructure errors.
func KindOf(err error) Kind {
	if code := Code(err); code != "" {
		if kind, ok := codeKinds[code]; ok {
			return kind
		}
	}
	return KindInfrastructure
}

// Code returns the oops code attached to err, or "" when there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
