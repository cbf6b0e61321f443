// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/tripwise/tripwise/internal/auth"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want auth.Kind
	}{
		{"validation", oops.Code(auth.CodeValidation).Errorf("bad"), auth.KindValidation},
		{"invalid input", oops.Code(auth.CodeInvalidInput).Errorf("bad"), auth.KindValidation},
		{"email exists", oops.Code(auth.CodeEmailAlreadyExists).Errorf("dup"), auth.KindConflict},
		{"same password", oops.Code(auth.CodeSamePassword).Errorf("same"), auth.KindConflict},
		{"credentials", oops.Code(auth.CodeInvalidCredentials).Errorf("no"), auth.KindAuthentication},
		{"refresh token", oops.Code(auth.CodeInvalidRefreshToken).Errorf("no"), auth.KindAuthentication},
		{"reset not found", oops.Code(auth.CodeTokenNotFound).Errorf("no"), auth.KindNotFound},
		{"reset expired", oops.Code(auth.CodeTokenExpired).Errorf("old"), auth.KindExpired},
		{"default role", oops.Code(auth.CodeDefaultRoleMissing).Errorf("missing"), auth.KindConfiguration},
		{"corrupt credential", oops.Code(auth.CodeCorruptCredential).Errorf("bad row"), auth.KindInfrastructure},
		{"unknown code", oops.Code("DB_DOWN").Errorf("down"), auth.KindInfrastructure},
		{"plain error", errors.New("boom"), auth.KindInfrastructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.KindOf(tt.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "not_found", auth.KindNotFound.String())
	assert.Equal(t, "infrastructure", auth.KindInfrastructure.String())
	assert.Equal(t, "configuration", auth.KindConfiguration.String())
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", auth.Code(errors.New("plain")))
	assert.Equal(t, auth.CodeTokenExpired, auth.Code(oops.Code(auth.CodeTokenExpired).Errorf("old")))
}
