// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package auth

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type registerInput struct {
	Email    string `validate:"required,email,max=254"`
	UserName string `validate:"required,max=64"`
	Password string `validate:"required,max=256"`
}

type loginInput struct {
	Email    string `validate:"required,max=254"`
	Password string `validate:"required,max=256"`
}

type tokenInput struct {
	Token string `validate:"required"`
}

type emailInput struct {
	Email string `validate:"required,max=254"`
}

type resetInput struct {
	Token       string `validate:"required"`
	NewPassword string `validate:"required,max=256"`
}

// validateInput runs struct validation and converts failures into a single
// AUTH_VALIDATION_FAILED error listing the offending fields.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return oops.Code(CodeValidation).Wrap(err)
	}

	fields := make([]string, 0, len(verrs))
	rules := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		rules[fe.Field()] = fe.Tag()
	}
	return oops.Code(CodeValidation).
		With("fields", rules).
		Errorf("invalid input: %s", strings.Join(fields, ", "))
}
