// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tripwise/tripwise/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand, used to seed or
// repair accounts by hand.
func NewHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Long: `Read one line from stdin and print the base64 PBKDF2 hash and salt
in the form stored in accounts.password_hash and accounts.password_salt.`,
		Args: cobra.NoArgs,
		RunE: runHashPassword,
	}
}

func runHashPassword(cmd *cobra.Command, _ []string) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	var password string
	if scanner.Scan() {
		password = strings.TrimRight(scanner.Text(), "\r")
	}
	if err := scanner.Err(); err != nil {
		return oops.Code("INPUT_READ_FAILED").Wrap(err)
	}
	if password == "" {
		return oops.Code(auth.CodeInvalidInput).Errorf("password is required on stdin")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cred, err := auth.NewPBKDF2Hasher().Hash(ctx, password)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, _ = out.Write([]byte("hash: " + base64.StdEncoding.EncodeToString(cred.Hash) + "\n"))
	_, _ = out.Write([]byte("salt: " + base64.StdEncoding.EncodeToString(cred.Salt) + "\n"))
	return nil
}
