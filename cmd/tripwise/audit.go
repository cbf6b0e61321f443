// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package main

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tripwise/tripwise/internal/config"
)

const defaultAuditLimit = 20

// NewAuditCmd creates the audit subcommand.
func NewAuditCmd() *cobra.Command {
	return newAuditCmd(nil)
}

func newAuditCmd(deps *AuditDeps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "audit USER_ID",
		Short: "Show recent audit entries for an account",
		Long: `Print the audit log entries recorded for an account, newest first.
USER_ID is the account's ULID as returned by registration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, deps, args[0])
		},
	}
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL (env "+config.EnvDatabaseURL+")")
	cmd.Flags().Int("limit", defaultAuditLimit, "maximum number of entries to show")
	return cmd
}

func runAudit(cmd *cobra.Command, deps *AuditDeps, rawID string) error {
	userID, err := ulid.ParseStrict(rawID)
	if err != nil {
		return oops.Code("INVALID_USER_ID").With("user_id", rawID).Wrap(err)
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	if limit <= 0 {
		return oops.Code("INVALID_LIMIT").With("limit", limit).Errorf("limit must be positive")
	}

	url, err := databaseURL(cmd)
	if err != nil {
		return err
	}
	history, closeHistory, err := deps.HistoryFactory(cmd.Context(), url)
	if err != nil {
		return err
	}
	defer closeHistory()

	entries, err := history.ListByUser(cmd.Context(), userID, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cmd.Println("No audit entries for", userID.String())
		return nil
	}
	for _, entry := range entries {
		details := "{}"
		if len(entry.Details) > 0 {
			encoded, err := json.Marshal(entry.Details)
			if err != nil {
				return oops.Code("AUDIT_RENDER_FAILED").With("id", entry.ID.String()).Wrap(err)
			}
			details = string(encoded)
		}
		cmd.Printf("%s  %-32s %s\n", entry.Timestamp.UTC().Format(time.RFC3339), entry.EventType, details)
	}
	return nil
}
