// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/tripwise/tripwise/internal/config"
	"github.com/tripwise/tripwise/internal/xdg"
)

// NewRootCmd creates the root command for the Tripwise CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tripwise",
		Short: "Tripwise credential server",
		Long: `Tripwise serves account registration, login, token refresh and
password reset for the Tripwise trip planner.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default: XDG_CONFIG_HOME/tripwise/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewHashPasswordCmd())
	cmd.AddCommand(NewAuditCmd())

	return cmd
}

// configSource resolves where cmd reads configuration from. An explicit
// --config must exist; the XDG default may be absent.
func configSource(cmd *cobra.Command) (config.Source, error) {
	src := config.Source{Flags: cmd.Flags()}

	if flag := cmd.Flag("config"); flag != nil && flag.Changed {
		src.Path = flag.Value.String()
		src.Required = true
		return src, nil
	}

	path, err := xdg.ConfigFile()
	if err != nil {
		return src, err
	}
	src.Path = path
	return src, nil
}
