// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tripwise/tripwise/internal/auth"
	"github.com/tripwise/tripwise/internal/auth/postgres"
	"github.com/tripwise/tripwise/internal/observability"
	"github.com/tripwise/tripwise/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// Connect opens the database pool.
	// Default: store.Connect
	Connect func(ctx context.Context, url string, opts store.ConnectOptions) (*pgxpool.Pool, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// Listen binds the API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	// MigratorFactory opens a migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)
}

// AuditDeps contains injectable dependencies for the audit command.
type AuditDeps struct {
	// HistoryFactory opens the audit log for a database URL. The returned
	// func releases it.
	// Default: store.Connect with postgres.NewAuditRepository
	HistoryFactory func(ctx context.Context, url string) (AuditHistory, func(), error)
}

// AuditHistory wraps the methods used from postgres.AuditRepository.
type AuditHistory interface {
	ListByUser(ctx context.Context, userID ulid.ULID, limit int) ([]auth.AuditEntry, error)
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Registerer() prometheus.Registerer
	Metrics() *observability.Metrics
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.Connect == nil {
		out.Connect = store.Connect
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	return &out
}

func (d *MigrateDeps) withDefaults() *MigrateDeps {
	out := MigrateDeps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(url string) (Migrator, error) {
			m, err := store.NewMigrator(url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return &out
}

func (d *AuditDeps) withDefaults() *AuditDeps {
	out := AuditDeps{}
	if d != nil {
		out = *d
	}
	if out.HistoryFactory == nil {
		out.HistoryFactory = func(ctx context.Context, url string) (AuditHistory, func(), error) {
			pool, err := store.Connect(ctx, url, store.ConnectOptions{})
			if err != nil {
				return nil, nil, err
			}
			return postgres.NewAuditRepository(pool), pool.Close, nil
		}
	}
	return &out
}
