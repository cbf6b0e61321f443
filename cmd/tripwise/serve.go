// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tripwise/tripwise/internal/auth"
	"github.com/tripwise/tripwise/internal/auth/postgres"
	"github.com/tripwise/tripwise/internal/config"
	"github.com/tripwise/tripwise/internal/httpapi"
	"github.com/tripwise/tripwise/internal/logging"
	"github.com/tripwise/tripwise/internal/mail"
	"github.com/tripwise/tripwise/internal/observability"
	"github.com/tripwise/tripwise/internal/store"
)

// readinessTimeout bounds the database ping behind /healthz/readiness.
const readinessTimeout = 2 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential API server",
		Long: `Start the HTTP API serving /api/auth. The database must already be
migrated; the default role is resolved at startup and its absence is fatal.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	src, err := configSource(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(src)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").
			Errorf("database url is required (flag --database-url or env %s)", config.EnvDatabaseURL)
	}

	logger := logging.SetDefault(version, cfg.Log.Format, slog.LevelInfo)
	logger.Info("starting tripwise", "addr", cfg.Server.Addr, "mail_driver", cfg.Mail.Driver)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := deps.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
		Retries: cfg.Database.ConnectRetries,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	var (
		registerer  prometheus.Registerer = prometheus.NewRegistry()
		httpMetrics *observability.Metrics
		obsServer   ObservabilityServer
	)
	if cfg.Server.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Server.MetricsAddr, store.Readiness(pool, readinessTimeout), logger)
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return startErr
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		defer stopObservability(obsServer, cfg.Server.ShutdownTimeout)
		registerer = obsServer.Registerer()
		httpMetrics = obsServer.Metrics()
	}

	svc, err := newCredentialService(ctx, cfg, pool, registerer, logger)
	if err != nil {
		if auth.Code(err) == auth.CodeDefaultRoleMissing {
			logger.Error("default role missing; run migrations or fix roles.default", "role", cfg.Roles.Default)
		}
		return err
	}

	listener, err := deps.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.Server.Addr).Wrap(err)
	}

	handlers := httpapi.NewHandlers(svc, logger, httpMetrics)
	httpServer := &http.Server{
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	apiErrChan := make(chan error, 1)
	go func() {
		defer close(apiErrChan)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrChan <- serveErr
		}
	}()

	cmd.Println("Tripwise API listening on", listener.Addr().String())
	logger.Info("api server listening", "addr", listener.Addr().String())

	var runErr error
	select {
	case <-ctx.Done():
	case serveErr := <-apiErrChan:
		if serveErr != nil {
			runErr = oops.Code("API_SERVE_FAILED").With("addr", cfg.Server.Addr).Wrap(serveErr)
		}
	}
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	// Pending reset emails still need the pool.
	svc.Wait()

	logger.Info("shutdown complete")
	return runErr
}

// newCredentialService wires the credential service to PostgreSQL and the
// configured mailer.
func newCredentialService(
	ctx context.Context,
	cfg *config.Config,
	pool *pgxpool.Pool,
	registerer prometheus.Registerer,
	logger *slog.Logger,
) (*auth.CredentialService, error) {
	tokens, err := auth.NewTokenIssuer(cfg.TokenConfig(), nil)
	if err != nil {
		return nil, err
	}
	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return nil, err
	}

	return auth.NewCredentialService(ctx, auth.ServiceDeps{
		Accounts:           postgres.NewAccountRepository(pool),
		Roles:              postgres.NewRoleRepository(pool),
		Audit:              postgres.NewAuditRepository(pool),
		Mailer:             mailer,
		Hasher:             auth.NewPBKDF2Hasher(auth.WithMaxConcurrent(cfg.Hashing.MaxConcurrent)),
		Tokens:             tokens,
		Logger:             logger,
		Metrics:            auth.NewMetrics(registerer),
		DefaultRole:        cfg.Roles.Default,
		ResetTokenLifetime: cfg.Reset.Lifetime,
	})
}

// newMailer returns the reset mailer selected by mail.driver.
func newMailer(cfg *config.Config, logger *slog.Logger) (auth.Mailer, error) {
	switch cfg.Mail.Driver {
	case config.MailDriverSMTP:
		smtp := cfg.Mail.SMTP
		mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
			Host:        smtp.Host,
			Port:        smtp.Port,
			Username:    smtp.Username,
			Password:    smtp.Password,
			From:        smtp.From,
			LinkBaseURL: cfg.Reset.LinkBaseURL,
			Lifetime:    cfg.Reset.Lifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		return mailer, nil
	case config.MailDriverLog, "":
		return mail.NewLogMailer(logger), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "mail.driver").
			Errorf("unknown mail driver %q", cfg.Mail.Driver)
	}
}

func stopObservability(s ObservabilityServer, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes, or ctx is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
