// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires configuration, storage and services into the HTTP server.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/go-accounts/internal/config"
	"codeberg.org/oliverandrich/go-accounts/internal/database"
	"codeberg.org/oliverandrich/go-accounts/internal/handlers"
	"codeberg.org/oliverandrich/go-accounts/internal/maintenance"
	"codeberg.org/oliverandrich/go-accounts/internal/metrics"
	"codeberg.org/oliverandrich/go-accounts/internal/middleware"
	"codeberg.org/oliverandrich/go-accounts/internal/repository"
	"codeberg.org/oliverandrich/go-accounts/internal/services/account"
	"codeberg.org/oliverandrich/go-accounts/internal/services/auth"
	"codeberg.org/oliverandrich/go-accounts/internal/services/email"
	"codeberg.org/oliverandrich/go-accounts/internal/services/session"
	"codeberg.org/oliverandrich/go-accounts/internal/services/token"
	"codeberg.org/oliverandrich/go-accounts/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// App holds the assembled HTTP server and its background jobs.
type App struct {
	Echo     *echo.Echo
	Accounts *account.Service
	Sweeper  *maintenance.Sweeper // nil when disabled
	Metrics  *metrics.Metrics     // nil when disabled
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database, migrations are applied on open
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	if count, countErr := repository.New(db).CountAccounts(ctx); countErr == nil {
		slog.Info("database ready", "dsn", cfg.Database.DSN, "accounts", count)
	}

	app, err := New(ctx, cfg, db)
	if err != nil {
		return err
	}

	if app.Sweeper != nil {
		if err := app.Sweeper.Start(); err != nil {
			return err
		}
		defer func() {
			<-app.Sweeper.Stop().Done()
		}()
	}

	return startWithGracefulShutdown(app.Echo, cfg)
}

// clock drives challenge timestamps and the sweeper cutoff. Replaced in tests.
var clock = time.Now

// New assembles the services and the echo instance for cfg on top of db.
func New(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*App, error) {
	repo := repository.New(db)
	secure := strings.HasPrefix(cfg.Server.BaseURL, "https://")

	sessions, err := session.NewManager(&cfg.Session, secure)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	notifier, err := newNotifier(cfg)
	if err != nil {
		return nil, err
	}

	images, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to set up image storage: %w", err)
	}

	app := &App{}
	opts := []account.Option{
		account.WithHasher(auth.NewHasher(cfg.Password.BcryptCost)),
		account.WithImageStore(images),
	}
	if cfg.Metrics.Enabled {
		if app.Metrics, err = metrics.New(true); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		opts = append(opts, account.WithRecorder(app.Metrics))
	}

	tokens := token.NewService(token.WithTTL(cfg.Challenge.TTL), token.WithClock(clock))
	app.Accounts = account.New(repo, tokens, notifier, sessions, opts...)

	if !strings.EqualFold(cfg.Maintenance.Schedule, "off") {
		sweeperOpts := []maintenance.Option{
			maintenance.WithSchedule(cfg.Maintenance.Schedule),
			maintenance.WithNow(tokens.Now),
		}
		if app.Metrics != nil {
			sweeperOpts = append(sweeperOpts, maintenance.WithCounter(app.Metrics))
		}
		app.Sweeper = maintenance.NewSweeper(repo, cfg.Challenge.TTL, sweeperOpts...)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler

	setupMiddleware(e, cfg, app.Metrics)
	e.Use(middleware.LoadAccount(sessions, repo))

	h := handlers.New(app.Accounts, sessions, db, images, cfg.Storage.MaxImageSize)
	setupRoutes(e, h, app.Metrics, images)

	app.Echo = e
	return app, nil
}

// newNotifier mails challenges when SMTP is configured and logs them otherwise.
func newNotifier(cfg *config.Config) (account.Notifier, error) {
	if cfg.SMTP.Host == "" {
		slog.Warn("no SMTP host configured, challenges are written to the log")
		return email.NewLogNotifier(slog.Default(), cfg.Server.BaseURL), nil
	}
	svc, err := email.NewService(&cfg.SMTP, cfg.Server.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}
	return svc, nil
}

func setupRoutes(e *echo.Echo, h *handlers.Handlers, m *metrics.Metrics, images storage.Store) {
	e.GET("/health", h.Health)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	// Uploaded images, S3 objects are served by the bucket
	if fs, ok := images.(*storage.FileStore); ok {
		e.Static(fs.URLPrefix(), fs.Dir())
	}

	a := e.Group("/auth")
	a.GET("/csrf", h.CSRF)
	a.GET("/password-rules", h.PasswordRules)
	a.POST("/login", h.Login)
	a.POST("/logout", h.Logout)
	a.POST("/register", h.Register)
	a.POST("/forgot-password", h.ForgotPassword)

	e.GET("/confirm/:token", h.ConfirmPage)
	e.POST("/confirm/:token", h.Confirm)
	e.GET("/reset/:token", h.ResetPage)
	e.POST("/reset/:token", h.ResetCode)
	e.POST("/reset/:token/password", h.SetPassword)

	e.GET("/account", h.Account, middleware.RequireAuth)
	e.POST("/account/profile", h.UpdateProfile, middleware.RequireAuth)

	staff := e.Group("/accounts", middleware.RequireAuth)
	staff.GET("/:id", h.StaffAccount, middleware.RequireStaff)
	staff.POST("/:id/profile", h.StaffUpdateProfile)
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)

	// HTTP redirect server for ACME mode
	var httpServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		go func() {
			slog.Info("server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, ":443", tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP to HTTPS redirect active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeManual:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, addr, tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer serves e on addr with tlsConfig.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.TLSServer.Serve(e.TLSListener)
}
