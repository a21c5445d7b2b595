package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/enrollhq/enroll/assets"
	"github.com/enrollhq/enroll/internal"
	"github.com/enrollhq/enroll/internal/auth"
	authdb "github.com/enrollhq/enroll/internal/auth/db"
	"github.com/enrollhq/enroll/internal/db"
	"github.com/enrollhq/enroll/internal/email"
	"github.com/enrollhq/enroll/internal/email/smtp"
	emailview "github.com/enrollhq/enroll/internal/email/view"
	"github.com/enrollhq/enroll/internal/krypto"
	"github.com/enrollhq/enroll/internal/migrate"
	"github.com/enrollhq/enroll/internal/token"
	"github.com/enrollhq/enroll/internal/web"
	"github.com/enrollhq/enroll/internal/web/sessions"
	"github.com/enrollhq/enroll/internal/web/view"
	"github.com/enrollhq/enroll/migrations"
	gsessions "github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := zerolog.New(w).With().Timestamp().Logger()

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("failed to get config from environment")
		return 1
	}

	sqlDB, err := db.OpenSQLite(cfg.DBFile)
	if err != nil {
		logger.Error().Err(err).Str("dbFile", cfg.DBFile).Msg("failed to open database")
		return 1
	}

	defer func() {
		if err := sqlDB.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	}()

	ran, err := migrate.RunFS(ctx, sqlDB, migrations.FS)
	if err != nil {
		logger.Error().Err(err).Msg("failed to run migrations")
		return 1
	}

	logger.Info().Int("count", len(ran)).Msg("ran migrations")

	tokens := token.NewService(cfg.SecretKey, cfg.PasswordSalt, cfg.AuthTokenTTL)

	emailSvc, err := emailService(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create email service")
		return 1
	}

	authSvc, err := auth.NewService(authdb.New(sqlDB), emailSvc, tokens, email.NewDNSChecker(), auth.ServiceConfig{
		BaseURL:          cfg.BaseURL,
		EmailTokenMaxAge: cfg.ConfirmTokenMaxAge,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to create auth service")
		return 1
	}

	renderer, err := view.NewMemRenderer(assets.TemplateFS)
	if err != nil {
		logger.Error().Err(err).Msg("failed to parse page templates")
		return 1
	}

	// The session and CSRF keys are derived from the main secret, one
	// secret to configure instead of three.
	cookieStore := gsessions.NewCookieStore(krypto.DeriveKey(cfg.SecretKey, "sessions").SecretValue())
	cookieStore.Options.HttpOnly = true
	cookieStore.Options.Secure = cfg.SecureCookie

	handler := web.NewServer(&web.ServerDeps{
		Logger:       logger,
		ViewRenderer: renderer,
		AuthService:  authSvc,
		TokenService: tokens,
		SessionStore: sessions.NewStore(cookieStore),
	}, web.ServerConfig{
		CSRFKey:      krypto.DeriveKey(cfg.SecretKey, "csrf"),
		SecureCookie: cfg.SecureCookie,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		Handler:      handler,
	}

	// Two concurrent tasks:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("addr", cfg.HTTPAddr).
			Str("buildRevision", internal.BuildRevision).
			Msg("starting http server")

		// ListenAndServe always returns a non-nil error, g will cancel
		// gCtx when an error is returned, which also stops the other
		// goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info().Msg("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("http server stopped with error")
		return 1
	}

	logger.Info().Msg("http server stopped successfully")

	return 0
}

// emailService creates the email service with the configured sender.
func emailService(cfg config, logger zerolog.Logger) (*email.Service, error) {
	var sender email.Sender
	switch cfg.MailDriver {
	case "smtp":
		sender = smtp.NewSender(smtp.Settings{
			Host:     cfg.MailServer,
			Port:     cfg.MailPort,
			UseSSL:   cfg.MailUseSSL,
			UseTLS:   cfg.MailUseTLS,
			Username: cfg.MailUsername,
			Password: cfg.MailPassword,
		})
	case "log":
		sender = email.NewLogSender(logger)
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.MailDriver)
	}

	return email.NewService(emailview.NewFSRenderer(assets.EmailFS), sender, cfg.MailSender), nil
}
