package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jw6ventures/lifeos/internal/auth"
	"github.com/jw6ventures/lifeos/internal/calsync"
	"github.com/jw6ventures/lifeos/internal/config"
	"github.com/jw6ventures/lifeos/internal/functions"
	httpserver "github.com/jw6ventures/lifeos/internal/http"
	"github.com/jw6ventures/lifeos/internal/logging"
	"github.com/jw6ventures/lifeos/internal/mailer"
	"github.com/jw6ventures/lifeos/internal/reminders"
	"github.com/jw6ventures/lifeos/internal/scheduler"
	"github.com/jw6ventures/lifeos/internal/store"
	"github.com/jw6ventures/lifeos/internal/tokenbox"
)

const serviceName = "lifeos"

func main() {
	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Life OS calendar sync and reminder service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP function server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context())
			},
		},
		&cobra.Command{
			Use:       "remind <" + strings.Join(reminders.Jobs, "|") + ">",
			Short:     "Run one reminder job and print its report",
			Args:      cobra.ExactArgs(1),
			ValidArgs: reminders.Jobs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runRemind(cmd.Context(), args[0], cmd.OutOrStdout())
			},
		},
		secretsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the dependencies shared by every command.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	store  *store.Store
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(serviceName, cfg.LogLevel, cfg.IsDevelopment())
	logging.SetGlobal(logger)

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}

	return &app{cfg: cfg, logger: logger, pool: pool, store: store.New(pool)}, nil
}

func (a *app) Close() {
	a.pool.Close()
}

func (a *app) reminderRunner() *reminders.Runner {
	sender := mailer.New(a.cfg.Email.APIURL, a.cfg.Email.APIKey, a.cfg.Email.From)
	return reminders.NewRunner(a.store, sender, a.cfg.AppURL)
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, logger := a.cfg, a.logger
	ctx = logger.WithContext(ctx)

	if cfg.AutoMigrate {
		if err := a.store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	box, err := tokenbox.New(cfg.TokenKey())
	if err != nil {
		return fmt.Errorf("token box: %w", err)
	}
	if box == nil {
		logger.Warn().Msg("token encryption key not set; OAuth tokens are stored unsealed")
	}

	syncService := calsync.NewService(a.store, calsync.Options{
		Box: box,
		Fallback: map[string]string{
			"GOOGLE_CLIENT_ID":        cfg.Google.ClientID,
			"GOOGLE_CLIENT_SECRET":    cfg.Google.ClientSecret,
			"MICROSOFT_CLIENT_ID":     cfg.Microsoft.ClientID,
			"MICROSOFT_CLIENT_SECRET": cfg.Microsoft.ClientSecret,
		},
	})
	google := calsync.NewGoogle(cfg.Google.APIBaseURL, cfg.Google.AuthURL, cfg.Google.TokenURL)
	microsoft := calsync.NewMicrosoft(cfg.Microsoft.APIBaseURL, cfg.Microsoft.Tenant, cfg.Microsoft.AuthURL, cfg.Microsoft.TokenURL)

	runner := a.reminderRunner()
	if cfg.ReminderCron != "" {
		sched, err := scheduler.New(cfg.ReminderCron, runner, logger)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	authService, err := auth.NewService(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize auth service: %w", err)
	}

	fn := functions.NewHandler(syncService, google, microsoft, runner, strings.TrimRight(cfg.AppURL, "/")+"/settings")

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpserver.NewRouter(cfg, a.store, authService, fn, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}
