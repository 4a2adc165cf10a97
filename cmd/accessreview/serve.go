package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/keyforge/accessreview/internal/audit"
	"github.com/keyforge/accessreview/internal/config"
	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/export"
	httpapp "github.com/keyforge/accessreview/internal/http"
	"github.com/keyforge/accessreview/internal/http/handlers"
	"github.com/keyforge/accessreview/internal/logging"
	"github.com/keyforge/accessreview/internal/metrics"
	"github.com/keyforge/accessreview/internal/notify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review API, notifications and reminder schedule.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	reminders, err := config.LoadReminders(cfg.RemindersFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	var (
		pool    *pgxpool.Pool
		journal handlers.AuditLister
		deps    = serviceDeps{Bus: events.NewBus(), Logger: logger}
	)
	if cfg.DatabaseURL != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		j := audit.NewJournal(pool)
		deps.Audit = j
		journal = j
	} else {
		logger.Warn("DATABASE_URL not set; sessions are in memory and the remediation journal is disabled")
	}

	client, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	svc := newReviewService(client, cfg, deps)

	progress := handlers.NewProgressBoard()
	go progress.Run(ctx, deps.Bus)

	if cfg.SlackConfigured() {
		notifier, err := notify.NewSlack(cfg.SlackBotToken, cfg.SlackChannelID, "", logging.Component(logger, "notify"))
		if err != nil {
			return err
		}
		go notifier.Run(ctx, deps.Bus)

		if len(reminders.Reviewers) > 0 {
			r := &notify.Reminder{Lister: svc, Notifier: notifier, Reminders: reminders, PageSize: cfg.CertPageSize}
			go func() {
				if err := r.Schedule(ctx); err != nil {
					logger.Error("reminder schedule stopped", "err", err)
				}
			}()
		}
	}

	// metricsErr stays nil when metrics are disabled, so its select case never fires.
	_, metricsErr := metrics.StartServer(ctx, cfg.MetricsAddr)

	srv, err := httpapp.NewEchoServer(httpapp.Deps{
		Review:   svc,
		Exporter: &export.Exporter{Querier: client, RowLimit: cfg.ExportRowLimit},
		Audit:    journal,
		Sessions: httpapp.NewSessionManager(pool, cfg.SessionLifetime, cfg.AuthCookieSecure),
		Progress: progress,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		return nil
	case err := <-metricsErr:
		return err
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
