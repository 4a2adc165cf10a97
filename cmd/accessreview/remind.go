package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keyforge/accessreview/internal/config"
	"github.com/keyforge/accessreview/internal/logging"
	"github.com/keyforge/accessreview/internal/notify"
)

var remindOnce bool

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Nudge reviewers in Slack about certifications close to expiry.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runRemind(ctx, remindOnce)
	},
}

func init() {
	remindCmd.Flags().BoolVar(&remindOnce, "once", false, "send one round of reminders and exit")
}

func runRemind(ctx context.Context, once bool) error {
	cfg, _, svc, err := loadClientService(ctx)
	if err != nil {
		return err
	}
	if !cfg.SlackConfigured() {
		return errors.New("SLACK_BOT_TOKEN and SLACK_CHANNEL_ID are required to send reminders")
	}
	reminders, err := config.LoadReminders(cfg.RemindersFile)
	if err != nil {
		return err
	}
	if len(reminders.Reviewers) == 0 {
		return errors.New("no reviewers configured in " + cfg.RemindersFile)
	}

	notifier, err := notify.NewSlack(cfg.SlackBotToken, cfg.SlackChannelID, "", logging.Component(slog.Default(), "notify"))
	if err != nil {
		return err
	}
	r := &notify.Reminder{Lister: svc, Notifier: notifier, Reminders: reminders, PageSize: cfg.CertPageSize}

	if once {
		sent, err := r.RunOnce(ctx)
		slog.Info("reminders sent", "count", sent)
		return err
	}
	return r.Schedule(ctx)
}
