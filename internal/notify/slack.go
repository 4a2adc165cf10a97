// Package notify posts review activity and expiry reminders to Slack.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/logging"
	"github.com/keyforge/accessreview/internal/metrics"
	"github.com/keyforge/accessreview/internal/review"
)

const subscriberBuffer = 64

// Poster is the part of *slack.Client the notifier uses.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type Notifier struct {
	poster  Poster
	channel string
	log     *slog.Logger
}

// NewSlack returns a notifier posting to channelID. apiURL overrides the Slack API base URL
// and is only needed in tests.
func NewSlack(token, channelID, apiURL string, logger *slog.Logger) (*Notifier, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("slack bot token is required")
	}
	var opts []slack.Option
	if apiURL = strings.TrimSpace(apiURL); apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	return New(slack.New(token, opts...), channelID, logger)
}

func New(poster Poster, channelID string, logger *slog.Logger) (*Notifier, error) {
	channelID = strings.TrimSpace(channelID)
	if poster == nil {
		return nil, errors.New("slack poster is required")
	}
	if channelID == "" {
		return nil, errors.New("slack channel id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{poster: poster, channel: channelID, log: logging.Component(logger, "notify")}, nil
}

func (n *Notifier) post(ctx context.Context, kind, text string) error {
	_, _, err := n.poster.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("post %s notification: %w", kind, err)
	}
	metrics.NotificationsTotal.WithLabelValues(kind, "ok").Inc()
	return nil
}

func (n *Notifier) SignedOff(ctx context.Context, ev review.CertificationSignedOff) error {
	text := fmt.Sprintf(":white_check_mark: Certification *%s* was signed off by %s.", ev.CertificationID, ev.UserName)
	if c := strings.TrimSpace(ev.Comments); c != "" {
		text += "\n> " + c
	}
	return n.post(ctx, "signoff", text)
}

func (n *Notifier) RemediationApplied(ctx context.Context, ev review.RemediationApplied) error {
	who := firstNonEmpty(ev.ReviewerName, ev.ReviewerID)
	text := fmt.Sprintf(":wrench: %s applied %s on certification *%s*: %d succeeded",
		who, actionLabel(ev.Action), ev.CertificationID, ev.Succeeded)
	if ev.Failed > 0 {
		text += fmt.Sprintf(", %d failed", ev.Failed)
	}
	if ev.Skipped > 0 {
		text += fmt.Sprintf(", %d skipped", ev.Skipped)
	}
	return n.post(ctx, "remediation", text+".")
}

func actionLabel(a review.Action) string {
	switch a {
	case review.ActionConditionalAccess:
		return "conditional access"
	case review.ActionModifyAccess:
		return "modify access"
	case review.ActionImmediateRevoke:
		return "immediate revoke"
	}
	return string(a)
}

// Run forwards sign-off and remediation events from bus to Slack until ctx is done.
func (n *Notifier) Run(ctx context.Context, bus *events.Bus) {
	signed := events.Subscribe(bus, review.TopicCertificationSignedOff, subscriberBuffer)
	defer signed.Close()
	remediated := events.Subscribe(bus, review.TopicRemediationApplied, subscriberBuffer)
	defer remediated.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-signed.C:
			if err := n.SignedOff(ctx, ev); err != nil {
				n.log.Warn("sign-off notification failed", "certification_id", ev.CertificationID, "err", err)
			}
		case ev := <-remediated.C:
			if err := n.RemediationApplied(ctx, ev); err != nil {
				n.log.Warn("remediation notification failed", "certification_id", ev.CertificationID, "err", err)
			}
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
