package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/keyforge/accessreview/internal/config"
	"github.com/keyforge/accessreview/internal/review"
)

const maxReminderPages = 50

// Lister pages through a reviewer's certifications. *review.Service implements it.
type Lister interface {
	ListCertifications(ctx context.Context, reviewerID string, pageSize, pageNumber int) (review.CertificationPage, error)
}

// DueCertification is an open certification close to or past its expiry.
type DueCertification struct {
	ID        string
	Name      string
	ExpiresAt time.Time
	Progress  int
}

type Reminder struct {
	Lister    Lister
	Notifier  *Notifier
	Reminders config.Reminders
	PageSize  int
	Now       func() time.Time
}

func (r *Reminder) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// DueSoon lists the reviewer's open certifications expiring before the reminder window ends.
func (r *Reminder) DueSoon(ctx context.Context, reviewerID string) ([]DueCertification, error) {
	horizon := r.now().Add(r.Reminders.DueSoonWindow())
	var due []DueCertification
	for page, total := 1, 1; page <= total && page <= maxReminderPages; page++ {
		p, err := r.Lister.ListCertifications(ctx, reviewerID, r.PageSize, page)
		if err != nil {
			return nil, err
		}
		total = p.TotalPages
		for _, row := range review.FilterOpen(p.Rows) {
			if row.Demo {
				continue
			}
			exp, ok := row.ExpiresAt()
			if !ok || exp.After(horizon) {
				continue
			}
			due = append(due, DueCertification{ID: row.ID, Name: row.Name, ExpiresAt: exp, Progress: row.Progress})
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].ExpiresAt.Before(due[j].ExpiresAt) })
	return due, nil
}

func (r *Reminder) nudgeText(reviewerID string, due []DueCertification) string {
	now := r.now()
	var b strings.Builder
	fmt.Fprintf(&b, ":alarm_clock: Reviewer %s has %d certification(s) due soon:", reviewerID, len(due))
	for _, d := range due {
		when := d.ExpiresAt.In(r.location()).Format("Mon Jan 2")
		if d.ExpiresAt.Before(now) {
			when = "overdue since " + when
		} else {
			when = "due " + when
		}
		fmt.Fprintf(&b, "\n• *%s* (%d%% complete), %s", d.Name, d.Progress, when)
	}
	return b.String()
}

func (r *Reminder) location() *time.Location {
	if r.Reminders.Location != nil {
		return r.Reminders.Location
	}
	return time.UTC
}

// RunOnce nudges every configured reviewer with something due and returns how many nudges were sent.
func (r *Reminder) RunOnce(ctx context.Context) (int, error) {
	sent := 0
	var errs []error
	for _, reviewerID := range r.Reminders.Reviewers {
		due, err := r.DueSoon(ctx, reviewerID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reviewer %s: %w", reviewerID, err))
			continue
		}
		if len(due) == 0 {
			continue
		}
		if err := r.Notifier.post(ctx, "reminder", r.nudgeText(reviewerID, due)); err != nil {
			errs = append(errs, fmt.Errorf("reviewer %s: %w", reviewerID, err))
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Schedule runs RunOnce on the configured cron schedule until ctx is done.
func (r *Reminder) Schedule(ctx context.Context) error {
	c := cron.New(cron.WithLocation(r.location()))
	_, err := c.AddFunc(r.Reminders.Schedule, func() {
		sent, err := r.RunOnce(ctx)
		if err != nil {
			r.Notifier.log.Error("reminder run failed", "sent", sent, "err", err)
			return
		}
		r.Notifier.log.Info("reminder run complete", "sent", sent)
	})
	if err != nil {
		return fmt.Errorf("schedule reminders %q: %w", r.Reminders.Schedule, err)
	}
	c.Start()
	r.Notifier.log.Info("reminders scheduled", "schedule", r.Reminders.Schedule, "reviewers", len(r.Reminders.Reviewers))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
