package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keyforge/accessreview/internal/config"
	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/logging"
	"github.com/keyforge/accessreview/internal/review"
)

type slackRecorder struct {
	mu       sync.Mutex
	messages []string
	channels []string
	posted   chan struct{}
}

func newMockSlack(t *testing.T) (*Notifier, *slackRecorder) {
	t.Helper()
	rec := &slackRecorder{posted: make(chan struct{}, 16)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimPrefix(r.URL.Path, "/api/") != "chat.postMessage" {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
			return
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		rec.mu.Lock()
		rec.messages = append(rec.messages, r.FormValue("text"))
		rec.channels = append(rec.channels, r.FormValue("channel"))
		rec.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.FormValue("channel"), "ts": "1700000000.000100"})
		rec.posted <- struct{}{}
	}))
	t.Cleanup(server.Close)

	n, err := NewSlack("xoxb-test", "C123", server.URL+"/api/", logging.Discard())
	if err != nil {
		t.Fatalf("NewSlack error: %v", err)
	}
	return n, rec
}

func (r *slackRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func TestSignedOffPostsToChannel(t *testing.T) {
	n, rec := newMockSlack(t)
	err := n.SignedOff(context.Background(), review.CertificationSignedOff{CertificationID: "c-1", UserName: "alice@example.com", Comments: "looks right"})
	if err != nil {
		t.Fatalf("SignedOff error: %v", err)
	}
	msgs := rec.all()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "c-1") || !strings.Contains(msgs[0], "alice@example.com") || !strings.Contains(msgs[0], "looks right") {
		t.Fatalf("unexpected messages: %v", msgs)
	}
	if rec.channels[0] != "C123" {
		t.Fatalf("channel = %q", rec.channels[0])
	}
}

func TestRunForwardsBusEvents(t *testing.T) {
	n, rec := newMockSlack(t)
	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		n.Run(ctx, bus)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for events.Publish(bus, review.TopicRemediationApplied, review.RemediationApplied{
		ReviewerName: "Rita", CertificationID: "c-9", Action: review.ActionImmediateRevoke, Succeeded: 1, Skipped: 1,
	}) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("notifier never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case <-rec.posted:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a Slack post")
	}
	msgs := rec.all()
	if !strings.Contains(msgs[0], "immediate revoke") || !strings.Contains(msgs[0], "1 skipped") {
		t.Fatalf("unexpected message: %q", msgs[0])
	}
	cancel()
	<-done
}

type fakeLister struct {
	pages map[int]review.CertificationPage
	err   error
}

func (f *fakeLister) ListCertifications(ctx context.Context, reviewerID string, pageSize, pageNumber int) (review.CertificationPage, error) {
	if f.err != nil {
		return review.CertificationPage{}, f.err
	}
	return f.pages[pageNumber], nil
}

func TestReminderNudgesDueCertifications(t *testing.T) {
	n, rec := newMockSlack(t)
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	lister := &fakeLister{pages: map[int]review.CertificationPage{
		1: {TotalPages: 2, Rows: []review.CertificationRow{
			{ID: review.DemoCertificationID, Name: "Demo", Status: "Active", Demo: true, Expiration: "2026-03-16"},
			{ID: "c-1", Name: "Quarterly", Status: "Active", Expiration: "2026-03-17", Progress: 40},
			{ID: "c-2", Name: "Later", Status: "Active", Expiration: "2026-05-01"},
		}},
		2: {TotalPages: 2, Rows: []review.CertificationRow{
			{ID: "c-3", Name: "Overdue", Status: "Active", Expiration: "2026-03-10"},
			{ID: "c-4", Name: "Signed", Status: "Active", SignedOff: true, Expiration: "2026-03-16"},
		}},
	}}
	reminders, err := config.LoadReminders("")
	if err != nil {
		t.Fatalf("LoadReminders error: %v", err)
	}
	reminders.Reviewers = []string{"rev-1"}

	r := &Reminder{Lister: lister, Notifier: n, Reminders: reminders, PageSize: 10, Now: func() time.Time { return now }}
	due, err := r.DueSoon(context.Background(), "rev-1")
	if err != nil {
		t.Fatalf("DueSoon error: %v", err)
	}
	if len(due) != 2 || due[0].ID != "c-3" || due[1].ID != "c-1" {
		t.Fatalf("unexpected due list: %+v", due)
	}

	sent, err := r.RunOnce(context.Background())
	if err != nil || sent != 1 {
		t.Fatalf("RunOnce = %d, %v", sent, err)
	}
	msg := rec.all()[0]
	if !strings.Contains(msg, "overdue since") || !strings.Contains(msg, "Quarterly") || strings.Contains(msg, "Later") {
		t.Fatalf("unexpected nudge: %q", msg)
	}
}

func TestReminderCollectsListErrors(t *testing.T) {
	n, rec := newMockSlack(t)
	r := &Reminder{
		Lister:    &fakeLister{err: errors.New("backend down")},
		Notifier:  n,
		Reminders: config.Reminders{Reviewers: []string{"rev-1", "rev-2"}, DueSoonDays: 3},
	}
	sent, err := r.RunOnce(context.Background())
	if sent != 0 || err == nil || !strings.Contains(err.Error(), "rev-2") {
		t.Fatalf("RunOnce = %d, %v", sent, err)
	}
	if len(rec.all()) != 0 {
		t.Fatal("no messages expected")
	}
}

func TestNewRequiresChannel(t *testing.T) {
	if _, err := NewSlack("xoxb", " ", "", nil); err == nil {
		t.Fatal("expected channel error")
	}
	if _, err := NewSlack("", "C1", "", nil); err == nil {
		t.Fatal("expected token error")
	}
}
