package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/keyforge/accessreview/internal/audit"
	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/keyforge"
	"github.com/keyforge/accessreview/internal/review"
)

func drilldownBackend() *stubBackend {
	b := certsBackend()
	b.tasks = keyforge.Page[keyforge.RawTask]{
		Items: []keyforge.RawTask{
			{TaskID: "t-1", CertificationID: "c-open", UserInfo: keyforge.UserProfile{FirstName: "Ada", LastName: "Lovelace"}},
			{
				TaskID:          "t-2",
				CertificationID: "c-open",
				UserInfo:        keyforge.UserProfile{FirstName: "Alan", LastName: "Turing"},
				DeltaChanges:    keyforge.DeltaChanges{AddedEntitlements: []string{"Admin"}, SoDConflicts: []string{"Payroll approver"}},
			},
		},
		TotalItems: 2,
		TotalPages: 1,
	}
	b.accounts = []keyforge.Account{{LineItemID: "acct-1", AccountID: "a-1", ApplicationName: "Payroll"}}
	b.details = map[string][]keyforge.EntitlementDetail{
		"acct-1": {
			{LineItemID: "li-1", EntitlementName: "Admin", Action: "Approve"},
			{LineItemID: "li-2", EntitlementName: "Viewer"},
		},
	}
	return b
}

func TestHandleUsersSelectsFirstUser(t *testing.T) {
	h := newTestHandlers(t, drilldownBackend())
	c, rec := newTestContext(http.MethodGet, "/?page=1", "")
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open")

	if err := h.HandleUsers(c); err != nil {
		t.Fatalf("HandleUsers() error = %v", err)
	}
	var snap review.DrilldownSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.SelectedTaskID != "t-1" || len(snap.Users) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Users[0].FullName != "AdaLovelace" {
		t.Fatalf("FullName = %q", snap.Users[0].FullName)
	}
	if len(snap.Entitlements) != 2 || snap.Progress.TotalItems != 2 || snap.Progress.ApprovedCount != 1 {
		t.Fatalf("entitlements=%d progress=%+v", len(snap.Entitlements), snap.Progress)
	}
}

func TestHandleEntitlementsReadsUnloadedUserDirectly(t *testing.T) {
	h := newTestHandlers(t, drilldownBackend())
	c, rec := newTestContext(http.MethodGet, "/", "")
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open", "taskId", "t-2")

	if err := h.HandleEntitlements(c); err != nil {
		t.Fatalf("HandleEntitlements() error = %v", err)
	}
	var resp entitlementsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TaskID != "t-2" || len(resp.Entitlements) != 2 || resp.Progress.PendingCount != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	for _, row := range resp.Entitlements {
		wantNew := row.EntitlementName == "Admin"
		if row.IsNew != wantNew {
			t.Fatalf("%s isNew = %v, want %v", row.EntitlementName, row.IsNew, wantNew)
		}
		if !row.SoDViolation {
			t.Fatalf("%s sodViolation = false, want true", row.EntitlementName)
		}
		if row.UserName != "AlanTuring" {
			t.Fatalf("%s userName = %q", row.EntitlementName, row.UserName)
		}
	}
	if _, ok := h.Review.LookupDrilldown("rev-1", "c-open"); ok {
		t.Fatal("direct read must not create a drill-down")
	}
}

func TestHandleEntitlementsMatchesDrilldownFlags(t *testing.T) {
	h := newTestHandlers(t, drilldownBackend())
	d := h.Review.Drilldown("rev-1", "c-open")
	if _, err := d.LoadUsers(context.Background(), 1); err != nil {
		t.Fatalf("LoadUsers() error = %v", err)
	}
	selected, err := d.SelectUser(context.Background(), "t-2", 1)
	if err != nil {
		t.Fatalf("SelectUser() error = %v", err)
	}

	direct, err := h.Review.Entitlements(context.Background(), "rev-1", "c-open", "t-2", 1)
	if err != nil {
		t.Fatalf("Entitlements() error = %v", err)
	}
	if len(direct) != len(selected.Entitlements) {
		t.Fatalf("direct=%d drilldown=%d", len(direct), len(selected.Entitlements))
	}
	for i := range direct {
		if direct[i].IsNew != selected.Entitlements[i].IsNew || direct[i].SoDViolation != selected.Entitlements[i].SoDViolation {
			t.Fatalf("row %d: direct %+v, drilldown %+v", i, direct[i], selected.Entitlements[i])
		}
	}
}

func TestHandleEntitlementsUnknownTaskIsNotFound(t *testing.T) {
	h := newTestHandlers(t, drilldownBackend())
	c, _ := newTestContext(http.MethodGet, "/", "")
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open", "taskId", "t-9")

	if err := h.HandleEntitlements(c); !errors.Is(err, review.ErrNotFound) {
		t.Fatalf("HandleEntitlements() error = %v, want ErrNotFound", err)
	}
}

func TestHandleDrilldownStateDoesNotCreateDrilldown(t *testing.T) {
	h := newTestHandlers(t, drilldownBackend())
	c, rec := newTestContext(http.MethodGet, "/", "")
	withPathValues(c, "reviewerId", "made-up", "certId", "nope")

	if err := h.HandleDrilldownState(c); err != nil {
		t.Fatalf("HandleDrilldownState() error = %v", err)
	}
	var snap review.DrilldownSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != review.StateLoadingUsers || snap.CertificationID != "nope" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, ok := h.Review.LookupDrilldown("made-up", "nope"); ok {
		t.Fatal("reading state must not create a drill-down")
	}
}

func TestHandleUsersScrollRejectsUnknownDirection(t *testing.T) {
	h := newTestHandlers(t, drilldownBackend())
	c, rec := newTestContext(http.MethodPost, "/?direction=sideways", "")
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open")

	if err := h.HandleUsersScroll(c); err != nil {
		t.Fatalf("HandleUsersScroll() error = %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
}

func TestHandleRevokeReportsStoppedBatch(t *testing.T) {
	backend := drilldownBackend()
	backend.revokeErr = map[string]error{"li-1": errors.New("backend refused")}
	h := newTestHandlers(t, backend)
	body := `{"justification":"left team","confirmed":true,"rows":[
		{"taskId":"t-1","lineItemId":"li-1","entitlementName":"Admin"},
		{"taskId":"t-1","lineItemId":"li-2","entitlementName":"Viewer"}]}`
	c, rec := newTestContext(http.MethodPost, "/", body)
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open")

	if err := h.HandleRevoke(c); err != nil {
		t.Fatalf("HandleRevoke() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	var res review.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Failed != 1 || res.Skipped != 1 || res.Succeeded != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(backend.revoked) != 0 {
		t.Fatalf("second row must not be sent after the first failed, revoked=%v", backend.revoked)
	}
}

func TestHandleRevokeRequiresConfirmation(t *testing.T) {
	h := newTestHandlers(t, drilldownBackend())
	c, _ := newTestContext(http.MethodPost, "/", `{"justification":"x","rows":[{"taskId":"t-1","lineItemId":"li-1"}]}`)
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open")

	if err := h.HandleRevoke(c); !errors.Is(err, review.ErrNotConfirmed) {
		t.Fatalf("HandleRevoke() error = %v, want ErrNotConfirmed", err)
	}
}

func TestHandleConditionalAccessUsesOpenedCampaignDueDate(t *testing.T) {
	backend := drilldownBackend()
	h := newTestHandlers(t, backend)

	open, _ := newTestContext(http.MethodGet, "/", "")
	withPathValues(open, "reviewerId", "rev-1", "certId", "c-open")
	withSession(t, h, open)
	if err := h.HandleOpen(open); err != nil {
		t.Fatalf("HandleOpen() error = %v", err)
	}

	body := `{"endDate":"2026-04-01","justification":"contractor","rows":[{"taskId":"t-1","lineItemId":"li-1","entitlementName":"Admin"}]}`
	c, _ := newTestContext(http.MethodPost, "/", body)
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open")
	c.SetRequest(c.Request().WithContext(open.Request().Context()))

	err := h.HandleConditionalAccess(c)
	if !errors.Is(err, review.ErrValidation) {
		t.Fatalf("HandleConditionalAccess() error = %v, want end date before due date rejected", err)
	}
	if len(backend.modified) != 0 {
		t.Fatalf("no row should be sent, got %d", len(backend.modified))
	}

	ok, rec := newTestContext(http.MethodPost, "/", `{"endDate":"2026-05-01","justification":"contractor","rows":[{"taskId":"t-1","lineItemId":"li-1","entitlementName":"Admin"}]}`)
	withPathValues(ok, "reviewerId", "rev-1", "certId", "c-open")
	ok.SetRequest(ok.Request().WithContext(open.Request().Context()))
	if err := h.HandleConditionalAccess(ok); err != nil {
		t.Fatalf("HandleConditionalAccess() error = %v", err)
	}
	if rec.Code != http.StatusOK || len(backend.modified) != 1 {
		t.Fatalf("status=%d modified=%d", rec.Code, len(backend.modified))
	}
	if got := backend.modified[0].RemoveAccess[0].EndDate; got != "2026-05-01" {
		t.Fatalf("EndDate = %q", got)
	}
}

func TestHandleRemediationCandidates(t *testing.T) {
	backend := drilldownBackend()
	res, err := keyforge.ParseQueryResult([]byte(`{"data":[{"name":"Admin"},{"name":"Auditor"}]}`))
	if err != nil {
		t.Fatalf("ParseQueryResult: %v", err)
	}
	backend.query = res
	h := newTestHandlers(t, backend)
	c, rec := newTestContext(http.MethodPost, "/", `{"rows":[{"taskId":"t-1","lineItemId":"li-1","entitlementName":"Admin","applicationName":"Payroll"}]}`)
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open")

	if err := h.HandleRemediationCandidates(c); err != nil {
		t.Fatalf("HandleRemediationCandidates() error = %v", err)
	}
	var resp candidatesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0] != "Auditor" {
		t.Fatalf("candidates = %v", resp.Candidates)
	}
}

type stubAudit struct {
	entries []audit.Entry
}

func (s stubAudit) List(ctx context.Context, certificationID string, limit int) ([]audit.Entry, error) {
	return s.entries, nil
}

func TestHandleAudit(t *testing.T) {
	h := newTestHandlers(t, drilldownBackend())
	c, rec := newTestContext(http.MethodGet, "/", "")
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open")
	if err := h.HandleAudit(c); err != nil {
		t.Fatalf("HandleAudit() error = %v", err)
	}
	var disabled auditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &disabled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if disabled.Enabled || disabled.Entries == nil || len(disabled.Entries) != 0 {
		t.Fatalf("disabled journal = %+v", disabled)
	}

	h.Audit = stubAudit{entries: []audit.Entry{{ID: 7, Action: "immediate_revoke", OK: true}}}
	c, rec = newTestContext(http.MethodGet, "/", "")
	withPathValues(c, "reviewerId", "rev-1", "certId", "c-open")
	if err := h.HandleAudit(c); err != nil {
		t.Fatalf("HandleAudit() error = %v", err)
	}
	var enabled auditResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &enabled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !enabled.Enabled || len(enabled.Entries) != 1 || enabled.Entries[0].ID != 7 {
		t.Fatalf("journal = %+v", enabled)
	}
}

func TestProgressBoardFollowsBus(t *testing.T) {
	bus := events.NewBus()
	board := NewProgressBoard()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		board.Run(ctx, bus)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for events.Publish(bus, review.TopicProgressChanged, review.ProgressChanged{
		ReviewerID: "rev-1", CertificationID: "c-open", TaskID: "t-1",
		Summary: review.ProgressSummary{TotalItems: 3, ApprovedCount: 1, PendingCount: 2},
	}) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("progress board never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	board.Apply(review.ProgressChanged{
		ReviewerID: "rev-1", CertificationID: "c-open", TaskID: "t-2",
		Summary: review.ProgressSummary{TotalItems: 1, RevokedCount: 1},
	})

	for {
		tasks, total := board.Certification("rev-1", "c-open")
		if len(tasks) == 2 {
			if total.TotalItems != 4 || total.PendingCount != 2 || total.RevokedCount != 1 {
				t.Fatalf("total = %+v", total)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tasks = %v", tasks)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
}
