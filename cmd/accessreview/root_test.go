package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/keyforge/accessreview/internal/review"
)

func TestRootCommand_RegistersCommands(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"serve", "migrate", "remind", "certs", "export", "signoff", "revoke"} {
		if cmd, _, err := rootCmd.Find([]string{name}); err != nil || cmd == nil || cmd.Name() != name {
			t.Fatalf("%s command not registered: cmd=%v err=%v", name, cmd, err)
		}
	}
}

func TestCommandUsesStructuredLogging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want bool
	}{
		{name: "serve", args: []string{"serve"}, want: true},
		{name: "migrate", args: []string{"migrate"}, want: true},
		{name: "remind", args: []string{"remind"}, want: true},
		{name: "certs", args: []string{"certs"}, want: false},
		{name: "export", args: []string{"export"}, want: false},
		{name: "signoff", args: []string{"signoff"}, want: false},
		{name: "revoke", args: []string{"revoke"}, want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd, _, err := rootCmd.Find(tc.args)
			if err != nil {
				t.Fatalf("Find(%v) error = %v", tc.args, err)
			}
			if cmd == nil {
				t.Fatalf("Find(%v) returned nil command", tc.args)
			}

			if got := commandUsesStructuredLogging(cmd); got != tc.want {
				t.Fatalf("commandUsesStructuredLogging(%q) = %v, want %v", cmd.CommandPath(), got, tc.want)
			}
		})
	}
}

func pagedEntitlements(pages ...[]review.EntitlementRow) (func(context.Context, int) ([]review.EntitlementRow, error), *[]int) {
	var fetched []int
	return func(ctx context.Context, page int) ([]review.EntitlementRow, error) {
		fetched = append(fetched, page)
		if page > len(pages) {
			return nil, nil
		}
		return pages[page-1], nil
	}, &fetched
}

func TestPickRowsKeepsRequestedOrder(t *testing.T) {
	fetch, _ := pagedEntitlements([]review.EntitlementRow{
		{LineItemID: "li-1", EntitlementName: "Admin"},
		{LineItemID: "li-2", EntitlementName: "Viewer"},
	})
	rows, err := pickRows(context.Background(), fetch, []string{"li-2", " li-1 "}, maxEntitlementPages)
	if err != nil {
		t.Fatalf("pickRows() error = %v", err)
	}
	if len(rows) != 2 || rows[0].EntitlementName != "Viewer" || rows[1].EntitlementName != "Admin" {
		t.Fatalf("rows = %+v", rows)
	}
	if _, err := pickRows(context.Background(), fetch, []string{"li-9"}, maxEntitlementPages); err == nil || !strings.Contains(err.Error(), "li-9") {
		t.Fatalf("pickRows() error = %v, want unknown line item", err)
	}
}

func TestPickRowsPagesUntilAllLineItemsFound(t *testing.T) {
	fetch, fetched := pagedEntitlements(
		[]review.EntitlementRow{{LineItemID: "li-1", EntitlementName: "Admin"}},
		[]review.EntitlementRow{{LineItemID: "li-2", EntitlementName: "Viewer"}},
		[]review.EntitlementRow{{LineItemID: "li-3", EntitlementName: "Auditor"}},
		[]review.EntitlementRow{{LineItemID: "li-4", EntitlementName: "Owner"}},
	)
	rows, err := pickRows(context.Background(), fetch, []string{"li-3", "li-1"}, maxEntitlementPages)
	if err != nil {
		t.Fatalf("pickRows() error = %v", err)
	}
	if len(rows) != 2 || rows[0].EntitlementName != "Auditor" || rows[1].EntitlementName != "Admin" {
		t.Fatalf("rows = %+v", rows)
	}
	if len(*fetched) != 3 {
		t.Fatalf("fetched pages = %v, want 1..3", *fetched)
	}
}

func TestPickRowsStopsOnEmptyOrRepeatedPage(t *testing.T) {
	fetch, fetched := pagedEntitlements([]review.EntitlementRow{{LineItemID: "li-1", EntitlementName: "Admin"}})
	if _, err := pickRows(context.Background(), fetch, []string{"li-7"}, maxEntitlementPages); err == nil {
		t.Fatal("pickRows() error = nil, want unknown line item")
	}
	if len(*fetched) != 2 {
		t.Fatalf("fetched pages = %v, want stop at the first empty page", *fetched)
	}

	same := []review.EntitlementRow{{LineItemID: "li-1", EntitlementName: "Admin"}}
	var calls int
	repeat := func(ctx context.Context, page int) ([]review.EntitlementRow, error) {
		calls++
		return same, nil
	}
	if _, err := pickRows(context.Background(), repeat, []string{"li-7"}, maxEntitlementPages); err == nil {
		t.Fatal("pickRows() error = nil, want unknown line item")
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want stop once a page adds nothing new", calls)
	}
}

func TestPickRowsRespectsPageCap(t *testing.T) {
	var calls int
	fetch := func(ctx context.Context, page int) ([]review.EntitlementRow, error) {
		calls++
		return []review.EntitlementRow{{LineItemID: fmt.Sprintf("li-%d", page)}}, nil
	}
	if _, err := pickRows(context.Background(), fetch, []string{"li-50"}, 5); err == nil {
		t.Fatal("pickRows() error = nil, want not found within the page cap")
	}
	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
}

func TestPickRowsReturnsFetchError(t *testing.T) {
	boom := errors.New("backend down")
	fetch := func(ctx context.Context, page int) ([]review.EntitlementRow, error) {
		return nil, boom
	}
	if _, err := pickRows(context.Background(), fetch, []string{"li-1"}, maxEntitlementPages); !errors.Is(err, boom) {
		t.Fatalf("pickRows() error = %v, want %v", err, boom)
	}
}

func TestWriteBatchSummarizesRows(t *testing.T) {
	var out bytes.Buffer
	writeBatch(&out, review.BatchResult{
		Results: []review.RowResult{
			{LineItemID: "li-1", EntitlementName: "Admin", OK: true},
			{LineItemID: "li-2", EntitlementName: "Viewer", Error: "refused"},
			{LineItemID: "li-3", EntitlementName: "Auditor", Skipped: true},
		},
		Succeeded: 1, Failed: 1, Skipped: 1,
	})
	got := out.String()
	for _, want := range []string{"ok       li-1 Admin", "failed   li-2 Viewer: refused", "skipped  li-3 Auditor", "1 succeeded, 1 failed, 1 skipped"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output %q missing %q", got, want)
		}
	}
}

func TestWriteCertificationsMarksSignedOff(t *testing.T) {
	var out bytes.Buffer
	err := writeCertifications(&out, []review.CertificationRow{
		{ID: "c-1", Name: "Q1 Finance", Type: review.TypeUserManager, Status: review.StatusActive, Progress: 40},
		{ID: "c-2", Name: "Q1 Sales", Status: review.StatusActive, SignedOff: true},
	})
	if err != nil {
		t.Fatalf("writeCertifications() error = %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "40%") || !strings.Contains(got, "Signed off") {
		t.Fatalf("output = %q", got)
	}

	out.Reset()
	if err := writeCertifications(&out, nil); err != nil || out.String() != "no certifications\n" {
		t.Fatalf("empty output = %q err=%v", out.String(), err)
	}
}
