package review

import "testing"

func TestSummarizeBucketsSumToTotal(t *testing.T) {
	cases := []struct {
		name string
		rows []EntitlementRow
		want ProgressSummary
	}{
		{name: "empty", rows: nil, want: ProgressSummary{}},
		{
			name: "mixed",
			rows: []EntitlementRow{
				{Action: "Approve"},
				{Status: "Revoked"},
				{Action: "Delegate"},
				{Status: "remediated", Action: "Approve"},
				{Action: "Pending"},
				{Action: "something else"},
				{},
			},
			want: ProgressSummary{TotalItems: 7, ApprovedCount: 1, RevokedCount: 1, DelegatedCount: 1, RemediatedCount: 1, PendingCount: 3},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Summarize(tc.rows)
			if got != tc.want {
				t.Fatalf("Summarize = %+v, want %+v", got, tc.want)
			}
			sum := got.ApprovedCount + got.PendingCount + got.RevokedCount + got.DelegatedCount + got.RemediatedCount
			if sum != got.TotalItems {
				t.Fatalf("buckets sum to %d, total is %d", sum, got.TotalItems)
			}
		})
	}
}

func TestClassifyPrefersStatusOverAction(t *testing.T) {
	if got := classify("Approve", "Revoked"); got != outcomeRevoked {
		t.Fatalf("classify = %v, want revoked", got)
	}
	if got := classify("Revoke", ""); got != outcomeRevoked {
		t.Fatalf("classify = %v, want revoked", got)
	}
	if got := classify("", ""); got != outcomePending {
		t.Fatalf("classify = %v, want pending", got)
	}
}
