package review

import "strings"

// ProgressSummary buckets entitlement rows by review outcome. The five buckets always sum to TotalItems.
type ProgressSummary struct {
	TotalItems      int `json:"totalItems"`
	ApprovedCount   int `json:"approvedCount"`
	PendingCount    int `json:"pendingCount"`
	RevokedCount    int `json:"revokedCount"`
	DelegatedCount  int `json:"delegatedCount"`
	RemediatedCount int `json:"remediatedCount"`
}

type outcome int

const (
	outcomePending outcome = iota
	outcomeApproved
	outcomeRevoked
	outcomeDelegated
	outcomeRemediated
)

var outcomeWords = map[string]outcome{
	"approve":    outcomeApproved,
	"approved":   outcomeApproved,
	"certify":    outcomeApproved,
	"certified":  outcomeApproved,
	"revoke":     outcomeRevoked,
	"revoked":    outcomeRevoked,
	"reject":     outcomeRevoked,
	"rejected":   outcomeRevoked,
	"delegate":   outcomeDelegated,
	"delegated":  outcomeDelegated,
	"reassign":   outcomeDelegated,
	"reassigned": outcomeDelegated,
	"remediate":  outcomeRemediated,
	"remediated": outcomeRemediated,
}

// classify checks status before action; anything unrecognized is pending.
func classify(action, status string) outcome {
	for _, v := range []string{status, action} {
		if o, ok := outcomeWords[strings.ToLower(strings.TrimSpace(v))]; ok {
			return o
		}
	}
	return outcomePending
}

func Summarize(rows []EntitlementRow) ProgressSummary {
	s := ProgressSummary{TotalItems: len(rows)}
	for _, r := range rows {
		switch classify(r.Action, r.Status) {
		case outcomeApproved:
			s.ApprovedCount++
		case outcomeRevoked:
			s.RevokedCount++
		case outcomeDelegated:
			s.DelegatedCount++
		case outcomeRemediated:
			s.RemediatedCount++
		default:
			s.PendingCount++
		}
	}
	return s
}
