package review

import (
	"context"
	"fmt"
	"time"

	"github.com/keyforge/accessreview/internal/audit"
	"github.com/keyforge/accessreview/internal/events"
	"github.com/keyforge/accessreview/internal/keyforge"
	"github.com/keyforge/accessreview/internal/metrics"
)

type Action string

const (
	ActionConditionalAccess Action = "conditional_access"
	ActionModifyAccess      Action = "modify_access"
	ActionImmediateRevoke   Action = "immediate_revoke"

	revokeEntityEntitlement = "entitlement"
	endDateLayout           = "2006-01-02"

	// candidateQuery lists catalog entitlements of one application.
	candidateQuery = "select name from catalog where type='Entitlement' AND applicationname = ?"
)

// Target names the certification a remediation acts within and who acts.
type Target struct {
	ReviewerID      string `json:"reviewerId"`
	ReviewerName    string `json:"reviewerName"`
	CertificationID string `json:"certificationId"`
}

// RowResult is the outcome of one selected row. Skipped rows were never sent to the backend.
type RowResult struct {
	Index           int    `json:"index"`
	RowID           string `json:"rowId"`
	TaskID          string `json:"taskId"`
	LineItemID      string `json:"lineItemId"`
	EntitlementName string `json:"entitlementName"`
	OK              bool   `json:"ok"`
	Skipped         bool   `json:"skipped"`
	Error           string `json:"error,omitempty"`
}

type BatchResult struct {
	Action    Action      `json:"action"`
	Results   []RowResult `json:"results"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Skipped   int         `json:"skipped"`

	err error
}

// Err is the failure that stopped the batch, if any.
func (b BatchResult) Err() error {
	return b.err
}

type ConditionalAccessInput struct {
	Target
	Rows []EntitlementRow `json:"rows"`
	// EndDate is the day access ends, as YYYY-MM-DD.
	EndDate       string `json:"endDate"`
	Justification string `json:"justification"`
	// CampaignDueDate comes from the campaign summary of the opened certification.
	CampaignDueDate string `json:"campaignDueDate"`
}

type ModifyAccessInput struct {
	Target
	Rows           []EntitlementRow `json:"rows"`
	NewEntitlement string           `json:"newEntitlement"`
	Justification  string           `json:"justification"`
	Confirmed      bool             `json:"confirmed"`
}

type RevokeInput struct {
	Target
	Rows          []EntitlementRow `json:"rows"`
	Justification string           `json:"justification"`
	Confirmed     bool             `json:"confirmed"`
}

func (t Target) validate() error {
	if err := requireField("reviewerId", t.ReviewerID); err != nil {
		return err
	}
	return requireField("certificationId", t.CertificationID)
}

func selectedRows(rows []EntitlementRow) ([]EntitlementRow, error) {
	defined := DefinedRows(rows)
	if len(defined) == 0 {
		return nil, validationError("select at least one entitlement")
	}
	return defined, nil
}

// CampaignExpiry is the earliest allowed conditional-access end date: the campaign due date,
// else the first row's certification expiration, else today.
func CampaignExpiry(campaignDueDate string, rows []EntitlementRow, now time.Time) time.Time {
	if t, ok := parseDate(campaignDueDate); ok {
		return dayOf(t)
	}
	if len(rows) > 0 {
		if t, ok := parseDate(rows[0].CertificationExpiration); ok {
			return dayOf(t)
		}
	}
	return dayOf(now)
}

// ConditionalAccess schedules each row's entitlement to end on EndDate.
func (s *Service) ConditionalAccess(ctx context.Context, in ConditionalAccessInput) (BatchResult, error) {
	if err := in.Target.validate(); err != nil {
		return BatchResult{}, err
	}
	rows, err := selectedRows(in.Rows)
	if err != nil {
		return BatchResult{}, err
	}
	end, ok := parseDate(in.EndDate)
	if !ok {
		return BatchResult{}, validationError("end date %q is not a date", in.EndDate)
	}
	end = dayOf(end)
	expiry := CampaignExpiry(in.CampaignDueDate, rows, s.now())
	if end.Before(expiry) {
		return BatchResult{}, validationError("end date must be on or after %s", expiry.Format(endDateLayout))
	}
	justification := trimmed(in.Justification)
	if justification == "" {
		return BatchResult{}, validationError("justification is required")
	}

	return s.runBatch(ctx, ActionConditionalAccess, in.Target, rows, justification, func(ctx context.Context, r EntitlementRow) error {
		return s.backend.ModifyAccess(ctx, in.ReviewerID, in.CertificationID, r.TaskID, r.LineItemID, keyforge.ModifyAccessRequest{
			ReviewerName:    in.ReviewerName,
			ReviewerID:      in.ReviewerID,
			CertificationID: in.CertificationID,
			TaskID:          r.TaskID,
			RemoveAccess: []keyforge.AccessChange{{
				LineItemID:      r.LineItemID,
				AccountID:       r.AccountID,
				ApplicationName: r.ApplicationName,
				EntitlementName: r.EntitlementName,
				EndDate:         end.Format(endDateLayout),
				Justification:   justification,
			}},
			AddAccess: []keyforge.AccessChange{},
		})
	})
}

// ModifyAccess swaps each row's entitlement for NewEntitlement.
func (s *Service) ModifyAccess(ctx context.Context, in ModifyAccessInput) (BatchResult, error) {
	if err := in.Target.validate(); err != nil {
		return BatchResult{}, err
	}
	rows, err := selectedRows(in.Rows)
	if err != nil {
		return BatchResult{}, err
	}
	replacement := trimmed(in.NewEntitlement)
	if replacement == "" {
		return BatchResult{}, validationError("choose the entitlement to grant instead")
	}
	if !in.Confirmed {
		return BatchResult{}, ErrNotConfirmed
	}
	justification := trimmed(in.Justification)

	return s.runBatch(ctx, ActionModifyAccess, in.Target, rows, justification, func(ctx context.Context, r EntitlementRow) error {
		return s.backend.ModifyAccess(ctx, in.ReviewerID, in.CertificationID, r.TaskID, r.LineItemID, keyforge.ModifyAccessRequest{
			ReviewerName:    in.ReviewerName,
			ReviewerID:      in.ReviewerID,
			CertificationID: in.CertificationID,
			TaskID:          r.TaskID,
			RemoveAccess: []keyforge.AccessChange{{
				LineItemID:      r.LineItemID,
				AccountID:       r.AccountID,
				ApplicationName: r.ApplicationName,
				EntitlementName: r.EntitlementName,
				Justification:   justification,
			}},
			AddAccess: []keyforge.AccessChange{{
				AccountID:       r.AccountID,
				ApplicationName: r.ApplicationName,
				EntitlementName: replacement,
				Justification:   justification,
			}},
		})
	})
}

// ImmediateRevoke revokes each row's entitlement now.
func (s *Service) ImmediateRevoke(ctx context.Context, in RevokeInput) (BatchResult, error) {
	if err := in.Target.validate(); err != nil {
		return BatchResult{}, err
	}
	rows, err := selectedRows(in.Rows)
	if err != nil {
		return BatchResult{}, err
	}
	justification := trimmed(in.Justification)
	if justification == "" {
		return BatchResult{}, validationError("justification is required")
	}
	if !in.Confirmed {
		return BatchResult{}, ErrNotConfirmed
	}

	return s.runBatch(ctx, ActionImmediateRevoke, in.Target, rows, justification, func(ctx context.Context, r EntitlementRow) error {
		return s.backend.ImmediateRevoke(ctx, in.ReviewerID, in.CertificationID, r.TaskID, r.LineItemID, keyforge.ImmediateRevokeRequest{
			ReviewerName:     in.ReviewerName,
			ReviewerID:       in.ReviewerID,
			CertificationID:  in.CertificationID,
			TaskID:           r.TaskID,
			RevokeEntityType: revokeEntityEntitlement,
			RemoveAccounts:   []string{},
			RemoveEntitlements: []keyforge.RevokeEntitlement{{
				LineItemID:       r.LineItemID,
				ParentLineItemID: r.ParentLineItemID,
				AccountID:        r.AccountID,
				ApplicationName:  r.ApplicationName,
				EntitlementName:  r.EntitlementName,
				Justification:    justification,
			}},
		})
	})
}

// runBatch sends rows one at a time in order. The first failure stops the batch and the
// remaining rows are reported as skipped.
func (s *Service) runBatch(ctx context.Context, action Action, target Target, rows []EntitlementRow, justification string, send func(context.Context, EntitlementRow) error) (BatchResult, error) {
	res := BatchResult{Action: action, Results: make([]RowResult, 0, len(rows))}
	var entries []audit.Entry

	for i, r := range rows {
		rr := RowResult{
			Index:           i,
			RowID:           r.Key(),
			TaskID:          r.TaskID,
			LineItemID:      r.LineItemID,
			EntitlementName: r.EntitlementName,
		}
		switch {
		case res.err != nil:
			rr.Skipped = true
			rr.Error = "not attempted after an earlier row failed"
		case trimmed(r.TaskID) == "" || trimmed(r.LineItemID) == "":
			rr.Skipped = true
			rr.Error = "row has no task or line item id"
		default:
			err := ctx.Err()
			if err == nil {
				err = send(ctx, r)
			}
			if err != nil {
				rr.Error = err.Error()
				res.err = fmt.Errorf("%s row %d (%s): %w", action, i+1, r.EntitlementName, err)
				s.log.Error("remediation row failed", "action", string(action), "reviewer_id", target.ReviewerID, "certification_id", target.CertificationID, "task_id", r.TaskID, "line_item_id", r.LineItemID, "err", err)
			} else {
				rr.OK = true
			}
			entries = append(entries, audit.Entry{
				Action:          string(action),
				ReviewerID:      target.ReviewerID,
				CertificationID: target.CertificationID,
				TaskID:          r.TaskID,
				LineItemID:      r.LineItemID,
				EntitlementName: r.EntitlementName,
				OK:              rr.OK,
				Error:           rr.Error,
				Justification:   justification,
			})
		}

		switch {
		case rr.OK:
			res.Succeeded++
			metrics.RemediationRowsTotal.WithLabelValues(string(action), "ok").Inc()
		case rr.Skipped:
			res.Skipped++
			metrics.RemediationRowsTotal.WithLabelValues(string(action), "skipped").Inc()
		default:
			res.Failed++
			metrics.RemediationRowsTotal.WithLabelValues(string(action), "failed").Inc()
		}
		res.Results = append(res.Results, rr)
	}

	if s.audit != nil && len(entries) > 0 {
		if err := s.audit.Record(context.WithoutCancel(ctx), entries); err != nil {
			s.log.Warn("failed to record remediation audit", "certification_id", target.CertificationID, "err", err)
		}
	}
	if res.Succeeded > 0 {
		s.invalidateCertification(target.ReviewerID, target.CertificationID)
		events.Publish(s.bus, TopicRemediationApplied, RemediationApplied{
			ReviewerID:      target.ReviewerID,
			ReviewerName:    target.ReviewerName,
			CertificationID: target.CertificationID,
			Action:          action,
			Succeeded:       res.Succeeded,
			Failed:          res.Failed,
			Skipped:         res.Skipped,
		})
	}
	s.log.Info("remediation batch finished", "action", string(action), "certification_id", target.CertificationID, "succeeded", res.Succeeded, "failed", res.Failed, "skipped", res.Skipped)
	return res, res.err
}

// Candidates lists catalog entitlements of the first row's application that none of the
// selected rows already hold.
func (s *Service) Candidates(ctx context.Context, rows []EntitlementRow) ([]string, error) {
	selected, err := selectedRows(rows)
	if err != nil {
		return nil, err
	}
	app := trimmed(selected[0].ApplicationName)
	if app == "" {
		return nil, validationError("selected entitlement has no application")
	}
	res, err := s.backend.ExecuteQuery(ctx, candidateQuery, app)
	if err != nil {
		return nil, fmt.Errorf("load candidate entitlements: %w", err)
	}
	names := res.Column("name")
	if len(names) == 0 {
		names = res.Column("value")
	}
	return excludeHeld(names, selected), nil
}

func excludeHeld(names []string, held []EntitlementRow) []string {
	skip := make(map[string]struct{}, len(held)+len(names))
	for _, r := range held {
		skip[r.EntitlementName] = struct{}{}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := skip[n]; ok {
			continue
		}
		skip[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

