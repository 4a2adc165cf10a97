package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/keyforge/accessreview/internal/review"
)

type remediationRequest struct {
	ReviewerName   string                  `json:"reviewerName"`
	Rows           []review.EntitlementRow `json:"rows"`
	EndDate        string                  `json:"endDate"`
	NewEntitlement string                  `json:"newEntitlement"`
	Justification  string                  `json:"justification"`
	Confirmed      bool                    `json:"confirmed"`
}

type candidatesResponse struct {
	Candidates []string `json:"candidates"`
}

func (h *Handlers) target(c *echo.Context, reviewerName string) review.Target {
	return review.Target{
		ReviewerID:      c.Param("reviewerId"),
		ReviewerName:    reviewerName,
		CertificationID: c.Param("certId"),
	}
}

// HandleRemediationCandidates lists catalog entitlements the selected rows could move to.
func (h *Handlers) HandleRemediationCandidates(c *echo.Context) error {
	var req remediationRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	names, err := h.Review.Candidates(c.Request().Context(), req.Rows)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidatesResponse{Candidates: names})
}

// HandleConditionalAccess schedules access to end. The earliest allowed end date comes from
// the campaign opened in this session.
func (h *Handlers) HandleConditionalAccess(c *echo.Context) error {
	var req remediationRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	t := h.target(c, req.ReviewerName)
	in := review.ConditionalAccessInput{
		Target:        t,
		Rows:          req.Rows,
		EndDate:       req.EndDate,
		Justification: req.Justification,
	}
	if summary, ok := h.selectedCampaign(c, t.ReviewerID, t.CertificationID); ok {
		in.CampaignDueDate = summary.DueDate
	}
	res, err := h.Review.ConditionalAccess(c.Request().Context(), in)
	return renderBatch(c, res, err)
}

func (h *Handlers) HandleModifyAccess(c *echo.Context) error {
	var req remediationRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	res, err := h.Review.ModifyAccess(c.Request().Context(), review.ModifyAccessInput{
		Target:         h.target(c, req.ReviewerName),
		Rows:           req.Rows,
		NewEntitlement: req.NewEntitlement,
		Justification:  req.Justification,
		Confirmed:      req.Confirmed,
	})
	return renderBatch(c, res, err)
}

func (h *Handlers) HandleRevoke(c *echo.Context) error {
	var req remediationRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	res, err := h.Review.ImmediateRevoke(c.Request().Context(), review.RevokeInput{
		Target:        h.target(c, req.ReviewerName),
		Rows:          req.Rows,
		Justification: req.Justification,
		Confirmed:     req.Confirmed,
	})
	return renderBatch(c, res, err)
}

// renderBatch returns the per-row results. A batch stopped by a failed row is still a 200:
// the failure is reported on its row.
func renderBatch(c *echo.Context, res review.BatchResult, err error) error {
	if err != nil && len(res.Results) == 0 {
		return err
	}
	if err != nil {
		c.Logger().Warn("remediation batch stopped", "request_id", RequestID(c), "action", string(res.Action), "err", err)
	}
	return c.JSON(http.StatusOK, res)
}
