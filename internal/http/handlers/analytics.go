package handlers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/keyforge/accessreview/internal/audit"
)

func (h *Handlers) HandleCampaignAnalytics(c *echo.Context) error {
	report, err := h.Review.CampaignAnalytics(c.Request().Context(), c.Param("campaignId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

type auditResponse struct {
	CertificationID string        `json:"certificationId"`
	Enabled         bool          `json:"enabled"`
	Entries         []audit.Entry `json:"entries"`
}

// HandleAudit lists the remediation rows journaled for a certification, newest first.
// Without a database the journal is disabled and the list is empty.
func (h *Handlers) HandleAudit(c *echo.Context) error {
	certID := c.Param("certId")
	if h.Audit == nil {
		return c.JSON(http.StatusOK, auditResponse{CertificationID: certID, Entries: []audit.Entry{}})
	}
	entries, err := h.Audit.List(c.Request().Context(), certID, parsePositiveParam(c, "limit", 0))
	if err != nil {
		return RenderError(c, err)
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return c.JSON(http.StatusOK, auditResponse{CertificationID: certID, Enabled: true, Entries: entries})
}
