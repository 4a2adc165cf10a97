package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/keyforge/accessreview/internal/review"
)

const (
	SessionKeyCampaignSummary = "selected_campaign_summary"
	SessionKeySharedRows      = "shared_rows"
	SessionKeyUserID          = "user_id"
)

// putSessionJSON stores v under key. Sessions are optional; without a manager it does nothing.
func (h *Handlers) putSessionJSON(c *echo.Context, key string, v any) {
	if h.Sessions == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		c.Logger().Warn("session value encode failed", "key", key, "err", err)
		return
	}
	h.Sessions.Put(c.Request().Context(), key, string(raw))
}

func (h *Handlers) sessionJSON(c *echo.Context, key string, v any) bool {
	if h.Sessions == nil {
		return false
	}
	raw := h.Sessions.GetString(c.Request().Context(), key)
	if raw == "" {
		return false
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		c.Logger().Warn("session value decode failed", "key", key, "err", err)
		return false
	}
	return true
}

func (h *Handlers) sessionUserID(c *echo.Context) string {
	if h.Sessions == nil {
		return ""
	}
	return h.Sessions.GetString(c.Request().Context(), SessionKeyUserID)
}

// selectedCampaign returns the campaign summary stored when the certification was opened.
func (h *Handlers) selectedCampaign(c *echo.Context, reviewerID, certID string) (review.CampaignSummary, bool) {
	var summary review.CampaignSummary
	if !h.sessionJSON(c, SessionKeyCampaignSummary, &summary) {
		return review.CampaignSummary{}, false
	}
	if summary.ReviewerID != reviewerID || summary.CertificationID != certID {
		return review.CampaignSummary{}, false
	}
	return summary, true
}

type sessionRequest struct {
	UserID string `json:"userId"`
}

type sessionResponse struct {
	UserID         string                    `json:"userId"`
	PrincipalEmail string                    `json:"principalEmail,omitempty"`
	Campaign       *review.CampaignSummary   `json:"campaign,omitempty"`
	SharedRows     []review.CertificationRow `json:"sharedRows"`
}

// HandleSessionShow returns what the session currently hands between views.
func (h *Handlers) HandleSessionShow(c *echo.Context) error {
	resp := sessionResponse{
		UserID:         h.sessionUserID(c),
		PrincipalEmail: principalEmail(c),
		SharedRows:     []review.CertificationRow{},
	}
	var summary review.CampaignSummary
	if h.sessionJSON(c, SessionKeyCampaignSummary, &summary) {
		resp.Campaign = &summary
	}
	var rows []review.CertificationRow
	if h.sessionJSON(c, SessionKeySharedRows, &rows) && rows != nil {
		resp.SharedRows = rows
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleSessionCreate records the signed-in user id used for sign-off password checks.
func (h *Handlers) HandleSessionCreate(c *echo.Context) error {
	var req sessionRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return RenderValidation(c, fmt.Errorf("%w: userId is required", review.ErrValidation))
	}
	if h.Sessions == nil {
		return RenderNotFound(c)
	}
	ctx := c.Request().Context()
	if err := h.Sessions.RenewToken(ctx); err != nil {
		return RenderError(c, err)
	}
	h.Sessions.Put(ctx, SessionKeyUserID, userID)
	return c.JSON(http.StatusOK, sessionResponse{UserID: userID, SharedRows: []review.CertificationRow{}})
}

// HandleSessionDestroy clears every handed-off value.
func (h *Handlers) HandleSessionDestroy(c *echo.Context) error {
	if h.Sessions == nil {
		return c.NoContent(http.StatusNoContent)
	}
	if err := h.Sessions.Destroy(c.Request().Context()); err != nil {
		return RenderError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
