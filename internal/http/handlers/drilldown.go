package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/keyforge/accessreview/internal/review"
)

// HandleUsers loads a page of the certification's users. The first user on the page is
// selected when the current selection is not on it.
func (h *Handlers) HandleUsers(c *echo.Context) error {
	d := h.Review.Drilldown(c.Param("reviewerId"), c.Param("certId"))
	snap, err := d.LoadUsers(c.Request().Context(), parsePageParam(c))
	return renderSnapshot(c, snap, err)
}

// HandleUsersScroll moves the user list one page down or up.
func (h *Handlers) HandleUsersScroll(c *echo.Context) error {
	d := h.Review.Drilldown(c.Param("reviewerId"), c.Param("certId"))
	ctx := c.Request().Context()

	var (
		snap review.DrilldownSnapshot
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(c.QueryParam("direction"))) {
	case "", "down", "next":
		snap, err = d.ScrollDown(ctx)
	case "up", "previous", "prev":
		snap, err = d.ScrollUp(ctx)
	default:
		return RenderValidation(c, errors.New("direction must be up or down"))
	}
	if errors.Is(err, review.ErrPageChangeInFlight) {
		return RenderConflict(c, err)
	}
	return renderSnapshot(c, snap, err)
}

type entitlementsResponse struct {
	TaskID       string                  `json:"taskId"`
	Page         int                     `json:"page"`
	Entitlements []review.EntitlementRow `json:"entitlements"`
	Progress     review.ProgressSummary  `json:"progress"`
	Error        string                  `json:"error,omitempty"`
}

// HandleEntitlements selects a user and loads a page of their entitlements. A user that is
// not on the drill-down's current page, or a certification without a drill-down, is read
// directly without changing or creating any selection.
func (h *Handlers) HandleEntitlements(c *echo.Context) error {
	reviewerID := c.Param("reviewerId")
	certID := c.Param("certId")
	taskID := c.Param("taskId")
	page := parsePageParam(c)
	ctx := c.Request().Context()

	if d, ok := h.Review.LookupDrilldown(reviewerID, certID); ok {
		snap, err := d.SelectUser(ctx, taskID, page)
		if err == nil || snap.State == review.StateEntitlementsLoaded && snap.SelectedTaskID == taskID {
			return c.JSON(http.StatusOK, entitlementsResponse{
				TaskID:       taskID,
				Page:         snap.EntitlementPage,
				Entitlements: snap.Entitlements,
				Progress:     snap.Progress,
				Error:        snap.Error,
			})
		}
		if !errors.Is(err, review.ErrNotFound) {
			return err
		}
	}

	rows, err := h.Review.Entitlements(ctx, reviewerID, certID, taskID, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entitlementsResponse{
		TaskID:       taskID,
		Page:         page,
		Entitlements: rows,
		Progress:     review.Summarize(rows),
	})
}

// HandleDrilldownState returns the drill-down as it stands without loading anything.
func (h *Handlers) HandleDrilldownState(c *echo.Context) error {
	return c.JSON(http.StatusOK, h.Review.DrilldownSnapshot(c.Param("reviewerId"), c.Param("certId")))
}

// renderSnapshot degrades an entitlement failure to an empty list; user page failures are errors.
func renderSnapshot(c *echo.Context, snap review.DrilldownSnapshot, err error) error {
	if err != nil && snap.State != review.StateEntitlementsLoaded {
		return err
	}
	return c.JSON(http.StatusOK, snap)
}
