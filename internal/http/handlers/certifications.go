package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/keyforge/accessreview/internal/review"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type certificationsResponse struct {
	ReviewerID string                    `json:"reviewerId"`
	Search     string                    `json:"search"`
	Rows       []review.CertificationRow `json:"rows"`
	Paging     pageWindow                `json:"paging"`
}

// HandleCertifications lists one page of the reviewer's open certifications. The search term
// filters only the rows of that page.
func (h *Handlers) HandleCertifications(c *echo.Context) error {
	reviewerID := c.Param("reviewerId")
	page := parsePageParam(c)
	size := parseSizeParam(c, 0)
	search := strings.TrimSpace(c.QueryParam("search"))

	result, err := h.Review.ListCertifications(c.Request().Context(), reviewerID, size, page)
	if err != nil {
		return err
	}
	h.putSessionJSON(c, SessionKeySharedRows, result.Rows)

	rows := review.Filter(result.Rows, search)
	backendRows := 0
	for _, r := range result.Rows {
		if !r.Demo {
			backendRows++
		}
	}
	return c.JSON(http.StatusOK, certificationsResponse{
		ReviewerID: reviewerID,
		Search:     search,
		Rows:       rows,
		Paging:     newPageWindow(result.PageNumber, result.PageSize, result.TotalItems, result.TotalPages, backendRows),
	})
}

// HandleOpen resolves the review screen for a certification and remembers its campaign
// summary for the remediation views.
func (h *Handlers) HandleOpen(c *echo.Context) error {
	reviewerID := c.Param("reviewerId")
	certID := c.Param("certId")
	res, err := h.Review.Open(c.Request().Context(), reviewerID, certID)
	if err != nil {
		return err
	}
	h.putSessionJSON(c, SessionKeyCampaignSummary, res.Summary)
	return c.JSON(http.StatusOK, res)
}

type reassignRequest struct {
	ReviewerName  string `json:"reviewerName"`
	TaskID        string `json:"taskId"`
	NewOwnerID    string `json:"newOwnerId"`
	NewOwnerType  string `json:"newOwnerType"`
	Justification string `json:"justification"`
}

func (h *Handlers) HandleReassign(c *echo.Context) error {
	var req reassignRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	err := h.Review.Reassign(c.Request().Context(), review.ReassignInput{
		ReviewerID:      c.Param("reviewerId"),
		ReviewerName:    req.ReviewerName,
		CertificationID: c.Param("certId"),
		TaskID:          req.TaskID,
		NewOwnerID:      req.NewOwnerID,
		NewOwnerType:    req.NewOwnerType,
		Justification:   req.Justification,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type signOffRequest struct {
	Password string `json:"password"`
	Comments string `json:"comments"`
}

// HandleSignOff checks the reviewer's password against the signed-in identity and signs the
// certification off.
func (h *Handlers) HandleSignOff(c *echo.Context) error {
	var req signOffRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	err := h.Review.SignOff(c.Request().Context(), review.SignOffInput{
		ReviewerID:      c.Param("reviewerId"),
		CertificationID: c.Param("certId"),
		PrincipalEmail:  principalEmail(c),
		SessionUserID:   h.sessionUserID(c),
		Password:        req.Password,
		Comments:        req.Comments,
	})
	if err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) HandleClaim(c *echo.Context) error {
	if err := h.Review.Claim(c.Request().Context(), c.Param("reviewerId"), c.Param("certId")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleExport streams the certification's access workbook.
func (h *Handlers) HandleExport(c *echo.Context) error {
	if h.Exporter == nil {
		return RenderNotFound(c)
	}
	var buf bytes.Buffer
	filename, err := h.Exporter.Export(c.Request().Context(), &buf, c.Param("certId"))
	if err != nil {
		return err
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxContentType, buf.Bytes())
}
