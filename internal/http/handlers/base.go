// Package handlers contains the JSON API handlers split by workflow.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/labstack/echo/v5"

	"github.com/keyforge/accessreview/internal/audit"
	"github.com/keyforge/accessreview/internal/export"
	"github.com/keyforge/accessreview/internal/review"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"
	// ValidationErrorCode marks input rejected before any backend call.
	ValidationErrorCode = "VALIDATION_FAILED"
	// BackendErrorCode marks a failed call to the certification backend.
	BackendErrorCode = "BACKEND_ERROR"

	// HeaderPrincipalEmail carries the signed-in user's email from the auth proxy.
	HeaderPrincipalEmail = "X-Forwarded-Email"

	maxBodyBytes = 1 << 20
)

// AuditLister lists journaled remediation rows. *audit.Journal implements it.
type AuditLister interface {
	List(ctx context.Context, certificationID string, limit int) ([]audit.Entry, error)
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	Review   *review.Service
	Exporter *export.Exporter
	Audit    AuditLister
	Sessions *scs.SessionManager
	Progress *ProgressBoard
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// RequestID returns the request id set by the request id middleware.
func RequestID(c *echo.Context) string {
	id, _ := c.Get(ContextKeyRequestID).(string)
	return id
}

func logHTTPError(c *echo.Context, err error) {
	path := ""
	method := ""
	if req := c.Request(); req != nil {
		method = req.Method
		if req.URL != nil {
			path = req.URL.Path
		}
	}
	c.Logger().Error("http error",
		"request_id", RequestID(c),
		"method", method,
		"path", path,
		"ip", c.RealIP(),
		"error", err,
	)
}

// RenderError returns a plain text error response.
func RenderError(c *echo.Context, err error) error {
	logHTTPError(c, err)

	requestID := RequestID(c)
	msg := "Internal server error."
	if requestID != "" {
		msg = fmt.Sprintf("%s Reference: %s.", msg, requestID)
	}
	msg = fmt.Sprintf("%s Code: %s.", msg, InternalErrorCode)
	return c.String(http.StatusInternalServerError, msg)
}

// RenderNotFound returns a 404 response.
func RenderNotFound(c *echo.Context) error {
	return c.String(http.StatusNotFound, "404 page not found")
}

// RenderValidation reports input the review workflows rejected. The message is ours, never the
// backend's, so it is safe to return.
func RenderValidation(c *echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, ErrorBody{
		Error:     strings.TrimPrefix(err.Error(), review.ErrValidation.Error()+": "),
		Code:      ValidationErrorCode,
		RequestID: RequestID(c),
	})
}

// RenderBackendError reports a failed backend call without echoing its body.
func RenderBackendError(c *echo.Context, err error) error {
	logHTTPError(c, err)
	return c.JSON(http.StatusBadGateway, ErrorBody{
		Error:     "The certification backend rejected the request.",
		Code:      BackendErrorCode,
		RequestID: RequestID(c),
	})
}

// RenderUnauthorized reports a rejected sign-off password.
func RenderUnauthorized(c *echo.Context) error {
	return c.JSON(http.StatusUnauthorized, ErrorBody{
		Error:     "Invalid password.",
		Code:      "INVALID_PASSWORD",
		RequestID: RequestID(c),
	})
}

// RenderConflict reports a page change refused while another is loading.
func RenderConflict(c *echo.Context, err error) error {
	return c.JSON(http.StatusConflict, ErrorBody{Error: err.Error(), Code: "IN_PROGRESS", RequestID: RequestID(c)})
}

// bindJSON decodes the request body into v. An empty body leaves v untouched.
func bindJSON(c *echo.Context, v any) error {
	body := c.Request().Body
	if body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: malformed JSON body", review.ErrValidation)
	}
	return nil
}

func principalEmail(c *echo.Context) string {
	return strings.TrimSpace(c.Request().Header.Get(HeaderPrincipalEmail))
}

// HandleHealthz reports liveness.
func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
