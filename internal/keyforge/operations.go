package keyforge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

func requireIDs(op string, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("keyforge %s: %s is required", op, pairs[i])
		}
	}
	return nil
}

// ListCertifications returns one page of the reviewer's certifications.
func (c *Client) ListCertifications(ctx context.Context, reviewerID string, pageSize, pageNumber int) (Page[RawCertification], error) {
	const op = "getCertifications"
	var page Page[RawCertification]
	if err := requireIDs(op, "reviewerId", reviewerID); err != nil {
		return page, err
	}
	err := c.getJSON(ctx, op, c.certPath(op, reviewerID), pageQuery(pageSize, pageNumber), &page)
	return page, err
}

// CertificationDetails returns one page of review tasks (users) for a certification.
func (c *Client) CertificationDetails(ctx context.Context, reviewerID, certID string, pageSize, pageNumber int) (Page[RawTask], error) {
	const op = "getCertificationDetails"
	var page Page[RawTask]
	if err := requireIDs(op, "reviewerId", reviewerID, "certificationId", certID); err != nil {
		return page, err
	}
	err := c.getJSON(ctx, op, c.certPath(op, reviewerID, certID), pageQuery(pageSize, pageNumber), &page)
	return page, err
}

// FetchAccessDetails returns one page of the accounts held by the user under review.
// The backend answers with either a bare array or a page envelope.
func (c *Client) FetchAccessDetails(ctx context.Context, reviewerID, certID, taskID, filter string, pageSize, pageNumber int) ([]Account, error) {
	const op = "getAccessDetails"
	if err := requireIDs(op, "reviewerId", reviewerID, "certificationId", certID, "taskId", taskID); err != nil {
		return nil, err
	}
	q := pageQuery(pageSize, pageNumber)
	if f := strings.TrimSpace(filter); f != "" {
		q.Set("filter", f)
	}
	body, err := c.do(ctx, op, http.MethodGet, c.certPath(op, reviewerID, certID, taskID), q, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Account](op, body)
}

// GetLineItemDetails returns the entitlement details behind one account line item.
func (c *Client) GetLineItemDetails(ctx context.Context, reviewerID, certID, taskID, lineItemID string) ([]EntitlementDetail, error) {
	const op = "getLineItemDetails"
	if err := requireIDs(op, "reviewerId", reviewerID, "certificationId", certID, "taskId", taskID, "lineItemId", lineItemID); err != nil {
		return nil, err
	}
	body, err := c.do(ctx, op, http.MethodGet, c.certPath(op, reviewerID, certID, taskID, lineItemID), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[EntitlementDetail](op, body)
}

// ExecuteQuery runs a parameterized catalog query and normalizes the response shape.
func (c *Client) ExecuteQuery(ctx context.Context, query string, params ...any) (QueryResult, error) {
	const op = "executeQuery"
	query = strings.TrimSpace(query)
	if query == "" {
		return QueryResult{}, errors.New("keyforge executeQuery: query is required")
	}
	if params == nil {
		params = []any{}
	}
	raw, err := json.Marshal(QueryRequest{Query: query, Parameters: params})
	if err != nil {
		return QueryResult{}, err
	}
	body, err := c.do(ctx, op, http.MethodPost, c.tenantPath("catalog", op), nil, raw)
	if err != nil {
		return QueryResult{}, err
	}
	return ParseQueryResult(body)
}

// ValidatePassword asks the backend whether password belongs to userName.
func (c *Client) ValidatePassword(ctx context.Context, userName, password string) (bool, error) {
	const op = "validatePassword"
	if err := requireIDs(op, "userName", userName); err != nil {
		return false, err
	}
	if password == "" {
		return false, nil
	}
	raw, err := json.Marshal(map[string]string{"userName": userName, "password": password})
	if err != nil {
		return false, err
	}
	body, err := c.do(ctx, op, http.MethodPost, c.tenantPath("auth", op), nil, raw)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized) || IsStatus(err, http.StatusForbidden) {
			return false, nil
		}
		return false, err
	}
	return parseValidity(body)
}

func parseValidity(body []byte) (bool, error) {
	trimmed := bytes.TrimSpace(body)
	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		return b, nil
	}
	var obj struct {
		Valid   *bool `json:"valid"`
		IsValid *bool `json:"isValid"`
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return false, fmt.Errorf("keyforge validatePassword: decode response: %w", err)
	}
	switch {
	case obj.Valid != nil:
		return *obj.Valid, nil
	case obj.IsValid != nil:
		return *obj.IsValid, nil
	case obj.Success != nil:
		return *obj.Success, nil
	}
	return false, nil
}

// SignOffCertification marks the reviewer's certification as signed off.
func (c *Client) SignOffCertification(ctx context.Context, reviewerID, certID, comments string) error {
	const op = "signOff"
	if err := requireIDs(op, "reviewerId", reviewerID, "certificationId", certID); err != nil {
		return err
	}
	payload := map[string]string{"reviewerId": reviewerID, "certificationId": certID, "comments": comments}
	return c.postJSON(ctx, op, c.certPath(op, reviewerID, certID), payload, nil)
}

// Reassign hands a certification (or task/line item) to a new owner.
func (c *Client) Reassign(ctx context.Context, req ReassignRequest) error {
	const op = "reassign"
	if err := requireIDs(op, "reviewerId", req.ReviewerID, "certificationId", req.CertificationID); err != nil {
		return err
	}
	return c.postJSON(ctx, op, c.certPath(op, req.ReviewerID, req.CertificationID), req, nil)
}

// ModifyAccess removes and/or adds access for one line item.
func (c *Client) ModifyAccess(ctx context.Context, reviewerID, certID, taskID, lineItemID string, body ModifyAccessRequest) error {
	const op = "modifyAccess"
	if err := requireIDs(op, "reviewerId", reviewerID, "certificationId", certID, "taskId", taskID, "lineItemId", lineItemID); err != nil {
		return err
	}
	if body.RemoveAccess == nil {
		body.RemoveAccess = []AccessChange{}
	}
	if body.AddAccess == nil {
		body.AddAccess = []AccessChange{}
	}
	return c.postJSON(ctx, op, c.certPath(op, reviewerID, certID, taskID, lineItemID), body, nil)
}

// ImmediateRevoke revokes the listed entitlements for one line item without waiting for sign-off.
func (c *Client) ImmediateRevoke(ctx context.Context, reviewerID, certID, taskID, lineItemID string, body ImmediateRevokeRequest) error {
	const op = "immediateRevoke"
	if err := requireIDs(op, "reviewerId", reviewerID, "certificationId", certID, "taskId", taskID, "lineItemId", lineItemID); err != nil {
		return err
	}
	if body.RemoveAccounts == nil {
		body.RemoveAccounts = []string{}
	}
	return c.postJSON(ctx, op, c.certPath(op, reviewerID, certID, taskID, lineItemID), body, nil)
}

// CampaignAnalytics returns aggregate analytics for every campaign of the tenant.
func (c *Client) CampaignAnalytics(ctx context.Context) (CampaignAnalytics, error) {
	const op = "getCampaignAnalytics"
	var out CampaignAnalytics
	err := c.getJSON(ctx, op, c.certPath(op), nil, &out)
	return out, err
}

func decodeList[T any](op string, body []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("keyforge %s: decode response: %w", op, err)
		}
		return items, nil
	}
	var page Page[T]
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("keyforge %s: decode response: %w", op, err)
	}
	return page.Items, nil
}
