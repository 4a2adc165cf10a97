// Package keyforge is the HTTP client for the KeyForge certification backend.
package keyforge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/keyforge/accessreview/internal/metrics"
)

const (
	maxRetriesOn429  = 3
	maxResponseSize  = 8 << 20 // 8 MiB
	maxErrorBodySize = 4 << 10
	userAgent        = "accessreview"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Operation string
	Method    string
	Endpoint  string
	Status    int
	Body      string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("keyforge %s failed: %s %s returned %d", e.Operation, e.Method, e.Endpoint, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

type Client struct {
	BaseURL string
	Tenant  string
	Token   string
	HTTP    *http.Client
}

// New creates a backend client. A zero timeout leaves requests bounded only by their context.
func New(baseURL, tenant, token string, timeout time.Duration) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	tenant = strings.TrimSpace(tenant)
	if base == "" {
		return nil, errors.New("keyforge base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("keyforge base URL: %w", err)
	}
	if tenant == "" {
		return nil, errors.New("keyforge tenant is required")
	}
	return &Client{
		BaseURL: base,
		Tenant:  tenant,
		Token:   strings.TrimSpace(token),
		HTTP:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) ensureClient() error {
	if c == nil {
		return errors.New("keyforge client is nil")
	}
	if c.BaseURL == "" || c.Tenant == "" {
		return errors.New("keyforge base URL and tenant are required")
	}
	if c.HTTP == nil {
		return errors.New("keyforge http client is not configured")
	}
	return nil
}

// certPath builds /certification/api/v1/{tenant}/{segments...} with each segment path-escaped.
func (c *Client) certPath(segments ...string) string {
	return c.tenantPath("certification", segments...)
}

func (c *Client) tenantPath(service string, segments ...string) string {
	var b strings.Builder
	b.WriteString("/")
	b.WriteString(service)
	b.WriteString("/api/v1/")
	b.WriteString(url.PathEscape(c.Tenant))
	for _, s := range segments {
		b.WriteString("/")
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	u.Fragment = ""
	return u.String(), nil
}

func pageQuery(pageSize, pageNumber int) url.Values {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageNumber > 0 {
		q.Set("pageNumber", strconv.Itoa(pageNumber))
	}
	return q
}

func (c *Client) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	body, err := c.do(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decodeBody(op, body, out)
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("keyforge %s: encode request: %w", op, err)
	}
	body, err := c.do(ctx, op, http.MethodPost, path, nil, raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeBody(op, body, out)
}

func decodeBody(op string, body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("keyforge %s: decode response: %w", op, err)
	}
	return nil
}

// do issues one logical request, retrying only on 429 per Retry-After.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload []byte) ([]byte, error) {
	if err := c.ensureClient(); err != nil {
		return nil, err
	}
	endpoint, err := c.endpoint(path, query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= maxRetriesOn429; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			metrics.BackendRequestsTotal.WithLabelValues(op, "transport_error").Inc()
			return nil, fmt.Errorf("keyforge %s: %w", op, err)
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("keyforge %s: read response: %w", op, readErr)
		}
		metrics.BackendRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = newAPIError(op, method, endpoint, resp.StatusCode, body)
			if attempt == maxRetriesOn429 {
				return nil, lastErr
			}
			wait, ok := retryAfterDuration(resp.Header.Get("Retry-After"))
			if !ok {
				wait = time.Second
			}
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, newAPIError(op, method, endpoint, resp.StatusCode, body)
		}
		return body, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("keyforge %s: request failed", op)
}

func newAPIError(op, method, endpoint string, status int, body []byte) *APIError {
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBodySize {
		msg = msg[:maxErrorBodySize] + "..."
	}
	if u, err := url.Parse(endpoint); err == nil {
		u.RawQuery = ""
		endpoint = u.String()
	}
	return &APIError{Operation: op, Method: method, Endpoint: endpoint, Status: status, Body: msg}
}

func retryAfterDuration(header string) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
