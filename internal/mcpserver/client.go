package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the hyvbase security API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional bearer token
}

// SecurityClient is a pure HTTP client for the hyvbase security API.
type SecurityClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewSecurityClient creates a new client for the security API.
func NewSecurityClient(cfg Config) *SecurityClient {
	return &SecurityClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *SecurityClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ValidateOperation submits an operation for security validation.
func (c *SecurityClient) ValidateOperation(ctx context.Context, operationType string, payload map[string]any, agentID, userID, sourceIP string) (json.RawMessage, error) {
	body := map[string]any{
		"operation_type": operationType,
	}
	if payload != nil {
		body["payload"] = payload
	}
	opCtx := map[string]string{}
	if agentID != "" {
		opCtx["agent_id"] = agentID
	}
	if userID != "" {
		opCtx["user_id"] = userID
	}
	if sourceIP != "" {
		opCtx["source_ip"] = sourceIP
	}
	if len(opCtx) > 0 {
		body["context"] = opCtx
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/validate", nil, body)
}

// ListPolicies returns all registered security policies.
func (c *SecurityClient) ListPolicies(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/policies", nil, nil)
}

// SetPolicyEnabled enables or disables a policy by ID.
func (c *SecurityClient) SetPolicyEnabled(ctx context.Context, policyID string, enabled bool) (json.RawMessage, error) {
	action := "disable"
	if enabled {
		action = "enable"
	}
	path := "/v1/policies/" + policyID + "/" + action
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// GetSecurityReport returns the current security posture report.
func (c *SecurityClient) GetSecurityReport(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/security/report", nil, nil)
}

// QueryAuditEvents returns recent audit trail events, optionally filtered.
func (c *SecurityClient) QueryAuditEvents(ctx context.Context, eventType, severity string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if eventType != "" {
		q.Set("event_type", eventType)
	}
	if severity != "" {
		q.Set("severity", severity)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/audit/events", q, nil)
}
