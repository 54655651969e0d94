package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *SecurityClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *SecurityClient) *Handlers {
	return &Handlers{client: client}
}

// HandleValidateOperation runs an operation through the security engine.
func (h *Handlers) HandleValidateOperation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	operationType := req.GetString("operation_type", "")
	if operationType == "" {
		return mcp.NewToolResultError("operation_type is required"), nil
	}
	agentID := req.GetString("agent_id", "")
	userID := req.GetString("user_id", "")
	sourceIP := req.GetString("source_ip", "")

	var payload map[string]any
	if raw := req.GetArguments()["payload"]; raw != nil {
		if m, ok := raw.(map[string]any); ok {
			payload = m
		}
	}

	raw, err := h.client.ValidateOperation(ctx, operationType, payload, agentID, userID, sourceIP)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Validation request failed: %v", err)), nil
	}

	text, err := formatValidationResult(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse validation result: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListPolicies lists all registered security policies.
func (h *Handlers) HandleListPolicies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListPolicies(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list policies: %v", err)), nil
	}

	text, err := formatPolicyList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse policies: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleSetPolicyEnabled enables or disables a policy.
func (h *Handlers) HandleSetPolicyEnabled(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	policyID := req.GetString("policy_id", "")
	if policyID == "" {
		return mcp.NewToolResultError("policy_id is required"), nil
	}
	enabled := req.GetBool("enabled", false)

	_, err := h.client.SetPolicyEnabled(ctx, policyID, enabled)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update policy: %v", err)), nil
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Policy %s is now %s.", policyID, state)), nil
}

// HandleGetSecurityReport returns the security posture report.
func (h *Handlers) HandleGetSecurityReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetSecurityReport(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get security report: %v", err)), nil
	}

	text, err := formatReport(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse report: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleQueryAuditEvents queries the audit trail.
func (h *Handlers) HandleQueryAuditEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eventType := req.GetString("event_type", "")
	severity := req.GetString("severity", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.QueryAuditEvents(ctx, eventType, severity, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to query audit events: %v", err)), nil
	}

	text, err := formatEventList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse events: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Response formatting ---

func formatValidationResult(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	approved, _ := m["approved"].(bool)
	if approved {
		sb.WriteString("Decision: APPROVED\n")
	} else {
		sb.WriteString("Decision: REJECTED\n")
	}
	if score, ok := getFloat(m, "risk_score"); ok {
		sb.WriteString(fmt.Sprintf("Risk score: %.1f/100\n", score))
	}

	if violations := getStrings(m, "violations"); len(violations) > 0 {
		sb.WriteString("\nViolations:\n")
		for _, v := range violations {
			sb.WriteString(fmt.Sprintf("  - %s\n", v))
		}
	}
	if recs := getStrings(m, "recommendations"); len(recs) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range recs {
			sb.WriteString(fmt.Sprintf("  - %s\n", r))
		}
	}
	if checked := getStrings(m, "policies_checked"); len(checked) > 0 {
		sb.WriteString(fmt.Sprintf("\nPolicies checked: %s\n", strings.Join(checked, ", ")))
	}
	return sb.String(), nil
}

func formatPolicyList(raw json.RawMessage) (string, error) {
	var resp struct {
		Policies []map[string]any `json:"policies"`
	}
	// Try as {"policies": [...]}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Policies == nil {
		// Try as direct array
		if err := json.Unmarshal(raw, &resp.Policies); err != nil {
			return "", fmt.Errorf("unexpected policies response format")
		}
	}

	if len(resp.Policies) == 0 {
		return "No security policies registered.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d policy(ies):\n\n", len(resp.Policies)))
	for i, p := range resp.Policies {
		state := "disabled"
		if enabled, _ := p["enabled"].(bool); enabled {
			state = "enabled"
		}
		sb.WriteString(fmt.Sprintf("%d. %s [%s]\n", i+1, getString(p, "name"), state))
		sb.WriteString(fmt.Sprintf("   ID: %s | Kind: %s\n", getString(p, "id"), getString(p, "kind")))
		if params, ok := p["parameters"].(map[string]any); ok && len(params) > 0 {
			data, err := json.Marshal(params)
			if err == nil {
				sb.WriteString(fmt.Sprintf("   Parameters: %s\n", string(data)))
			}
		}
		if i < len(resp.Policies)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatReport(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Security Report:\n")
	if v := getString(m, "security_level"); v != "" {
		sb.WriteString(fmt.Sprintf("  Level: %s\n", v))
	}
	if v, ok := getFloat(m, "policy_count"); ok {
		sb.WriteString(fmt.Sprintf("  Policies: %.0f", v))
		if e, ok := getFloat(m, "enabled_policies"); ok {
			sb.WriteString(fmt.Sprintf(" (%.0f enabled)", e))
		}
		sb.WriteString("\n")
	}
	if v, ok := getFloat(m, "active_agents"); ok {
		sb.WriteString(fmt.Sprintf("  Active agents: %.0f\n", v))
	}
	if events, ok := m["recent_events_by_severity"].(map[string]any); ok && len(events) > 0 {
		sb.WriteString("  Recent events:\n")
		for _, sev := range []string{"INFO", "WARNING", "ERROR", "CRITICAL"} {
			if n, ok := getFloat(events, sev); ok {
				sb.WriteString(fmt.Sprintf("    %s: %.0f\n", sev, n))
			}
		}
	}
	if v, ok := getFloat(m, "audit_dropped_writes"); ok && v > 0 {
		sb.WriteString(fmt.Sprintf("  Dropped audit writes: %.0f\n", v))
	}
	return sb.String(), nil
}

func formatEventList(raw json.RawMessage) (string, error) {
	var resp struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Events == nil {
		if err := json.Unmarshal(raw, &resp.Events); err != nil {
			return "", fmt.Errorf("unexpected events response format")
		}
	}

	if len(resp.Events) == 0 {
		return "No audit events found.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d event(s):\n\n", len(resp.Events)))
	for i, e := range resp.Events {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, getString(e, "severity"), getString(e, "event_type")))
		sb.WriteString(fmt.Sprintf("   %s\n", getString(e, "message")))
		if v := getString(e, "agent_id"); v != "" {
			sb.WriteString(fmt.Sprintf("   Agent: %s\n", v))
		}
		if v := getString(e, "timestamp"); v != "" {
			sb.WriteString(fmt.Sprintf("   At: %s\n", v))
		}
		if i < len(resp.Events)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			return v
		}
	}
	return ""
}

// getFloat extracts a numeric value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k].(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// getStrings extracts a string slice from a map.
func getStrings(m map[string]any, key string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
