package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the hyvbase security MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolValidateOperation = mcp.NewTool("validate_operation",
	mcp.WithDescription(
		"Validate an agent operation against the security engine before executing it. "+
			"Returns an approve/reject decision, a risk score (0-100, lower is safer), "+
			"the list of policies checked, and any violations. "+
			"Use this before any trade, transfer, or swap to avoid rejected transactions."),
	mcp.WithString("operation_type",
		mcp.Required(),
		mcp.Description("Type of operation: 'trade', 'transfer', 'swap', 'post', 'read', or a custom type")),
	mcp.WithObject("payload",
		mcp.Description("Operation payload (varies by type). For a transfer: {\"amount\": 50, \"token\": \"ETH\", \"recipient\": \"0x...\"}")),
	mcp.WithString("agent_id",
		mcp.Description("Identifier of the agent performing the operation. Rate limits are tracked per agent.")),
	mcp.WithString("user_id",
		mcp.Description("Optional user on whose behalf the agent acts")),
	mcp.WithString("source_ip",
		mcp.Description("Source IP of the operation, checked against allow/block lists")),
)

var ToolListPolicies = mcp.NewTool("list_policies",
	mcp.WithDescription(
		"List all security policies registered with the engine, including whether each "+
			"is enabled and its parameters. Policies cover transaction limits, operation "+
			"frequency, time restrictions, and geographic restrictions."),
)

var ToolSetPolicyEnabled = mcp.NewTool("set_policy_enabled",
	mcp.WithDescription(
		"Enable or disable a security policy by ID. Disabled policies are skipped during "+
			"validation. Use list_policies to find policy IDs."),
	mcp.WithString("policy_id",
		mcp.Required(),
		mcp.Description("ID of the policy to change (e.g. 'default_transaction_limit')")),
	mcp.WithBoolean("enabled",
		mcp.Required(),
		mcp.Description("true to enable the policy, false to disable it")),
)

var ToolGetSecurityReport = mcp.NewTool("get_security_report",
	mcp.WithDescription(
		"Get the current security posture report: configured security level, policy counts, "+
			"active agents, and recent audit events grouped by severity."),
)

var ToolQueryAuditEvents = mcp.NewTool("query_audit_events",
	mcp.WithDescription(
		"Query the security audit trail for recent events. Every validation, policy change, "+
			"and security error is recorded here. Filter by event type or severity."),
	mcp.WithString("event_type",
		mcp.Description("Filter by event type (e.g. 'operation_validation', 'policy_added')")),
	mcp.WithString("severity",
		mcp.Description("Filter by severity"),
		mcp.Enum("INFO", "WARNING", "ERROR", "CRITICAL")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of events to return (default 20, max 1000)")),
)
