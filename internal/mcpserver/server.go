package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all security tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("hyvbase-security", "1.0.0")
	client := NewSecurityClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolValidateOperation, h.HandleValidateOperation)
	s.AddTool(ToolListPolicies, h.HandleListPolicies)
	s.AddTool(ToolSetPolicyEnabled, h.HandleSetPolicyEnabled)
	s.AddTool(ToolGetSecurityReport, h.HandleGetSecurityReport)
	s.AddTool(ToolQueryAuditEvents, h.HandleQueryAuditEvents)

	return s
}
