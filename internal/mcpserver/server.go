// Package mcpserver exposes TokenSafe analyses as MCP tools. It talks to a
// running TokenSafe HTTP API.
package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// NewMCPServer creates a configured MCP server with all TokenSafe tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("tokensafe", Version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolAnalyzeToken, h.HandleAnalyzeToken)
	s.AddTool(ToolAnalyzeTokens, h.HandleAnalyzeTokens)
	s.AddTool(ToolListChains, h.HandleListChains)

	return s
}
