package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the TokenSafe MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolAnalyzeToken = mcp.NewTool("analyze_token",
	mcp.WithDescription(
		"Check whether an ERC-20 token is safe to buy or hold. "+
			"Combines a honeypot-detection API with direct reads of the token contract and returns "+
			"a safety score (0-100, higher is safer), a risk level, honeypot status, warnings and recommendations. "+
			"Use this before swapping into an unfamiliar token."),
	mcp.WithString("token_address",
		mcp.Required(),
		mcp.Description("Token contract address (e.g. '0x6982508145454ce325ddbe47a25d4ec3d2311933')")),
	mcp.WithNumber("chain_id",
		mcp.Description("EVM chain id (1 = Ethereum, 56 = BSC, 8453 = Base). Defaults to 1. Use list_chains to see what is supported.")),
)

var ToolAnalyzeTokens = mcp.NewTool("analyze_tokens",
	mcp.WithDescription(
		"Check up to 20 ERC-20 tokens on one chain in a single call. "+
			"Returns a one-line verdict per token, in the order given. "+
			"Use analyze_token for the full breakdown of a single token."),
	mcp.WithArray("token_addresses",
		mcp.Required(),
		mcp.Description("Token contract addresses to check"),
		mcp.Items(map[string]any{"type": "string"})),
	mcp.WithNumber("chain_id",
		mcp.Description("EVM chain id shared by all tokens. Defaults to 1.")),
)

var ToolListChains = mcp.NewTool("list_chains",
	mcp.WithDescription(
		"List the EVM chains TokenSafe can analyze tokens on."),
)
