package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/tokensafe/internal/analysis"
	"github.com/mbd888/tokensafe/internal/onchain"
	"github.com/mbd888/tokensafe/internal/risk"
)

// defaultChainID is used when a tool call names no chain.
const defaultChainID = 1

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleAnalyzeToken analyzes one token.
func (h *Handlers) HandleAnalyzeToken(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := strings.TrimSpace(req.GetString("token_address", ""))
	if address == "" {
		return mcp.NewToolResultError("token_address is required"), nil
	}
	chainID := int64(req.GetInt("chain_id", defaultChainID))

	report, err := h.client.AnalyzeToken(ctx, address, chainID)
	if err != nil {
		return toolError("Analysis failed", err), nil
	}

	return mcp.NewToolResultText(formatReport(report)), nil
}

// HandleAnalyzeTokens analyzes several tokens on one chain.
func (h *Handlers) HandleAnalyzeTokens(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	addresses := stringList(req.GetArguments()["token_addresses"])
	if len(addresses) == 0 {
		return mcp.NewToolResultError("token_addresses must list at least one address"), nil
	}
	if len(addresses) > analysis.MaxBatchSize {
		return mcp.NewToolResultError(fmt.Sprintf("at most %d tokens per call", analysis.MaxBatchSize)), nil
	}
	chainID := int64(req.GetInt("chain_id", defaultChainID))

	tokens := make([]analysis.TokenRequest, len(addresses))
	for i, a := range addresses {
		tokens[i] = analysis.TokenRequest{TokenAddress: a, ChainID: chainID}
	}

	items, err := h.client.AnalyzeBatch(ctx, tokens)
	if err != nil {
		return toolError("Batch analysis failed", err), nil
	}

	return mcp.NewToolResultText(formatBatch(items)), nil
}

// HandleListChains lists the supported chains.
func (h *Handlers) HandleListChains(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chains, err := h.client.ListChains(ctx)
	if err != nil {
		return toolError("Failed to list chains", err), nil
	}

	return mcp.NewToolResultText(formatChains(chains)), nil
}

// toolError renders err for the LLM. A payment requirement is spelled out
// so the agent can decide whether to pay.
func toolError(prefix string, err error) *mcp.CallToolResult {
	var pr *PaymentRequiredError
	if errors.As(err, &pr) {
		r := pr.Requirement
		return mcp.NewToolResultError(fmt.Sprintf(
			"%s: this TokenSafe instance requires payment.\n"+
				"Price: %s %s\n"+
				"Pay to: %s (token contract %s, chain %d)\n"+
				"Nonce: %s (valid %ds)\n"+
				"Send the transfer, then retry with an X-Payment-Proof header.",
			prefix, r.Price, r.Currency, r.Recipient, r.Contract, r.ChainID, r.Nonce, r.ValidFor))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

// --- Formatting helpers ---

func formatReport(r *analysis.Report) string {
	var sb strings.Builder

	name := tokenLabel(r.Token)
	fmt.Fprintf(&sb, "Token: %s on %s (chain %d)\n", name, r.ChainName, r.ChainID)
	fmt.Fprintf(&sb, "Address: %s\n", r.TokenAddress)
	fmt.Fprintf(&sb, "Safety score: %d/100 (%s)\n", r.SafetyScore, r.RiskLevel)
	if r.IsHoneypot {
		sb.WriteString("Honeypot: YES, do not buy\n")
	} else {
		sb.WriteString("Honeypot: not detected\n")
	}
	fmt.Fprintf(&sb, "Confidence: %.0f%%\n", r.Confidence*100)
	if r.Token.TotalSupplyFormatted != "" {
		fmt.Fprintf(&sb, "Total supply: %s\n", r.Token.TotalSupplyFormatted)
	}

	rep := r.Sources.Reputation
	if rep.BuyTax != nil || rep.SellTax != nil {
		fmt.Fprintf(&sb, "Taxes: buy %s, sell %s\n", percent(rep.BuyTax), percent(rep.SellTax))
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&sb, "  - %s\n", w)
		}
	}
	if len(r.Recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, rec := range r.Recommendations {
			fmt.Fprintf(&sb, "  - %s\n", rec)
		}
	}

	sb.WriteString("\nSources:\n")
	sb.WriteString(formatOutcome("reputation", r.Sources.Reputation.Outcome))
	sb.WriteString(formatOutcome("chain", r.Sources.Chain.Outcome))

	return sb.String()
}

func formatOutcome(name string, o risk.Outcome) string {
	if o.OK() {
		return fmt.Sprintf("  %s: ok (risk %d)\n", name, o.RiskScore)
	}
	if o.Error != "" {
		return fmt.Sprintf("  %s: unavailable (%s)\n", name, o.Error)
	}
	return fmt.Sprintf("  %s: unavailable\n", name)
}

func formatBatch(items []analysis.BatchItem) string {
	if len(items) == 0 {
		return "No results."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyzed %d token(s):\n\n", len(items))
	for i, it := range items {
		if it.Report == nil {
			fmt.Fprintf(&sb, "%d. %s: error: %s\n", i+1, it.TokenAddress, it.Error)
			continue
		}
		r := it.Report
		flag := ""
		if r.IsHoneypot {
			flag = " HONEYPOT"
		}
		fmt.Fprintf(&sb, "%d. %s %s: %d/100 %s%s\n",
			i+1, tokenLabel(r.Token), r.TokenAddress, r.SafetyScore, r.RiskLevel, flag)
	}
	return sb.String()
}

func formatChains(chains []onchain.ChainInfo) string {
	if len(chains) == 0 {
		return "No chains configured."
	}
	var sb strings.Builder
	sb.WriteString("Supported chains:\n")
	for _, c := range chains {
		fmt.Fprintf(&sb, "  %d: %s\n", c.ChainID, c.Name)
	}
	return sb.String()
}

func tokenLabel(t analysis.TokenInfo) string {
	switch {
	case t.Symbol != "" && t.Name != "":
		return fmt.Sprintf("%s (%s)", t.Symbol, t.Name)
	case t.Symbol != "":
		return t.Symbol
	case t.Name != "":
		return t.Name
	default:
		return "unknown token"
	}
}

func percent(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.1f%%", *v)
}

// stringList accepts a JSON array of strings or a single comma-separated
// string.
func stringList(v any) []string {
	var out []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range t {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}
