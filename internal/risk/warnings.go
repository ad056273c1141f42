package risk

import (
	"fmt"
	"strings"
)

// CriticalMarker prefixes every critical-tier warning. Red flags and the
// basic-checks gate both look for it.
const CriticalMarker = "CRITICAL"

// Bytecode size bounds outside which a contract is suspicious.
const (
	MinReasonableCodeSize = 100
	MaxReasonableCodeSize = 50_000
)

// tier is one threshold rule in a family. Tiers are listed from the highest
// threshold down; the first one exceeded wins.
type tier struct {
	above  float64
	format string
}

var (
	sellTaxTiers = []tier{
		{50, CriticalMarker + ": Sell tax is extremely high (%.1f%%) - selling is effectively blocked"},
		{20, "Very high sell tax (%.1f%%)"},
		{10, "High sell tax (%.1f%%)"},
		{5, "Moderate sell tax (%.1f%%)"},
	}
	buyTaxTiers = []tier{
		{20, "Very high buy tax (%.1f%%)"},
		{10, "High buy tax (%.1f%%)"},
		{5, "Moderate buy tax (%.1f%%)"},
	}
	holderTiers = []tier{
		{90, "Extreme holder concentration: top 10 holders own %.1f%% of supply"},
		{75, "Very high holder concentration: top 10 holders own %.1f%% of supply"},
		{50, "High holder concentration: top 10 holders own %.1f%% of supply"},
	}
)

func highestTier(tiers []tier, v *float64) (string, bool) {
	if v == nil {
		return "", false
	}
	for _, t := range tiers {
		if *v > t.above {
			return fmt.Sprintf(t.format, *v), true
		}
	}
	return "", false
}

// Warnings lists the human-readable warnings triggered by the two records,
// reputation rules first. Failure records contribute nothing.
func Warnings(rep ReputationRecord, chain ChainRecord) []string {
	warnings := []string{}

	if rep.OK() {
		if rep.IsHoneypot.IsTrue() {
			warnings = append(warnings, CriticalMarker+": Token is a confirmed honeypot - you will not be able to sell")
			if reason := strings.TrimSpace(rep.HoneypotReason); reason != "" {
				warnings = append(warnings, "Honeypot reason: "+reason)
			}
		}
		if w, ok := highestTier(sellTaxTiers, rep.SellTax); ok {
			warnings = append(warnings, w)
		}
		if w, ok := highestTier(buyTaxTiers, rep.BuyTax); ok {
			warnings = append(warnings, w)
		}
		if w, ok := highestTier(holderTiers, rep.Top10Percent); ok {
			warnings = append(warnings, w)
		}
		if rep.Verified.IsFalse() {
			warnings = append(warnings, "Contract source code is not verified")
		}
		if rep.Proxy.IsTrue() {
			warnings = append(warnings, "Contract uses a proxy pattern - its logic can be changed by the owner")
		}
	}

	if chain.OK() {
		switch {
		case !chain.IsContract:
			warnings = append(warnings, CriticalMarker+": Address is not a smart contract")
		case !chain.IsERC20:
			warnings = append(warnings, "Contract does not correctly implement the ERC-20 interface")
		}
		if chain.IsContract && chain.CodeSize > 0 && chain.CodeSize < MinReasonableCodeSize {
			warnings = append(warnings, fmt.Sprintf("Contract bytecode is suspiciously small (%d bytes)", chain.CodeSize))
		}
		if chain.CodeSize > MaxReasonableCodeSize {
			warnings = append(warnings, fmt.Sprintf("Contract bytecode is unusually large (%d bytes) - possible obfuscation", chain.CodeSize))
		}
	}

	return warnings
}

var (
	honeypotRecommendations = []string{
		"Do not interact with this token",
		"Do not buy - report it as a scam to the community and the listing platform",
	}

	safeRecommendations = []string{
		"Token appears safe based on available data",
		"Always do your own research before investing",
		"Start with a small position and confirm you can sell",
	}
	lowRiskRecommendations = []string{
		"Token shows low risk, but exercise normal caution",
		"Check contract ownership and whether liquidity is locked",
		"Test with a small buy and sell before committing funds",
	}
	mediumRiskRecommendations = []string{
		"Medium risk detected - proceed with caution",
		"Only invest what you can afford to lose",
		"Research the team and community behind the token",
		"Watch liquidity and holder distribution closely",
	}
	highRiskRecommendations = []string{
		"High risk - investing is not recommended",
		"Several indicators point to a potential scam",
		"If you already hold this token, consider exiting",
	}
	criticalRecommendations = []string{
		"Critical risk - avoid this token",
		"Very likely a scam or malicious contract",
		"Do not buy or approve spending for this token",
	}
)

// Recommendations selects the advice list for a verdict. A honeypot always
// gets the abort list regardless of score.
func Recommendations(honeypot bool, score, warningCount int) []string {
	if honeypot {
		return append([]string(nil), honeypotRecommendations...)
	}

	var base []string
	var note string
	switch {
	case score >= CutoffSafe:
		base, note = safeRecommendations, "Note: %d warning(s) found - review them before trading"
	case score >= CutoffLow:
		base, note = lowRiskRecommendations, "Review the %d warning(s) found before investing"
	case score >= CutoffMedium:
		base, note = mediumRiskRecommendations, "Review all %d warning(s) found carefully"
	case score >= CutoffHigh:
		base, note = highRiskRecommendations, "%d warning(s) found - serious concerns detected"
	default:
		base, note = criticalRecommendations, "%d warning(s) found - treat this token as dangerous"
	}

	out := append([]string(nil), base...)
	if warningCount > 0 {
		out = append(out, fmt.Sprintf(note, warningCount))
	}
	return out
}
