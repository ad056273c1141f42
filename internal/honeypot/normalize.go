package honeypot

import (
	"math"
	"strings"

	"github.com/mbd888/tokensafe/internal/risk"
)

// LabelUnknown is reported when the upstream label is missing or unrecognized.
const LabelUnknown = "unknown"

// labelScores maps the upstream qualitative risk label to a risk score.
var labelScores = map[string]int{
	"very_low":  5,
	"low":       20,
	"medium":    50,
	"high":      75,
	"very_high": 90,
	"honeypot":  100,
	"unknown":   risk.NeutralScore,
}

// ScoreForLabel returns the risk score for a label and the canonical label
// that was matched. Unrecognized labels score as unknown.
func ScoreForLabel(label string) (int, string) {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.NewReplacer(" ", "_", "-", "_").Replace(l)
	if score, ok := labelScores[l]; ok {
		return score, l
	}
	return risk.NeutralScore, LabelUnknown
}

// NormalizeTax converts an upstream tax to a percentage. Values below 1 are
// fractions and are scaled by 100; anything else is already a percentage.
// A negative tax is not a tax and reads as missing.
func NormalizeTax(v *float64) *float64 {
	if v == nil || *v < 0 {
		return nil
	}
	pct := *v
	if pct < 1 {
		pct *= 100
	}
	pct = math.Round(pct*1e4) / 1e4
	return &pct
}

// Normalize maps a decoded upstream payload onto a reputation record. Fields
// that are absent or of the wrong shape stay nil or unknown.
func Normalize(payload map[string]any) risk.ReputationRecord {
	score, label := ScoreForLabel(stringAt(payload, "summary", "risk"))

	rec := risk.ReputationRecord{
		Outcome: risk.Outcome{
			Source:     risk.SourceReputation,
			Status:     risk.StatusOK,
			RiskScore:  score,
			IsHoneypot: boolAt(payload, "honeypotResult", "isHoneypot"),
		},
		RiskLabel:      label,
		HoneypotReason: stringAt(payload, "honeypotResult", "honeypotReason"),

		BuyTax:      NormalizeTax(floatAt(payload, "simulationResult", "buyTax")),
		SellTax:     NormalizeTax(floatAt(payload, "simulationResult", "sellTax")),
		TransferTax: NormalizeTax(floatAt(payload, "simulationResult", "transferTax")),
		BuyGas:      floatAt(payload, "simulationResult", "buyGas"),
		SellGas:     floatAt(payload, "simulationResult", "sellGas"),

		HolderCount:  intAt(payload, "holderAnalysis", "holders"),
		Top10Percent: floatAt(payload, "holderAnalysis", "top10Percent"),

		Verified: boolAt(payload, "contractCode", "openSource"),
		Proxy:    boolAt(payload, "contractCode", "isProxy"),

		LiquidityUSD:    floatAt(payload, "pair", "liquidity", "usd"),
		LiquidityLocked: boolAt(payload, "pair", "liquidity", "locked"),

		TokenName:   stringAt(payload, "token", "name"),
		TokenSymbol: stringAt(payload, "token", "symbol"),
		CreatedAt:   stringAt(payload, "token", "createdAt"),
	}

	// Some responses report pair.liquidity as a bare USD number.
	if rec.LiquidityUSD == nil {
		rec.LiquidityUSD = floatAt(payload, "pair", "liquidity")
	}

	return rec
}
