package honeypot

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/tokensafe/internal/risk"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func f(v float64) *float64 { return &v }

func TestScoreForLabel(t *testing.T) {
	tests := []struct {
		label     string
		wantScore int
		wantLabel string
	}{
		{"very_low", 5, "very_low"},
		{"low", 20, "low"},
		{"medium", 50, "medium"},
		{"high", 75, "high"},
		{"very_high", 90, "very_high"},
		{"honeypot", 100, "honeypot"},
		{"unknown", 50, "unknown"},
		{"VERY HIGH", 90, "very_high"},
		{"very-low", 5, "very_low"},
		{"  High ", 75, "high"},
		{"", 50, LabelUnknown},
		{"catastrophic", 50, LabelUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			score, label := ScoreForLabel(tt.label)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}

func TestNormalizeTax(t *testing.T) {
	assert.Nil(t, NormalizeTax(nil))

	// Fraction and percentage forms of the same tax agree.
	assert.InDelta(t, 7.0, *NormalizeTax(f(0.07)), 1e-9)
	assert.InDelta(t, 7.0, *NormalizeTax(f(7)), 1e-9)

	assert.InDelta(t, 0.0, *NormalizeTax(f(0)), 1e-9)
	assert.InDelta(t, 1.0, *NormalizeTax(f(1)), 1e-9)
	assert.InDelta(t, 99.0, *NormalizeTax(f(0.99)), 1e-9)
	assert.InDelta(t, 100.0, *NormalizeTax(f(100)), 1e-9)
	assert.InDelta(t, 12.5, *NormalizeTax(f(12.5)), 1e-9)

	assert.Nil(t, NormalizeTax(f(-0.5)))
	assert.Nil(t, NormalizeTax(f(-3)))
}

func TestNormalize_NegativeTaxIsMissing(t *testing.T) {
	rec := Normalize(decode(t, `{"summary": {"risk": "low"}, "simulationResult": {"buyTax": -0.5, "sellTax": 3}}`))
	assert.Nil(t, rec.BuyTax)
	require.NotNil(t, rec.SellTax)
	assert.InDelta(t, 3.0, *rec.SellTax, 1e-9)
}

const fullPayload = `{
  "token": {"name": "Pepe", "symbol": "PEPE", "createdAt": "2023-04-14T00:00:00Z"},
  "summary": {"risk": "low"},
  "honeypotResult": {"isHoneypot": false},
  "simulationResult": {"buyTax": 0.02, "sellTax": 2, "transferTax": 0, "buyGas": "145000", "sellGas": 160000},
  "holderAnalysis": {"holders": "120034", "top10Percent": 21.5},
  "contractCode": {"openSource": true, "isProxy": false},
  "pair": {"liquidity": {"usd": 2500000.5, "locked": true}}
}`

func TestNormalize_FullPayload(t *testing.T) {
	rec := Normalize(decode(t, fullPayload))

	assert.Equal(t, risk.SourceReputation, rec.Source)
	assert.True(t, rec.OK())
	assert.Empty(t, rec.Error)
	assert.Equal(t, 20, rec.RiskScore)
	assert.Equal(t, "low", rec.RiskLabel)
	assert.Equal(t, risk.False, rec.IsHoneypot)
	assert.Empty(t, rec.HoneypotReason)

	require.NotNil(t, rec.BuyTax)
	assert.InDelta(t, 2.0, *rec.BuyTax, 1e-9)
	require.NotNil(t, rec.SellTax)
	assert.InDelta(t, 2.0, *rec.SellTax, 1e-9)
	require.NotNil(t, rec.TransferTax)
	assert.InDelta(t, 0.0, *rec.TransferTax, 1e-9)
	require.NotNil(t, rec.BuyGas)
	assert.InDelta(t, 145000.0, *rec.BuyGas, 1e-9)
	require.NotNil(t, rec.SellGas)
	assert.InDelta(t, 160000.0, *rec.SellGas, 1e-9)

	require.NotNil(t, rec.HolderCount)
	assert.Equal(t, int64(120034), *rec.HolderCount)
	require.NotNil(t, rec.Top10Percent)
	assert.InDelta(t, 21.5, *rec.Top10Percent, 1e-9)

	assert.Equal(t, risk.True, rec.Verified)
	assert.Equal(t, risk.False, rec.Proxy)
	require.NotNil(t, rec.LiquidityUSD)
	assert.InDelta(t, 2500000.5, *rec.LiquidityUSD, 1e-9)
	assert.Equal(t, risk.True, rec.LiquidityLocked)

	assert.Equal(t, "Pepe", rec.TokenName)
	assert.Equal(t, "PEPE", rec.TokenSymbol)
	assert.Equal(t, "2023-04-14T00:00:00Z", rec.CreatedAt)
}

func TestNormalize_Honeypot(t *testing.T) {
	rec := Normalize(decode(t, `{
		"summary": {"risk": "honeypot"},
		"honeypotResult": {"isHoneypot": true, "honeypotReason": "  cannot sell "}
	}`))

	assert.Equal(t, 100, rec.RiskScore)
	assert.Equal(t, risk.True, rec.IsHoneypot)
	assert.Equal(t, "cannot sell", rec.HoneypotReason)
}

func TestNormalize_EmptyPayload(t *testing.T) {
	rec := Normalize(map[string]any{})

	assert.True(t, rec.OK())
	assert.Equal(t, risk.NeutralScore, rec.RiskScore)
	assert.Equal(t, LabelUnknown, rec.RiskLabel)
	assert.Equal(t, risk.Unknown, rec.IsHoneypot)
	assert.Nil(t, rec.BuyTax)
	assert.Nil(t, rec.SellTax)
	assert.Nil(t, rec.TransferTax)
	assert.Nil(t, rec.HolderCount)
	assert.Nil(t, rec.Top10Percent)
	assert.Nil(t, rec.LiquidityUSD)
	assert.Equal(t, risk.Unknown, rec.Verified)
	assert.Equal(t, risk.Unknown, rec.Proxy)
	assert.Equal(t, risk.Unknown, rec.LiquidityLocked)
}

func TestNormalize_ShapeDeviationsAreMissingData(t *testing.T) {
	rec := Normalize(decode(t, `{
		"summary": "low",
		"honeypotResult": {"isHoneypot": "maybe"},
		"simulationResult": {"buyTax": "n/a", "sellTax": {"value": 3}, "transferTax": [1]},
		"holderAnalysis": {"holders": null, "top10Percent": true},
		"contractCode": [],
		"pair": {"liquidity": "lots"}
	}`))

	assert.True(t, rec.OK())
	assert.Equal(t, risk.NeutralScore, rec.RiskScore)
	assert.Equal(t, risk.Unknown, rec.IsHoneypot)
	assert.Nil(t, rec.BuyTax)
	assert.Nil(t, rec.SellTax)
	assert.Nil(t, rec.TransferTax)
	assert.Nil(t, rec.HolderCount)
	assert.Nil(t, rec.Top10Percent)
	assert.Equal(t, risk.Unknown, rec.Verified)
	assert.Nil(t, rec.LiquidityUSD)
}

func TestNormalize_AlternateEncodings(t *testing.T) {
	rec := Normalize(decode(t, `{
		"honeypotResult": {"isHoneypot": "false"},
		"simulationResult": {"sellTax": " 0.15 "},
		"contractCode": {"openSource": 0, "isProxy": 1},
		"pair": {"liquidity": 15000}
	}`))

	assert.Equal(t, risk.False, rec.IsHoneypot)
	require.NotNil(t, rec.SellTax)
	assert.InDelta(t, 15.0, *rec.SellTax, 1e-9)
	assert.Equal(t, risk.False, rec.Verified)
	assert.Equal(t, risk.True, rec.Proxy)
	require.NotNil(t, rec.LiquidityUSD)
	assert.InDelta(t, 15000.0, *rec.LiquidityUSD, 1e-9)
}

func TestCoerce_Helpers(t *testing.T) {
	m := decode(t, `{"a": {"b": {"n": 3, "s": "x", "t": true, "z": null}}}`)

	v, ok := lookup(m, "a", "b", "n")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	_, ok = lookup(m, "a", "b", "z")
	assert.False(t, ok)
	_, ok = lookup(m, "a", "b", "n", "deeper")
	assert.False(t, ok)

	assert.Equal(t, "3", stringAt(m, "a", "b", "n"))
	assert.Equal(t, "true", stringAt(m, "a", "b", "t"))
	assert.Equal(t, "", stringAt(m, "a", "b"))
	assert.Nil(t, floatAt(m, "a", "b", "s"))
	assert.Nil(t, intAt(m, "missing"))

	big := decode(t, `{"max": 9223372036854775808, "min": -9223372036854775808, "ok": 120034}`)
	assert.Nil(t, intAt(big, "max"), "2^63 does not fit in int64")
	require.NotNil(t, intAt(big, "min"))
	assert.Equal(t, int64(math.MinInt64), *intAt(big, "min"))
	require.NotNil(t, intAt(big, "ok"))
	assert.Equal(t, int64(120034), *intAt(big, "ok"))
	assert.Equal(t, risk.True, boolAt(m, "a", "b", "n"))
}
