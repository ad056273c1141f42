package risk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countContaining(warnings []string, sub string) int {
	n := 0
	for _, w := range warnings {
		if strings.Contains(strings.ToLower(w), strings.ToLower(sub)) {
			n++
		}
	}
	return n
}

func TestWarnings_SellTaxTiers(t *testing.T) {
	tests := []struct {
		tax  float64
		want string
	}{
		{55, CriticalMarker + ": Sell tax is extremely high (55.0%) - selling is effectively blocked"},
		{50, "Very high sell tax (50.0%)"},
		{25, "Very high sell tax (25.0%)"},
		{15, "High sell tax (15.0%)"},
		{7, "Moderate sell tax (7.0%)"},
		{5, ""},
		{0, ""},
	}
	for _, tt := range tests {
		rep := okReputation(10)
		rep.SellTax = ptr(tt.tax)
		got := Warnings(rep, okChain(0))

		if tt.want == "" {
			assert.Empty(t, got, "tax %.1f", tt.tax)
			continue
		}
		require.Len(t, got, 1, "tax %.1f", tt.tax)
		assert.Equal(t, tt.want, got[0])
	}
}

func TestWarnings_SellTaxFamilyIsExclusive(t *testing.T) {
	rep := okReputation(10)
	rep.SellTax = ptr(55.0)
	got := Warnings(rep, okChain(0))

	assert.Equal(t, 1, countContaining(got, "sell tax"))
	assert.Equal(t, 0, countContaining(got, "moderate"))
	assert.Contains(t, got[0], CriticalMarker)
}

func TestWarnings_BuyTaxHasNoCriticalTier(t *testing.T) {
	tests := []struct {
		tax  float64
		want string
	}{
		{60, "Very high buy tax (60.0%)"},
		{21, "Very high buy tax (21.0%)"},
		{11, "High buy tax (11.0%)"},
		{6, "Moderate buy tax (6.0%)"},
		{5, ""},
	}
	for _, tt := range tests {
		rep := okReputation(10)
		rep.BuyTax = ptr(tt.tax)
		got := Warnings(rep, okChain(0))

		if tt.want == "" {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, []string{tt.want}, got)
	}
}

func TestWarnings_HolderConcentrationTiers(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{95, "Extreme holder concentration: top 10 holders own 95.0% of supply"},
		{80, "Very high holder concentration: top 10 holders own 80.0% of supply"},
		{60, "High holder concentration: top 10 holders own 60.0% of supply"},
		{50, ""},
	}
	for _, tt := range tests {
		rep := okReputation(10)
		rep.Top10Percent = ptr(tt.pct)
		got := Warnings(rep, okChain(0))

		if tt.want == "" {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, []string{tt.want}, got)
	}
}

func TestWarnings_Verification(t *testing.T) {
	rep := okReputation(10)

	rep.Verified = Unknown
	assert.Empty(t, Warnings(rep, okChain(0)), "absence of data does not warn")

	rep.Verified = True
	assert.Empty(t, Warnings(rep, okChain(0)))

	rep.Verified = False
	assert.Equal(t, []string{"Contract source code is not verified"}, Warnings(rep, okChain(0)))
}

func TestWarnings_Proxy(t *testing.T) {
	rep := okReputation(10)
	rep.Proxy = True
	got := Warnings(rep, okChain(0))
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "proxy")
}

func TestWarnings_HoneypotWithoutReason(t *testing.T) {
	rep := okReputation(100)
	rep.IsHoneypot = True
	rep.HoneypotReason = "   "
	got := Warnings(rep, okChain(0))
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], CriticalMarker))
}

func TestWarnings_ChainRules(t *testing.T) {
	t.Run("not a contract", func(t *testing.T) {
		chain := ChainRecord{Outcome: Outcome{Source: SourceChain, Status: StatusOK, RiskScore: 100}}
		assert.Equal(t, []string{CriticalMarker + ": Address is not a smart contract"}, Warnings(okReputation(0), chain))
	})

	t.Run("non compliant", func(t *testing.T) {
		chain := okChain(40)
		chain.IsERC20 = false
		assert.Equal(t, []string{"Contract does not correctly implement the ERC-20 interface"}, Warnings(okReputation(0), chain))
	})

	t.Run("small bytecode", func(t *testing.T) {
		chain := okChain(20)
		chain.CodeSize = 45
		assert.Equal(t, []string{"Contract bytecode is suspiciously small (45 bytes)"}, Warnings(okReputation(0), chain))
	})

	t.Run("large bytecode", func(t *testing.T) {
		chain := okChain(10)
		chain.CodeSize = 60_000
		got := Warnings(okReputation(0), chain)
		require.Len(t, got, 1)
		assert.Contains(t, got[0], "unusually large (60000 bytes)")
		assert.Contains(t, got[0], "obfuscation")
	})

	t.Run("boundaries are quiet", func(t *testing.T) {
		chain := okChain(0)
		chain.CodeSize = 100
		assert.Empty(t, Warnings(okReputation(0), chain))
		chain.CodeSize = 50_000
		assert.Empty(t, Warnings(okReputation(0), chain))
	})
}

func TestWarnings_FailureRecordsAreSilent(t *testing.T) {
	rep := ReputationFailure("timeout")
	rep.SellTax = ptr(80.0)

	chain := ChainFailure("rpc down")
	chain.CodeSize = 10

	assert.Empty(t, Warnings(rep, chain))
}

func TestWarnings_Order(t *testing.T) {
	rep := okReputation(90)
	rep.IsHoneypot = True
	rep.HoneypotReason = "transfer blocked"
	rep.SellTax = ptr(99.0)
	rep.BuyTax = ptr(12.0)
	rep.Top10Percent = ptr(92.0)
	rep.Verified = False
	rep.Proxy = True

	chain := okChain(80)
	chain.IsERC20 = false
	chain.CodeSize = 60

	got := Warnings(rep, chain)
	require.Len(t, got, 9)
	assert.Contains(t, got[0], "confirmed honeypot")
	assert.Equal(t, "Honeypot reason: transfer blocked", got[1])
	assert.Contains(t, got[2], "Sell tax")
	assert.Contains(t, got[3], "buy tax")
	assert.Contains(t, got[4], "holder concentration")
	assert.Contains(t, got[5], "not verified")
	assert.Contains(t, got[6], "proxy")
	assert.Contains(t, got[7], "ERC-20")
	assert.Contains(t, got[8], "suspiciously small")
}

func TestRecommendations_Brackets(t *testing.T) {
	tests := []struct {
		score int
		base  []string
	}{
		{100, safeRecommendations},
		{80, safeRecommendations},
		{79, lowRiskRecommendations},
		{60, lowRiskRecommendations},
		{59, mediumRiskRecommendations},
		{40, mediumRiskRecommendations},
		{39, highRiskRecommendations},
		{20, highRiskRecommendations},
		{19, criticalRecommendations},
		{0, criticalRecommendations},
	}
	for _, tt := range tests {
		got := Recommendations(false, tt.score, 0)
		assert.Equal(t, tt.base, got, "score %d", tt.score)
		assert.GreaterOrEqual(t, len(got), 2)
		assert.LessOrEqual(t, len(got), 5)
	}
}

func TestRecommendations_WarningCountLineInEveryBracket(t *testing.T) {
	for _, score := range []int{95, 70, 50, 30, 5} {
		got := Recommendations(false, score, 3)
		base := Recommendations(false, score, 0)

		require.Len(t, got, len(base)+1, "score %d", score)
		last := got[len(got)-1]
		assert.Contains(t, last, "3 warning(s)", "score %d", score)
	}
}

func TestRecommendations_HoneypotShortCircuits(t *testing.T) {
	for _, score := range []int{0, 40, 95, 100} {
		got := Recommendations(true, score, 7)
		assert.Equal(t, honeypotRecommendations, got)
	}
}

func TestRecommendations_ReturnsCopy(t *testing.T) {
	got := Recommendations(false, 90, 0)
	got[0] = "mutated"
	assert.NotEqual(t, "mutated", safeRecommendations[0])
}
