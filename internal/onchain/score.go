package onchain

import "github.com/mbd888/tokensafe/internal/risk"

// Technical risk penalties.
const (
	PenaltyNonCompliant    = 40
	PenaltyNoName          = 10
	PenaltyNoSymbol        = 10
	PenaltyInvalidDecimals = 15
	PenaltyNoSupply        = 15
	PenaltyBalanceCall     = 5
	PenaltySmallCode       = 20
	PenaltyLargeCode       = 10
)

// Compliant reports whether the checks amount to a usable ERC-20. A failed
// balanceOf call does not count against compliance.
func Compliant(c risk.ChainChecks) bool {
	return c.HasName && c.HasSymbol && c.ValidDecimals && c.HasSupply
}

// TechnicalScore sums the fixed penalties for a contract and clamps the
// result to [0,100].
func TechnicalScore(c risk.ChainChecks, compliant bool, codeSize int) int {
	score := 0
	if !compliant {
		score += PenaltyNonCompliant
	}
	if !c.HasName {
		score += PenaltyNoName
	}
	if !c.HasSymbol {
		score += PenaltyNoSymbol
	}
	if !c.ValidDecimals {
		score += PenaltyInvalidDecimals
	}
	if !c.HasSupply {
		score += PenaltyNoSupply
	}
	if !c.BalanceCallOK {
		score += PenaltyBalanceCall
	}
	if codeSize < risk.MinReasonableCodeSize {
		score += PenaltySmallCode
	}
	if codeSize > risk.MaxReasonableCodeSize {
		score += PenaltyLargeCode
	}
	if score > 100 {
		score = 100
	}
	return score
}
