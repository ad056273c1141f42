package risk

import "math"

// Weights controls how much each source contributes to the safety score.
type Weights struct {
	Reputation float64 `json:"reputation"`
	Chain      float64 `json:"chain"`
}

// DefaultWeights favours the reputation source.
var DefaultWeights = Weights{Reputation: 0.6, Chain: 0.4}

// Normalize scales the pair so it sums to 1. A pair with a negative member
// or a non-positive sum falls back to DefaultWeights.
func (w Weights) Normalize() Weights {
	sum := w.Reputation + w.Chain
	if w.Reputation < 0 || w.Chain < 0 || sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return DefaultWeights
	}
	if sum == 1 {
		return w
	}
	return Weights{Reputation: w.Reputation / sum, Chain: w.Chain / sum}
}

// Confidence contributions.
const (
	confidenceBase          = 0.5
	confidenceBothSources   = 0.30
	confidenceOneSource     = 0.10
	confidenceVerified      = 0.10
	confidenceHolders       = 0.05
	confidenceLiquidity     = 0.05
	confidenceCompliant     = 0.05
	confidenceHasNameSymbol = 0.025

	holderCountThreshold  = 100
	liquidityUSDThreshold = 10_000
)

// Aggregator combines a reputation record and a chain record into a Verdict.
// It is pure and safe for concurrent use.
type Aggregator struct {
	weights Weights
}

// NewAggregator creates an aggregator with the given weights, normalized.
func NewAggregator(w Weights) *Aggregator {
	return &Aggregator{weights: w.Normalize()}
}

// Weights returns the normalized weights in use.
func (a *Aggregator) Weights() Weights {
	return a.weights
}

// Aggregate produces the verdict for one token.
func (a *Aggregator) Aggregate(rep ReputationRecord, chain ChainRecord) *Verdict {
	score := a.safetyScore(rep, chain)
	honeypot := rep.IsHoneypot.IsTrue()
	warnings := Warnings(rep, chain)

	return &Verdict{
		SafetyScore:     score,
		RiskLevel:       LevelFor(score),
		IsHoneypot:      honeypot,
		Confidence:      Confidence(rep, chain),
		Warnings:        warnings,
		Recommendations: Recommendations(honeypot, score, len(warnings)),
		Metadata:        DeriveMetadata(rep, chain, warnings),
	}
}

// safetyScore flips each usable risk score to a safety score and takes the
// weighted mean. With no usable source the answer is neutral.
func (a *Aggregator) safetyScore(rep ReputationRecord, chain ChainRecord) int {
	var sum, weight float64
	if rep.OK() {
		sum += float64(100-rep.RiskScore) * a.weights.Reputation
		weight += a.weights.Reputation
	}
	if chain.OK() {
		sum += float64(100-chain.RiskScore) * a.weights.Chain
		weight += a.weights.Chain
	}
	if weight == 0 {
		return NeutralScore
	}
	return clamp(int(math.Round(sum/weight)), 0, 100)
}

// Confidence is a saturating heuristic of how much corroborating data was
// available. It starts at 0.5 and is capped at 1.0.
//
// The chain compliance bonus and the has-name/has-symbol bonuses overlap:
// compliance already implies both. That overlap is kept on purpose.
func Confidence(rep ReputationRecord, chain ChainRecord) float64 {
	c := confidenceBase

	switch {
	case rep.OK() && chain.OK():
		c += confidenceBothSources
	case rep.OK() || chain.OK():
		c += confidenceOneSource
	}

	if rep.OK() {
		if rep.Verified.IsTrue() {
			c += confidenceVerified
		}
		if rep.HolderCount != nil && *rep.HolderCount > holderCountThreshold {
			c += confidenceHolders
		}
		if rep.LiquidityUSD != nil && *rep.LiquidityUSD > liquidityUSDThreshold {
			c += confidenceLiquidity
		}
	}

	if chain.OK() {
		if chain.IsERC20 {
			c += confidenceCompliant
		}
		if chain.Checks.HasName {
			c += confidenceHasNameSymbol
		}
		if chain.Checks.HasSymbol {
			c += confidenceHasNameSymbol
		}
	}

	if c > 1 {
		c = 1
	}
	return math.Round(c*1000) / 1000
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
