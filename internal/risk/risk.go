// Package risk turns two independently fetched token risk records into a
// single safety verdict.
//
// Each data source produces a record on a 0-100 risk scale (higher is more
// dangerous). A record is always fully populated: a source that could not be
// queried returns a failure record with Status "error" and a neutral score of
// 50 instead of an error value. The Aggregator flips the scale to a 0-100
// safety score, weights the usable sources, and derives the categorical
// level, confidence, warnings, recommendations and metadata buckets.
package risk

import (
	"bytes"
	"encoding/json"
)

// Source identifies where a record came from.
type Source string

const (
	SourceReputation Source = "reputation"
	SourceChain      Source = "chain"
)

// Status discriminates a usable record from a failure record.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// NeutralScore is used whenever a source has no answer.
const NeutralScore = 50

// Tristate is a boolean that may also be unknown. It marshals to JSON as
// true, false or null.
type Tristate int8

const (
	Unknown Tristate = iota
	True
	False
)

// Bool converts a Go bool into a definite Tristate.
func Bool(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// IsTrue reports whether the value is definitely true.
func (t Tristate) IsTrue() bool { return t == True }

// IsFalse reports whether the value is definitely false.
func (t Tristate) IsFalse() bool { return t == False }

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*t = True
	case "false":
		*t = False
	default:
		*t = Unknown
	}
	return nil
}

// Outcome is the part shared by every record.
type Outcome struct {
	Source     Source   `json:"source"`
	Status     Status   `json:"status"`
	RiskScore  int      `json:"risk_score"`
	IsHoneypot Tristate `json:"is_honeypot"`
	Error      string   `json:"error,omitempty"`
}

// OK reports whether the record carries real data.
func (o Outcome) OK() bool { return o.Status == StatusOK }

// ReputationRecord is the normalized answer of the honeypot-detection API.
// Pointer fields are nil when the upstream payload did not carry a usable
// value.
type ReputationRecord struct {
	Outcome

	RiskLabel      string `json:"risk_label"`
	HoneypotReason string `json:"honeypot_reason"`

	// Taxes are percentages in [0,100].
	BuyTax      *float64 `json:"buy_tax"`
	SellTax     *float64 `json:"sell_tax"`
	TransferTax *float64 `json:"transfer_tax"`
	BuyGas      *float64 `json:"buy_gas"`
	SellGas     *float64 `json:"sell_gas"`

	HolderCount  *int64   `json:"holder_count"`
	Top10Percent *float64 `json:"top10_percent"`

	Verified Tristate `json:"verified"`
	Proxy    Tristate `json:"proxy"`

	LiquidityUSD    *float64 `json:"liquidity_usd"`
	LiquidityLocked Tristate `json:"liquidity_locked"`

	TokenName   string `json:"token_name"`
	TokenSymbol string `json:"token_symbol"`
	CreatedAt   string `json:"created_at"`
}

// ReputationFailure builds the failure record for the reputation source.
func ReputationFailure(msg string) ReputationRecord {
	return ReputationRecord{Outcome: Outcome{
		Source:     SourceReputation,
		Status:     StatusError,
		RiskScore:  NeutralScore,
		IsHoneypot: Unknown,
		Error:      msg,
	}}
}

// ChainChecks are the interface probes evaluated against the contract.
type ChainChecks struct {
	HasName            bool `json:"has_name"`
	HasSymbol          bool `json:"has_symbol"`
	ValidDecimals      bool `json:"valid_decimals"`
	HasSupply          bool `json:"has_supply"`
	BalanceCallOK      bool `json:"balance_call_ok"`
	ReasonableCodeSize bool `json:"reasonable_code_size"`
}

// Failed returns how many checks did not hold.
func (c ChainChecks) Failed() int {
	n := 0
	for _, ok := range []bool{c.HasName, c.HasSymbol, c.ValidDecimals, c.HasSupply, c.BalanceCallOK, c.ReasonableCodeSize} {
		if !ok {
			n++
		}
	}
	return n
}

// ChainRecord is the normalized result of reading the token contract over RPC.
// The chain source never decides IsHoneypot.
type ChainRecord struct {
	Outcome

	IsContract bool        `json:"is_contract"`
	IsERC20    bool        `json:"is_erc20"`
	CodeSize   int         `json:"code_size"`
	Checks     ChainChecks `json:"checks"`

	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    *int   `json:"decimals"`
	TotalSupply string `json:"total_supply"`

	// ProbeErrors maps a failed probe ("name", "balanceOf", ...) to its error.
	ProbeErrors map[string]string `json:"probe_errors"`
}

// ChainFailure builds the failure record for the chain source.
func ChainFailure(msg string) ChainRecord {
	return ChainRecord{
		Outcome: Outcome{
			Source:     SourceChain,
			Status:     StatusError,
			RiskScore:  NeutralScore,
			IsHoneypot: Unknown,
			Error:      msg,
		},
		ProbeErrors: map[string]string{},
	}
}

// Level is the categorical reading of a safety score.
type Level string

const (
	LevelSafe     Level = "SAFE"
	LevelLow      Level = "LOW_RISK"
	LevelMedium   Level = "MEDIUM_RISK"
	LevelHigh     Level = "HIGH_RISK"
	LevelCritical Level = "CRITICAL"
)

// Score cutoffs shared by levels and recommendation brackets.
const (
	CutoffSafe   = 80
	CutoffLow    = 60
	CutoffMedium = 40
	CutoffHigh   = 20
)

// LevelFor maps a safety score to its level.
func LevelFor(score int) Level {
	switch {
	case score >= CutoffSafe:
		return LevelSafe
	case score >= CutoffLow:
		return LevelLow
	case score >= CutoffMedium:
		return LevelMedium
	case score >= CutoffHigh:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Bucket is a coarse risk category used in Metadata.
type Bucket string

const (
	BucketUnknown  Bucket = "unknown"
	BucketNone     Bucket = "none"
	BucketLow      Bucket = "low"
	BucketMedium   Bucket = "medium"
	BucketHigh     Bucket = "high"
	BucketCritical Bucket = "critical"
)

// Metadata carries the derived risk buckets.
type Metadata struct {
	TaxRisk            Bucket `json:"tax_risk"`
	CentralizationRisk Bucket `json:"centralization_risk"`
	TechnicalRisk      Bucket `json:"technical_risk"`
	RedFlags           int    `json:"red_flags"`
	PassedBasicChecks  bool   `json:"passed_basic_checks"`
}

// Verdict is the aggregated result for one token.
type Verdict struct {
	SafetyScore     int      `json:"safety_score"`
	RiskLevel       Level    `json:"risk_level"`
	IsHoneypot      bool     `json:"is_honeypot"`
	Confidence      float64  `json:"confidence"`
	Warnings        []string `json:"warnings"`
	Recommendations []string `json:"recommendations"`
	Metadata        Metadata `json:"metadata"`
}

// compile-time check that Tristate round-trips through encoding/json.
var (
	_ json.Marshaler   = Tristate(0)
	_ json.Unmarshaler = (*Tristate)(nil)
)
