// Package units converts between decimal strings and the smallest-unit
// integers ERC-20 contracts store.
//
// A token with d decimals stores 1 whole token as 10^d units. USDC uses 6;
// most tokens use 18.
package units

import (
	"math/big"
	"strings"
)

// USDCDecimals is the decimal precision of USDC.
const USDCDecimals = 6

// MaxDecimals bounds the precision accepted by Parse and Format.
const MaxDecimals = 77

// Parse converts a decimal string (e.g. "1.50") to smallest units for a
// token with the given decimals. Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Negative amounts are rejected
//   - Multiple decimal points are rejected
//   - Fractional digits beyond decimals are truncated
func Parse(s string, decimals int) (*big.Int, bool) {
	if decimals < 0 || decimals > MaxDecimals {
		return nil, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), true
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, false
	}

	whole, frac, _ := strings.Cut(s, ".")
	if strings.Contains(frac, ".") {
		return nil, false
	}
	if whole == "" {
		whole = "0"
	}

	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return nil, false
		}
	}

	result, ok := new(big.Int).SetString(whole+frac, 10)
	return result, ok
}

// ParseUSDC is Parse with USDC precision.
func ParseUSDC(s string) (*big.Int, bool) {
	return Parse(s, USDCDecimals)
}

// Format converts smallest units to a decimal string with exactly decimals
// fractional digits (e.g. 1500000 with 6 decimals is "1.500000").
func Format(amount *big.Int, decimals int) string {
	if decimals < 0 || decimals > MaxDecimals {
		decimals = 0
	}
	if amount == nil {
		amount = new(big.Int)
	}
	neg := amount.Sign() < 0
	s := new(big.Int).Abs(amount).String()
	if decimals == 0 {
		if neg {
			return "-" + s
		}
		return s
	}

	for len(s) < decimals+1 {
		s = "0" + s
	}
	point := len(s) - decimals
	result := s[:point] + "." + s[point:]
	if neg {
		result = "-" + result
	}
	return result
}

// FormatUSDC is Format with USDC precision.
func FormatUSDC(amount *big.Int) string {
	return Format(amount, USDCDecimals)
}

// Trim strips trailing fractional zeros and a dangling point
// ("1.500000" becomes "1.5", "2.000" becomes "2").
func Trim(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Human formats a raw decimal-string amount for display, or returns "" when
// raw is not an integer.
func Human(raw string, decimals int) string {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return ""
	}
	return Trim(Format(n, decimals))
}
