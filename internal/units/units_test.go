package units

import (
	"math/big"
	"testing"
)

func TestParseUSDC_ValidAmounts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"one dollar", "1.00", 1_000_000},
		{"fifty cents", "0.50", 500_000},
		{"hundred", "100", 100_000_000},
		{"smallest unit", "0.000001", 1},
		{"short frac", "1.5", 1_500_000},
		{"six decimals", "1.123456", 1_123_456},
		{"truncates beyond precision", "1.1234567890", 1_123_456},
		{"leading zeros in whole", "007.50", 7_500_000},
		{"no whole part", ".25", 250_000},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseUSDC(tt.input)
			if !ok {
				t.Fatalf("ParseUSDC(%q) returned ok=false", tt.input)
			}
			if got.Int64() != tt.expected {
				t.Errorf("ParseUSDC(%q) = %d, want %d", tt.input, got.Int64(), tt.expected)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"-1", "+1", "1.2.3", "abc", "1.x", "1e6", "0x10"} {
		if got, ok := ParseUSDC(input); ok {
			t.Errorf("ParseUSDC(%q) = %v, want ok=false", input, got)
		}
	}
	if _, ok := Parse("1", -1); ok {
		t.Error("negative decimals should be rejected")
	}
}

func TestParse_EighteenDecimals(t *testing.T) {
	got, ok := Parse("1.5", 18)
	if !ok {
		t.Fatal("Parse returned ok=false")
	}
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Errorf("Parse(1.5, 18) = %s, want %s", got, want)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		amount   int64
		decimals int
		want     string
	}{
		{1_500_000, 6, "1.500000"},
		{1, 6, "0.000001"},
		{0, 6, "0.000000"},
		{-2_000_000, 6, "-2.000000"},
		{42, 0, "42"},
		{12345, 2, "123.45"},
	}
	for _, tt := range tests {
		if got := Format(big.NewInt(tt.amount), tt.decimals); got != tt.want {
			t.Errorf("Format(%d, %d) = %q, want %q", tt.amount, tt.decimals, got, tt.want)
		}
	}
	if got := FormatUSDC(nil); got != "0.000000" {
		t.Errorf("FormatUSDC(nil) = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"0.000001", "1.000000", "999999.999999"} {
		n, ok := ParseUSDC(s)
		if !ok {
			t.Fatalf("ParseUSDC(%q) failed", s)
		}
		if got := FormatUSDC(n); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}

func TestTrimAndHuman(t *testing.T) {
	if got := Trim("1.500000"); got != "1.5" {
		t.Errorf("Trim = %q", got)
	}
	if got := Trim("2.000"); got != "2" {
		t.Errorf("Trim = %q", got)
	}
	if got := Trim("100"); got != "100" {
		t.Errorf("Trim = %q", got)
	}
	if got := Human("420690000000000000000000000000000", 18); got != "420690000000000" {
		t.Errorf("Human = %q", got)
	}
	if got := Human("", 18); got != "" {
		t.Errorf("Human(empty) = %q", got)
	}
}
