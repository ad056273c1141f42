package honeypot

import (
	"math"
	"strconv"
	"strings"

	"github.com/mbd888/tokensafe/internal/risk"
)

// The upstream payload is decoded into a generic tree and every field is read
// through these helpers. A missing hop, a wrong type, or an unparseable value
// yields "absent" instead of an error.

func lookup(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, exists := obj[p]
		if !exists || v == nil {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func floatAt(m map[string]any, path ...string) *float64 {
	v, ok := lookup(m, path...)
	if !ok {
		return nil
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func intAt(m map[string]any, path ...string) *int64 {
	f := floatAt(m, path...)
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if f == nil || *f >= math.MaxInt64 || *f < math.MinInt64 {
		return nil
	}
	n := int64(*f)
	return &n
}

func boolAt(m map[string]any, path ...string) risk.Tristate {
	v, ok := lookup(m, path...)
	if !ok {
		return risk.Unknown
	}
	switch x := v.(type) {
	case bool:
		return risk.Bool(x)
	case float64:
		return risk.Bool(x != 0)
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return risk.Unknown
		}
		return risk.Bool(b)
	default:
		return risk.Unknown
	}
}

func stringAt(m map[string]any, path ...string) string {
	v, ok := lookup(m, path...)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
