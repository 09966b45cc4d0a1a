package catalog

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// leadingFloat mirrors a lenient float parse: the longest numeric prefix.
var leadingFloat = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)`)

// ParsePrice converts a price of unknown type into a float.  Numbers pass
// through; strings go through a best-effort currency heuristic; anything
// unparseable becomes 0.
//
// String handling: keep only digits, ',', '.', '-'; delete commas used as
// thousands separators (a comma followed by exactly three digits and then a
// non-digit or the end); if a decimal comma is still present, dots are
// grouping separators and are deleted; the decimal comma becomes a dot.
func ParsePrice(v any) float64 {
	switch p := v.(type) {
	case float64:
		return finiteOrZero(p)
	case float32:
		return finiteOrZero(float64(p))
	case int:
		return float64(p)
	case int64:
		return float64(p)
	case json.Number:
		f, err := p.Float64()
		if err != nil {
			return ParsePrice(string(p))
		}
		return finiteOrZero(f)
	case string:
		return parsePriceString(p)
	}
	return 0
}

func parsePriceString(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := dropGroupingCommas(b.String())
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	m := leadingFloat.FindString(cleaned)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return finiteOrZero(f)
}

// dropGroupingCommas removes every comma followed by exactly three digits
// and then a non-digit or the end of the string.
func dropGroupingCommas(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == ',' && isGroupingComma(s, i) {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isGroupingComma(s string, i int) bool {
	if i+3 >= len(s) {
		return false
	}
	for j := i + 1; j <= i+3; j++ {
		if s[j] < '0' || s[j] > '9' {
			return false
		}
	}
	return i+4 == len(s) || s[i+4] < '0' || s[i+4] > '9'
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
