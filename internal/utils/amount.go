package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var amountRe = regexp.MustCompile(`(?i)^\$?\s*(\d+(?:,\d{3})*(?:\.\d+)?|\.\d+)\s*(k|thousand|m|mm|mil|million|b|billion)?$`)

// ParseAmount parses human price notation: "500000", "$500,000", "500k",
// "1.2M", "2 million".
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	m := amountRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k", "thousand":
		value *= 1e3
	case "m", "mm", "mil", "million":
		value *= 1e6
	case "b", "billion":
		value *= 1e9
	}
	return value, true
}

// FlexNumber decodes JSON numbers as well as amount strings, and treats
// null or "" as absent.
type FlexNumber struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *FlexNumber) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*n = FlexNumber{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("non-finite number %s", raw)
		}
		*n = FlexNumber{Value: f, Valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected number or amount string, got %s", raw)
	}
	v, ok := ParseAmount(s)
	if !ok {
		// an unparseable amount is treated as no constraint
		*n = FlexNumber{}
		return nil
	}
	*n = FlexNumber{Value: v, Valid: true}
	return nil
}

// RoundInt64 rounds v to the nearest integer. It reports false when the
// result does not fit in an int64.
func RoundInt64(v float64) (int64, bool) {
	r := math.Round(v)
	if math.IsNaN(r) || r >= math.MaxInt64 || r < math.MinInt64 {
		return 0, false
	}
	return int64(r), true
}
