package domain

import (
	"math"
	"strconv"
	"strings"
)

// ParseNumber parses spreadsheet numerics such as "1,200" or " 33.5 ".
// ok is false for blank or non-numeric text.
func ParseNumber(s string) (float64, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	cleaned = strings.TrimPrefix(cleaned, "$")
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
