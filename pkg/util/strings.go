package util

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseNumber converts the loosely typed numbers exchanges put in JSON
// arrays (quoted decimals, bare floats, json.Number) into float64.
func ParseNumber(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	case json.Number:
		return x.Float64()
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	default:
		return 0, fmt.Errorf("unsupported number type %T", v)
	}
}

// SplitList splits a comma separated list, trimming blanks and dropping empties.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
