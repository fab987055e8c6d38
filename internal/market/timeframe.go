package market

import (
	"strconv"
	"strings"
	"time"
)

// ParseTimeframe accepts "15m", "1h", "1d", "1w" and the long forms
// "1Min", "5Min", "1Hour", "1Day", "1Week". Returns (0, false) on invalid input.
func ParseTimeframe(tf string) (time.Duration, bool) {
	tf = strings.ToLower(strings.TrimSpace(tf))
	if tf == "" {
		return 0, false
	}
	i := 0
	for i < len(tf) && tf[i] >= '0' && tf[i] <= '9' {
		i++
	}
	numStr, unit := tf[:i], strings.TrimSpace(tf[i:])
	if numStr == "" {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch unit {
	case "m", "min":
		return time.Duration(n) * time.Minute, true
	case "h", "hour":
		return time.Duration(n) * time.Hour, true
	case "d", "day":
		return time.Duration(n) * 24 * time.Hour, true
	case "w", "week":
		return time.Duration(n) * 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
