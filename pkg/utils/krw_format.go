// Package utils provides common utility functions for chartscout.
package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatKRW formats a won amount with thousands grouping (₩1,234,500).
// Won has no minor unit in practice, so the value is rounded to an integer.
func FormatKRW(amount float64) string {
	negative := amount < 0
	n := int64(math.Round(math.Abs(amount)))

	if negative && n != 0 {
		return "-₩" + groupThousands(n)
	}
	return "₩" + groupThousands(n)
}

// FormatKRWCompact formats an amount using Korean units.
// e.g., 150000000 → "₩1.5억", 2300000000000 → "₩2.3조"
func FormatKRWCompact(amount float64) string {
	prefix := "₩"
	if amount < 0 {
		prefix = "-₩"
	}
	amount = math.Abs(amount)

	switch {
	case amount >= 1e12:
		return prefix + formatWithDecimals(amount/1e12) + "조"
	case amount >= 1e8:
		return prefix + formatWithDecimals(amount/1e8) + "억"
	case amount >= 1e4:
		return prefix + formatWithDecimals(amount/1e4) + "만"
	default:
		return prefix + groupThousands(int64(math.Round(amount)))
	}
}

// FormatPct formats a percentage value with sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatVolume formats share volume in human-readable form.
// e.g., 1500000 → "1.50M", 25000 → "25.00K"
func FormatVolume(volume int64) string {
	v := float64(volume)
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return strconv.FormatInt(volume, 10)
	}
}

// groupThousands formats a non-negative integer with comma groups of three.
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var b strings.Builder
	head := len(s) % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// formatWithDecimals formats a number with up to 2 decimal places,
// removing trailing zeros.
func formatWithDecimals(n float64) string {
	s := fmt.Sprintf("%.2f", n)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
