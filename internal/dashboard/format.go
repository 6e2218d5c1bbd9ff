// Package dashboard formats event values for display and summarises a
// ticker's previous earnings quarters.
package dashboard

import (
	"fmt"
	"strings"
)

// Dash is shown in place of a missing value.
const Dash = "—"

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatMarketCap formats a market cap in dollars as $X.XXT or $X.XXB.
func FormatMarketCap(v *float64) string {
	if v == nil || *v == 0 {
		return Dash
	}
	b := *v / 1e9
	if b >= 1000 {
		return fmt.Sprintf("$%.2fT", b/1000)
	}
	return fmt.Sprintf("$%.2fB", b)
}

// FormatRevenue formats revenue in dollars as $X.XXB, or $X.XXM below one
// billion.
func FormatRevenue(v *float64) string {
	if v == nil || *v == 0 {
		return Dash
	}
	if *v >= 1e9 {
		return fmt.Sprintf("$%.2fB", *v/1e9)
	}
	return fmt.Sprintf("$%.2fM", *v/1e6)
}

// FormatEPS formats earnings per share with two decimals. Zero is a value,
// not a missing one.
func FormatEPS(v *float64) string {
	if v == nil {
		return Dash
	}
	return fmt.Sprintf("%.2f", *v)
}

// FormatSurprise formats a percentage with an explicit sign, e.g. "+4.25%".
func FormatSurprise(pct float64) string {
	if pct > 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatIndicator formats an economic indicator value with its unit suffix,
// or N/A when missing.
func FormatIndicator(v *float64, unit string) string {
	if v == nil {
		return "N/A"
	}
	s := fmt.Sprintf("%g", *v)
	switch unit {
	case "%", "M", "B":
		return s + unit
	}
	return s
}
