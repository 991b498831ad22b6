package main

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	placeholderEffect = "—"
	placeholderEmpty  = "–"
	percentUnit       = "%"
	netZeroEpsilon    = 1e-6
)

// Effect is one parsed "<label> <signed-number><optional %>" string.
type Effect struct {
	Label string
	Value float64
	Unit  string
}

// Key identifies an effect when no explicit stat type is known.
func (e Effect) Key() string {
	return e.Label + "|" + e.Unit
}

// Anchored at the end so labels may themselves contain numbers.
var effectPattern = regexp.MustCompile(`^(.*)\s([+-]?\d+(?:\.\d+)?)(%?)$`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// ParseEffect returns false for empty strings, placeholders and anything
// that does not end in a number.
func ParseEffect(s string) (Effect, bool) {
	if isPlaceholder(s) {
		return Effect{}, false
	}
	m := effectPattern.FindStringSubmatch(s)
	if m == nil {
		return Effect{}, false
	}
	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return Effect{}, false
	}
	return Effect{Label: strings.TrimSpace(m[1]), Value: v, Unit: m[3]}, true
}

func isPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == placeholderEffect || s == placeholderEmpty
}

func cleanStr(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// buildBuffText joins a bonus name and its value; "N/A" and blank names
// mean the record carries no bonus.
func buildBuffText(bonus, value string) string {
	b := cleanStr(bonus)
	v := cleanStr(value)
	if b == "" || strings.EqualFold(b, "N/A") {
		return ""
	}
	return strings.TrimSpace(b + " " + v)
}

// StatValue is a bare stat like "12.5%" or "300".
type StatValue struct {
	Raw   string
	Value float64
	Unit  string
	Valid bool
}

// parseStatValue accepts a leading number with an optional percent sign
// anywhere in the string; trailing junk after the number is ignored.
func parseStatValue(raw string) StatValue {
	out := StatValue{Raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return out
	}
	hasPercent := strings.Contains(s, percentUnit)
	s = strings.TrimSpace(strings.Replace(s, percentUnit, "", 1))
	num, ok := leadingFloat(s)
	if !ok {
		return out
	}
	out.Value = num
	out.Valid = true
	if hasPercent {
		out.Unit = percentUnit
	}
	return out
}

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

func leadingFloat(s string) (float64, bool) {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func isNetZero(v float64) bool {
	return math.Abs(v) <= netZeroEpsilon
}

func formatNumber(v float64, unit string) string {
	if strings.Contains(unit, percentUnit) {
		return fmt.Sprintf("%.2f%%", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// formatSigned renders a total the way the summary list shows it: an
// explicit plus for non-negative values and two decimals.
func formatSigned(v float64, unit string) string {
	sign := ""
	if v >= 0 {
		sign = "+"
	}
	return sign + formatNumber(v, unit)
}

// formatDelta only prefixes strictly positive values.
func formatDelta(v float64, unit string) string {
	sign := ""
	if v > 0 {
		sign = "+"
	}
	return sign + formatNumber(v, unit)
}

func signClass(v float64) string {
	switch {
	case v > 0:
		return "buff"
	case v < 0:
		return "debuff"
	default:
		return ""
	}
}
