package export

import (
	"regexp"
	"strconv"
	"strings"
)

// moneyKeys are the canonical fields rendered as digits with exactly one
// decimal point.
var moneyKeys = map[string]bool{
	"loan_amount":             true,
	"monthly_payment":         true,
	"appraised_value":         true,
	"annual_premium":          true,
	"cash_to_close":           true,
	"estimated_closing_costs": true,
	"dwelling_coverage":       true,
}

var nonMoneyChars = regexp.MustCompile(`[^0-9.]`)

// Coerce normalizes a canonical value for delivery: booleans become
// "true"/"false", money becomes bare digits with one decimal point,
// everything else passes through.
func Coerce(key, value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "required":
		if isBoolKey(key) {
			return "true"
		}
	case "false", "no", "not required":
		if isBoolKey(key) {
			return "false"
		}
	}

	if moneyKeys[key] {
		cleaned := nonMoneyChars.ReplaceAllString(value, "")
		if i := strings.Index(cleaned, "."); i >= 0 {
			cleaned = cleaned[:i+1] + strings.ReplaceAll(cleaned[i+1:], ".", "")
		}
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
		return cleaned
	}
	return value
}

func isBoolKey(key string) bool {
	return strings.HasSuffix(key, "_required") || strings.HasPrefix(key, "is_") || key == "rate_lock" || key == "flood_insurance_required"
}
