package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Normalization of raw OCR hits into typed values. These rules are part of
// the extraction contract: hits are auditable only because normalization is
// reproducible.

var (
	moneyStripRe  = regexp.MustCompile(`[^\d.]`)
	multiDotRe    = regexp.MustCompile(`\.{2,}`)
	firstIntRe    = regexp.MustCompile(`\d+`)
	isoDateRe     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	slashDateRe   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
	longDateRe    = regexp.MustCompile(`^([A-Za-z]+)\.?\s+(\d{1,2}),?\s+(\d{4})$`)
	dayMonDateRe  = regexp.MustCompile(`^(\d{1,2})[-\s]([A-Za-z]{3,})[-\s](\d{4})$`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

var monthNames = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "sept": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

// NormalizeMoney strips everything but digits and dots, collapses repeated
// dots, and parses the result as a float. "$250,000.00" -> 250000.
func NormalizeMoney(raw string) (float64, error) {
	cleaned := moneyStripRe.ReplaceAllString(raw, "")
	cleaned = multiDotRe.ReplaceAllString(cleaned, ".")
	if cleaned == "" || cleaned == "." {
		return 0, fmt.Errorf("no amount in %q", raw)
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return v, nil
}

// NormalizePercent parses "7.125%" -> 7.125.
func NormalizePercent(raw string) (float64, error) {
	cleaned := moneyStripRe.ReplaceAllString(raw, "")
	if cleaned == "" {
		return 0, fmt.Errorf("no percent in %q", raw)
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse percent %q: %w", raw, err)
	}
	return v, nil
}

// NormalizeInt returns the first run of digits.
func NormalizeInt(raw string) (int, error) {
	m := firstIntRe.FindString(raw)
	if m == "" {
		return 0, fmt.Errorf("no integer in %q", raw)
	}
	return strconv.Atoi(m)
}

// NormalizeBool maps yes/no/required/not required, case-insensitively.
// Unmatched input yields nil.
func NormalizeBool(raw string) any {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "true", "required":
		return true
	case "no", "n", "false", "not required":
		return false
	default:
		return nil
	}
}

// NormalizeDate canonicalizes the accepted formats to YYYY-MM-DD, or nil for
// junk. Two-digit years resolve to 20YY.
func NormalizeDate(raw string) any {
	s := whitespaceRe.ReplaceAllString(strings.TrimSpace(raw), " ")

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return canonicalDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}

	if m := slashDateRe.FindStringSubmatch(s); m != nil {
		year := atoi(m[3])
		if year < 100 {
			year += 2000
		}
		return canonicalDate(year, atoi(m[1]), atoi(m[2]))
	}

	if m := longDateRe.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[1])]
		if !ok {
			return nil
		}
		return canonicalDate(atoi(m[3]), month, atoi(m[2]))
	}

	if m := dayMonDateRe.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[strings.ToLower(m[2])]
		if !ok {
			return nil
		}
		return canonicalDate(atoi(m[3]), month, atoi(m[1]))
	}

	return nil
}

func canonicalDate(year, month, day int) any {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
