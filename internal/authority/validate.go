package authority

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/loanserve/backend/internal/core"
)

// ResolvedField is a decided value handed to validation.
type ResolvedField struct {
	Key        string
	Value      any
	Confidence float64
}

// Thresholds are the confidence gates: below HITL is an error-severity
// defect, below Accept a warning.
type Thresholds struct {
	Accept float64
	HITL   float64
}

// rangeRule bounds a numeric field. Lo is exclusive when LoExclusive.
type rangeRule struct {
	Lo, Hi      float64
	LoExclusive bool
}

var numericRanges = map[string]rangeRule{
	"loan_amount":   {Lo: 0, Hi: 10_000_000, LoExclusive: true},
	"note_amount":   {Lo: 0, Hi: 10_000_000, LoExclusive: true},
	"interest_rate": {Lo: 0, Hi: 50},
	"note_rate":     {Lo: 0, Hi: 50},
}

var minLengths = map[string]int{
	"borrower_name":    2,
	"property_address": 5,
}

// Validate runs per-field and cross-field rules over the resolved fields.
// Failures become defect records; values are never rewritten.
func Validate(tenantID, loanID string, fields map[string]ResolvedField, th Thresholds) []core.Defect {
	var defects []core.Defect

	add := func(key string, severity core.DefectSeverity, rule, message string) {
		defects = append(defects, core.Defect{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			LoanID:    loanID,
			Key:       key,
			Severity:  severity,
			Rule:      rule,
			Message:   message,
			CreatedAt: time.Now().UTC(),
		})
	}

	for key, f := range fields {
		// Confidence gates
		if f.Confidence < th.HITL {
			add(key, core.DefectError, "confidence_below_hitl",
				fmt.Sprintf("confidence %.2f below HITL threshold %.2f", f.Confidence, th.HITL))
		} else if f.Confidence < th.Accept {
			add(key, core.DefectWarning, "confidence_below_accept",
				fmt.Sprintf("confidence %.2f below accept threshold %.2f", f.Confidence, th.Accept))
		}

		// Numeric ranges
		if r, ok := numericRanges[key]; ok {
			if v, ok := asFloat(f.Value); ok {
				outOfRange := v > r.Hi || v < r.Lo || (r.LoExclusive && v == r.Lo)
				if outOfRange {
					add(key, core.DefectError, "numeric_range",
						fmt.Sprintf("%s=%v outside allowed range (%v, %v]", key, v, r.Lo, r.Hi))
				}
			}
		}

		// Minimum string lengths
		if min, ok := minLengths[key]; ok {
			if s, ok := f.Value.(string); ok && len(s) < min {
				add(key, core.DefectError, "min_length",
					fmt.Sprintf("%s shorter than %d characters", key, min))
			}
		}
	}

	validateCrossField(fields, add)

	return defects
}

func validateCrossField(fields map[string]ResolvedField, add func(key string, severity core.DefectSeverity, rule, message string)) {
	// Maturity must follow origination.
	orig, okO := dateField(fields, "origination_date")
	mat, okM := dateField(fields, "maturity_date")
	if okO && okM && !mat.After(orig) {
		add("maturity_date", core.DefectError, "maturity_after_origination",
			fmt.Sprintf("maturity %s not after origination %s",
				mat.Format("2006-01-02"), orig.Format("2006-01-02")))
	}

	// Payment should match a standard amortization within 5%.
	amount, okA := floatField(fields, "loan_amount")
	rate, okR := floatField(fields, "interest_rate")
	term, okT := floatField(fields, "term_months")
	payment, okP := floatField(fields, "monthly_payment")
	if okA && okR && okT && okP && term > 0 {
		expected := amortizedPayment(amount, rate, int(term))
		if expected > 0 {
			diff := payment - expected
			if diff < 0 {
				diff = -diff
			}
			if diff/expected > 0.05 {
				add("monthly_payment", core.DefectError, "payment_amortization_mismatch",
					fmt.Sprintf("payment %.2f deviates more than 5%% from amortized %.2f", payment, expected))
			}
		}
	}
}

// amortizedPayment is the standard fixed-rate monthly payment formula.
// annualRatePct is e.g. 7.125 for 7.125%.
func amortizedPayment(principal, annualRatePct float64, termMonths int) float64 {
	if termMonths <= 0 {
		return 0
	}
	monthly := annualRatePct / 100 / 12
	if monthly == 0 {
		return principal / float64(termMonths)
	}
	pow := 1.0
	for i := 0; i < termMonths; i++ {
		pow *= 1 + monthly
	}
	return principal * monthly * pow / (pow - 1)
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func floatField(fields map[string]ResolvedField, key string) (float64, bool) {
	f, ok := fields[key]
	if !ok {
		return 0, false
	}
	return asFloat(f.Value)
}

func dateField(fields map[string]ResolvedField, key string) (time.Time, bool) {
	f, ok := fields[key]
	if !ok {
		return time.Time{}, false
	}
	s, ok := f.Value.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
