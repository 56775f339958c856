// Package intake runs the document ingestion pipeline: classification,
// parsing, directive overlay, lineage, authority resolution, datapoint
// persistence, and validation.
package intake

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeKey converts any field name to lowercase_snake. CamelCase is
// split at case boundaries first so "BaseLoanAmount" becomes
// "base_loan_amount".
func NormalizeKey(raw string) string {
	var b strings.Builder
	for i, r := range raw {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(raw[i-1])
			if prev >= 'a' && prev <= 'z' || prev >= '0' && prev <= '9' {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	s := strings.ToLower(b.String())
	s = nonAlnum.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// canonicalByHitKey maps deterministic extractor hit keys to the canonical
// vocabulary the authority matrix and validators work in.
var canonicalByHitKey = map[string]string{
	"NoteAmount":               "loan_amount",
	"NoteRate":                 "interest_rate",
	"OriginationDate":          "origination_date",
	"MaturityDate":             "maturity_date",
	"MonthlyPayment":           "monthly_payment",
	"TermMonths":               "term_months",
	"BorrowerName":             "borrower_name",
	"LoanAmount":               "loan_amount",
	"InterestRate":             "interest_rate",
	"MonthlyPrincipalInterest": "monthly_payment",
	"ClosingDate":              "closing_date",
	"CashToClose":              "cash_to_close",
	"EscrowRequired":           "escrow_required",
	"LoanTermYears":            "loan_term_years",
	"PolicyNumber":             "policy_number",
	"DwellingCoverage":         "dwelling_coverage",
	"AnnualPremium":            "annual_premium",
	"EffectiveDate":            "effective_date",
	"ExpirationDate":           "expiration_date",
	"InsuredName":              "insured_name",
	"FloodZone":                "flood_zone",
	"FloodInsuranceRequired":   "flood_insurance_required",
	"CommunityNumber":          "community_number",
	"DeterminationDate":        "determination_date",
	"AppraisedValue":           "appraised_value",
	"AppraisalDate":            "appraisal_date",
	"PropertyAddress":          "property_address",
	"AppraiserLicense":         "appraiser_license",
	"GrantorName":              "grantor_name",
	"GranteeName":              "grantee_name",
	"RecordingDate":            "recording_date",
	"LegalDescription":         "legal_description",
	"EstimatedClosingCosts":    "estimated_closing_costs",
	"EstimatedCashToClose":     "estimated_cash_to_close",
	"RateLock":                 "rate_lock",
}

// CanonicalKey resolves an extractor hit key or arbitrary header to the
// canonical vocabulary, falling back to lowercase_snake normalization.
func CanonicalKey(raw string) string {
	if c, ok := canonicalByHitKey[raw]; ok {
		return c
	}
	return NormalizeKey(raw)
}

// mismoTags is the fixed list of canonical MISMO leaf tags the parser
// extracts, mapped into the canonical vocabulary.
var mismoTags = map[string]string{
	"BaseLoanAmount":            "loan_amount",
	"NoteRatePercent":           "interest_rate",
	"IndividualFullName":        "borrower_name",
	"AddressLineText":           "property_address",
	"LoanMaturityDate":          "maturity_date",
	"NoteDate":                  "origination_date",
	"ScheduledTotalPaymentAmount": "monthly_payment",
	"LoanTermMonthsCount":       "term_months",
	"PropertyValuationAmount":   "appraised_value",
	"EscrowItemEstimatedTotalAmount": "escrow_amount",
}
