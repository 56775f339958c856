package intake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"BaseLoanAmount":    "base_loan_amount",
		"loanAmount":        "loan_amount",
		"LOAN_AMOUNT":       "loan_amount",
		"Loan Amount ($)":   "loan_amount",
		"Note Rate %":       "note_rate",
		"borrower-name":     "borrower_name",
		"Address2":          "address2",
		"UPB2025":           "upb2025",
		"  padded  ":        "padded",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeKey(in), "input %q", in)
	}
}

func TestCanonicalKey(t *testing.T) {
	// Extractor hit keys map through the fixed vocabulary.
	assert.Equal(t, "loan_amount", CanonicalKey("NoteAmount"))
	assert.Equal(t, "interest_rate", CanonicalKey("NoteRate"))
	assert.Equal(t, "monthly_payment", CanonicalKey("MonthlyPrincipalInterest"))
	assert.Equal(t, "flood_insurance_required", CanonicalKey("FloodInsuranceRequired"))

	// Everything else falls back to snake normalization.
	assert.Equal(t, "custom_field", CanonicalKey("CustomField"))
	assert.Equal(t, "servicer_id", CanonicalKey("servicer id"))
}
