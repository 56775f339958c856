package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceBooleans(t *testing.T) {
	assert.Equal(t, "true", Coerce("flood_insurance_required", "Yes"))
	assert.Equal(t, "true", Coerce("flood_insurance_required", "Required"))
	assert.Equal(t, "false", Coerce("flood_insurance_required", "Not Required"))
	assert.Equal(t, "true", Coerce("rate_lock", "true"))
	assert.Equal(t, "false", Coerce("is_primary_residence", "No"))

	// Non-boolean keys pass boolean-looking values through untouched.
	assert.Equal(t, "Yes", Coerce("borrower_name", "Yes"))
}

func TestCoerceMoney(t *testing.T) {
	assert.Equal(t, "250000.00", Coerce("loan_amount", "$250,000.00"))
	assert.Equal(t, "1684.30", Coerce("monthly_payment", "1684.3"))
	assert.Equal(t, "485000.00", Coerce("appraised_value", "485000"))

	// Extra decimal points collapse into the first one.
	assert.Equal(t, "1234.56", Coerce("loan_amount", "1.234.56"))
}

func TestCoercePassthrough(t *testing.T) {
	assert.Equal(t, "7.125", Coerce("interest_rate", "7.125"))
	assert.Equal(t, "Jane Q. Homeowner", Coerce("borrower_name", "Jane Q. Homeowner"))
	assert.Equal(t, "2025-09-01", Coerce("origination_date", "2025-09-01"))
}
