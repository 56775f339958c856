package extract

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanserve/backend/internal/core"
)

const noteText = `PROMISSORY NOTE

FOR VALUE RECEIVED, the undersigned promises to pay.

NOTE AMOUNT: $250,000.00
INTEREST RATE: 7.125% per annum
DATE OF NOTE: September 1, 2025
MATURITY DATE: 9/1/2055
MONTHLY PAYMENT: $1,684.30
TERM OF LOAN: 360 monthly payments
BORROWER(S): Jane Q. Homeowner
`

func hitByKey(hits []Hit, key string) *Hit {
	for i := range hits {
		if hits[i].Key == key {
			return &hits[i]
		}
	}
	return nil
}

func TestApplyNote(t *testing.T) {
	hits := Apply(noteText, core.DocNote)
	require.NotEmpty(t, hits)

	amount := hitByKey(hits, "NoteAmount")
	require.NotNil(t, amount)
	assert.Equal(t, 250000.0, amount.Value)
	assert.Contains(t, amount.EvidenceText, "NOTE AMOUNT")

	rate := hitByKey(hits, "NoteRate")
	require.NotNil(t, rate)
	assert.Equal(t, 7.125, rate.Value)

	orig := hitByKey(hits, "OriginationDate")
	require.NotNil(t, orig)
	assert.Equal(t, "2025-09-01", orig.Value)

	maturity := hitByKey(hits, "MaturityDate")
	require.NotNil(t, maturity)
	assert.Equal(t, "2055-09-01", maturity.Value)

	payment := hitByKey(hits, "MonthlyPayment")
	require.NotNil(t, payment)
	assert.Equal(t, 1684.30, payment.Value)

	term := hitByKey(hits, "TermMonths")
	require.NotNil(t, term)
	assert.Equal(t, 360, term.Value)
}

func TestApplyWindowBoundsValueSearch(t *testing.T) {
	// The value is far past the proximity window; the rule must not match it.
	text := "INTEREST RATE:" + strings.Repeat(" x", 400) + " 7.125%"

	hits := Apply(text, core.DocNote)
	assert.Nil(t, hitByKey(hits, "NoteRate"))
}

func TestApplyFirstHitWinsPerKey(t *testing.T) {
	text := "LOAN AMOUNT: $100,000.00\nLOAN AMOUNT: $999,999.00\n"
	hits := Apply(text, core.DocCD)
	amount := hitByKey(hits, "LoanAmount")
	require.NotNil(t, amount)
	assert.Equal(t, 100000.0, amount.Value)
}

func TestApplyUnknownDocType(t *testing.T) {
	assert.Nil(t, Apply(noteText, core.DocMISMO))
	assert.Nil(t, Apply("", core.DocNote))
}

func TestApplyFloodBooleans(t *testing.T) {
	text := "FLOOD ZONE: AE\nFLOOD INSURANCE REQUIRED? Yes\nCOMMUNITY NUMBER 480301\n"
	hits := Apply(text, core.DocFlood)

	zone := hitByKey(hits, "FloodZone")
	require.NotNil(t, zone)
	assert.Equal(t, "AE", zone.Value)

	req := hitByKey(hits, "FloodInsuranceRequired")
	require.NotNil(t, req)
	assert.Equal(t, true, req.Value)

	community := hitByKey(hits, "CommunityNumber")
	require.NotNil(t, community)
	assert.Equal(t, 480301, community.Value)
}

type mapLoader map[string]string

func (m mapLoader) LoadText(_ context.Context, tenantID, loanID, docID string) (string, error) {
	text, ok := m[docID]
	if !ok {
		return "", fmt.Errorf("object not found: %s", docID)
	}
	return text, nil
}

func TestExtractorFailsSafeOnMissingText(t *testing.T) {
	e := NewExtractor(mapLoader{})
	hits := e.Extract(context.Background(), "t1", "loan-1", "doc-1", core.DocNote)
	assert.Nil(t, hits)
}

func TestExtractorLoadsAndApplies(t *testing.T) {
	e := NewExtractor(mapLoader{"doc-1": noteText})
	hits := e.Extract(context.Background(), "t1", "loan-1", "doc-1", core.DocNote)
	require.NotEmpty(t, hits)
	assert.NotNil(t, hitByKey(hits, "NoteAmount"))
}
