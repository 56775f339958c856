package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashText(t *testing.T) {
	// sha256("") is the well-known empty-input digest.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashText(""))
	assert.Len(t, HashText("NOTE AMOUNT: $250,000.00"), 64)
	assert.Equal(t, HashText("abc"), HashText("abc"))
	assert.NotEqual(t, HashText("abc"), HashText("abd"))
}

func TestRecordValueWithEvidence(t *testing.T) {
	tr := NewTracker()

	rec := tr.RecordValue("t1", "loan-1", "loan_amount", "250000", "document_parse", 0.8,
		"doc-1", 1, "NOTE AMOUNT: $250,000.00", "regex-1.4.0", "")

	assert.NotEmpty(t, rec.LineageID)
	assert.Equal(t, "loan_amount", rec.FieldName)
	assert.Equal(t, "document_parse", rec.Source)
	require.NotNil(t, rec.DocRef)
	assert.Equal(t, "doc-1", rec.DocRef.DocID)
	assert.Equal(t, HashText("NOTE AMOUNT: $250,000.00"), rec.DocRef.TextHash)

	got, ok := tr.Get(rec.LineageID)
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestRecordValueWithoutEvidence(t *testing.T) {
	tr := NewTracker()
	rec := tr.RecordValue("t1", "loan-1", "borrower_name", "Jane", "manual_entry", 1.0,
		"", 0, "", "", "")
	assert.Nil(t, rec.DocRef)
}

func TestDeriveChain(t *testing.T) {
	tr := NewTracker()

	base := tr.RecordValue("t1", "loan-1", "loan_amount", "$250,000.00", "document_parse", 0.8,
		"doc-1", 1, "NOTE AMOUNT: $250,000.00", "regex-1.4.0", "")

	norm := tr.Derive(base, "250000", Transformation{
		Type:        TransformNormalization,
		Description: "strip currency formatting",
		InputValue:  "$250,000.00",
		OutputValue: "250000",
		Rule:        "money",
	})

	assert.Equal(t, []string{base.LineageID}, norm.DerivedFrom)
	require.Len(t, norm.Transformations, 1)
	assert.False(t, norm.Transformations[0].Timestamp.IsZero())
	assert.Equal(t, base.DocRef, norm.DocRef)

	chain, err := tr.Chain(norm.LineageID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, norm.LineageID, chain[0].LineageID)
	assert.Equal(t, base.LineageID, chain[1].LineageID)

	// Transformations accumulate down the chain without mutating parents.
	final := tr.Derive(norm, 250000.0, Transformation{
		Type:        TransformFormat,
		Description: "parse as number",
	})
	assert.Len(t, final.Transformations, 2)
	assert.Len(t, norm.Transformations, 1)
}

func TestChainMissingRecord(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Chain("lin-missing")
	assert.Error(t, err)
}

func TestVerifyIntegrity(t *testing.T) {
	tr := NewTracker()
	base := tr.RecordValue("t1", "loan-1", "loan_amount", "250000", "document_parse", 0.8,
		"doc-1", 1, "NOTE AMOUNT: $250,000.00", "regex-1.4.0", "")
	derived := tr.Derive(base, 250000.0, Transformation{Type: TransformFormat, Description: "parse"})

	result := tr.VerifyIntegrity(derived.LineageID)
	assert.True(t, result.OK)
	assert.Equal(t, 2, result.TotalHashes)
	assert.Equal(t, 2, result.VerifiedHashes)
	assert.Empty(t, result.Issues)
}

func TestVerifyIntegrityDetectsTamper(t *testing.T) {
	tr := NewTracker()
	base := tr.RecordValue("t1", "loan-1", "loan_amount", "250000", "document_parse", 0.8,
		"doc-1", 1, "NOTE AMOUNT: $250,000.00", "regex-1.4.0", "")

	base.DocRef.SourceText = "NOTE AMOUNT: $999,999.00"

	result := tr.VerifyIntegrity(base.LineageID)
	assert.False(t, result.OK)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0], "text hash mismatch")
	assert.Equal(t, 0, result.VerifiedHashes)
	assert.Equal(t, 1, result.TotalHashes)
}

func TestVerifyIntegrityMissingParent(t *testing.T) {
	tr := NewTracker()
	base := tr.RecordValue("t1", "loan-1", "loan_amount", "250000", "document_parse", 0.8,
		"", 0, "", "", "")
	derived := tr.Derive(base, 250000.0, Transformation{Type: TransformFormat, Description: "parse"}, "lin-gone")

	result := tr.VerifyIntegrity(derived.LineageID)
	assert.False(t, result.OK)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0], "missing parent lin-gone")
}

func TestVerifyIntegrityUnknownRecord(t *testing.T) {
	tr := NewTracker()
	result := tr.VerifyIntegrity("lin-missing")
	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Issues)
}

func TestExplain(t *testing.T) {
	tr := NewTracker()
	base := tr.RecordValue("t1", "loan-1", "loan_amount", "$250,000.00", "document_parse", 0.8,
		"doc-1", 1, "NOTE AMOUNT: $250,000.00", "regex-1.4.0", "")
	derived := tr.Derive(base, "250000", Transformation{
		Type:        TransformNormalization,
		Description: "strip currency formatting",
		InputValue:  "$250,000.00",
		OutputValue: "250000",
		Rule:        "money",
	})

	text, err := tr.Explain(derived.LineageID)
	require.NoError(t, err)
	assert.Contains(t, text, `Field "loan_amount" = 250000`)
	assert.Contains(t, text, "Source: document_parse (confidence 0.80)")
	assert.Contains(t, text, "Evidence: doc doc-1 page 1")
	assert.Contains(t, text, "strip currency formatting")
	assert.Contains(t, text, "(rule money)")
}

func TestForLoan(t *testing.T) {
	tr := NewTracker()
	a := tr.RecordValue("t1", "loan-1", "loan_amount", "1", "manual_entry", 1, "", 0, "", "", "")
	b := tr.RecordValue("t1", "loan-1", "interest_rate", "2", "manual_entry", 1, "", 0, "", "", "")
	tr.RecordValue("t1", "loan-2", "loan_amount", "3", "manual_entry", 1, "", 0, "", "", "")
	tr.RecordValue("t2", "loan-1", "loan_amount", "4", "manual_entry", 1, "", 0, "", "", "")

	ids := tr.ForLoan("t1", "loan-1")
	assert.ElementsMatch(t, []string{a.LineageID, b.LineageID}, ids)
	assert.True(t, sortedStrings(ids))
}

func sortedStrings(ids []string) bool {
	for i := 1; i < len(ids); i++ {
		if ids[i-1] > ids[i] {
			return false
		}
	}
	return true
}
