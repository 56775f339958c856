package authority

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanserve/backend/internal/audit"
	"github.com/loanserve/backend/internal/core"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBasePriority(t *testing.T) {
	assert.Equal(t, 1000.0, BasePriority("loan_amount", core.SourceInvestorDirective))
	assert.Equal(t, 900.0, BasePriority("loan_amount", core.SourceEscrowInstruction))
	assert.Equal(t, 800.0, BasePriority("loan_amount", core.SourceManualEntry))
	assert.Equal(t, 700.0, BasePriority("loan_amount", core.SourceVendorAPI))
	assert.Equal(t, 600.0, BasePriority("loan_amount", core.SourceDocumentParse))
	assert.Equal(t, 500.0, BasePriority("loan_amount", core.SourceAIDoc))
	assert.Equal(t, 400.0, BasePriority("loan_amount", core.SourceOCR))
}

func TestBasePriorityFieldOverrides(t *testing.T) {
	// Vendor flood/title data outranks everything for the address.
	assert.Equal(t, 1000.0, BasePriority("property_address", core.SourceVendorAPI))
	// Other sources on the overridden field keep the base table.
	assert.Equal(t, 600.0, BasePriority("property_address", core.SourceDocumentParse))

	assert.Equal(t, 1000.0, BasePriority("borrower_name", core.SourceManualEntry))
	assert.Equal(t, 1000.0, BasePriority("payment_date", core.SourceEscrowInstruction))
}

func TestEffectivePriority(t *testing.T) {
	asOf := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)

	fresh := core.Candidate{Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: asOf}
	// p_base + 0.1*p_base*conf with zero age: 600 + 60 = 660
	assert.InDelta(t, 660.0, EffectivePriority("loan_amount", fresh, asOf), 1e-9)

	// 30 days old: full decay of 0.05*p_base.
	old := core.Candidate{Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: asOf.AddDate(0, 0, -30)}
	assert.InDelta(t, 630.0, EffectivePriority("loan_amount", old, asOf), 1e-9)

	// Decay saturates at 30 days.
	ancient := core.Candidate{Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: asOf.AddDate(-1, 0, 0)}
	assert.InDelta(t, 630.0, EffectivePriority("loan_amount", ancient, asOf), 1e-9)

	// Future timestamps clamp to zero age.
	future := core.Candidate{Source: core.SourceDocumentParse, Confidence: 0.5, Timestamp: asOf.AddDate(0, 0, 7)}
	assert.InDelta(t, 630.0, EffectivePriority("loan_amount", future, asOf), 1e-9)
}

func TestResolveNoCandidates(t *testing.T) {
	m := NewMatrix(nil)
	_, err := m.Resolve("loan_amount", nil)
	require.Error(t, err)
}

func TestResolveSingleCandidate(t *testing.T) {
	now := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	m := NewMatrix(nil).WithClock(fixedClock(now))

	c := core.Candidate{Key: "loan_amount", Value: 250000.0, Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: now}
	d, err := m.Resolve("loan_amount", []core.Candidate{c})
	require.NoError(t, err)

	assert.Equal(t, "no_conflict", d.AuthorityRule)
	assert.Equal(t, core.SourceDocumentParse, d.WinnerSource)
	assert.Equal(t, 250000.0, d.WinnerValue)
	assert.Empty(t, d.ConflictingSources)
}

func TestResolveHierarchyWins(t *testing.T) {
	now := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	m := NewMatrix(nil).WithClock(fixedClock(now))

	candidates := []core.Candidate{
		{Key: "loan_amount", Value: 250000.0, Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: now},
		{Key: "loan_amount", Value: 251000.0, Source: core.SourceAIDoc, Confidence: 0.9, Timestamp: now},
		{Key: "loan_amount", Value: 249000.0, Source: core.SourceInvestorDirective, Confidence: 1.0, Timestamp: now},
	}

	d, err := m.Resolve("loan_amount", candidates)
	require.NoError(t, err)
	assert.Equal(t, core.SourceInvestorDirective, d.WinnerSource)
	assert.Equal(t, 249000.0, d.WinnerValue)
	assert.Equal(t, "general_hierarchy_investor_directive", d.AuthorityRule)
	assert.Len(t, d.ConflictingSources, 2)
}

func TestResolveFieldOverrideWins(t *testing.T) {
	now := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	m := NewMatrix(nil).WithClock(fixedClock(now))

	candidates := []core.Candidate{
		{Key: "property_address", Value: "123 Main St", Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: now},
		{Key: "property_address", Value: "123 Main Street, Springfield", Source: core.SourceVendorAPI, Confidence: 0.95, Timestamp: now},
	}

	d, err := m.Resolve("property_address", candidates)
	require.NoError(t, err)
	assert.Equal(t, core.SourceVendorAPI, d.WinnerSource)
	assert.Equal(t, "field_specific_vendor_api", d.AuthorityRule)
}

func TestResolveConfidenceTieBreak(t *testing.T) {
	now := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	m := NewMatrix(nil).WithClock(fixedClock(now))

	// Same source, same timestamp: equal effective priority until the
	// confidence boost separates them.
	lo := core.Candidate{Key: "interest_rate", Value: 7.0, Source: core.SourceAIDoc, Confidence: 0.70, Timestamp: now}
	hi := core.Candidate{Key: "interest_rate", Value: 7.125, Source: core.SourceAIDoc, Confidence: 0.90, Timestamp: now}

	d, err := m.Resolve("interest_rate", []core.Candidate{lo, hi})
	require.NoError(t, err)
	assert.Equal(t, 7.125, d.WinnerValue)
}

func TestResolveTimestampTieBreak(t *testing.T) {
	now := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	m := NewMatrix(nil).WithClock(fixedClock(now))

	older := core.Candidate{Key: "maturity_date", Value: "2055-08-01", Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: now.Add(-time.Second)}
	newer := core.Candidate{Key: "maturity_date", Value: "2055-09-01", Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: now}

	// One second of age is far below the decay resolution, so priority and
	// confidence tie; the newer timestamp wins.
	d, err := m.Resolve("maturity_date", []core.Candidate{older, newer})
	require.NoError(t, err)
	assert.Equal(t, "2055-09-01", d.WinnerValue)
}

func TestResolveDeterministic(t *testing.T) {
	now := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	m := NewMatrix(nil).WithClock(fixedClock(now))

	candidates := []core.Candidate{
		{Key: "loan_amount", Value: 1.0, Source: core.SourceOCR, Confidence: 0.5, Timestamp: now.Add(-time.Hour)},
		{Key: "loan_amount", Value: 2.0, Source: core.SourceAIDoc, Confidence: 0.8, Timestamp: now.Add(-2 * time.Hour)},
		{Key: "loan_amount", Value: 3.0, Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: now.Add(-3 * time.Hour)},
	}

	first, err := m.Resolve("loan_amount", candidates)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		// Shuffle by rotating; the winner must not depend on input order.
		rotated := append(candidates[i%3:], candidates[:i%3]...)
		d, err := m.Resolve("loan_amount", rotated)
		require.NoError(t, err)
		assert.Equal(t, first.Winner, d.Winner)
	}
}

func TestResolveAndAuditEmitsDecision(t *testing.T) {
	now := time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)
	sink := audit.NewSink(nil, 10)
	m := NewMatrix(sink).WithClock(fixedClock(now))

	candidates := []core.Candidate{
		{Key: "loan_amount", Value: 250000.0, Source: core.SourceDocumentParse, Confidence: 1.0, Timestamp: now},
		{Key: "loan_amount", Value: 251000.0, Source: core.SourceAIDoc, Confidence: 0.9, Timestamp: now},
	}

	_, err := m.ResolveAndAudit(context.Background(), "t1", "urn:loan:abc", "loan_amount", candidates)
	require.NoError(t, err)

	events := sink.Recent("t1")
	require.Len(t, events, 1)
	assert.Equal(t, "AI_PIPELINE.AUTHORITY_DECISION", events[0].EventType)
	assert.Equal(t, "urn:loan:abc", events[0].ResourceURN)
	assert.Equal(t, "document_parse", events[0].Payload["winner_source"])
}
