// Package authority resolves competing candidate values for a single field
// into one winner, deterministically. Priorities come from a base hierarchy
// of sources, adjusted per field, boosted by confidence and decayed by age.
package authority

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/loanserve/backend/internal/audit"
	"github.com/loanserve/backend/internal/core"
)

// basePriority is the general source hierarchy.
var basePriority = map[core.Source]float64{
	core.SourceInvestorDirective: 1000,
	core.SourceEscrowInstruction: 900,
	core.SourceManualEntry:       800,
	core.SourceVendorAPI:         700,
	core.SourceDocumentParse:     600,
	core.SourceAIDoc:             500,
	core.SourceOCR:               400,
}

// fieldOverrides replace the base priority for a (field, source) pair.
// Replacement, not merging: sources absent here keep the base table.
var fieldOverrides = map[string]map[core.Source]float64{
	"property_address": {core.SourceVendorAPI: 1000},
	"borrower_name":    {core.SourceManualEntry: 1000},
	"payment_date":     {core.SourceEscrowInstruction: 1000},
}

// Decision is the resolution record for one field.
type Decision struct {
	Key                string    `json:"key"`
	Winner             string    `json:"winner"` // source key of the winning candidate
	WinnerSource       core.Source `json:"winner_source"`
	WinnerValue        any       `json:"winner_value"`
	Reason             string    `json:"reason"`
	ConflictingSources []string  `json:"conflicting_sources"`
	AuthorityRule      string    `json:"authority_rule"`
	Confidence         float64   `json:"confidence"`
	Priority           float64   `json:"priority"`
	DecidedAt          time.Time `json:"decided_at"`
}

// Matrix resolves candidates and records decisions in the audit log.
type Matrix struct {
	sink *audit.Sink
	now  func() time.Time
}

// NewMatrix creates a matrix. sink may be nil (pure resolution, tests).
func NewMatrix(sink *audit.Sink) *Matrix {
	return &Matrix{sink: sink, now: time.Now}
}

// WithClock overrides the clock for deterministic tests.
func (m *Matrix) WithClock(now func() time.Time) *Matrix {
	m.now = now
	return m
}

// BasePriority returns the priority table entry for a (field, source) pair,
// applying field overrides.
func BasePriority(key string, source core.Source) float64 {
	if ov, ok := fieldOverrides[key]; ok {
		if p, ok := ov[source]; ok {
			return p
		}
	}
	return basePriority[source]
}

// EffectivePriority applies the confidence boost and age decay:
//
//	p_eff = p_base + 0.1*p_base*confidence - min(ageDays/30, 1)*0.05*p_base
func EffectivePriority(key string, c core.Candidate, asOf time.Time) float64 {
	pBase := BasePriority(key, c.Source)

	ageDays := asOf.Sub(c.Timestamp).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	ageFactor := ageDays / 30
	if ageFactor > 1 {
		ageFactor = 1
	}

	return pBase + 0.1*pBase*c.Confidence - ageFactor*0.05*pBase
}

// Resolve picks the winner among candidates for one field. It is pure and
// deterministic: the same candidate set always yields the same winner.
func (m *Matrix) Resolve(key string, candidates []core.Candidate) (*Decision, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no candidates for field %s", key)
	}

	asOf := m.now()

	if len(candidates) == 1 {
		c := candidates[0]
		return &Decision{
			Key:           key,
			Winner:        c.SourceKey(),
			WinnerSource:  c.Source,
			WinnerValue:   c.Value,
			Reason:        fmt.Sprintf("single candidate from %s", c.Source),
			AuthorityRule: "no_conflict",
			Confidence:    c.Confidence,
			Priority:      EffectivePriority(key, c, asOf),
			DecidedAt:     asOf,
		}, nil
	}

	ranked := make([]core.Candidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		pi := EffectivePriority(key, ranked[i], asOf)
		pj := EffectivePriority(key, ranked[j], asOf)
		if pi != pj {
			return pi > pj
		}
		if ranked[i].Confidence != ranked[j].Confidence {
			return ranked[i].Confidence > ranked[j].Confidence
		}
		if !ranked[i].Timestamp.Equal(ranked[j].Timestamp) {
			return ranked[i].Timestamp.After(ranked[j].Timestamp)
		}
		return ranked[i].SourceKey() > ranked[j].SourceKey()
	})

	winner := ranked[0]
	losers := make([]string, 0, len(ranked)-1)
	for _, c := range ranked[1:] {
		losers = append(losers, c.SourceKey())
	}

	rule := fmt.Sprintf("general_hierarchy_%s", winner.Source)
	if ov, ok := fieldOverrides[key]; ok {
		if _, boosted := ov[winner.Source]; boosted {
			rule = fmt.Sprintf("field_specific_%s", winner.Source)
		}
	}

	return &Decision{
		Key:          key,
		Winner:       winner.SourceKey(),
		WinnerSource: winner.Source,
		WinnerValue:  winner.Value,
		Reason: fmt.Sprintf("%s (priority %.1f) outranked %d other source(s)",
			winner.Source, EffectivePriority(key, winner, asOf), len(losers)),
		ConflictingSources: losers,
		AuthorityRule:      rule,
		Confidence:         winner.Confidence,
		Priority:           EffectivePriority(key, winner, asOf),
		DecidedAt:          asOf,
	}, nil
}

// ResolveAndAudit resolves and emits an AI_PIPELINE.AUTHORITY_DECISION event.
func (m *Matrix) ResolveAndAudit(ctx context.Context, tenantID, loanURN, key string, candidates []core.Candidate) (*Decision, error) {
	decision, err := m.Resolve(key, candidates)
	if err != nil {
		return nil, err
	}

	if m.sink != nil {
		m.sink.Emit(ctx, tenantID, "AI_PIPELINE.AUTHORITY_DECISION", "system", "authority-matrix", loanURN, map[string]any{
			"key":                 decision.Key,
			"winner":              decision.Winner,
			"winner_source":       string(decision.WinnerSource),
			"authority_rule":      decision.AuthorityRule,
			"confidence":          decision.Confidence,
			"priority":            decision.Priority,
			"conflicting_sources": decision.ConflictingSources,
			"candidate_count":     len(candidates),
		})
	}

	return decision, nil
}
