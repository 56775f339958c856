package ai

import (
	"fmt"
	"strings"

	"github.com/loanserve/backend/internal/core"
)

// PromptPack is the versioned instruction set for one document type. The
// version travels with every extracted value so a result can always be
// traced back to the prompt that produced it.
type PromptPack struct {
	DocType core.DocType
	Version string
	System  string
	Fields  []string
}

const systemPreamble = `You are a mortgage document extraction engine.
Extract only the requested fields from the provided document text.
Respond with a single JSON object of the shape:
{"docType": "...", "promptVersion": "...", "data": {<field>: {"value": ..., "confidence": 0.0-1.0}}, "evidence": {<field>: {"docId": "...", "page": 1, "textHash": "...", "snippet": "..."}}}
Omit any field you cannot find. Never invent values. Confidence reflects
how clearly the text supports the value.`

var promptPacks = map[core.DocType]PromptPack{
	core.DocNote: {
		DocType: core.DocNote,
		Version: "note-2.1.0",
		System:  systemPreamble,
		Fields:  []string{"loan_amount", "interest_rate", "origination_date", "maturity_date", "monthly_payment", "term_months", "borrower_name"},
	},
	core.DocCD: {
		DocType: core.DocCD,
		Version: "cd-1.3.0",
		System:  systemPreamble,
		Fields:  []string{"loan_amount", "interest_rate", "monthly_payment", "closing_date", "property_address", "cash_to_close"},
	},
	core.DocHOI: {
		DocType: core.DocHOI,
		Version: "hoi-1.1.0",
		System:  systemPreamble,
		Fields:  []string{"policy_number", "carrier_name", "annual_premium", "effective_date", "expiration_date", "dwelling_coverage"},
	},
	core.DocFlood: {
		DocType: core.DocFlood,
		Version: "flood-1.0.2",
		System:  systemPreamble,
		Fields:  []string{"flood_zone", "flood_insurance_required", "determination_date", "community_number"},
	},
	core.DocAppraisal: {
		DocType: core.DocAppraisal,
		Version: "appraisal-1.2.0",
		System:  systemPreamble,
		Fields:  []string{"appraised_value", "appraisal_date", "property_address", "appraiser_license"},
	},
	core.DocDeed: {
		DocType: core.DocDeed,
		Version: "deed-1.0.1",
		System:  systemPreamble,
		Fields:  []string{"recording_date", "instrument_number", "grantor_name", "grantee_name", "legal_description"},
	},
	core.DocLE: {
		DocType: core.DocLE,
		Version: "le-1.1.1",
		System:  systemPreamble,
		Fields:  []string{"loan_amount", "interest_rate", "monthly_payment", "estimated_closing_costs", "rate_lock"},
	},
}

// PackFor returns the prompt pack for a document type.
func PackFor(docType core.DocType) (PromptPack, bool) {
	p, ok := promptPacks[docType]
	return p, ok
}

// TextSlice is one bounded OCR fragment submitted for extraction.
type TextSlice struct {
	DocID string `json:"doc_id"`
	Page  int    `json:"page"`
	Text  string `json:"text"`
}

// BuildUserPrompt renders the extraction request. Only the keys listed are
// requested; keys already resolved deterministically stay out of the prompt.
func (p PromptPack) BuildUserPrompt(slices []TextSlice, keys []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document type: %s\nPrompt version: %s\n", p.DocType, p.Version)
	fmt.Fprintf(&b, "Extract these fields: %s\n\n", strings.Join(keys, ", "))
	for _, s := range slices {
		fmt.Fprintf(&b, "--- docId=%s page=%d ---\n%s\n", s.DocID, s.Page, s.Text)
	}
	return b.String()
}
