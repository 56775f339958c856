package intake

import (
	"strings"

	"github.com/loanserve/backend/internal/core"
)

// classifierAnchors are the phrases that identify a PDF's document type.
// Scored by anchor hits; ties go to the earlier entry in the list.
var classifierAnchors = []struct {
	docType core.DocType
	anchors []string
}{
	{core.DocNote, []string{"PROMISSORY NOTE", "NOTE AMOUNT", "FOR VALUE RECEIVED"}},
	{core.DocCD, []string{"CLOSING DISCLOSURE", "CASH TO CLOSE", "LOAN ESTIMATE COMPARISON"}},
	{core.DocLE, []string{"LOAN ESTIMATE", "ESTIMATED CLOSING COSTS", "RATE LOCK"}},
	{core.DocHOI, []string{"HOMEOWNER", "DWELLING COVERAGE", "NAMED INSURED", "POLICY PERIOD"}},
	{core.DocFlood, []string{"FLOOD ZONE", "FLOOD HAZARD DETERMINATION", "COMMUNITY NUMBER"}},
	{core.DocAppraisal, []string{"APPRAISED VALUE", "OPINION OF VALUE", "APPRAISAL REPORT"}},
	{core.DocDeed, []string{"GRANTOR", "GRANTEE", "LEGAL DESCRIPTION", "WARRANTY DEED"}},
}

// ClassifyText scores OCR text against the anchor sets. Returns false when
// no anchor matches; the caller falls back to the AI classifier.
func ClassifyText(text string) (core.DocType, bool) {
	upper := strings.ToUpper(text)

	best := core.DocType("")
	bestScore := 0
	for _, entry := range classifierAnchors {
		score := 0
		for _, anchor := range entry.anchors {
			if strings.Contains(upper, anchor) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = entry.docType, score
		}
	}
	return best, bestScore > 0
}
