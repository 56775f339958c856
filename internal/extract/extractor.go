// Package extract implements the deterministic regex extractor. Hits are
// confidence 1.0 by contract: every one of them can be re-derived from the
// evidence text.
package extract

import (
	"context"
	"log"

	"github.com/loanserve/backend/internal/core"
)

// Hit is one extracted datapoint with its supporting text.
type Hit struct {
	Key          string `json:"key"`
	Value        any    `json:"value"`
	EvidenceText string `json:"evidence_text"`
}

// TextLoader fetches the reflowed OCR text for a document.
type TextLoader interface {
	LoadText(ctx context.Context, tenantID, loanID, docID string) (string, error)
}

// Extractor applies the per-docType rule sets over OCR text.
type Extractor struct {
	loader TextLoader
	logger *log.Logger
}

func NewExtractor(loader TextLoader) *Extractor {
	return &Extractor{
		loader: loader,
		logger: log.New(log.Writer(), "[EXTRACT] ", log.LstdFlags),
	}
}

// Extract loads the document text and applies the rules for its type.
// A missing or unreadable text file fails safe to zero hits.
func (e *Extractor) Extract(ctx context.Context, tenantID, loanID, docID string, docType core.DocType) []Hit {
	text, err := e.loader.LoadText(ctx, tenantID, loanID, docID)
	if err != nil {
		e.logger.Printf("No OCR text for doc %s (%v); extracting nothing", docID, err)
		return nil
	}
	return Apply(text, docType)
}

// Apply runs the ordered rule set over text. First hit wins per key.
func Apply(text string, docType core.DocType) []Hit {
	rules := RulesFor(docType)
	if len(rules) == 0 || text == "" {
		return nil
	}

	seen := make(map[string]bool, len(rules))
	var hits []Hit

	for _, r := range rules {
		if seen[r.Key] {
			continue
		}

		labelLoc := r.Label.FindStringIndex(text)
		if labelLoc == nil {
			continue
		}

		windowEnd := labelLoc[1] + r.Window
		if windowEnd > len(text) {
			windowEnd = len(text)
		}
		window := text[labelLoc[1]:windowEnd]

		valueLoc := r.Value.FindStringIndex(window)
		if valueLoc == nil {
			continue
		}

		raw := window[valueLoc[0]:valueLoc[1]]
		value, ok := r.Convert(raw)
		if !ok {
			continue
		}

		hits = append(hits, Hit{
			Key:          r.Key,
			Value:        value,
			EvidenceText: text[labelLoc[0] : labelLoc[1]+valueLoc[1]],
		})
		seen[r.Key] = true
	}

	return hits
}
