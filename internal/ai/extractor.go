package ai

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/loanserve/backend/internal/core"
)

// Extractor runs prompt-pack extraction over OCR slices. It is the fallback
// behind the deterministic regex extractor: only keys the regex pass missed
// are ever submitted, and its results never override a deterministic hit
// from the same document.
type Extractor struct {
	llm    LLMClient
	logger *log.Logger
	now    func() time.Time
}

func NewExtractor(llm LLMClient) *Extractor {
	return &Extractor{
		llm:    llm,
		logger: log.New(log.Writer(), "[AI-EXTRACT] ", log.LstdFlags),
		now:    time.Now,
	}
}

// WithClock fixes the candidate timestamps. Test hook.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// Extract submits missingKeys for docType against the given slices and
// returns candidates sourced as ai_doc. Transport errors are retryable;
// schema violations are not.
func (e *Extractor) Extract(ctx context.Context, docType core.DocType, slices []TextSlice, missingKeys []string) ([]core.Candidate, error) {
	if len(missingKeys) == 0 {
		return nil, nil
	}
	pack, ok := PackFor(docType)
	if !ok {
		return nil, core.Validation(fmt.Errorf("no prompt pack for doc type %s", docType))
	}

	keys := intersect(missingKeys, pack.Fields)
	if len(keys) == 0 {
		return nil, nil
	}

	raw, err := e.llm.Generate(ctx, pack.System, pack.BuildUserPrompt(slices, keys))
	if err != nil {
		return nil, core.Transient(fmt.Errorf("llm call failed: %w", err))
	}

	resp, err := ParseResponse(raw, pack)
	if err != nil {
		return nil, core.Validation(fmt.Errorf("schema validation failed: %w", err))
	}

	requested := make(map[string]bool, len(keys))
	for _, k := range keys {
		requested[k] = true
	}

	ts := e.now().UTC()
	var out []core.Candidate
	for field, fv := range resp.Data {
		// Unrequested fields passed the schema but were already resolved
		// deterministically; drop them here.
		if !requested[field] {
			continue
		}
		if fv.Value == nil {
			continue
		}
		c := core.Candidate{
			Key:           field,
			Value:         fv.Value,
			Source:        core.SourceAIDoc,
			Confidence:    fv.Confidence,
			DocType:       docType,
			PromptVersion: resp.PromptVersion,
			Timestamp:     ts,
		}
		if ev, ok := resp.Evidence[field]; ok {
			c.DocID = ev.DocID
			c.Page = ev.Page
			c.Evidence = core.Evidence{TextHash: ev.TextHash, Snippet: ev.Snippet}
		}
		out = append(out, c)
	}

	e.logger.Printf("Extracted %d/%d requested fields from %s", len(out), len(keys), docType)
	return out, nil
}

func intersect(want, allowed []string) []string {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	var out []string
	for _, w := range want {
		if set[w] {
			out = append(out, w)
		}
	}
	return out
}
