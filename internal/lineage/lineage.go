// Package lineage tracks per-value provenance: which source and document a
// value came from, the hash of the evidence text, and every transformation
// applied on the way to the stored datapoint. Records are append-only;
// changes create new records derived from the old ones.
package lineage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// TransformType categorizes a transformation step.
type TransformType string

const (
	TransformNormalization TransformType = "normalization"
	TransformValidation    TransformType = "validation"
	TransformFormat        TransformType = "format_conversion"
	TransformCalculation   TransformType = "calculation"
	TransformMerge         TransformType = "merge"
)

// Transformation is one ordered audit entry on a record.
type Transformation struct {
	Type        TransformType `json:"type"`
	Description string        `json:"description"`
	InputValue  any           `json:"input_value"`
	OutputValue any           `json:"output_value"`
	Rule        string        `json:"rule,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// DocumentReference ties a record to the exact document text it came from.
// TextHash must equal SHA256(SourceText); a mismatch is an integrity failure.
type DocumentReference struct {
	DocID       string `json:"doc_id"`
	Page        int    `json:"page,omitempty"`
	BoundingBox string `json:"bounding_box,omitempty"`
	SourceText  string `json:"source_text"`
	TextHash    string `json:"text_hash"`
}

// Record is one provenance node.
type Record struct {
	LineageID        string             `json:"lineage_id"`
	TenantID         string             `json:"tenant_id"`
	LoanID           string             `json:"loan_id"`
	FieldName        string             `json:"field_name"`
	Value            any                `json:"value"`
	Source           string             `json:"source"`
	Confidence       float64            `json:"confidence"`
	DocRef           *DocumentReference `json:"document_reference,omitempty"`
	DerivedFrom      []string           `json:"derived_from,omitempty"`
	Transformations  []Transformation   `json:"transformations,omitempty"`
	ExtractorVersion string             `json:"extractor_version,omitempty"`
	PromptVersion    string             `json:"prompt_version,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

// HashText returns the hex SHA-256 used for evidence text hashes.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewLineageID derives the deterministic id from the salient fields,
// truncated, plus a timestamp component for uniqueness across rebuilds.
func NewLineageID(fieldName string, value any, source, docID, extractorVersion, promptVersion string, ts time.Time) string {
	salient := fmt.Sprintf("%s|%v|%s|%s|%s|%s", fieldName, value, source, docID, extractorVersion, promptVersion)
	sum := sha256.Sum256([]byte(salient))
	return fmt.Sprintf("lin-%s-%d", hex.EncodeToString(sum[:])[:16], ts.UnixNano())
}

// IntegrityResult is the outcome of a chain verification.
type IntegrityResult struct {
	OK             bool     `json:"ok"`
	Issues         []string `json:"issues,omitempty"`
	VerifiedHashes int      `json:"verified_hashes"`
	TotalHashes    int      `json:"total_hashes"`
}

// Tracker stores and traverses lineage records.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*Record)}
}

// RecordValue creates a new record for a freshly extracted or supplied value.
// When sourceText is non-empty a DocumentReference is attached with its hash.
func (t *Tracker) RecordValue(tenantID, loanID, fieldName string, value any, source string, confidence float64, docID string, page int, sourceText, extractorVersion, promptVersion string) *Record {
	now := time.Now().UTC()
	rec := &Record{
		LineageID:        NewLineageID(fieldName, value, source, docID, extractorVersion, promptVersion, now),
		TenantID:         tenantID,
		LoanID:           loanID,
		FieldName:        fieldName,
		Value:            value,
		Source:           source,
		Confidence:       confidence,
		ExtractorVersion: extractorVersion,
		PromptVersion:    promptVersion,
		CreatedAt:        now,
	}
	if sourceText != "" {
		rec.DocRef = &DocumentReference{
			DocID:      docID,
			Page:       page,
			SourceText: sourceText,
			TextHash:   HashText(sourceText),
		}
	}

	t.mu.Lock()
	t.records[rec.LineageID] = rec
	t.mu.Unlock()
	return rec
}

// Derive creates a new record whose value was computed or merged from
// parents. The parent ids land in DerivedFrom; the originals are untouched.
func (t *Tracker) Derive(parent *Record, value any, transform Transformation, extraParents ...string) *Record {
	now := time.Now().UTC()
	transform.Timestamp = now

	rec := &Record{
		LineageID:        NewLineageID(parent.FieldName, value, parent.Source, docIDOf(parent), parent.ExtractorVersion, parent.PromptVersion, now),
		TenantID:         parent.TenantID,
		LoanID:           parent.LoanID,
		FieldName:        parent.FieldName,
		Value:            value,
		Source:           parent.Source,
		Confidence:       parent.Confidence,
		DocRef:           parent.DocRef,
		DerivedFrom:      append([]string{parent.LineageID}, extraParents...),
		Transformations:  append(append([]Transformation{}, parent.Transformations...), transform),
		ExtractorVersion: parent.ExtractorVersion,
		PromptVersion:    parent.PromptVersion,
		CreatedAt:        now,
	}

	t.mu.Lock()
	t.records[rec.LineageID] = rec
	t.mu.Unlock()
	return rec
}

func docIDOf(r *Record) string {
	if r.DocRef != nil {
		return r.DocRef.DocID
	}
	return ""
}

// Get returns a record by id.
func (t *Tracker) Get(lineageID string) (*Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[lineageID]
	return rec, ok
}

// Put stores a pre-built record (used when rehydrating from persistence).
func (t *Tracker) Put(rec *Record) {
	t.mu.Lock()
	t.records[rec.LineageID] = rec
	t.mu.Unlock()
}

// Chain returns the full ancestor list for a record, cycle-safe. The record
// itself comes first, ancestors in breadth-first order after it.
func (t *Tracker) Chain(lineageID string) ([]*Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	start, ok := t.records[lineageID]
	if !ok {
		return nil, fmt.Errorf("lineage record %s not found", lineageID)
	}

	visited := map[string]bool{lineageID: true}
	chain := []*Record{start}
	queue := append([]string{}, start.DerivedFrom...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		rec, ok := t.records[id]
		if !ok {
			// Parent referenced but not loaded; surfaced by VerifyIntegrity.
			continue
		}
		chain = append(chain, rec)
		queue = append(queue, rec.DerivedFrom...)
	}

	return chain, nil
}

// VerifyIntegrity recomputes every evidence hash on the record and its
// ancestors. Broken hashes or missing parents are reported, never repaired.
func (t *Tracker) VerifyIntegrity(lineageID string) IntegrityResult {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := IntegrityResult{OK: true}

	start, ok := t.records[lineageID]
	if !ok {
		result.OK = false
		result.Issues = append(result.Issues, fmt.Sprintf("record %s not found", lineageID))
		return result
	}

	visited := map[string]bool{}
	queue := []*Record{start}

	for len(queue) > 0 {
		rec := queue[0]
		queue = queue[1:]
		if visited[rec.LineageID] {
			continue
		}
		visited[rec.LineageID] = true

		if rec.DocRef != nil {
			result.TotalHashes++
			if HashText(rec.DocRef.SourceText) == rec.DocRef.TextHash {
				result.VerifiedHashes++
			} else {
				result.OK = false
				result.Issues = append(result.Issues,
					fmt.Sprintf("text hash mismatch on %s (field %s)", rec.LineageID, rec.FieldName))
			}
		}

		for _, pid := range rec.DerivedFrom {
			parent, ok := t.records[pid]
			if !ok {
				result.OK = false
				result.Issues = append(result.Issues,
					fmt.Sprintf("missing parent %s referenced by %s", pid, rec.LineageID))
				continue
			}
			queue = append(queue, parent)
		}
	}

	return result
}

// Explain renders a human-readable narrative: source, each transformation in
// order, and the final value.
func (t *Tracker) Explain(lineageID string) (string, error) {
	chain, err := t.Chain(lineageID)
	if err != nil {
		return "", err
	}

	rec := chain[0]
	var b strings.Builder
	fmt.Fprintf(&b, "Field %q = %v\n", rec.FieldName, rec.Value)
	fmt.Fprintf(&b, "Source: %s (confidence %.2f)\n", rec.Source, rec.Confidence)
	if rec.DocRef != nil {
		fmt.Fprintf(&b, "Evidence: doc %s page %d, hash %s\n", rec.DocRef.DocID, rec.DocRef.Page, rec.DocRef.TextHash[:12])
	}
	if len(rec.DerivedFrom) > 0 {
		fmt.Fprintf(&b, "Derived from %d parent record(s)\n", len(rec.DerivedFrom))
	}
	if len(rec.Transformations) > 0 {
		fmt.Fprintf(&b, "Transformations:\n")
		for i, tr := range rec.Transformations {
			fmt.Fprintf(&b, "  %d. [%s] %s: %v -> %v", i+1, tr.Type, tr.Description, tr.InputValue, tr.OutputValue)
			if tr.Rule != "" {
				fmt.Fprintf(&b, " (rule %s)", tr.Rule)
			}
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// ForLoan lists record ids for one loan, sorted for stable output.
func (t *Tracker) ForLoan(tenantID, loanID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for id, rec := range t.records {
		if rec.TenantID == tenantID && rec.LoanID == loanID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
