// Package core holds the shared domain model for the loan-servicing
// pipeline: loans under ingestion, their documents, candidate values and
// the authoritative datapoints that survive conflict resolution.
package core

import (
	"fmt"
	"time"
)

// ============================================================================
// SOURCES & DOCUMENT TYPES
// ============================================================================

// Source identifies where a candidate value came from. Authority resolution
// is keyed off this.
type Source string

const (
	SourceInvestorDirective Source = "investor_directive"
	SourceEscrowInstruction Source = "escrow_instruction"
	SourceManualEntry       Source = "manual_entry"
	SourceVendorAPI         Source = "vendor_api"
	SourceDocumentParse     Source = "document_parse"
	SourceAIDoc             Source = "ai_doc"
	SourceOCR               Source = "ocr"
)

// DocType classifies an ingested document.
type DocType string

const (
	DocNote      DocType = "NOTE"
	DocCD        DocType = "CD"
	DocHOI       DocType = "HOI"
	DocFlood     DocType = "FLOOD"
	DocAppraisal DocType = "APPRAISAL"
	DocDeed      DocType = "DEED"
	DocLE        DocType = "LE"
	DocMISMO     DocType = "MISMO"
	DocCSV       DocType = "CSV"
	DocJSON      DocType = "JSON"
	DocPDF       DocType = "PDF"
)

// ============================================================================
// LOAN LIFECYCLE
// ============================================================================

// LoanStatus is the LoanCandidate lifecycle.
type LoanStatus string

const (
	LoanIngesting LoanStatus = "ingesting"
	LoanValidated LoanStatus = "validated"
	LoanConflicts LoanStatus = "conflicts"
	LoanAccepted  LoanStatus = "accepted"
	LoanRejected  LoanStatus = "rejected"
)

// LoanCandidate is a loan being ingested. Immutable once accepted; a new
// import cycle re-opens it.
type LoanCandidate struct {
	ID        string     `db:"id" json:"id"`
	TenantID  string     `db:"tenant_id" json:"tenant_id"`
	URN       string     `db:"urn" json:"urn"`
	Status    LoanStatus `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// LoanURN builds the stable identifier for a loan.
func LoanURN(id string) string {
	return fmt.Sprintf("urn:loan:%s", id)
}

// WorkerURN builds the stable identifier for a worker instance.
func WorkerURN(name, id string) string {
	return fmt.Sprintf("urn:worker:%s:%s", name, id)
}

// ============================================================================
// DOCUMENTS
// ============================================================================

// Document is owned by a LoanCandidate. SHA256 of the bytes is the
// idempotency key for re-uploads.
type Document struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	LoanID     string    `db:"loan_id" json:"loan_id"`
	StorageURI string    `db:"storage_uri" json:"storage_uri"`
	SHA256     string    `db:"sha256" json:"sha256"`
	DocType    DocType   `db:"doc_type" json:"doc_type"`
	PageCount  int       `db:"page_count" json:"page_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ============================================================================
// CANDIDATES & DATAPOINTS
// ============================================================================

// Evidence ties a candidate value back to document text.
type Evidence struct {
	TextHash string `json:"text_hash,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

// Candidate is a proposed value for a field, prior to authority resolution.
type Candidate struct {
	Key              string    `json:"key"`
	Value            any       `json:"value"`
	Source           Source    `json:"source"`
	Confidence       float64   `json:"confidence"`
	DocType          DocType   `json:"doc_type,omitempty"`
	DocID            string    `json:"doc_id,omitempty"`
	Page             int       `json:"page,omitempty"`
	Evidence         Evidence  `json:"evidence,omitempty"`
	ExtractorVersion string    `json:"extractor_version,omitempty"`
	PromptVersion    string    `json:"prompt_version,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// SourceKey is the stable identifier used in decision records and as the
// final lexicographic tie-breaker.
func (c Candidate) SourceKey() string {
	return fmt.Sprintf("%s_%d", c.Source, c.Timestamp.UnixMilli())
}

// Datapoint is the authoritative value per (loanId, key). There is exactly
// one row per pair; it is replaced only when a new candidate wins the
// authority matrix.
type Datapoint struct {
	TenantID          string    `db:"tenant_id" json:"tenant_id"`
	LoanID            string    `db:"loan_id" json:"loan_id"`
	Key               string    `db:"key" json:"key"`
	Value             string    `db:"value" json:"value"`
	NormalizedValue   string    `db:"normalized_value" json:"normalized_value"`
	Confidence        float64   `db:"confidence" json:"confidence"`
	IngestSource      string    `db:"ingest_source" json:"ingest_source"`
	AutofilledFrom    string    `db:"autofilled_from" json:"autofilled_from"`
	EvidenceDocID     string    `db:"evidence_doc_id" json:"evidence_doc_id"`
	EvidencePage      int       `db:"evidence_page" json:"evidence_page"`
	EvidenceTextHash  string    `db:"evidence_text_hash" json:"evidence_text_hash"`
	ExtractorVersion  string    `db:"extractor_version" json:"extractor_version"`
	PromptVersion     string    `db:"prompt_version" json:"prompt_version"`
	AuthorityPriority float64   `db:"authority_priority" json:"authority_priority"`
	LineageID         string    `db:"lineage_id" json:"lineage_id"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ============================================================================
// DEFECTS
// ============================================================================

// DefectSeverity grades a validation finding.
type DefectSeverity string

const (
	DefectWarning DefectSeverity = "warning"
	DefectError   DefectSeverity = "error"
)

// Defect is a validation finding against a resolved datapoint. Failed
// validation never silently rewrites a value; it produces one of these.
type Defect struct {
	ID        string         `db:"id" json:"id"`
	TenantID  string         `db:"tenant_id" json:"tenant_id"`
	LoanID    string         `db:"loan_id" json:"loan_id"`
	Key       string         `db:"key" json:"key"`
	Severity  DefectSeverity `db:"severity" json:"severity"`
	Rule      string         `db:"rule" json:"rule"`
	Message   string         `db:"message" json:"message"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// ============================================================================
// DIRECTIVES
// ============================================================================

// Directive is an investor or escrow instruction that overlays extracted
// values during intake.
type Directive struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}
