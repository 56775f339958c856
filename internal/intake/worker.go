package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/loanserve/backend/internal/ai"
	"github.com/loanserve/backend/internal/authority"
	"github.com/loanserve/backend/internal/core"
	"github.com/loanserve/backend/internal/extract"
	"github.com/loanserve/backend/internal/lineage"
	"github.com/loanserve/backend/internal/storage"
	"github.com/loanserve/backend/internal/worker"
)

// Request is the intake work item payload.
type Request struct {
	DocumentID         string           `json:"documentId"`
	FilePath           string           `json:"filePath"`
	FileType           string           `json:"fileType"` // pdf, csv, json, mismo
	LoanURN            string           `json:"loanUrn"`
	EscrowInstructions []core.Directive `json:"escrowInstructions"`
	InvestorDirectives []core.Directive `json:"investorDirectives"`
	TenantID           string           `json:"tenantId"`
}

// Store is the persistence surface intake needs.
type Store interface {
	GetOrCreateLoan(ctx context.Context, tenantID, urn string) (*core.LoanCandidate, error)
	InsertDocument(ctx context.Context, doc *core.Document) (*core.Document, bool, error)
	SetLoanStatus(ctx context.Context, tenantID, loanID string, status core.LoanStatus) error
	UpsertDatapoint(ctx context.Context, dp *core.Datapoint) (bool, error)
	SaveLineage(ctx context.Context, rec *lineage.Record) error
	SaveDefects(ctx context.Context, tenantID, loanID string, defects []core.Defect) error
}

// IntakeWorker ingests one document end to end. It satisfies the worker
// contract; the runtime supplies retries, idempotency, and dead-lettering.
type IntakeWorker struct {
	store      Store
	docs       storage.DocStore
	texts      extract.TextLoader
	extractor  *extract.Extractor
	aiExtract  *ai.Extractor // nil disables the AI fallback
	matrix     *authority.Matrix
	thresholds authority.Thresholds
	logger     *log.Logger
}

func NewIntakeWorker(store Store, docs storage.DocStore, texts extract.TextLoader, extractor *extract.Extractor, aiExtract *ai.Extractor, matrix *authority.Matrix, th authority.Thresholds) *IntakeWorker {
	return &IntakeWorker{
		store:      store,
		docs:       docs,
		texts:      texts,
		extractor:  extractor,
		aiExtract:  aiExtract,
		matrix:     matrix,
		thresholds: th,
		logger:     log.New(log.Writer(), "[INTAKE] ", log.LstdFlags),
	}
}

func (w *IntakeWorker) Name() string { return "document-intake" }

func (w *IntakeWorker) ExecuteWork(ctx context.Context, payload []byte, _ *worker.WorkItem, _ string) worker.WorkResult {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return worker.WorkResult{Error: fmt.Sprintf("malformed intake payload: %v", err), ShouldRetry: false}
	}

	result, err := w.Ingest(ctx, &req)
	if err != nil {
		return worker.ResultFromError(err)
	}
	return worker.WorkResult{Success: true, Result: result}
}

// Result summarizes one completed ingestion.
type Result struct {
	LoanID     string          `json:"loan_id"`
	DocumentID string          `json:"document_id"`
	DocType    core.DocType    `json:"doc_type"`
	Datapoints int             `json:"datapoints"`
	Defects    int             `json:"defects"`
	Status     core.LoanStatus `json:"status"`
}

// Ingest runs the full pipeline for one document.
func (w *IntakeWorker) Ingest(ctx context.Context, req *Request) (*Result, error) {
	loan, err := w.store.GetOrCreateLoan(ctx, req.TenantID, req.LoanURN)
	if err != nil {
		return nil, err
	}

	data, err := w.docs.Get(ctx, req.FilePath)
	if err != nil {
		return nil, core.Transient(fmt.Errorf("read document bytes: %w", err))
	}
	sum := sha256.Sum256(data)

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	doc, _, err := w.store.InsertDocument(ctx, &core.Document{
		ID:         docID,
		TenantID:   req.TenantID,
		LoanID:     loan.ID,
		StorageURI: req.FilePath,
		SHA256:     hex.EncodeToString(sum[:]),
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	candidates, docType, err := w.extractCandidates(ctx, req, loan.ID, doc.ID, data)
	if err != nil {
		return nil, err
	}

	candidates = overlayDirectives(candidates, req.InvestorDirectives, req.EscrowInstructions)

	saved, defects, status, err := w.Apply(ctx, req.TenantID, req.LoanURN, loan.ID, candidates)
	if err != nil {
		return nil, err
	}

	w.logger.Printf("✅ Ingested %s (%s): %d datapoints, %d defects, status=%s",
		doc.ID, docType, saved, len(defects), status)
	return &Result{
		LoanID:     loan.ID,
		DocumentID: doc.ID,
		DocType:    docType,
		Datapoints: saved,
		Defects:    len(defects),
		Status:     status,
	}, nil
}

// Apply runs the shared tail of the pipeline over an already-built candidate
// set: lineage, authority resolution, datapoint upserts, validation, and the
// loan status transition. Vendor verification reuses it.
func (w *IntakeWorker) Apply(ctx context.Context, tenantID, loanURN, loanID string, candidates []core.Candidate) (int, []core.Defect, core.LoanStatus, error) {
	tracker := lineage.NewTracker()
	lineageByCandidate := make(map[string]string, len(candidates))
	for _, c := range candidates {
		rec := tracker.RecordValue(tenantID, loanID, c.Key, c.Value, string(c.Source),
			c.Confidence, c.DocID, c.Page, c.Evidence.Snippet, c.ExtractorVersion, c.PromptVersion)
		if err := w.store.SaveLineage(ctx, rec); err != nil {
			return 0, nil, "", err
		}
		lineageByCandidate[c.Key+"|"+c.SourceKey()] = rec.LineageID
	}

	byKey := make(map[string][]core.Candidate)
	for _, c := range candidates {
		byKey[c.Key] = append(byKey[c.Key], c)
	}

	resolved := make(map[string]authority.ResolvedField, len(byKey))
	saved := 0
	for key, group := range byKey {
		decision, err := w.matrix.ResolveAndAudit(ctx, tenantID, loanURN, key, group)
		if err != nil {
			return 0, nil, "", err
		}
		resolved[key] = authority.ResolvedField{Key: key, Value: decision.WinnerValue, Confidence: decision.Confidence}

		winner := findWinner(group, decision.Winner)
		dp := &core.Datapoint{
			TenantID:          tenantID,
			LoanID:            loanID,
			Key:               key,
			Value:             fmt.Sprintf("%v", decision.WinnerValue),
			NormalizedValue:   fmt.Sprintf("%v", decision.WinnerValue),
			Confidence:        decision.Confidence,
			IngestSource:      string(decision.WinnerSource),
			EvidenceDocID:     winner.DocID,
			EvidencePage:      winner.Page,
			EvidenceTextHash:  winner.Evidence.TextHash,
			ExtractorVersion:  winner.ExtractorVersion,
			PromptVersion:     winner.PromptVersion,
			AuthorityPriority: decision.Priority,
			LineageID:         lineageByCandidate[key+"|"+decision.Winner],
			UpdatedAt:         time.Now().UTC(),
		}
		changed, err := w.store.UpsertDatapoint(ctx, dp)
		if err != nil {
			return 0, nil, "", err
		}
		if changed {
			saved++
		}
	}

	defects := authority.Validate(tenantID, loanID, resolved, w.thresholds)
	if err := w.store.SaveDefects(ctx, tenantID, loanID, defects); err != nil {
		return 0, nil, "", err
	}

	status := core.LoanValidated
	for _, d := range defects {
		if d.Severity == core.DefectError {
			status = core.LoanConflicts
			break
		}
	}
	if err := w.store.SetLoanStatus(ctx, tenantID, loanID, status); err != nil {
		return 0, nil, "", err
	}

	return saved, defects, status, nil
}

// extractCandidates classifies the document and produces candidates by the
// file-type-specific path.
func (w *IntakeWorker) extractCandidates(ctx context.Context, req *Request, loanID, docID string, data []byte) ([]core.Candidate, core.DocType, error) {
	now := time.Now().UTC()

	switch req.FileType {
	case "csv":
		raw, err := ParseCSV(data)
		if err != nil {
			return nil, core.DocCSV, err
		}
		return wrapParsed(raw, core.DocCSV, docID, now), core.DocCSV, nil
	case "json":
		raw, err := ParseJSON(data)
		if err != nil {
			return nil, core.DocJSON, err
		}
		return wrapParsed(raw, core.DocJSON, docID, now), core.DocJSON, nil
	case "mismo", "xml":
		raw, err := ParseMISMO(data)
		if err != nil {
			return nil, core.DocMISMO, err
		}
		return wrapParsed(raw, core.DocMISMO, docID, now), core.DocMISMO, nil
	case "pdf":
		return w.extractPDF(ctx, req, loanID, docID, now)
	default:
		return nil, "", core.Validation(fmt.Errorf("unsupported fileType %q", req.FileType))
	}
}

func (w *IntakeWorker) extractPDF(ctx context.Context, req *Request, loanID, docID string, now time.Time) ([]core.Candidate, core.DocType, error) {
	text, err := w.texts.LoadText(ctx, req.TenantID, loanID, docID)
	if err != nil {
		return nil, core.DocPDF, core.Transient(fmt.Errorf("load ocr text: %w", err))
	}

	docType, ok := ClassifyText(text)
	if !ok {
		return nil, core.DocPDF, core.Validation(fmt.Errorf("could not classify pdf document %s", docID))
	}

	hits := w.extractor.Extract(ctx, req.TenantID, loanID, docID, docType)
	candidates := make([]core.Candidate, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		key := CanonicalKey(h.Key)
		if seen[key] {
			continue
		}
		seen[key] = true
		candidates = append(candidates, core.Candidate{
			Key:        key,
			Value:      h.Value,
			Source:     core.SourceDocumentParse,
			Confidence: 1.0,
			DocType:    docType,
			DocID:      docID,
			Page:       1,
			Evidence: core.Evidence{
				TextHash: lineage.HashText(h.EvidenceText),
				Snippet:  h.EvidenceText,
			},
			ExtractorVersion: extract.ExtractorVersion,
			Timestamp:        now,
		})
	}

	// AI fallback fills only the keys the regex pass missed.
	if w.aiExtract != nil {
		if pack, ok := ai.PackFor(docType); ok {
			var missing []string
			for _, f := range pack.Fields {
				if !seen[f] {
					missing = append(missing, f)
				}
			}
			if len(missing) > 0 {
				slices := []ai.TextSlice{{DocID: docID, Page: 1, Text: text}}
				aiCandidates, err := w.aiExtract.Extract(ctx, docType, slices, missing)
				if err != nil {
					w.logger.Printf("⚠️  AI fallback failed for %s: %v", docID, err)
				} else {
					candidates = append(candidates, aiCandidates...)
				}
			}
		}
	}

	return candidates, docType, nil
}

// wrapParsed turns a raw parsed map into document_parse candidates at the
// structured-input confidence.
func wrapParsed(raw map[string]any, docType core.DocType, docID string, now time.Time) []core.Candidate {
	out := make([]core.Candidate, 0, len(raw))
	for key, value := range raw {
		out = append(out, core.Candidate{
			Key:        key,
			Value:      value,
			Source:     core.SourceDocumentParse,
			Confidence: 0.8,
			DocType:    docType,
			DocID:      docID,
			Timestamp:  now,
		})
	}
	return out
}

// overlayDirectives appends investor directives first, then escrow
// instructions for keys no investor directive already set.
func overlayDirectives(candidates []core.Candidate, investor, escrow []core.Directive) []core.Candidate {
	now := time.Now().UTC()

	setByInvestor := make(map[string]bool, len(investor))
	for _, d := range investor {
		key := NormalizeKey(d.Key)
		setByInvestor[key] = true
		candidates = append(candidates, core.Candidate{
			Key:        key,
			Value:      d.Value,
			Source:     core.SourceInvestorDirective,
			Confidence: 1.0,
			Timestamp:  now,
		})
	}
	for _, d := range escrow {
		key := NormalizeKey(d.Key)
		if setByInvestor[key] {
			continue
		}
		candidates = append(candidates, core.Candidate{
			Key:        key,
			Value:      d.Value,
			Source:     core.SourceEscrowInstruction,
			Confidence: 1.0,
			Timestamp:  now,
		})
	}
	return candidates
}

func findWinner(group []core.Candidate, sourceKey string) core.Candidate {
	for _, c := range group {
		if c.SourceKey() == sourceKey {
			return c
		}
	}
	return group[0]
}

var _ worker.Worker = (*IntakeWorker)(nil)
