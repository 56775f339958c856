package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/loanserve/backend/internal/core"
)

// GetOrCreateLoan returns the LoanCandidate for a URN, creating it in
// `ingesting` status if absent. Accepted loans are returned as-is; the
// caller decides whether a new import cycle re-opens them.
func (s *SQLStore) GetOrCreateLoan(ctx context.Context, tenantID, urn string) (*core.LoanCandidate, error) {
	var loan core.LoanCandidate
	err := s.db.GetContext(ctx, &loan,
		`SELECT id, tenant_id, urn, status, created_at, updated_at
		 FROM loan_candidates WHERE tenant_id = $1 AND urn = $2`, tenantID, urn)
	if err == nil {
		return &loan, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup loan %s: %w", urn, err)
	}

	loan = core.LoanCandidate{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		URN:       urn,
		Status:    core.LoanIngesting,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO loan_candidates (id, tenant_id, urn, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, urn) DO NOTHING`,
		loan.ID, loan.TenantID, loan.URN, loan.Status, loan.CreatedAt, loan.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create loan %s: %w", urn, err)
	}

	// Re-read in case a concurrent intake won the insert race.
	if err := s.db.GetContext(ctx, &loan,
		`SELECT id, tenant_id, urn, status, created_at, updated_at
		 FROM loan_candidates WHERE tenant_id = $1 AND urn = $2`, tenantID, urn); err != nil {
		return nil, fmt.Errorf("reread loan %s: %w", urn, err)
	}
	return &loan, nil
}

// SetLoanStatus transitions a loan's lifecycle state.
func (s *SQLStore) SetLoanStatus(ctx context.Context, tenantID, loanID string, status core.LoanStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE loan_candidates SET status = $1, updated_at = $2
		 WHERE tenant_id = $3 AND id = $4 AND status <> 'accepted'`,
		status, time.Now().UTC(), tenantID, loanID)
	if err != nil {
		return fmt.Errorf("set loan status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("loan %s not found or accepted (immutable)", loanID)
	}
	return nil
}

// InsertDocument stores a Document row. The SHA-256 is the idempotency key:
// re-uploading the same bytes for the same loan returns the existing row.
func (s *SQLStore) InsertDocument(ctx context.Context, doc *core.Document) (*core.Document, bool, error) {
	var existing core.Document
	err := s.db.GetContext(ctx, &existing,
		`SELECT id, tenant_id, loan_id, storage_uri, sha256, doc_type, page_count, created_at
		 FROM documents WHERE tenant_id = $1 AND loan_id = $2 AND sha256 = $3`,
		doc.TenantID, doc.LoanID, doc.SHA256)
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("lookup document by sha: %w", err)
	}

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, tenant_id, loan_id, storage_uri, sha256, doc_type, page_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID, doc.TenantID, doc.LoanID, doc.StorageURI, doc.SHA256, doc.DocType, doc.PageCount, doc.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert document: %w", err)
	}
	return doc, true, nil
}

// TombstoneDocument marks a document deleted without breaking lineage: the
// row survives with a tombstone flag so textHash verification of prior
// evidence still works.
func (s *SQLStore) TombstoneDocument(ctx context.Context, tenantID, docID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE documents SET tombstoned = TRUE WHERE tenant_id = $1 AND id = $2`,
		tenantID, docID)
	if err != nil {
		return fmt.Errorf("tombstone document %s: %w", docID, err)
	}
	return nil
}

// SaveDefects replaces the defects for a loan from the latest validation run.
func (s *SQLStore) SaveDefects(ctx context.Context, tenantID, loanID string, defects []core.Defect) error {
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM defects WHERE tenant_id = $1 AND loan_id = $2`, tenantID, loanID); err != nil {
			return fmt.Errorf("clear defects: %w", err)
		}
		for _, d := range defects {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO defects (id, tenant_id, loan_id, key, severity, rule, message, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				d.ID, d.TenantID, d.LoanID, d.Key, d.Severity, d.Rule, d.Message, d.CreatedAt); err != nil {
				return fmt.Errorf("insert defect: %w", err)
			}
		}
		return nil
	})
}

// LoadDefects returns defects for a loan.
func (s *SQLStore) LoadDefects(ctx context.Context, tenantID, loanID string) ([]core.Defect, error) {
	var defects []core.Defect
	err := s.db.SelectContext(ctx, &defects,
		`SELECT id, tenant_id, loan_id, key, severity, rule, message, created_at
		 FROM defects WHERE tenant_id = $1 AND loan_id = $2 ORDER BY created_at`, tenantID, loanID)
	if err != nil {
		return nil, fmt.Errorf("load defects: %w", err)
	}
	return defects, nil
}
