package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/loanserve/backend/internal/core"
)

// CreateExport inserts a queued export submission.
func (s *SQLStore) CreateExport(ctx context.Context, tenantID, loanID, template, mapperVersion string) (*core.ExportRecord, error) {
	rec := &core.ExportRecord{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		LoanID:        loanID,
		Template:      template,
		Status:        core.ExportQueued,
		MapperVersion: mapperVersion,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exports (id, tenant_id, loan_id, template, status, mapper_version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.TenantID, rec.LoanID, rec.Template, rec.Status, rec.MapperVersion, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert export: %w", err)
	}
	return rec, nil
}

// MarkExportRunning transitions an export to running.
func (s *SQLStore) MarkExportRunning(ctx context.Context, exportID string) error {
	return s.setExportStatus(ctx, exportID, core.ExportRunning, "", "", nil)
}

// MarkExportSucceeded records the stored file and its hash.
func (s *SQLStore) MarkExportSucceeded(ctx context.Context, exportID, fileURI, fileSHA string) error {
	return s.setExportStatus(ctx, exportID, core.ExportSucceeded, fileURI, fileSHA, nil)
}

// MarkExportFailed records the structured error list. Deterministic failures
// are terminal; the worker does not retry them.
func (s *SQLStore) MarkExportFailed(ctx context.Context, exportID string, errs []string) error {
	return s.setExportStatus(ctx, exportID, core.ExportFailed, "", "", errs)
}

func (s *SQLStore) setExportStatus(ctx context.Context, exportID string, status core.ExportStatus, fileURI, fileSHA string, errs []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE exports SET status = $1,
		       file_uri = CASE WHEN $2 <> '' THEN $2 ELSE file_uri END,
		       file_sha256 = CASE WHEN $3 <> '' THEN $3 ELSE file_sha256 END,
		       errors = $4,
		       updated_at = $5
		WHERE id = $6`,
		status, fileURI, fileSHA, pq.Array(errs), time.Now().UTC(), exportID)
	if err != nil {
		return fmt.Errorf("set export %s status %s: %w", exportID, status, err)
	}
	return nil
}
