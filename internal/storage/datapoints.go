package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/loanserve/backend/internal/core"
	"github.com/loanserve/backend/internal/lineage"
)

// UpsertDatapoint writes the authoritative value for (loanId, key), but only
// if the new authority priority is at least the stored one. Returns whether
// the row changed. This is what makes intake replays idempotent and stored
// priority monotone.
func (s *SQLStore) UpsertDatapoint(ctx context.Context, dp *core.Datapoint) (bool, error) {
	dp.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO datapoints
			(tenant_id, loan_id, key, value, normalized_value, confidence, ingest_source,
			 autofilled_from, evidence_doc_id, evidence_page, evidence_text_hash,
			 extractor_version, prompt_version, authority_priority, lineage_id, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (tenant_id, loan_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			normalized_value = EXCLUDED.normalized_value,
			confidence = EXCLUDED.confidence,
			ingest_source = EXCLUDED.ingest_source,
			autofilled_from = EXCLUDED.autofilled_from,
			evidence_doc_id = EXCLUDED.evidence_doc_id,
			evidence_page = EXCLUDED.evidence_page,
			evidence_text_hash = EXCLUDED.evidence_text_hash,
			extractor_version = EXCLUDED.extractor_version,
			prompt_version = EXCLUDED.prompt_version,
			authority_priority = EXCLUDED.authority_priority,
			lineage_id = EXCLUDED.lineage_id,
			updated_at = EXCLUDED.updated_at
		WHERE datapoints.authority_priority <= EXCLUDED.authority_priority`,
		dp.TenantID, dp.LoanID, dp.Key, dp.Value, dp.NormalizedValue, dp.Confidence,
		dp.IngestSource, dp.AutofilledFrom, dp.EvidenceDocID, dp.EvidencePage,
		dp.EvidenceTextHash, dp.ExtractorVersion, dp.PromptVersion,
		dp.AuthorityPriority, dp.LineageID, dp.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("upsert datapoint %s/%s: %w", dp.LoanID, dp.Key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// LoadDatapoints returns the authoritative values for a loan keyed by field.
func (s *SQLStore) LoadDatapoints(ctx context.Context, tenantID, loanID string) (map[string]core.Datapoint, error) {
	var rows []core.Datapoint
	err := s.db.SelectContext(ctx, &rows, `
		SELECT tenant_id, loan_id, key, value, normalized_value, confidence, ingest_source,
		       autofilled_from, evidence_doc_id, evidence_page, evidence_text_hash,
		       extractor_version, prompt_version, authority_priority, lineage_id, updated_at
		FROM datapoints WHERE tenant_id = $1 AND loan_id = $2`, tenantID, loanID)
	if err != nil {
		return nil, fmt.Errorf("load datapoints: %w", err)
	}

	out := make(map[string]core.Datapoint, len(rows))
	for _, dp := range rows {
		out[dp.Key] = dp
	}
	return out, nil
}

// SaveLineage persists a lineage record as JSON. Lineage rows are
// append-only; the deterministic id makes replays upsert-no-ops.
func (s *SQLStore) SaveLineage(ctx context.Context, rec *lineage.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal lineage %s: %w", rec.LineageID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lineage_records (lineage_id, tenant_id, loan_id, field_name, record, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (lineage_id) DO NOTHING`,
		rec.LineageID, rec.TenantID, rec.LoanID, rec.FieldName, payload, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lineage %s: %w", rec.LineageID, err)
	}
	return nil
}

// LoadLineageForLoan rehydrates all lineage records for a loan into a
// tracker.
func (s *SQLStore) LoadLineageForLoan(ctx context.Context, tenantID, loanID string, tracker *lineage.Tracker) error {
	var payloads [][]byte
	err := s.db.SelectContext(ctx, &payloads, `
		SELECT record FROM lineage_records
		WHERE tenant_id = $1 AND loan_id = $2 ORDER BY created_at`, tenantID, loanID)
	if err != nil {
		return fmt.Errorf("load lineage: %w", err)
	}

	for _, p := range payloads {
		var rec lineage.Record
		if err := json.Unmarshal(p, &rec); err != nil {
			return fmt.Errorf("unmarshal lineage record: %w", err)
		}
		tracker.Put(&rec)
	}
	return nil
}
