package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/loanserve/backend/internal/core"
)

// ErrDuplicateRun is returned when a run for the same (tenant, investor,
// period) already exists. The remittance engine short-circuits on it.
var ErrDuplicateRun = errors.New("remittance run already exists for period")

// ActiveHoldings returns the investor's active loan participations.
func (s *SQLStore) ActiveHoldings(ctx context.Context, tenantID, investorID string) ([]core.InvestorHolding, error) {
	var holdings []core.InvestorHolding
	err := s.db.SelectContext(ctx, &holdings, `
		SELECT tenant_id, investor_id, loan_id, participation_pct, svc_fee_bps, strip_bps,
		       pass_escrow, accrual_basis, active
		FROM investor_holdings
		WHERE tenant_id = $1 AND investor_id = $2 AND active = TRUE
		ORDER BY loan_id`, tenantID, investorID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	return holdings, nil
}

// LoanParticipationTotal sums active participation across investors for one
// loan. Sums above 1.0 are detected, not blocked.
func (s *SQLStore) LoanParticipationTotal(ctx context.Context, tenantID, loanID string) (float64, error) {
	var total float64
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(participation_pct), 0)
		FROM investor_holdings
		WHERE tenant_id = $1 AND loan_id = $2 AND active = TRUE`, tenantID, loanID)
	if err != nil {
		return 0, fmt.Errorf("sum participation: %w", err)
	}
	return total, nil
}

// SumAllocations totals in-period PAYMENT and ADJUSTMENT splits for a loan.
func (s *SQLStore) SumAllocations(ctx context.Context, tenantID, loanID string, periodStart, periodEnd time.Time) (core.LedgerAllocation, error) {
	var agg core.LedgerAllocation
	err := s.db.GetContext(ctx, &agg, `
		SELECT COALESCE(SUM(principal),0) AS principal,
		       COALESCE(SUM(interest),0) AS interest,
		       COALESCE(SUM(escrow),0) AS escrow,
		       COALESCE(SUM(fees),0) AS fees
		FROM ledger_allocations
		WHERE tenant_id = $1 AND loan_id = $2
		  AND txn_type IN ('PAYMENT','ADJUSTMENT')
		  AND effective_date >= $3 AND effective_date <= $4`,
		tenantID, loanID, periodStart, periodEnd)
	if err != nil {
		return agg, fmt.Errorf("sum allocations: %w", err)
	}
	agg.TenantID = tenantID
	agg.LoanID = loanID
	return agg, nil
}

// UPBAsOf returns principal_balance_after of the last schedule row matching
// the comparison. inclusive selects due_date <= asOf, otherwise strict <.
func (s *SQLStore) UPBAsOf(ctx context.Context, tenantID, loanID string, asOf time.Time, inclusive bool) (float64, bool, error) {
	cmp := "<"
	if inclusive {
		cmp = "<="
	}
	var upb float64
	err := s.db.GetContext(ctx, &upb, fmt.Sprintf(`
		SELECT principal_balance_after FROM amortization_schedule
		WHERE tenant_id = $1 AND loan_id = $2 AND due_date %s $3
		ORDER BY due_date DESC LIMIT 1`, cmp),
		tenantID, loanID, asOf)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("upb lookup: %w", err)
	}
	return upb, true, nil
}

// InsertRun claims the period for a run. A fresh period inserts a 'running'
// row. If a prior run for the period FAILED, the claim takes it over: the row
// flips back to 'running', its stale items are purged, and run.ID is updated
// to the existing row's id. A running or completed run for the period maps to
// ErrDuplicateRun.
func (s *SQLStore) InsertRun(ctx context.Context, run *core.RemittanceRun) error {
	var id string
	err := s.db.GetContext(ctx, &id, `
		WITH claimed AS (
			INSERT INTO remittance_runs (id, tenant_id, investor_id, period_start, period_end, cutoff,
			                             statement_uri, statement_sha256, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'running',$9)
			ON CONFLICT (tenant_id, investor_id, period_start, period_end)
			DO UPDATE SET status = 'running', error = '', created_at = EXCLUDED.created_at
			WHERE remittance_runs.status = 'failed'
			RETURNING id
		), purged_items AS (
			DELETE FROM remittance_items WHERE run_id IN (SELECT id FROM claimed)
		), purged_gl AS (
			DELETE FROM gl_entries WHERE ref_type = 'remittance_payout' AND ref_id IN (
				SELECT id FROM remittance_payouts
				WHERE run_id IN (SELECT id FROM claimed) AND status = 'Requested')
		), purged_payouts AS (
			DELETE FROM remittance_payouts
			WHERE run_id IN (SELECT id FROM claimed) AND status = 'Requested'
		)
		SELECT id FROM claimed`,
		run.ID, run.TenantID, run.InvestorID, run.PeriodStart, run.PeriodEnd, run.Cutoff,
		run.StatementURI, run.StatementSHA, run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDuplicateRun
	}
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			// Two claims raced on a fresh period; the loser backs off.
			return ErrDuplicateRun
		}
		return fmt.Errorf("insert remittance run: %w", err)
	}
	run.ID = id
	run.Status = core.RunRunning
	return nil
}

// UpdateRunStatus drives the run state machine. errMsg is recorded for
// failed runs and cleared otherwise.
func (s *SQLStore) UpdateRunStatus(ctx context.Context, runID string, status core.RemitRunStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE remittance_runs SET status = $1, error = $2 WHERE id = $3`,
		status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// UpdateRunStatement records the stored statement location and hash.
func (s *SQLStore) UpdateRunStatement(ctx context.Context, runID, uri, sha string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE remittance_runs SET statement_uri = $1, statement_sha256 = $2 WHERE id = $3`,
		uri, sha, runID)
	if err != nil {
		return fmt.Errorf("update run statement: %w", err)
	}
	return nil
}

// InsertItems persists the per-loan items of a run.
func (s *SQLStore) InsertItems(ctx context.Context, items []core.RemittanceItem) error {
	for _, it := range items {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO remittance_items (id, run_id, tenant_id, loan_id, upb_begin, upb_end,
			                              principal, interest, escrow, fees, svc_fee, strip_io, net_remit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			it.ID, it.RunID, it.TenantID, it.LoanID, it.UPBBegin, it.UPBEnd,
			it.Principal, it.Interest, it.Escrow, it.Fees, it.SvcFee, it.StripIO, it.NetRemit)
		if err != nil {
			return fmt.Errorf("insert remittance item %s: %w", it.LoanID, err)
		}
	}
	return nil
}

// InsertPayout persists the payout row for a run.
func (s *SQLStore) InsertPayout(ctx context.Context, p *core.RemittancePayout) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO remittance_payouts (id, run_id, tenant_id, investor_id, amount, currency,
		                                method, reference, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.RunID, p.TenantID, p.InvestorID, p.Amount, p.Currency,
		p.Method, p.Reference, p.Status, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// UpdatePayoutStatus drives the payout state machine.
func (s *SQLStore) UpdatePayoutStatus(ctx context.Context, payoutID string, status core.PayoutStatus, errMsg string) error {
	var sentAt *time.Time
	if status == core.PayoutSent {
		now := time.Now().UTC()
		sentAt = &now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE remittance_payouts SET status = $1, error = $2,
		       sent_at = COALESCE($3, sent_at)
		WHERE id = $4`, status, errMsg, sentAt, payoutID)
	if err != nil {
		return fmt.Errorf("update payout status: %w", err)
	}
	return nil
}

// InsertGLEntries posts both sides of a payout.
func (s *SQLStore) InsertGLEntries(ctx context.Context, entries []core.GLEntry) error {
	for _, e := range entries {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO gl_entries (id, tenant_id, account, debit, credit, memo, ref_type, ref_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			e.ID, e.TenantID, e.Account, e.Debit, e.Credit, e.Memo, e.RefType, e.RefID, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert gl entry: %w", err)
		}
	}
	return nil
}
