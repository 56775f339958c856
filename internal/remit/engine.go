package remit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loanserve/backend/internal/audit"
	"github.com/loanserve/backend/internal/config"
	"github.com/loanserve/backend/internal/core"
	"github.com/loanserve/backend/internal/storage"
)

// Store is the persistence surface the engine needs.
type Store interface {
	ActiveHoldings(ctx context.Context, tenantID, investorID string) ([]core.InvestorHolding, error)
	SumAllocations(ctx context.Context, tenantID, loanID string, periodStart, periodEnd time.Time) (core.LedgerAllocation, error)
	UPBAsOf(ctx context.Context, tenantID, loanID string, asOf time.Time, inclusive bool) (float64, bool, error)
	InsertRun(ctx context.Context, run *core.RemittanceRun) error
	UpdateRunStatus(ctx context.Context, runID string, status core.RemitRunStatus, errMsg string) error
	UpdateRunStatement(ctx context.Context, runID, uri, sha string) error
	InsertItems(ctx context.Context, items []core.RemittanceItem) error
	InsertPayout(ctx context.Context, p *core.RemittancePayout) error
	UpdatePayoutStatus(ctx context.Context, payoutID string, status core.PayoutStatus, errMsg string) error
	InsertGLEntries(ctx context.Context, entries []core.GLEntry) error
}

// RunResult is what one engine invocation produced. Skipped means a run for
// the same period already exists and nothing was written.
type RunResult struct {
	Skipped bool                   `json:"skipped"`
	Run     *core.RemittanceRun    `json:"run,omitempty"`
	Items   []core.RemittanceItem  `json:"items,omitempty"`
	Payout  *core.RemittancePayout `json:"payout,omitempty"`
}

// Engine drives one remittance run per (investor, period).
type Engine struct {
	store   Store
	docs    storage.DocStore
	sink    *audit.Sink
	payer   *PayoutSender
	cfg     config.RemittanceConfig
	logger  *log.Logger
	now     func() time.Time
}

func NewEngine(store Store, docs storage.DocStore, sink *audit.Sink, payer *PayoutSender, cfg config.RemittanceConfig) *Engine {
	return &Engine{
		store:  store,
		docs:   docs,
		sink:   sink,
		payer:  payer,
		cfg:    cfg,
		logger: log.New(log.Writer(), "[REMIT] ", log.LstdFlags),
		now:    time.Now,
	}
}

// WithClock fixes the engine clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run computes and persists one remittance for the period containing asOf.
// Invoking it twice for the same period is safe: a running or completed run
// makes the second call return {skipped: true}, while a FAILED run is
// reclaimed and retried in full.
func (e *Engine) Run(ctx context.Context, tenantID, investorID string, asOf time.Time) (*RunResult, error) {
	if asOf.IsZero() {
		asOf = e.now().UTC()
	}

	period, err := ComputePeriod(Cadence(e.cfg.Cadence), asOf, e.cfg.GraceDaysBusiness)
	if err != nil {
		return nil, core.Validation(fmt.Errorf("compute period: %w", err))
	}

	run := &core.RemittanceRun{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		InvestorID:  investorID,
		PeriodStart: period.StartDate(),
		PeriodEnd:   period.EndDate(),
		Cutoff:      period.CutoffDate(),
		Status:      core.RunRunning,
		CreatedAt:   e.now().UTC(),
	}
	if err := e.store.InsertRun(ctx, run); err != nil {
		if errors.Is(err, storage.ErrDuplicateRun) {
			e.logger.Printf("Run for %s %s..%s already exists, skipping", investorID, run.PeriodStart, run.PeriodEnd)
			return &RunResult{Skipped: true}, nil
		}
		return nil, err
	}

	e.audit(ctx, tenantID, "REMIT.RUN_STARTED", run.ID, map[string]any{
		"investor_id":  investorID,
		"period_start": run.PeriodStart,
		"period_end":   run.PeriodEnd,
		"cutoff":       run.Cutoff,
	})

	result, err := e.settle(ctx, run, period, tenantID, investorID)
	if err != nil {
		// The failed status releases the period so a retry can reclaim it.
		if merr := e.store.UpdateRunStatus(ctx, run.ID, core.RunFailed, err.Error()); merr != nil {
			e.logger.Printf("❌ Could not mark run %s failed: %v", run.ID, merr)
		}
		run.Status = core.RunFailed
		e.audit(ctx, tenantID, "REMIT.RUN_FAILED", run.ID, map[string]any{
			"investor_id": investorID,
			"error":       err.Error(),
		})
		return nil, err
	}
	return result, nil
}

// settle does everything between the period claim and the payout. Any error
// leaves the run reclaimable.
func (e *Engine) settle(ctx context.Context, run *core.RemittanceRun, period Period, tenantID, investorID string) (*RunResult, error) {
	holdings, err := e.store.ActiveHoldings(ctx, tenantID, investorID)
	if err != nil {
		return nil, err
	}

	items := make([]core.RemittanceItem, 0, len(holdings))
	pctByLoan := make(map[string]float64, len(holdings))
	var total float64
	for _, h := range holdings {
		item, err := e.computeItem(ctx, run, h, period)
		if err != nil {
			return nil, fmt.Errorf("loan %s: %w", h.LoanID, err)
		}
		items = append(items, item)
		total += item.NetRemit
		pctByLoan[h.LoanID] += h.ParticipationPct
	}
	total = RoundHalfUp(total)

	// Oversold participation is a warning on the run, never a block.
	for loanID, pct := range pctByLoan {
		if pct > 1.0 {
			e.logger.Printf("⚠️  Loan %s participation sums to %.4f (>1.0)", loanID, pct)
			e.audit(ctx, tenantID, "REMIT.PARTICIPATION_OVERSOLD", run.ID, map[string]any{
				"loan_id":           loanID,
				"participation_sum": pct,
			})
		}
	}

	if err := e.store.InsertItems(ctx, items); err != nil {
		return nil, err
	}

	statementURI, statementSHA, err := e.writeStatement(ctx, run, items)
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdateRunStatement(ctx, run.ID, statementURI, statementSHA); err != nil {
		return nil, err
	}
	run.StatementURI = statementURI
	run.StatementSHA = statementSHA

	payout := &core.RemittancePayout{
		ID:         uuid.NewString(),
		RunID:      run.ID,
		TenantID:   tenantID,
		InvestorID: investorID,
		Amount:     total,
		Currency:   "USD",
		Method:     "ACH",
		Reference:  payoutReference(),
		Status:     core.PayoutRequested,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.store.InsertPayout(ctx, payout); err != nil {
		return nil, err
	}

	if err := e.postGL(ctx, tenantID, payout); err != nil {
		return nil, err
	}

	if err := e.store.UpdatePayoutStatus(ctx, payout.ID, core.PayoutSent, ""); err != nil {
		return nil, err
	}
	payout.Status = core.PayoutSent
	sent := e.now().UTC()
	payout.SentAt = &sent

	// Webhook failure never fails the payout.
	if e.payer != nil {
		if err := e.payer.Send(ctx, payout); err != nil {
			e.logger.Printf("⚠️  Payout webhook failed for %s: %v", payout.ID, err)
		}
	}

	// The payout is already out the door, so a failure here must not bubble
	// up and release the period for a reclaim.
	if err := e.store.UpdateRunStatus(ctx, run.ID, core.RunCompleted, ""); err != nil {
		e.logger.Printf("⚠️  Could not mark run %s completed: %v", run.ID, err)
	} else {
		run.Status = core.RunCompleted
	}

	e.audit(ctx, tenantID, "REMIT.RUN_COMPLETED", run.ID, map[string]any{
		"investor_id": investorID,
		"items":       len(items),
		"payout_id":   payout.ID,
		"amount":      payout.Amount,
	})
	e.logger.Printf("✅ Remittance %s: %d loans, payout %.2f %s", run.ID, len(items), payout.Amount, payout.Currency)

	return &RunResult{Run: run, Items: items, Payout: payout}, nil
}

func (e *Engine) computeItem(ctx context.Context, run *core.RemittanceRun, h core.InvestorHolding, period Period) (core.RemittanceItem, error) {
	alloc, err := e.store.SumAllocations(ctx, h.TenantID, h.LoanID, period.Start, period.End)
	if err != nil {
		return core.RemittanceItem{}, err
	}

	beg, begOK, err := e.store.UPBAsOf(ctx, h.TenantID, h.LoanID, period.Start, false)
	if err != nil {
		return core.RemittanceItem{}, err
	}
	if !begOK {
		beg = 0
	}
	end, endOK, err := e.store.UPBAsOf(ctx, h.TenantID, h.LoanID, period.End, true)
	if err != nil {
		return core.RemittanceItem{}, err
	}
	if !endOK {
		end = beg - alloc.Principal
		if end < 0 {
			end = 0
		}
	}

	avgUPB := (beg + end) / 2
	svcFee := SvcFee(avgUPB, h.SvcFeeBps, h.ParticipationPct)
	strip := SvcFee(avgUPB, h.StripBps, h.ParticipationPct)

	escrow := 0.0
	if h.PassEscrow {
		escrow = alloc.Escrow
	}
	net := RoundHalfUp((alloc.Principal+alloc.Interest+escrow)*h.ParticipationPct - svcFee - strip)

	return core.RemittanceItem{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		TenantID:  h.TenantID,
		LoanID:    h.LoanID,
		UPBBegin:  beg,
		UPBEnd:    end,
		Principal: alloc.Principal,
		Interest:  alloc.Interest,
		Escrow:    alloc.Escrow,
		Fees:      alloc.Fees,
		SvcFee:    svcFee,
		StripIO:   strip,
		NetRemit:  net,
	}, nil
}

func (e *Engine) writeStatement(ctx context.Context, run *core.RemittanceRun, items []core.RemittanceItem) (string, string, error) {
	data := StatementCSV(items)
	path := storage.RemittanceCSVPath(run.TenantID, run.InvestorID, run.PeriodStart, run.PeriodEnd)
	uri, err := e.docs.Put(ctx, path, data, "text/csv")
	if err != nil {
		return "", "", fmt.Errorf("store statement: %w", err)
	}
	sum := sha256.Sum256(data)
	return uri, hex.EncodeToString(sum[:]), nil
}

func (e *Engine) postGL(ctx context.Context, tenantID string, payout *core.RemittancePayout) error {
	now := e.now().UTC()
	memo := fmt.Sprintf("Investor remittance %s", payout.Reference)
	entries := []core.GLEntry{
		{
			ID: uuid.NewString(), TenantID: tenantID, Account: e.cfg.GLPayableAccount,
			Debit: payout.Amount, Memo: memo, RefType: "remittance_payout", RefID: payout.ID, CreatedAt: now,
		},
		{
			ID: uuid.NewString(), TenantID: tenantID, Account: e.cfg.GLCashAccount,
			Credit: payout.Amount, Memo: memo, RefType: "remittance_payout", RefID: payout.ID, CreatedAt: now,
		},
	}
	return e.store.InsertGLEntries(ctx, entries)
}

func payoutReference() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (e *Engine) audit(ctx context.Context, tenantID, eventType, runID string, payload map[string]any) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(ctx, tenantID, eventType, "system", "remittance-engine",
		fmt.Sprintf("urn:remittance:%s", runID), payload)
}
