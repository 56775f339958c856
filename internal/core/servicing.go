package core

import "time"

// ============================================================================
// OUTBOX
// ============================================================================

// OutboxMessage is written in the same transaction as the domain change and
// drained to the broker later. PublishedAt is set exactly when the broker
// acks; until then the row is re-publishable.
type OutboxMessage struct {
	ID            string     `db:"id" json:"id"`
	TenantID      string     `db:"tenant_id" json:"tenant_id"`
	AggregateType string     `db:"aggregate_type" json:"aggregate_type"`
	AggregateID   string     `db:"aggregate_id" json:"aggregate_id"`
	EventType     string     `db:"event_type" json:"event_type"`
	Payload       []byte     `db:"payload" json:"payload"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
	Attempts      int        `db:"attempts" json:"attempts"`
}

// ============================================================================
// INVESTOR HOLDINGS & REMITTANCE
// ============================================================================

// InvestorHolding is an investor's participation share in a loan plus fee
// and strip terms. (tenantId, investorId, loanId) is unique.
type InvestorHolding struct {
	TenantID         string  `db:"tenant_id" json:"tenant_id"`
	InvestorID       string  `db:"investor_id" json:"investor_id"`
	LoanID           string  `db:"loan_id" json:"loan_id"`
	ParticipationPct float64 `db:"participation_pct" json:"participation_pct"`
	SvcFeeBps        int     `db:"svc_fee_bps" json:"svc_fee_bps"`
	StripBps         int     `db:"strip_bps" json:"strip_bps"`
	PassEscrow       bool    `db:"pass_escrow" json:"pass_escrow"`
	AccrualBasis     string  `db:"accrual_basis" json:"accrual_basis"`
	Active           bool    `db:"active" json:"active"`
}

// RemitRunStatus is the lifecycle of one remittance run. A failed run can be
// reclaimed by a later invocation for the same period; running and completed
// runs cannot.
type RemitRunStatus string

const (
	RunRunning   RemitRunStatus = "running"
	RunCompleted RemitRunStatus = "completed"
	RunFailed    RemitRunStatus = "failed"
)

// RemittanceRun is unique per (tenant, investor, periodStart, periodEnd).
type RemittanceRun struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	InvestorID  string    `db:"investor_id" json:"investor_id"`
	PeriodStart string    `db:"period_start" json:"period_start"` // YYYY-MM-DD
	PeriodEnd   string    `db:"period_end" json:"period_end"`
	Cutoff      string    `db:"cutoff" json:"cutoff"`
	StatementURI string   `db:"statement_uri" json:"statement_uri"`
	StatementSHA string   `db:"statement_sha256" json:"statement_sha256"`
	Status      RemitRunStatus `db:"status" json:"status"`
	Error       string    `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RemittanceItem is one held loan's activity inside a run.
type RemittanceItem struct {
	ID        string  `db:"id" json:"id"`
	RunID     string  `db:"run_id" json:"run_id"`
	TenantID  string  `db:"tenant_id" json:"tenant_id"`
	LoanID    string  `db:"loan_id" json:"loan_id"`
	UPBBegin  float64 `db:"upb_begin" json:"upb_begin"`
	UPBEnd    float64 `db:"upb_end" json:"upb_end"`
	Principal float64 `db:"principal" json:"principal"`
	Interest  float64 `db:"interest" json:"interest"`
	Escrow    float64 `db:"escrow" json:"escrow"`
	Fees      float64 `db:"fees" json:"fees"`
	SvcFee    float64 `db:"svc_fee" json:"svc_fee"`
	StripIO   float64 `db:"strip_io" json:"strip_io"`
	NetRemit  float64 `db:"net_remit" json:"net_remit"`
}

// PayoutStatus is the remittance payout lifecycle.
type PayoutStatus string

const (
	PayoutRequested PayoutStatus = "Requested"
	PayoutSent      PayoutStatus = "Sent"
	PayoutSettled   PayoutStatus = "Settled"
	PayoutFailed    PayoutStatus = "Failed"
)

// RemittancePayout is the money movement record for a run.
type RemittancePayout struct {
	ID         string       `db:"id" json:"id"`
	RunID      string       `db:"run_id" json:"run_id"`
	TenantID   string       `db:"tenant_id" json:"tenant_id"`
	InvestorID string       `db:"investor_id" json:"investor_id"`
	Amount     float64      `db:"amount" json:"amount"`
	Currency   string       `db:"currency" json:"currency"`
	Method     string       `db:"method" json:"method"`
	Reference  string       `db:"reference" json:"reference"`
	Status     PayoutStatus `db:"status" json:"status"`
	Error      string       `db:"error" json:"error,omitempty"`
	SentAt     *time.Time   `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// GLEntry is one side of a double-entry posting.
type GLEntry struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	Account   string    `db:"account" json:"account"`
	Debit     float64   `db:"debit" json:"debit"`
	Credit    float64   `db:"credit" json:"credit"`
	Memo      string    `db:"memo" json:"memo"`
	RefType   string    `db:"ref_type" json:"ref_type"`
	RefID     string    `db:"ref_id" json:"ref_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LedgerAllocation is an in-period PAYMENT or ADJUSTMENT split from the
// servicing ledger.
type LedgerAllocation struct {
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	LoanID    string    `db:"loan_id" json:"loan_id"`
	TxnType   string    `db:"txn_type" json:"txn_type"` // PAYMENT or ADJUSTMENT
	Principal float64   `db:"principal" json:"principal"`
	Interest  float64   `db:"interest" json:"interest"`
	Escrow    float64   `db:"escrow" json:"escrow"`
	Fees      float64   `db:"fees" json:"fees"`
	EffectiveDate time.Time `db:"effective_date" json:"effective_date"`
}

// ScheduleRow is one amortization schedule entry for UPB lookups.
type ScheduleRow struct {
	TenantID              string    `db:"tenant_id" json:"tenant_id"`
	LoanID                string    `db:"loan_id" json:"loan_id"`
	DueDate               time.Time `db:"due_date" json:"due_date"`
	PrincipalBalanceAfter float64   `db:"principal_balance_after" json:"principal_balance_after"`
}

// ============================================================================
// EXPORTS
// ============================================================================

// ExportStatus is the Export lifecycle.
type ExportStatus string

const (
	ExportQueued    ExportStatus = "queued"
	ExportRunning   ExportStatus = "running"
	ExportSucceeded ExportStatus = "succeeded"
	ExportFailed    ExportStatus = "failed"
)

// ExportRecord is a (tenant, loan, template) export submission.
type ExportRecord struct {
	ID            string       `db:"id" json:"id"`
	TenantID      string       `db:"tenant_id" json:"tenant_id"`
	LoanID        string       `db:"loan_id" json:"loan_id"`
	Template      string       `db:"template" json:"template"`
	Status        ExportStatus `db:"status" json:"status"`
	FileURI       string       `db:"file_uri" json:"file_uri"`
	FileSHA256    string       `db:"file_sha256" json:"file_sha256"`
	Errors        []string     `db:"-" json:"errors,omitempty"`
	MapperVersion string       `db:"mapper_version" json:"mapper_version"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}
