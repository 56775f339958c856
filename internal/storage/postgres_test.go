package storage

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanserve/backend/internal/core"
)

func mockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(sqlx.NewDb(db, "sqlmock")), mock
}

func sampleDatapoint() *core.Datapoint {
	return &core.Datapoint{
		TenantID:          "t1",
		LoanID:            "loan-1",
		Key:               "loan_amount",
		Value:             "250000",
		Confidence:        0.8,
		IngestSource:      "document_parse",
		AuthorityPriority: 648,
		LineageID:         "lin-abc",
	}
}

func TestUpsertDatapointChanged(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectExec("INSERT INTO datapoints").
		WillReturnResult(sqlmock.NewResult(0, 1))

	changed, err := store.UpsertDatapoint(context.Background(), sampleDatapoint())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertDatapointLowerPriorityIsNoop(t *testing.T) {
	store, mock := mockStore(t)

	// The monotone WHERE clause suppressed the update: zero rows affected.
	mock.ExpectExec("INSERT INTO datapoints").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := store.UpsertDatapoint(context.Background(), sampleDatapoint())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRunActivePeriodIsDuplicate(t *testing.T) {
	store, mock := mockStore(t)

	// The conflict target matched a running or completed row, so the claim
	// returns no id.
	mock.ExpectQuery("INSERT INTO remittance_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err := store.InsertRun(context.Background(), &core.RemittanceRun{
		ID: "run-1", TenantID: "t1", InvestorID: "inv-1",
		PeriodStart: "2025-09-01", PeriodEnd: "2025-09-30", Cutoff: "2025-10-02",
		CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateRun)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRunMapsUniqueViolation(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery("INSERT INTO remittance_runs").
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.InsertRun(context.Background(), &core.RemittanceRun{ID: "run-1"})
	assert.ErrorIs(t, err, ErrDuplicateRun)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRunSucceeds(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery("INSERT INTO remittance_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("run-1"))

	run := &core.RemittanceRun{ID: "run-1"}
	err := store.InsertRun(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, core.RunRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRunReclaimsFailedRun(t *testing.T) {
	store, mock := mockStore(t)

	// A failed run for the period exists: the claim flips it back to running
	// and hands back the existing row's id.
	mock.ExpectQuery("INSERT INTO remittance_runs").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("run-old"))

	run := &core.RemittanceRun{ID: "run-new", TenantID: "t1"}
	err := store.InsertRun(context.Background(), run)
	require.NoError(t, err)
	assert.Equal(t, "run-old", run.ID)
	assert.Equal(t, core.RunRunning, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRunStatus(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectExec("UPDATE remittance_runs SET status").
		WithArgs("failed", "connection reset", "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateRunStatus(context.Background(), "run-1", core.RunFailed, "connection reset")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUPBAsOf(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery("SELECT principal_balance_after FROM amortization_schedule").
		WithArgs("t1", "loan-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"principal_balance_after"}).AddRow(99500.25))

	upb, found, err := store.UPBAsOf(context.Background(), "t1", "loan-1", time.Now(), true)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 99500.25, upb)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUPBAsOfNoScheduleRow(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery("SELECT principal_balance_after FROM amortization_schedule").
		WillReturnRows(sqlmock.NewRows([]string{"principal_balance_after"}))

	upb, found, err := store.UPBAsOf(context.Background(), "t1", "loan-1", time.Now(), false)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, upb)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumAllocations(t *testing.T) {
	store, mock := mockStore(t)

	mock.ExpectQuery("FROM ledger_allocations").
		WithArgs("t1", "loan-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"principal", "interest", "escrow", "fees"}).
			AddRow(1000.0, 500.0, 200.0, 50.0))

	agg, err := store.SumAllocations(context.Background(), "t1", "loan-1",
		time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 9, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, agg.Principal)
	assert.Equal(t, 500.0, agg.Interest)
	assert.Equal(t, "t1", agg.TenantID)
	assert.Equal(t, "loan-1", agg.LoanID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
