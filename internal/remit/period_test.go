package remit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePeriodMonthly(t *testing.T) {
	asOf := time.Date(2025, 9, 18, 10, 30, 0, 0, time.UTC)
	p, err := ComputePeriod(CadenceMonthly, asOf, 2)
	require.NoError(t, err)

	assert.Equal(t, "2025-09-01", p.StartDate())
	assert.Equal(t, "2025-09-30", p.EndDate())
	// 2025-09-30 is a Tuesday; two business days later is Thursday.
	assert.Equal(t, "2025-10-02", p.CutoffDate())
}

func TestComputePeriodMonthlyCutoffSkipsWeekend(t *testing.T) {
	// October 2025 ends on a Friday; two business days forward crosses the
	// weekend to Tuesday.
	asOf := time.Date(2025, 10, 5, 0, 0, 0, 0, time.UTC)
	p, err := ComputePeriod(CadenceMonthly, asOf, 2)
	require.NoError(t, err)

	assert.Equal(t, "2025-10-31", p.EndDate())
	assert.Equal(t, "2025-11-04", p.CutoffDate())
}

func TestComputePeriodWeekly(t *testing.T) {
	// Wednesday 2025-09-17 falls in the week ending Friday 2025-09-19.
	asOf := time.Date(2025, 9, 17, 0, 0, 0, 0, time.UTC)
	p, err := ComputePeriod(CadenceWeekly, asOf, 2)
	require.NoError(t, err)

	assert.Equal(t, time.Friday, p.End.Weekday())
	assert.Equal(t, "2025-09-19", p.EndDate())
	assert.Equal(t, "2025-09-13", p.StartDate())
	assert.Equal(t, "2025-09-23", p.CutoffDate())
}

func TestComputePeriodWeeklyOnFriday(t *testing.T) {
	asOf := time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC)
	p, err := ComputePeriod(CadenceWeekly, asOf, 2)
	require.NoError(t, err)
	assert.Equal(t, "2025-09-19", p.EndDate())
}

func TestComputePeriodUnknownCadence(t *testing.T) {
	_, err := ComputePeriod(Cadence("DAILY"), time.Now(), 2)
	assert.Error(t, err)
}

func TestAddBusinessDays(t *testing.T) {
	// Friday + 1 business day = Monday.
	friday := time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 9, 22, 0, 0, 0, 0, time.UTC), AddBusinessDays(friday, 1))

	// Saturday start still counts only weekdays.
	saturday := time.Date(2025, 9, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 9, 23, 0, 0, 0, 0, time.UTC), AddBusinessDays(saturday, 2))

	// Zero is the identity.
	assert.Equal(t, friday, AddBusinessDays(friday, 0))
}
