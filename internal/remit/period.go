// Package remit computes investor remittances: period math, fee and strip
// calculation, payout creation, GL postings, the loan activity statement,
// and the signed payout webhook.
package remit

import (
	"fmt"
	"time"
)

// Cadence is the remittance schedule.
type Cadence string

const (
	CadenceMonthly Cadence = "MONTHLY"
	CadenceWeekly  Cadence = "WEEKLY"
)

// Period is one remittance window plus the business-day cutoff by which the
// statement must go out.
type Period struct {
	Start  time.Time
	End    time.Time
	Cutoff time.Time
}

func (p Period) StartDate() string { return p.Start.Format("2006-01-02") }
func (p Period) EndDate() string   { return p.End.Format("2006-01-02") }
func (p Period) CutoffDate() string { return p.Cutoff.Format("2006-01-02") }

// ComputePeriod derives the remittance window containing asOf. Monthly
// periods span the calendar month; weekly periods end on Friday and span
// the preceding Saturday through Friday. The cutoff is graceDays business
// days after the period end.
func ComputePeriod(cadence Cadence, asOf time.Time, graceDays int) (Period, error) {
	switch cadence {
	case CadenceMonthly:
		start := time.Date(asOf.Year(), asOf.Month(), 1, 0, 0, 0, 0, asOf.Location())
		end := start.AddDate(0, 1, -1)
		return Period{Start: start, End: end, Cutoff: AddBusinessDays(end, graceDays)}, nil
	case CadenceWeekly:
		end := asOf
		for end.Weekday() != time.Friday {
			end = end.AddDate(0, 0, 1)
		}
		end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, asOf.Location())
		start := end.AddDate(0, 0, -6)
		return Period{Start: start, End: end, Cutoff: AddBusinessDays(end, graceDays)}, nil
	default:
		return Period{}, fmt.Errorf("unknown cadence %q", cadence)
	}
}

// AddBusinessDays steps forward n weekdays, skipping Saturday and Sunday.
// Holidays are not observed.
func AddBusinessDays(from time.Time, n int) time.Time {
	d := from
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			added++
		}
	}
	return d
}
