/*
Package recurrence materializes concrete invoices from recurring templates.

PURPOSE:
  Given the templates marked recurring, periodically create the next invoice
  occurrence that is due, never generating the same occurrence twice and
  without any "next run" bookkeeping: the due state is derived entirely from
  the existing invoice records.

COMPONENTS:
  Calculator:   pure (template, latest occurrence, now) -> due date or not due
  Materializer: builds and inserts one occurrence from a template
  Driver:       one pass over every active template
  Scheduler:    runs the driver daily (cron) or on demand

FLOW:
  Scheduler.RunNow -> Driver.Run -> for each template:
      RecordStore.FindOne(latest occurrence) -> Calculator -> Materializer -> RecordStore.Insert

IDEMPOTENCY:
  The occurrence number is "<template number>-<YYYY-MM-DD>". The latest
  occurrence found by prefix is the baseline for the next candidate, so once a
  date is generated the next run computes a later date. A racing duplicate is
  rejected by the store's unique (owner, client, number) index.

SEE ALSO:
  - invoice/store.go: RecordStore
  - store/sqlite/sqlite.go: production store
*/
package recurrence

import (
	"time"

	"github.com/warp/invoicepro/invoice"
)

// =============================================================================
// STEP MODE
// =============================================================================

// StepMode selects how a frequency advances a date.
type StepMode string

const (
	// StepFixedDays adds a fixed number of days: weekly 7, bi-weekly 14,
	// monthly 30, quarterly 90, yearly 365.
	StepFixedDays StepMode = "fixed_days"

	// StepCalendar adds calendar months/years for monthly, quarterly and
	// yearly, preserving the day of month where it exists.
	StepCalendar StepMode = "calendar"
)

func (m StepMode) Valid() bool {
	return m == StepFixedDays || m == StepCalendar
}

// IncrementDays returns the fixed-day increment of a frequency. Unknown
// frequencies yield 0.
func IncrementDays(f invoice.Frequency) int {
	switch f {
	case invoice.FrequencyWeekly:
		return 7
	case invoice.FrequencyBiWeekly:
		return 14
	case invoice.FrequencyMonthly:
		return 30
	case invoice.FrequencyQuarterly:
		return 90
	case invoice.FrequencyYearly:
		return 365
	default:
		return 0
	}
}

// =============================================================================
// CALCULATOR
// =============================================================================

// DueResult is the outcome of ComputeNextDue. Candidate is always set; Due
// reports whether it should be generated now.
type DueResult struct {
	Due       bool
	Candidate invoice.Date

	// Degenerate is set when the template's frequency is unrecognized and the
	// candidate never advances past the base date.
	Degenerate bool
}

// Calculator computes the next occurrence of a template. It has no side effects.
type Calculator struct {
	Mode StepMode
}

// Step advances from by one period of f.
func (c Calculator) Step(from invoice.Date, f invoice.Frequency) invoice.Date {
	if c.Mode == StepCalendar {
		switch f {
		case invoice.FrequencyMonthly:
			return from.AddMonths(1)
		case invoice.FrequencyQuarterly:
			return from.AddMonths(3)
		case invoice.FrequencyYearly:
			return from.AddYears(1)
		}
	}
	return from.AddDays(IncrementDays(f))
}

// ComputeNextDue decides whether the occurrence after latest (or after the
// template itself when latest is nil) is due at now.
//
// Due iff date(now) >= candidate and candidate <= template end date.
// date(now) is taken in now's own location.
func (c Calculator) ComputeNextDue(template invoice.Invoice, latest *invoice.Invoice, now time.Time) DueResult {
	base := template.OccurrenceDate
	if latest != nil {
		base = latest.OccurrenceDate
	}

	candidate := c.Step(base, template.RecurringFrequency)
	result := DueResult{
		Candidate:  candidate,
		Degenerate: !template.RecurringFrequency.Valid(),
	}

	if template.RecurringEndDate == nil {
		return result
	}
	today := invoice.DateOf(now)
	result.Due = today.AfterOrEqual(candidate) && template.RecurringEndDate.AfterOrEqual(candidate)
	return result
}
