/*
store.go - Persistence interface for invoice records

PURPOSE:
  Defines the interface between the recurrence engine and the database.
  The engine only ever queries and inserts; it never updates or deletes.

KEY INTERFACES:
  RecordStore: find / findOne / insert
  TxStore:     RecordStore with a transaction spanning several operations

UNIQUENESS:
  Implementations reject a second record with the same
  (Owner, ClientRef, InvoiceNumber) with ErrDuplicateInvoiceNumber. This is
  what makes a racing duplicate occurrence fail loudly instead of silently
  coexisting.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - invoice/store/memory.go: In-memory for testing

SEE ALSO:
  - recurrence/driver.go: the only consumer inside the core
*/
package invoice

import (
	"context"
	"strings"
)

// =============================================================================
// STORE
// =============================================================================

// RecordStore handles persistence of invoice records.
type RecordStore interface {
	// Find returns every record matching the filter, in no particular order.
	Find(ctx context.Context, filter Filter) ([]Invoice, error)

	// FindOne returns the first record matching filter under sort, or nil
	// when nothing matches.
	FindOne(ctx context.Context, filter Filter, sort Sort) (*Invoice, error)

	// Insert persists a new record. It assigns ID when empty and CreatedAt
	// when zero, and returns the stored record.
	Insert(ctx context.Context, inv Invoice) (Invoice, error)
}

// TxStore wraps RecordStore with transaction support.
type TxStore interface {
	RecordStore

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(RecordStore) error) error
}

// =============================================================================
// FILTER
// =============================================================================

// Filter selects records. Zero-valued fields don't constrain the query.
type Filter struct {
	ID        string
	Owner     string
	ClientRef string

	IsRecurring         *bool
	HasRecurringEndDate *bool

	InvoiceNumber       string // exact match
	InvoiceNumberPrefix string // literal prefix match

	// DatedSuffix requires the number to be InvoiceNumberPrefix followed by
	// exactly one YYYY-MM-DD date.
	DatedSuffix bool

	// SourceTemplateID matches records generated from that template and
	// records with no template recorded.
	SourceTemplateID string

	OccurrenceFrom *Date // inclusive
	OccurrenceTo   *Date // inclusive
}

// TemplateFilter selects every active recurring template.
func TemplateFilter() Filter {
	return Filter{IsRecurring: Bool(true), HasRecurringEndDate: Bool(true)}
}

// OccurrenceFilter selects the generated occurrences of a template.
func OccurrenceFilter(template Invoice) Filter {
	return Filter{
		IsRecurring:         Bool(false),
		Owner:               template.Owner,
		ClientRef:           template.ClientRef,
		InvoiceNumberPrefix: template.OccurrencePrefix(),
		DatedSuffix:         true,
		SourceTemplateID:    template.ID,
	}
}

// Matches evaluates the filter in memory.
func (f Filter) Matches(inv Invoice) bool {
	if f.ID != "" && inv.ID != f.ID {
		return false
	}
	if f.Owner != "" && inv.Owner != f.Owner {
		return false
	}
	if f.ClientRef != "" && inv.ClientRef != f.ClientRef {
		return false
	}
	if f.IsRecurring != nil && inv.IsRecurring != *f.IsRecurring {
		return false
	}
	if f.HasRecurringEndDate != nil && (inv.RecurringEndDate != nil) != *f.HasRecurringEndDate {
		return false
	}
	if f.InvoiceNumber != "" && inv.InvoiceNumber != f.InvoiceNumber {
		return false
	}
	if f.InvoiceNumberPrefix != "" && !strings.HasPrefix(inv.InvoiceNumber, f.InvoiceNumberPrefix) {
		return false
	}
	if f.DatedSuffix {
		if _, err := ParseDate(strings.TrimPrefix(inv.InvoiceNumber, f.InvoiceNumberPrefix)); err != nil {
			return false
		}
	}
	if f.SourceTemplateID != "" && inv.SourceTemplateID != "" && inv.SourceTemplateID != f.SourceTemplateID {
		return false
	}
	if f.OccurrenceFrom != nil && inv.OccurrenceDate.Before(*f.OccurrenceFrom) {
		return false
	}
	if f.OccurrenceTo != nil && inv.OccurrenceDate.After(*f.OccurrenceTo) {
		return false
	}
	return true
}

// =============================================================================
// SORT
// =============================================================================

type SortField string

const (
	SortCreatedAt      SortField = "created_at"
	SortOccurrenceDate SortField = "occurrence_date"
)

type SortKey struct {
	Field      SortField
	Descending bool
}

// Sort is an ordered list of keys; later keys break ties of earlier ones.
type Sort []SortKey

// Less reports whether a sorts before b.
func (s Sort) Less(a, b Invoice) bool {
	for _, k := range s {
		c := compareField(k.Field, a, b)
		if c == 0 {
			continue
		}
		if k.Descending {
			return c > 0
		}
		return c < 0
	}
	return false
}

func compareField(field SortField, a, b Invoice) int {
	switch field {
	case SortOccurrenceDate:
		return a.OccurrenceDate.Time.Compare(b.OccurrenceDate.Time)
	case SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	default:
		return 0
	}
}

// Bool returns a pointer to b, for Filter fields.
func Bool(b bool) *bool { return &b }
