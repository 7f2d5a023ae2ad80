/*
Package invoice provides the domain model shared by the storage layer, the
recurrence engine and the HTTP API.

KEY CONCEPTS IN THIS FILE (types.go):
  - Invoice: the only persisted entity. A record with IsRecurring=true is a
    template; IsRecurring=false is an ordinary invoice or a generated occurrence.
  - Frequency: the recurrence cadence of a template
  - LineItem: billable line, priced with decimal.Decimal
  - Client: the billed party referenced by Invoice.ClientRef

PAYLOAD:
  Line items, totals, notes, status, currency and due date are carried
  verbatim from a template to each occurrence. The recurrence engine never
  interprets them.

SEE ALSO:
  - date.go: calendar Date type
  - store.go: RecordStore interface and query filters
  - recurrence/: the engine that materializes occurrences
*/
package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FREQUENCY
// =============================================================================

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiWeekly  Frequency = "bi-weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// Frequencies lists every recognized frequency in ascending period length.
var Frequencies = []Frequency{
	FrequencyWeekly,
	FrequencyBiWeekly,
	FrequencyMonthly,
	FrequencyQuarterly,
	FrequencyYearly,
}

func (f Frequency) Valid() bool {
	for _, known := range Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFrequency normalizes case and rejects unknown values.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown recurring frequency %q", ErrInvalidInvoice, s)
	}
	return f, nil
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusDraft   Status = "draft"
	StatusSent    Status = "sent"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

// =============================================================================
// LINE ITEMS
// =============================================================================

type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

// Amount is Quantity × Rate.
func (li LineItem) Amount() decimal.Decimal {
	return li.Quantity.Mul(li.Rate)
}

// =============================================================================
// INVOICE
// =============================================================================

// Invoice is the single record type of the system.
type Invoice struct {
	ID            string
	Owner         string // account the record belongs to
	ClientRef     string // billed party
	InvoiceNumber string

	// OccurrenceDate is the invoice's effective date.
	OccurrenceDate Date
	// CreatedAt is when the record was persisted.
	CreatedAt time.Time
	UpdatedAt time.Time

	IsRecurring        bool
	RecurringFrequency Frequency // templates only
	RecurringEndDate   *Date     // templates only; nil = not eligible for generation

	// SourceTemplateID links a generated occurrence back to its template.
	SourceTemplateID string

	// Opaque payload
	DueDate  *Date
	Items    []LineItem
	Notes    string
	Status   Status
	Currency string
	TaxRate  decimal.Decimal // percent, e.g. 19 for 19%
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// IsTemplate reports whether the record is an active recurring template,
// i.e. recurring with an end date set.
func (inv Invoice) IsTemplate() bool {
	return inv.IsRecurring && inv.RecurringEndDate != nil
}

// OccurrencePrefix is the invoice number prefix shared by every occurrence
// generated from this template.
func (inv Invoice) OccurrencePrefix() string {
	return inv.InvoiceNumber + "-"
}

// OccurrenceNumber is the deterministic invoice number of the occurrence of
// this template dated on.
func (inv Invoice) OccurrenceNumber(on Date) string {
	return inv.OccurrencePrefix() + on.String()
}

// ComputeTotals derives Subtotal, Tax and Total from the line items and TaxRate.
func (inv *Invoice) ComputeTotals() {
	subtotal := decimal.Zero
	for _, item := range inv.Items {
		subtotal = subtotal.Add(item.Amount())
	}
	inv.Subtotal = subtotal
	inv.Tax = subtotal.Mul(inv.TaxRate).Div(hundred).Round(2)
	inv.Total = inv.Subtotal.Add(inv.Tax)
}

// Validate checks the structural rules every stored invoice must satisfy.
func (inv Invoice) Validate() error {
	if inv.Owner == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidInvoice)
	}
	if inv.ClientRef == "" {
		return fmt.Errorf("%w: client is required", ErrInvalidInvoice)
	}
	if inv.OccurrenceDate.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInvoice)
	}
	if inv.IsRecurring {
		if inv.InvoiceNumber == "" {
			return fmt.Errorf("%w: recurring invoices need an invoice number", ErrInvalidInvoice)
		}
		if !inv.RecurringFrequency.Valid() {
			return fmt.Errorf("%w: unknown recurring frequency %q", ErrInvalidInvoice, inv.RecurringFrequency)
		}
		if inv.RecurringEndDate != nil && inv.RecurringEndDate.Before(inv.OccurrenceDate) {
			return fmt.Errorf("%w: recurring end date %s is before invoice date %s",
				ErrInvalidInvoice, inv.RecurringEndDate, inv.OccurrenceDate)
		}
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// =============================================================================
// CLIENT
// =============================================================================

// Client is a billed party.
type Client struct {
	ID        string
	Owner     string
	Name      string
	Email     string
	Phone     string
	Address   string
	CreatedAt time.Time
}

// BusinessInfo is an owner's own business profile, printed on invoices.
// DefaultCurrency applies to new invoices that name no currency.
type BusinessInfo struct {
	Owner           string
	Name            string
	Address         string
	Email           string
	Phone           string
	Website         string
	DefaultCurrency string
	TaxRate         decimal.Decimal
	BrandColor      string
	UpdatedAt       time.Time
}
