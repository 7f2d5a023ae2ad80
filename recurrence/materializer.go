package recurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/invoicepro/invoice"
)

// Materializer persists occurrences derived from templates.
type Materializer struct {
	Store invoice.RecordStore
	Now   func() time.Time
}

// Build derives the occurrence record of template dated on. Identity is
// cleared, the recurring fields are dropped and the payload is copied as is.
func (m Materializer) Build(template invoice.Invoice, on invoice.Date) invoice.Invoice {
	occ := template
	occ.ID = ""
	occ.IsRecurring = false
	occ.RecurringFrequency = ""
	occ.RecurringEndDate = nil
	occ.SourceTemplateID = template.ID
	occ.OccurrenceDate = on
	occ.InvoiceNumber = template.OccurrenceNumber(on)
	occ.CreatedAt = m.now().UTC()
	occ.UpdatedAt = occ.CreatedAt

	occ.Items = append([]invoice.LineItem(nil), template.Items...)
	if template.DueDate != nil {
		due := *template.DueDate
		occ.DueDate = &due
	}
	return occ
}

// Materialize builds the occurrence of template dated on and inserts it.
func (m Materializer) Materialize(ctx context.Context, template invoice.Invoice, on invoice.Date) (invoice.Invoice, error) {
	if !template.IsRecurring {
		return invoice.Invoice{}, fmt.Errorf("%w: %s", invoice.ErrNotTemplate, template.ID)
	}

	stored, err := m.Store.Insert(ctx, m.Build(template, on))
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("insert occurrence %s: %w", template.OccurrenceNumber(on), err)
	}
	return stored, nil
}

func (m Materializer) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
