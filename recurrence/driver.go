package recurrence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/invoicepro/invoice"
)

// =============================================================================
// BASELINE
// =============================================================================

// Baseline selects which existing occurrence counts as "latest".
type Baseline string

const (
	// BaselineCreatedAt picks the most recently inserted occurrence, breaking
	// ties by effective date.
	BaselineCreatedAt Baseline = "created_at"

	// BaselineOccurrenceDate picks the occurrence with the latest effective
	// date, breaking ties by creation time. Use it when occurrences may be
	// imported out of order.
	BaselineOccurrenceDate Baseline = "occurrence_date"
)

func (b Baseline) Valid() bool {
	return b == BaselineOccurrenceDate || b == BaselineCreatedAt
}

// Sort returns the store ordering for this baseline.
func (b Baseline) Sort() invoice.Sort {
	if b == BaselineCreatedAt {
		return invoice.Sort{
			{Field: invoice.SortCreatedAt, Descending: true},
			{Field: invoice.SortOccurrenceDate, Descending: true},
		}
	}
	return invoice.Sort{
		{Field: invoice.SortOccurrenceDate, Descending: true},
		{Field: invoice.SortCreatedAt, Descending: true},
	}
}

// =============================================================================
// SUMMARY
// =============================================================================

// TemplateError is a failure scoped to one template. It never aborts a run.
type TemplateError struct {
	TemplateID    string
	InvoiceNumber string
	Err           error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s (%s): %v", e.TemplateID, e.InvoiceNumber, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// Summary aggregates one driver run.
type Summary struct {
	Templates int
	Created   int
	Skipped   int      // templates evaluated as not due
	Generated []string // invoice numbers created
	Errors    []*TemplateError
}

// =============================================================================
// DRIVER
// =============================================================================

// Driver performs one generation pass over every active template.
type Driver struct {
	Store      invoice.RecordStore
	Calculator Calculator
	Baseline   Baseline

	// Now stamps CreatedAt on generated occurrences.
	Now func() time.Time

	log zerolog.Logger
}

// NewDriver creates a driver with fixed-day steps and the creation-time baseline.
func NewDriver(store invoice.RecordStore, log zerolog.Logger) *Driver {
	return &Driver{
		Store:      store,
		Calculator: Calculator{Mode: StepFixedDays},
		Baseline:   BaselineCreatedAt,
		Now:        time.Now,
		log:        log.With().Str("component", "recurrence.driver").Logger(),
	}
}

// Run evaluates every active template once at now and generates at most one
// occurrence per template.
//
// Only a failure to list templates is returned as an error (wrapping
// invoice.ErrStoreUnavailable). Per-template failures are collected in
// Summary.Errors and the pass continues.
func (d *Driver) Run(ctx context.Context, now time.Time) (Summary, error) {
	var summary Summary

	templates, err := d.Store.Find(ctx, invoice.TemplateFilter())
	if err != nil {
		return summary, fmt.Errorf("%w: listing recurring templates: %w", invoice.ErrStoreUnavailable, err)
	}
	summary.Templates = len(templates)

	for _, tmpl := range templates {
		created, err := d.processTemplate(ctx, tmpl, now)
		switch {
		case err != nil:
			tErr := &TemplateError{TemplateID: tmpl.ID, InvoiceNumber: tmpl.InvoiceNumber, Err: err}
			summary.Errors = append(summary.Errors, tErr)
			templateFailures.Inc()
			d.log.Error().
				Err(err).
				Str("template_id", tmpl.ID).
				Str("invoice_number", tmpl.InvoiceNumber).
				Str("owner", tmpl.Owner).
				Msg("recurring template failed")
		case created != nil:
			summary.Created++
			summary.Generated = append(summary.Generated, created.InvoiceNumber)
			occurrencesCreated.WithLabelValues(string(tmpl.RecurringFrequency)).Inc()
			d.log.Info().
				Str("template_id", tmpl.ID).
				Str("invoice_number", created.InvoiceNumber).
				Str("occurrence_date", created.OccurrenceDate.String()).
				Msg("recurring invoice generated")
		default:
			summary.Skipped++
		}
	}

	return summary, nil
}

// processTemplate returns the created occurrence, or nil when not due.
func (d *Driver) processTemplate(ctx context.Context, tmpl invoice.Invoice, now time.Time) (*invoice.Invoice, error) {
	if !tmpl.IsTemplate() {
		return nil, fmt.Errorf("%w: %s", invoice.ErrNotTemplate, tmpl.ID)
	}

	var created *invoice.Invoice
	step := func(store invoice.RecordStore) error {
		occ, err := d.generateNext(ctx, store, tmpl, now)
		created = occ
		return err
	}

	var err error
	if txStore, ok := d.Store.(invoice.TxStore); ok {
		err = txStore.WithTx(ctx, step)
	} else {
		err = step(d.Store)
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (d *Driver) generateNext(ctx context.Context, store invoice.RecordStore, tmpl invoice.Invoice, now time.Time) (*invoice.Invoice, error) {
	latest, err := store.FindOne(ctx, invoice.OccurrenceFilter(tmpl), d.Baseline.Sort())
	if err != nil {
		return nil, fmt.Errorf("find latest occurrence: %w", err)
	}

	due := d.Calculator.ComputeNextDue(tmpl, latest, now)
	if due.Degenerate {
		d.log.Warn().
			Str("template_id", tmpl.ID).
			Str("frequency", string(tmpl.RecurringFrequency)).
			Msg("unrecognized recurring frequency, candidate never advances")
	}
	if !due.Due {
		return nil, nil
	}

	m := Materializer{Store: store, Now: d.Now}
	occ, err := m.Materialize(ctx, tmpl, due.Candidate)
	if err != nil {
		return nil, err
	}
	return &occ, nil
}

// Err joins the per-template failures of a summary, or returns nil.
func (s Summary) Err() error {
	if len(s.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(s.Errors))
	for i, e := range s.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}
