package invoice_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invoicepro/invoice"
)

func TestParseFrequency(t *testing.T) {
	for _, f := range invoice.Frequencies {
		got, err := invoice.ParseFrequency(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	got, err := invoice.ParseFrequency(" Bi-Weekly ")
	require.NoError(t, err)
	assert.Equal(t, invoice.FrequencyBiWeekly, got)

	_, err = invoice.ParseFrequency("fortnightly")
	assert.ErrorIs(t, err, invoice.ErrInvalidInvoice)
}

func TestOccurrenceNumber(t *testing.T) {
	tmpl := invoice.Invoice{InvoiceNumber: "INV-7"}
	assert.Equal(t, "INV-7-", tmpl.OccurrencePrefix())
	assert.Equal(t, "INV-7-2024-01-08", tmpl.OccurrenceNumber(invoice.MustParseDate("2024-01-08")))
}

func TestComputeTotals(t *testing.T) {
	// GIVEN: Two line items and a 19% tax rate
	inv := invoice.Invoice{
		Items: []invoice.LineItem{
			{Description: "Consulting", Quantity: decimal.NewFromInt(3), Rate: decimal.RequireFromString("120.50")},
			{Description: "Hosting", Quantity: decimal.NewFromInt(1), Rate: decimal.RequireFromString("9.99")},
		},
		TaxRate: decimal.NewFromInt(19),
	}

	// WHEN: Computing totals
	inv.ComputeTotals()

	// THEN: Subtotal 371.49, tax rounded to cents
	assert.True(t, decimal.RequireFromString("371.49").Equal(inv.Subtotal), inv.Subtotal.String())
	assert.True(t, decimal.RequireFromString("70.58").Equal(inv.Tax), inv.Tax.String())
	assert.True(t, decimal.RequireFromString("442.07").Equal(inv.Total), inv.Total.String())
}

func TestValidate(t *testing.T) {
	valid := weeklyTemplate()
	require.NoError(t, valid.Validate())

	noNumber := weeklyTemplate()
	noNumber.InvoiceNumber = ""
	assert.ErrorIs(t, noNumber.Validate(), invoice.ErrInvalidInvoice)

	badFrequency := weeklyTemplate()
	badFrequency.RecurringFrequency = "daily"
	assert.ErrorIs(t, badFrequency.Validate(), invoice.ErrInvalidInvoice)

	endBeforeStart := weeklyTemplate()
	end := invoice.MustParseDate("2023-12-31")
	endBeforeStart.RecurringEndDate = &end
	assert.ErrorIs(t, endBeforeStart.Validate(), invoice.ErrInvalidInvoice)

	ordinary := invoice.Invoice{Owner: "u", ClientRef: "c", OccurrenceDate: invoice.MustParseDate("2024-01-01")}
	assert.NoError(t, ordinary.Validate(), "ordinary invoices need no number")
}

func TestIsTemplate(t *testing.T) {
	tmpl := weeklyTemplate()
	assert.True(t, tmpl.IsTemplate())

	tmpl.RecurringEndDate = nil
	assert.False(t, tmpl.IsTemplate())
}
