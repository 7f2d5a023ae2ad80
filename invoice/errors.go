/*
errors.go - Centralized error types for the invoice domain

ERROR CATEGORIES:
  1. Store errors - connectivity and constraint failures
  2. Lookup errors - missing invoices/clients
  3. Validation errors - malformed records

USAGE:
  Callers match with errors.Is:

    if errors.Is(err, invoice.ErrDuplicateInvoiceNumber) {
        // occurrence already generated by an overlapping run
    }
*/
package invoice

import (
	"errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStoreUnavailable is returned when the record store cannot be opened
	// or a store-wide query fails. Fatal for a one-shot run.
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrDuplicateInvoiceNumber is returned when an insert collides with an
	// existing (owner, client, invoice number) triple.
	ErrDuplicateInvoiceNumber = errors.New("duplicate invoice number")

	// ErrInvoiceNotFound is returned when a referenced invoice doesn't exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrClientNotFound is returned when a referenced client doesn't exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidInvoice is returned when a record fails validation.
	ErrInvalidInvoice = errors.New("invalid invoice")

	// ErrNotTemplate is returned when an operation needs a recurring template
	// but was given an ordinary invoice.
	ErrNotTemplate = errors.New("invoice is not a recurring template")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInvoice) ||
		errors.Is(err, ErrNotTemplate)
}

// IsConflict returns true if the error is a uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateInvoiceNumber)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrInvoiceNotFound) ||
		errors.Is(err, ErrClientNotFound)
}
