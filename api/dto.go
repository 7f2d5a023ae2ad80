/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for structural checks
  (required fields, formats, enums). Cross-field rules (a recurring invoice
  needs a frequency) live in the handlers and in invoice.Invoice.Validate.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/invoicepro/invoice"
	"github.com/warp/invoicepro/recurrence"
)

// =============================================================================
// INVOICES
// =============================================================================

type LineItemDTO struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

// InvoiceRequest is the body of invoice create and update requests.
type InvoiceRequest struct {
	ClientID           string          `json:"client_id" validate:"required"`
	InvoiceNumber      string          `json:"invoice_number" validate:"max=64"`
	Date               string          `json:"date" validate:"required,datetime=2006-01-02"`
	DueDate            string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Items              []LineItemDTO   `json:"items" validate:"dive"`
	Notes              string          `json:"notes" validate:"max=2000"`
	Status             string          `json:"status" validate:"omitempty,oneof=draft sent paid overdue"`
	Currency           string          `json:"currency" validate:"omitempty,len=3"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	IsRecurring        bool            `json:"is_recurring"`
	RecurringFrequency string          `json:"recurring_frequency" validate:"omitempty,oneof=weekly bi-weekly monthly quarterly yearly"`
	RecurringEndDate   string          `json:"recurring_end_date" validate:"omitempty,datetime=2006-01-02"`
}

// InvoiceDTO represents an invoice in API responses.
type InvoiceDTO struct {
	ID                 string          `json:"id"`
	ClientID           string          `json:"client_id"`
	InvoiceNumber      string          `json:"invoice_number"`
	Date               string          `json:"date"`
	DueDate            string          `json:"due_date,omitempty"`
	Items              []LineItemDTO   `json:"items"`
	Notes              string          `json:"notes,omitempty"`
	Status             string          `json:"status,omitempty"`
	Currency           string          `json:"currency,omitempty"`
	TaxRate            decimal.Decimal `json:"tax_rate"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	Tax                decimal.Decimal `json:"tax"`
	Total              decimal.Decimal `json:"total"`
	IsRecurring        bool            `json:"is_recurring"`
	RecurringFrequency string          `json:"recurring_frequency,omitempty"`
	RecurringEndDate   string          `json:"recurring_end_date,omitempty"`
	SourceTemplateID   string          `json:"source_template_id,omitempty"`
	CreatedAt          string          `json:"created_at"`
	UpdatedAt          string          `json:"updated_at,omitempty"`
}

func toInvoiceDTO(inv invoice.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:                 inv.ID,
		ClientID:           inv.ClientRef,
		InvoiceNumber:      inv.InvoiceNumber,
		Date:               inv.OccurrenceDate.String(),
		Items:              make([]LineItemDTO, len(inv.Items)),
		Notes:              inv.Notes,
		Status:             string(inv.Status),
		Currency:           inv.Currency,
		TaxRate:            inv.TaxRate,
		Subtotal:           inv.Subtotal,
		Tax:                inv.Tax,
		Total:              inv.Total,
		IsRecurring:        inv.IsRecurring,
		RecurringFrequency: string(inv.RecurringFrequency),
		SourceTemplateID:   inv.SourceTemplateID,
		CreatedAt:          inv.CreatedAt.Format(time.RFC3339),
	}
	for i, item := range inv.Items {
		dto.Items[i] = LineItemDTO(item)
	}
	if inv.DueDate != nil {
		dto.DueDate = inv.DueDate.String()
	}
	if inv.RecurringEndDate != nil {
		dto.RecurringEndDate = inv.RecurringEndDate.String()
	}
	if !inv.UpdatedAt.IsZero() {
		dto.UpdatedAt = inv.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// CLIENTS
// =============================================================================

// ClientRequest is the body of client create and update.
type ClientRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Phone   string `json:"phone" validate:"max=50"`
	Address string `json:"address" validate:"max=500"`
}

type ClientDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toClientDTO(c invoice.Client) ClientDTO {
	return ClientDTO{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Address:   c.Address,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// BUSINESS INFO
// =============================================================================

type BusinessInfoRequest struct {
	Name            string          `json:"name" validate:"max=200"`
	Address         string          `json:"address" validate:"max=500"`
	Email           string          `json:"email" validate:"omitempty,email"`
	Phone           string          `json:"phone" validate:"max=50"`
	Website         string          `json:"website" validate:"omitempty,url"`
	DefaultCurrency string          `json:"default_currency" validate:"omitempty,len=3"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	BrandColor      string          `json:"brand_color" validate:"omitempty,hexcolor"`
}

type BusinessInfoDTO struct {
	Name            string          `json:"name"`
	Address         string          `json:"address"`
	Email           string          `json:"email"`
	Phone           string          `json:"phone"`
	Website         string          `json:"website"`
	DefaultCurrency string          `json:"default_currency"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	BrandColor      string          `json:"brand_color"`
	UpdatedAt       string          `json:"updated_at,omitempty"`
}

func toBusinessInfoDTO(info invoice.BusinessInfo) BusinessInfoDTO {
	dto := BusinessInfoDTO{
		Name:            info.Name,
		Address:         info.Address,
		Email:           info.Email,
		Phone:           info.Phone,
		Website:         info.Website,
		DefaultCurrency: info.DefaultCurrency,
		TaxRate:         info.TaxRate,
		BrandColor:      info.BrandColor,
	}
	if !info.UpdatedAt.IsZero() {
		dto.UpdatedAt = info.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// RECURRING RUNS
// =============================================================================

type TemplateErrorDTO struct {
	TemplateID    string `json:"template_id"`
	InvoiceNumber string `json:"invoice_number"`
	Error         string `json:"error"`
}

// RunSummaryDTO is the response of a manual generation run.
type RunSummaryDTO struct {
	Templates int                `json:"templates"`
	Created   int                `json:"created"`
	Skipped   int                `json:"skipped"`
	Generated []string           `json:"generated"`
	Errors    []TemplateErrorDTO `json:"errors"`
}

func toRunSummaryDTO(s recurrence.Summary) RunSummaryDTO {
	dto := RunSummaryDTO{
		Templates: s.Templates,
		Created:   s.Created,
		Skipped:   s.Skipped,
		Generated: s.Generated,
		Errors:    make([]TemplateErrorDTO, 0, len(s.Errors)),
	}
	if dto.Generated == nil {
		dto.Generated = []string{}
	}
	for _, e := range s.Errors {
		dto.Errors = append(dto.Errors, TemplateErrorDTO{
			TemplateID:    e.TemplateID,
			InvoiceNumber: e.InvoiceNumber,
			Error:         e.Err.Error(),
		})
	}
	return dto
}

// GenerationRunDTO represents a recorded run in API responses.
type GenerationRunDTO struct {
	ID          string   `json:"id"`
	Trigger     string   `json:"trigger"`
	Status      string   `json:"status"`
	Created     int      `json:"created"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	Generated   []string `json:"generated,omitempty"`
	Errors      []string `json:"errors,omitempty"`
	Error       string   `json:"error,omitempty"`
	StartedAt   string   `json:"started_at"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
