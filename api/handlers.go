/*
handlers.go - HTTP API handlers for InvoicePro

PURPOSE:
  Exposes invoices, clients and the recurring generation engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  store and the recurrence scheduler.

ENDPOINTS:
  Invoices:
    GET    /api/invoices                    List invoices (?client_id=, ?recurring=)
    POST   /api/invoices                    Create invoice or recurring template
    GET    /api/invoices/{id}               Get invoice
    PUT    /api/invoices/{id}               Replace invoice
    DELETE /api/invoices/{id}               Delete invoice
    GET    /api/invoices/{id}/occurrences   Occurrences generated from a template

  Clients:
    GET    /api/clients                     List clients
    POST   /api/clients                     Create client
    GET    /api/clients/{id}                Get client
    PUT    /api/clients/{id}                Update client
    DELETE /api/clients/{id}                Delete client

  Business info:
    GET    /api/company-info                Owner's business profile
    PUT    /api/company-info                Replace business profile

  Recurring:
    POST   /api/recurring/run               Run generation now
    GET    /api/recurring/runs              Generation run history
    GET    /api/recurring/next              Next scheduled run

OWNER SCOPING:
  Every record belongs to an owner. The owner is taken from the X-Owner-ID
  header and defaults to DefaultOwner. Authentication is out of scope.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Duplicate invoice number, run already in progress
  - 503: Store unavailable
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/warp/invoicepro/invoice"
	"github.com/warp/invoicepro/recurrence"
	"github.com/warp/invoicepro/store/sqlite"
)

// DefaultOwner is used when a request carries no X-Owner-ID header.
const DefaultOwner = "demo-user"

// OwnerHeader names the request header that scopes records to an owner.
const OwnerHeader = "X-Owner-ID"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Scheduler *recurrence.Scheduler

	validate *validator.Validate
	log      zerolog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store and scheduler.
func NewHandler(store *sqlite.Store, scheduler *recurrence.Scheduler, log zerolog.Logger) *Handler {
	return &Handler{
		Store:     store,
		Scheduler: scheduler,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       log.With().Str("component", "api").Logger(),
	}
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// ListInvoices returns the owner's invoices, newest first.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)

	filter := invoice.Filter{ClientRef: r.URL.Query().Get("client_id")}
	if v := r.URL.Query().Get("recurring"); v != "" {
		recurring, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid recurring filter", err)
			return
		}
		filter.IsRecurring = invoice.Bool(recurring)
	}

	invoices, err := h.Store.ListInvoices(r.Context(), owner, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}

	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns a single invoice.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.Store.GetInvoice(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// CreateInvoice stores a new invoice. A request with is_recurring=true
// creates a template that the generation engine picks up once it has a
// recurring_end_date. Without a currency the owner's default applies.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)

	var req InvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	inv, err := invoiceFromRequest(req, owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invoice", err)
		return
	}
	if _, err := h.Store.GetClient(r.Context(), owner, inv.ClientRef); err != nil {
		writeError(w, statusForClientRef(err), "Unknown client", err)
		return
	}
	if inv.Currency == "" {
		info, err := h.Store.GetBusinessInfo(r.Context(), owner)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get business info", err)
			return
		}
		inv.Currency = info.DefaultCurrency
	}

	created, err := h.Store.Insert(r.Context(), inv)
	if err != nil {
		writeError(w, statusFor(err), "Failed to create invoice", err)
		return
	}

	h.log.Info().
		Str("owner", owner).
		Str("invoice_id", created.ID).
		Str("invoice_number", created.InvoiceNumber).
		Bool("recurring", created.IsRecurring).
		Msg("invoice created")
	writeJSON(w, http.StatusCreated, toInvoiceDTO(created))
}

// UpdateInvoice replaces an invoice's fields.
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	id := chi.URLParam(r, "id")

	existing, err := h.Store.GetInvoice(r.Context(), owner, id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get invoice", err)
		return
	}

	var req InvoiceRequest
	if !h.decode(w, r, &req) {
		return
	}

	inv, err := invoiceFromRequest(req, owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invoice", err)
		return
	}
	if inv.ClientRef != existing.ClientRef {
		if _, err := h.Store.GetClient(r.Context(), owner, inv.ClientRef); err != nil {
			writeError(w, statusForClientRef(err), "Unknown client", err)
			return
		}
	}
	inv.ID = existing.ID
	inv.CreatedAt = existing.CreatedAt
	inv.SourceTemplateID = existing.SourceTemplateID

	updated, err := h.Store.UpdateInvoice(r.Context(), inv)
	if err != nil {
		writeError(w, statusFor(err), "Failed to update invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(updated))
}

// DeleteInvoice removes an invoice.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteInvoice(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), "Failed to delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOccurrences returns the invoices generated from a recurring template.
// GET /api/invoices/{id}/occurrences
func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.Store.GetInvoice(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), "Failed to get invoice", err)
		return
	}
	if !tmpl.IsRecurring {
		writeError(w, http.StatusBadRequest, "Invoice is not recurring", invoice.ErrNotTemplate)
		return
	}

	occurrences, err := h.Store.Find(r.Context(), invoice.OccurrenceFilter(*tmpl))
	if err != nil {
		writeError(w, statusFor(err), "Failed to list occurrences", err)
		return
	}

	dtos := make([]InvoiceDTO, len(occurrences))
	for i, inv := range occurrences {
		dtos[i] = toInvoiceDTO(inv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// invoiceFromRequest converts a validated request into a domain invoice with
// totals computed from its line items.
func invoiceFromRequest(req InvoiceRequest, owner string) (invoice.Invoice, error) {
	date, err := invoice.ParseDate(req.Date)
	if err != nil {
		return invoice.Invoice{}, err
	}

	inv := invoice.Invoice{
		Owner:          owner,
		ClientRef:      req.ClientID,
		InvoiceNumber:  strings.TrimSpace(req.InvoiceNumber),
		OccurrenceDate: date,
		Items:          make([]invoice.LineItem, len(req.Items)),
		Notes:          req.Notes,
		Status:         invoice.Status(req.Status),
		Currency:       strings.ToUpper(req.Currency),
		TaxRate:        req.TaxRate,
		IsRecurring:    req.IsRecurring,
	}
	if inv.Status == "" {
		inv.Status = invoice.StatusDraft
	}
	for i, item := range req.Items {
		inv.Items[i] = invoice.LineItem(item)
	}
	if inv.DueDate, err = optionalDate(req.DueDate); err != nil {
		return invoice.Invoice{}, err
	}

	if req.IsRecurring {
		if inv.RecurringFrequency, err = invoice.ParseFrequency(req.RecurringFrequency); err != nil {
			return invoice.Invoice{}, err
		}
		if inv.RecurringEndDate, err = optionalDate(req.RecurringEndDate); err != nil {
			return invoice.Invoice{}, err
		}
	}

	inv.ComputeTotals()
	if err := inv.Validate(); err != nil {
		return invoice.Invoice{}, err
	}
	return inv, nil
}

func optionalDate(s string) (*invoice.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := invoice.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns the owner's clients.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context(), ownerFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetClient(r.Context(), ownerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), "Failed to get client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*c))
}

// CreateClient creates a new client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	c, err := h.Store.SaveClient(r.Context(), invoice.Client{
		Owner:   ownerFrom(r),
		Name:    strings.TrimSpace(req.Name),
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create client", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(c))
}

// UpdateClient replaces a client's contact details.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)

	existing, err := h.Store.GetClient(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), "Failed to get client", err)
		return
	}

	var req ClientRequest
	if !h.decode(w, r, &req) {
		return
	}

	existing.Name = strings.TrimSpace(req.Name)
	existing.Email = req.Email
	existing.Phone = req.Phone
	existing.Address = req.Address

	c, err := h.Store.SaveClient(r.Context(), *existing)
	if err != nil {
		writeError(w, statusFor(err), "Failed to update client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

// DeleteClient removes a client.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteClient(r.Context(), ownerFrom(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), "Failed to delete client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BUSINESS INFO HANDLERS
// =============================================================================

// GetBusinessInfo returns the owner's business profile.
// GET /api/company-info
func (h *Handler) GetBusinessInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.Store.GetBusinessInfo(r.Context(), ownerFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get business info", err)
		return
	}
	writeJSON(w, http.StatusOK, toBusinessInfoDTO(info))
}

// UpdateBusinessInfo replaces the owner's business profile.
// PUT /api/company-info
func (h *Handler) UpdateBusinessInfo(w http.ResponseWriter, r *http.Request) {
	var req BusinessInfoRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.TaxRate.IsNegative() {
		writeError(w, http.StatusBadRequest, "Validation failed", errors.New("tax_rate must not be negative"))
		return
	}

	info, err := h.Store.SaveBusinessInfo(r.Context(), invoice.BusinessInfo{
		Owner:           ownerFrom(r),
		Name:            strings.TrimSpace(req.Name),
		Address:         req.Address,
		Email:           req.Email,
		Phone:           req.Phone,
		Website:         req.Website,
		DefaultCurrency: strings.ToUpper(req.DefaultCurrency),
		TaxRate:         req.TaxRate,
		BrandColor:      req.BrandColor,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save business info", err)
		return
	}
	writeJSON(w, http.StatusOK, toBusinessInfoDTO(info))
}

// =============================================================================
// RECURRING GENERATION ENDPOINTS
// =============================================================================

// TriggerRecurringRun performs one generation run immediately.
// POST /api/recurring/run
func (h *Handler) TriggerRecurringRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Scheduler.RunNow(r.Context(), recurrence.TriggerManual)
	if errors.Is(err, recurrence.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "A generation run is already in progress", err)
		return
	}
	if err != nil {
		writeError(w, statusFor(err), "Generation run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunSummaryDTO(summary))
}

// ListRecurringRuns returns generation run history, newest first.
// GET /api/recurring/runs?status=&limit=
func (h *Handler) ListRecurringRuns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListGenerationRuns(r.Context(), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get generation runs", err)
		return
	}

	dtos := make([]GenerationRunDTO, 0, len(runs))
	for _, run := range runs {
		dto := GenerationRunDTO{
			ID:        run.ID,
			Trigger:   run.Trigger,
			Status:    run.Status,
			Created:   run.Created,
			Skipped:   run.Skipped,
			Failed:    run.Failed,
			Generated: run.Generated,
			Errors:    run.Errors,
			Error:     run.Error,
			StartedAt: run.StartedAt.Format(time.RFC3339),
		}
		if run.CompletedAt != nil {
			dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
		}
		dtos = append(dtos, dto)
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// NextRecurringRun reports the scheduler configuration and next fire time.
// GET /api/recurring/next
func (h *Handler) NextRecurringRun(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"enabled": h.Scheduler.Enabled,
		"spec":    h.Scheduler.Spec,
	}
	if next := h.Scheduler.NextRun(); !next.IsZero() {
		resp["next_run"] = next.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func ownerFrom(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get(OwnerHeader)); owner != "" {
		return owner
	}
	return DefaultOwner
}

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case invoice.IsNotFound(err):
		return http.StatusNotFound
	case invoice.IsConflict(err):
		return http.StatusConflict
	case invoice.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, invoice.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// statusForClientRef treats a missing referenced client as bad input.
func statusForClientRef(err error) int {
	if errors.Is(err, invoice.ErrClientNotFound) {
		return http.StatusBadRequest
	}
	return statusFor(err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
