/*
handlers_test.go - Tests for the HTTP API

Tests for:
- Invoice and template creation, validation and conflicts
- Manual recurring runs, occurrence listing and run history
- Demo scenario loading followed by a run
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invoicepro/recurrence"
	"github.com/warp/invoicepro/store/sqlite"
)

// testNow is 2024-01-10 02:00 UTC, the default nightly fire time.
var testNow = time.Date(2024, 1, 10, 2, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (http.Handler, *Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sched := recurrence.NewScheduler(recurrence.NewDriver(store, zerolog.Nop()), store, zerolog.Nop())
	sched.Location = time.UTC
	sched.Now = func() time.Time { return testNow }

	h := NewHandler(store, sched, zerolog.Nop())
	return NewRouter(h, []string{"*"}), h
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return doAs(t, router, "user-1", method, path, body)
}

func doAs(t *testing.T, router http.Handler, owner, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OwnerHeader, owner)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createClient(t *testing.T, router http.Handler) ClientDTO {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/clients", map[string]string{
		"name":  "Acme Corp",
		"email": "billing@acme.example",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[ClientDTO](t, rec)
}

func weeklyRequest(clientID string) map[string]any {
	return map[string]any{
		"client_id":           clientID,
		"invoice_number":      "INV-7",
		"date":                "2024-01-01",
		"due_date":            "2024-01-31",
		"items":               []map[string]any{{"description": "Retainer", "quantity": "10", "rate": "85"}},
		"currency":            "usd",
		"tax_rate":            "8",
		"is_recurring":        true,
		"recurring_frequency": "weekly",
		"recurring_end_date":  "2024-02-01",
	}
}

func TestCreateInvoice_Template(t *testing.T) {
	router, _ := newTestRouter(t)
	client := createClient(t, router)

	rec := do(t, router, http.MethodPost, "/api/invoices", weeklyRequest(client.ID))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decodeBody[InvoiceDTO](t, rec)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, "INV-7", inv.InvoiceNumber)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, "draft", inv.Status)
	assert.Equal(t, "weekly", inv.RecurringFrequency)
	assert.Equal(t, "2024-02-01", inv.RecurringEndDate)
	assert.Equal(t, "850", inv.Subtotal.String())
	assert.Equal(t, "68", inv.Tax.String())
	assert.Equal(t, "918", inv.Total.String())
}

func TestCreateInvoice_Rejections(t *testing.T) {
	router, _ := newTestRouter(t)
	client := createClient(t, router)

	t.Run("unknown client", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/invoices", weeklyRequest("client-missing"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing date", func(t *testing.T) {
		req := weeklyRequest(client.ID)
		delete(req, "date")
		rec := do(t, router, http.MethodPost, "/api/invoices", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown frequency", func(t *testing.T) {
		req := weeklyRequest(client.ID)
		req["recurring_frequency"] = "daily"
		rec := do(t, router, http.MethodPost, "/api/invoices", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("end date before start", func(t *testing.T) {
		req := weeklyRequest(client.ID)
		req["recurring_end_date"] = "2023-12-01"
		rec := do(t, router, http.MethodPost, "/api/invoices", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate number", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/invoices", weeklyRequest(client.ID))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = do(t, router, http.MethodPost, "/api/invoices", weeklyRequest(client.ID))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestGetInvoice_NotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/invoices/does-not-exist", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.NotEmpty(t, resp.Error)
}

func TestRecurringRun_GeneratesOnce(t *testing.T) {
	// GIVEN: A weekly template starting 2024-01-01
	router, _ := newTestRouter(t)
	client := createClient(t, router)
	rec := do(t, router, http.MethodPost, "/api/invoices", weeklyRequest(client.ID))
	require.Equal(t, http.StatusCreated, rec.Code)
	tmpl := decodeBody[InvoiceDTO](t, rec)

	// WHEN: Running generation on 2024-01-10
	rec = do(t, router, http.MethodPost, "/api/recurring/run", nil)

	// THEN: The 2024-01-08 occurrence is created
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[RunSummaryDTO](t, rec)
	assert.Equal(t, 1, summary.Templates)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, []string{"INV-7-2024-01-08"}, summary.Generated)
	assert.Empty(t, summary.Errors)

	// AND: A second run on the same day creates nothing
	rec = do(t, router, http.MethodPost, "/api/recurring/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[RunSummaryDTO](t, rec).Created)

	// AND: The occurrence is listed under its template
	rec = do(t, router, http.MethodGet, "/api/invoices/"+tmpl.ID+"/occurrences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	occurrences := decodeBody[[]InvoiceDTO](t, rec)
	require.Len(t, occurrences, 1)
	occ := occurrences[0]
	assert.Equal(t, "2024-01-08", occ.Date)
	assert.Equal(t, "2024-01-31", occ.DueDate)
	assert.False(t, occ.IsRecurring)
	assert.Empty(t, occ.RecurringFrequency)
	assert.Equal(t, tmpl.ID, occ.SourceTemplateID)
	assert.Equal(t, tmpl.Total.String(), occ.Total.String())

	// AND: Both runs are in the history, newest first
	rec = do(t, router, http.MethodGet, "/api/recurring/runs?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[struct {
		Runs []GenerationRunDTO `json:"runs"`
	}](t, rec)
	require.Len(t, history.Runs, 2)
	assert.Equal(t, "manual", history.Runs[0].Trigger)
	assert.Equal(t, 0, history.Runs[0].Created)
	assert.Equal(t, 1, history.Runs[1].Created)
}

func TestListInvoices_RecurringFilter(t *testing.T) {
	router, _ := newTestRouter(t)
	client := createClient(t, router)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/invoices", weeklyRequest(client.ID)).Code)
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/recurring/run", nil).Code)

	all := decodeBody[[]InvoiceDTO](t, do(t, router, http.MethodGet, "/api/invoices", nil))
	templates := decodeBody[[]InvoiceDTO](t, do(t, router, http.MethodGet, "/api/invoices?recurring=true", nil))
	plain := decodeBody[[]InvoiceDTO](t, do(t, router, http.MethodGet, "/api/invoices?recurring=false", nil))

	assert.Len(t, all, 2)
	require.Len(t, templates, 1)
	assert.Equal(t, "INV-7", templates[0].InvoiceNumber)
	require.Len(t, plain, 1)
	assert.Equal(t, "INV-7-2024-01-08", plain[0].InvoiceNumber)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/invoices?recurring=maybe", nil).Code)
}

func TestListOccurrences_NotRecurring(t *testing.T) {
	router, _ := newTestRouter(t)
	client := createClient(t, router)
	req := weeklyRequest(client.ID)
	req["is_recurring"] = false
	rec := do(t, router, http.MethodPost, "/api/invoices", req)
	require.Equal(t, http.StatusCreated, rec.Code)
	inv := decodeBody[InvoiceDTO](t, rec)

	rec = do(t, router, http.MethodGet, "/api/invoices/"+inv.ID+"/occurrences", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnerScoping(t *testing.T) {
	router, _ := newTestRouter(t)
	client := createClient(t, router)

	// Another owner cannot see user-1's client
	req := httptest.NewRequest(http.MethodGet, "/api/clients/"+client.ID, nil)
	req.Header.Set(OwnerHeader, "user-2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadScenario_MixedPortfolio(t *testing.T) {
	// GIVEN: The mixed portfolio loaded on 2024-01-10
	router, _ := newTestRouter(t)
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "mixed-portfolio"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	current := decodeBody[ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "mixed-portfolio", current.ID)

	// WHEN: Running generation
	rec = do(t, router, http.MethodPost, "/api/recurring/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[RunSummaryDTO](t, rec)

	// THEN: Only the retainer and the hosting template are due
	assert.Equal(t, 4, summary.Templates)
	assert.Equal(t, 2, summary.Created)
	assert.ElementsMatch(t, []string{"ACME-RET-2023-12-27", "GLX-HOST-2023-12-26"}, summary.Generated)
}

func TestLoadScenario_Unknown(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNextRecurringRun(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := decodeBody[map[string]any](t, do(t, router, http.MethodGet, "/api/recurring/next", nil))

	assert.Equal(t, true, resp["enabled"])
	assert.Equal(t, recurrence.DefaultSpec, resp["spec"])
	assert.Equal(t, "2024-01-11T02:00:00Z", resp["next_run"])
}

func TestBanner(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "InvoicePro"))
}

func TestUpdateClient(t *testing.T) {
	// GIVEN: An existing client
	router, _ := newTestRouter(t)
	client := createClient(t, router)

	// WHEN: Replacing its details
	rec := do(t, router, http.MethodPut, "/api/clients/"+client.ID, map[string]string{
		"name":    "Acme Corporation",
		"email":   "ap@acme.example",
		"address": "1 Main St",
	})

	// THEN: The stored client changes, identity and creation time stay
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[ClientDTO](t, rec)
	assert.Equal(t, client.ID, updated.ID)
	assert.Equal(t, client.CreatedAt, updated.CreatedAt)

	got := decodeBody[ClientDTO](t, do(t, router, http.MethodGet, "/api/clients/"+client.ID, nil))
	assert.Equal(t, "Acme Corporation", got.Name)
	assert.Equal(t, "ap@acme.example", got.Email)
	assert.Equal(t, "1 Main St", got.Address)
}

func TestUpdateClient_Rejections(t *testing.T) {
	router, _ := newTestRouter(t)
	client := createClient(t, router)

	t.Run("unknown client", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/api/clients/client-missing", map[string]string{"name": "Nobody"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing name", func(t *testing.T) {
		rec := do(t, router, http.MethodPut, "/api/clients/"+client.ID, map[string]string{"email": "a@acme.example"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("other owner", func(t *testing.T) {
		rec := doAs(t, router, "user-2", http.MethodPut, "/api/clients/"+client.ID, map[string]string{"name": "Hijacked"})
		assert.Equal(t, http.StatusNotFound, rec.Code)

		got := decodeBody[ClientDTO](t, do(t, router, http.MethodGet, "/api/clients/"+client.ID, nil))
		assert.Equal(t, "Acme Corp", got.Name)
	})
}

func TestBusinessInfo_GetAndUpdate(t *testing.T) {
	// GIVEN: An owner without a profile
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/company-info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	empty := decodeBody[BusinessInfoDTO](t, rec)
	assert.Empty(t, empty.Name)
	assert.True(t, empty.TaxRate.IsZero())

	// WHEN: Saving a profile
	rec = do(t, router, http.MethodPut, "/api/company-info", map[string]any{
		"name":             "Warp Consulting",
		"email":            "hello@warp.example",
		"website":          "https://warp.example",
		"default_currency": "eur",
		"tax_rate":         "19",
		"brand_color":      "#1a73e8",
	})

	// THEN: It is returned and persisted for that owner only
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decodeBody[BusinessInfoDTO](t, rec)
	assert.Equal(t, "EUR", saved.DefaultCurrency)
	assert.NotEmpty(t, saved.UpdatedAt)

	got := decodeBody[BusinessInfoDTO](t, do(t, router, http.MethodGet, "/api/company-info", nil))
	assert.Equal(t, "Warp Consulting", got.Name)
	assert.Equal(t, "https://warp.example", got.Website)
	assert.Equal(t, "19", got.TaxRate.String())
	assert.Equal(t, "#1a73e8", got.BrandColor)

	other := decodeBody[BusinessInfoDTO](t, doAs(t, router, "user-2", http.MethodGet, "/api/company-info", nil))
	assert.Empty(t, other.Name)
}

func TestBusinessInfo_Rejections(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := map[string]map[string]any{
		"bad color":    {"brand_color": "blue"},
		"bad currency": {"default_currency": "EURO"},
		"bad email":    {"email": "not-an-email"},
		"negative tax": {"tax_rate": "-5"},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, router, http.MethodPut, "/api/company-info", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateInvoice_DefaultCurrencyFromBusinessInfo(t *testing.T) {
	// GIVEN: A profile with a default currency
	router, _ := newTestRouter(t)
	client := createClient(t, router)
	rec := do(t, router, http.MethodPut, "/api/company-info", map[string]any{"default_currency": "GBP"})
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: Creating an invoice without a currency
	req := weeklyRequest(client.ID)
	delete(req, "currency")
	rec = do(t, router, http.MethodPost, "/api/invoices", req)

	// THEN: The profile's currency applies
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "GBP", decodeBody[InvoiceDTO](t, rec).Currency)
}

func TestListInvoices_ClientFilter(t *testing.T) {
	router, _ := newTestRouter(t)
	acme := createClient(t, router)
	rec := do(t, router, http.MethodPost, "/api/clients", map[string]string{"name": "Globex"})
	require.Equal(t, http.StatusCreated, rec.Code)
	globex := decodeBody[ClientDTO](t, rec)

	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/invoices", weeklyRequest(acme.ID)).Code)
	require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/invoices", weeklyRequest(globex.ID)).Code)

	list := decodeBody[[]InvoiceDTO](t, do(t, router, http.MethodGet, "/api/invoices?client_id="+globex.ID, nil))

	require.Len(t, list, 1)
	assert.Equal(t, globex.ID, list[0].ClientID)
}
