/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with clients and
	recurring templates that exercise the generation engine. Dates are
	relative to the day the scenario is loaded, so a run right after loading
	always shows the same behavior.

AVAILABLE SCENARIOS:

	weekly-retainer:  Weekly template three weeks old, nothing generated yet
	monthly-hosting:  Monthly template with one occurrence already generated
	ended-series:     Quarterly template whose end date passed before the
	                  first occurrence; never generates
	caught-up:        Yearly template that is not due yet
	mixed-portfolio:  All of the above for one owner

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create clients
 3. Create templates and any existing occurrences

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "monthly-hosting"}

	then POST /api/recurring/run

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: TriggerRecurringRun
  - recurrence/materializer.go: how occurrences are built
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/invoicepro/invoice"
	"github.com/warp/invoicepro/recurrence"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "weekly-retainer",
		Name:        "Weekly Retainer",
		Description: "Weekly template started three weeks ago; the next run generates its first occurrence",
	},
	{
		ID:          "monthly-hosting",
		Name:        "Monthly Hosting",
		Description: "Monthly template with one generated occurrence; the next one is due",
	},
	{
		ID:          "ended-series",
		Name:        "Ended Series",
		Description: "Quarterly template whose end date passed before the first occurrence",
	},
	{
		ID:          "caught-up",
		Name:        "Caught Up",
		Description: "Yearly template that is not due yet",
	},
	{
		ID:          "mixed-portfolio",
		Name:        "Mixed Portfolio",
		Description: "All templates above for one owner",
	},
}

// seedTemplate describes one recurring template relative to the load date.
type seedTemplate struct {
	client      invoice.Client
	number      string
	frequency   invoice.Frequency
	startOffset int // days from today
	endOffset   int // days from today
	items       []invoice.LineItem
	// existing lists occurrence offsets (days from today) already generated.
	existing []int
}

var scenarioSeeds = map[string][]seedTemplate{
	"weekly-retainer": {{
		client:      invoice.Client{ID: "client-acme", Name: "Acme Corp", Email: "billing@acme.example"},
		number:      "ACME-RET",
		frequency:   invoice.FrequencyWeekly,
		startOffset: -21,
		endOffset:   90,
		items: []invoice.LineItem{
			{Description: "Support retainer (weekly)", Quantity: decimal.NewFromInt(10), Rate: decimal.NewFromInt(85)},
		},
	}},
	"monthly-hosting": {{
		client:      invoice.Client{ID: "client-globex", Name: "Globex", Email: "ap@globex.example"},
		number:      "GLX-HOST",
		frequency:   invoice.FrequencyMonthly,
		startOffset: -75,
		endOffset:   365,
		items: []invoice.LineItem{
			{Description: "Managed hosting", Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(249)},
			{Description: "Backup storage (GB)", Quantity: decimal.NewFromInt(200), Rate: decimal.RequireFromString("0.05")},
		},
		existing: []int{-45},
	}},
	"ended-series": {{
		client:      invoice.Client{ID: "client-initech", Name: "Initech", Email: "finance@initech.example"},
		number:      "INI-AUDIT",
		frequency:   invoice.FrequencyQuarterly,
		startOffset: -200,
		endOffset:   -150,
		items: []invoice.LineItem{
			{Description: "Quarterly compliance audit", Quantity: decimal.NewFromInt(1), Rate: decimal.NewFromInt(1200)},
		},
	}},
	"caught-up": {{
		client:      invoice.Client{ID: "client-umbrella", Name: "Umbrella Ltd", Email: "accounts@umbrella.example"},
		number:      "UMB-LIC",
		frequency:   invoice.FrequencyYearly,
		startOffset: -30,
		endOffset:   3 * 365,
		items: []invoice.LineItem{
			{Description: "Annual license", Quantity: decimal.NewFromInt(5), Rate: decimal.NewFromInt(99)},
		},
	}},
}

func init() {
	var all []seedTemplate
	for _, id := range []string{"weekly-retainer", "monthly-hosting", "ended-series", "caught-up"} {
		all = append(all, scenarioSeeds[id]...)
	}
	scenarioSeeds["mixed-portfolio"] = all
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario for the
// requesting owner.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id" validate:"required"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	seeds, ok := scenarioSeeds[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	today := h.Scheduler.Today()
	if err := h.loadSeeds(ctx, ownerFrom(r), today, seeds); err != nil {
		writeError(w, statusFor(err), fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSeeds(ctx context.Context, owner string, today invoice.Date, seeds []seedTemplate) error {
	for _, seed := range seeds {
		client := seed.client
		client.Owner = owner
		if _, err := h.Store.SaveClient(ctx, client); err != nil {
			return err
		}

		end := today.AddDays(seed.endOffset)
		tmpl := invoice.Invoice{
			Owner:              owner,
			ClientRef:          client.ID,
			InvoiceNumber:      seed.number,
			OccurrenceDate:     today.AddDays(seed.startOffset),
			IsRecurring:        true,
			RecurringFrequency: seed.frequency,
			RecurringEndDate:   &end,
			Items:              seed.items,
			Status:             invoice.StatusDraft,
			Currency:           "USD",
			TaxRate:            decimal.NewFromInt(8),
			Notes:              "Generated from demo scenario",
		}
		due := tmpl.OccurrenceDate.AddDays(30)
		tmpl.DueDate = &due
		tmpl.ComputeTotals()

		stored, err := h.Store.Insert(ctx, tmpl)
		if err != nil {
			return fmt.Errorf("insert template %s: %w", seed.number, err)
		}

		m := recurrence.Materializer{Store: h.Store, Now: h.Scheduler.Now}
		for _, offset := range seed.existing {
			if _, err := m.Materialize(ctx, stored, today.AddDays(offset)); err != nil {
				return err
			}
		}
	}
	return nil
}
