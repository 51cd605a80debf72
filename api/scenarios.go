/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built societies that populate the database with members
	and payment histories demonstrating specific dues behaviour. Each
	scenario names the as_of date to view it on.

AVAILABLE SCENARIOS:

	society-basic:     X paid 2024, Y paid half of 2024, Z never tagged a period
	mixed-intervals:   Monthly, quarterly, half-yearly and annual payers
	arrears-gap:       Middle gap, trailing gap, prepayment after a gap
	malformed-records: Legacy inverted and untagged rows next to clean data

HOW SCENARIOS WORK:
 1. Reset database (clear all data, re-seed the maintenance category)
 2. Create members
 3. Record payments through the payment factory
 4. Optionally insert legacy rows the factory would reject

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "society-basic"}

	GET /api/dashboard/dues?as_of=2025-01-15

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description, as_of
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to loadScenario

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase handler
  - factory/presets.go: Preset payments
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/society/dues-engine/factory"
	"github.com/society/dues-engine/generic"
	"github.com/society/dues-engine/maintenance"
	"github.com/society/dues-engine/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "society-basic",
		Name:        "Society Basics",
		Description: "X paid all of 2024, Y only Jan-Jun, Z only made an untagged payment. Y is overdue.",
		AsOf:        "2025-01-15",
	},
	{
		ID:          "mixed-intervals",
		Name:        "Mixed Intervals",
		Description: "Members switching between monthly, quarterly, half-yearly and annual payments",
		AsOf:        "2024-12-20",
	},
	{
		ID:          "arrears-gap",
		Name:        "Arrears Gaps",
		Description: "A skipped quarter, a lapsed payer and a prepayment that cannot close an earlier gap",
		AsOf:        "2024-08-15",
	},
	{
		ID:          "malformed-records",
		Name:        "Malformed Records",
		Description: "Legacy rows with inverted or missing periods, isolated from everyone else",
		AsOf:        "2024-12-01",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	current := h.currentScenario
	h.mu.RUnlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, r, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, nil)
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	log := h.opLog(r, "api.LoadScenario")

	var req LoadScenarioRequest
	if !h.decode(w, r, log, &req) {
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if _, known := findScenario(req.ScenarioID); !known {
			writeError(w, r, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		h.writeServiceError(w, r, log, "Failed to load scenario", err)
		return
	}

	log.Info("scenario loaded", slog.String("scenario_id", req.ScenarioID))
	s, _ := findScenario(req.ScenarioID)
	writeJSON(w, r, http.StatusOK, s)
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	if _, ok := findScenario(id); !ok {
		return fmt.Errorf("unknown scenario: %s", id)
	}

	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	var err error
	switch id {
	case "society-basic":
		err = h.loadSocietyBasicScenario(ctx)
	case "mixed-intervals":
		err = h.loadMixedIntervalsScenario(ctx)
	case "arrears-gap":
		err = h.loadArrearsGapScenario(ctx)
	case "malformed-records":
		err = h.loadMalformedRecordsScenario(ctx)
	}
	if err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	return nil
}

func findScenario(id string) (ScenarioDTO, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return ScenarioDTO{}, false
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSocietyBasicScenario(ctx context.Context) error {
	if err := h.saveMembers(ctx,
		sqlite.Member{ID: "X", Name: "Xavier D'Souza", HouseNumber: "A-101"},
		sqlite.Member{ID: "Y", Name: "Yamini Rao", HouseNumber: "A-102"},
		sqlite.Member{ID: "Z", Name: "Zubin Mehta", HouseNumber: "B-201"},
	); err != nil {
		return err
	}

	return h.recordPayments(ctx,
		factory.MaintenancePayment("X", generic.IntervalAnnual, "2024-01-01"),
		factory.MaintenancePayment("Y", generic.IntervalHalfYearly, "2024-01-01"),
		factory.UntaggedPayment("Z", "2024-03-01", decimal.NewFromInt(5000)),
	)
}

func (h *Handler) loadMixedIntervalsScenario(ctx context.Context) error {
	if err := h.saveMembers(ctx,
		sqlite.Member{ID: "M1", Name: "Meera Iyer", HouseNumber: "C-301"},
		sqlite.Member{ID: "M2", Name: "Mohan Das", HouseNumber: "C-302"},
		sqlite.Member{ID: "M3", Name: "Maya Kapoor", HouseNumber: "C-303"},
	); err != nil {
		return err
	}

	// M1: Jan-Mar monthly, Q2 quarterly, H2 half-yearly. Whole year covered.
	payments := factory.MaintenanceSeries("M1", generic.IntervalMonthly, "2024-01-01", 3)
	payments = append(payments,
		factory.MaintenancePayment("M1", generic.IntervalQuarterly, "2024-04-01"),
		factory.MaintenancePayment("M1", generic.IntervalHalfYearly, "2024-07-01"),
		// M2: annual.
		factory.MaintenancePayment("M2", generic.IntervalAnnual, "2024-01-01"),
	)
	// M3: monthly through October, then stopped.
	payments = append(payments, factory.MaintenanceSeries("M3", generic.IntervalMonthly, "2024-01-01", 10)...)

	return h.recordPayments(ctx, payments...)
}

func (h *Handler) loadArrearsGapScenario(ctx context.Context) error {
	if err := h.saveMembers(ctx,
		sqlite.Member{ID: "G", Name: "Gita Nair", HouseNumber: "D-401"},
		sqlite.Member{ID: "T", Name: "Tarun Shah", HouseNumber: "D-402"},
		sqlite.Member{ID: "P", Name: "Priya Menon", HouseNumber: "D-403"},
		sqlite.Member{ID: "F", Name: "Farhan Ali", HouseNumber: "D-404"},
	); err != nil {
		return err
	}

	return h.recordPayments(ctx,
		// G skipped Q2.
		factory.MaintenancePayment("G", generic.IntervalQuarterly, "2024-01-01"),
		factory.MaintenancePayment("G", generic.IntervalQuarterly, "2024-07-01"),
		// T stopped after Q1.
		factory.MaintenancePayment("T", generic.IntervalQuarterly, "2024-01-01"),
		// P paid Q1 and prepaid 2025, leaving Apr-Aug 2024 open.
		factory.MaintenancePayment("P", generic.IntervalQuarterly, "2024-01-01"),
		factory.MaintenancePayment("P", generic.IntervalAnnual, "2025-01-01"),
		// F is paid up.
		factory.MaintenancePayment("F", generic.IntervalAnnual, "2024-01-01"),
	)
}

func (h *Handler) loadMalformedRecordsScenario(ctx context.Context) error {
	if err := h.saveMembers(ctx,
		sqlite.Member{ID: "A", Name: "Anil Kumar", HouseNumber: "E-501"},
		sqlite.Member{ID: "B", Name: "Bhavna Joshi", HouseNumber: "E-502"},
		sqlite.Member{ID: "W", Name: "Wasim Akhtar", HouseNumber: "E-503", Banned: true},
	); err != nil {
		return err
	}

	if err := h.recordPayments(ctx,
		factory.MaintenancePayment("A", generic.IntervalQuarterly, "2024-01-01"),
		factory.UntaggedPayment("A", "2024-05-02", decimal.NewFromInt(4500)),
		factory.MaintenancePayment("B", generic.IntervalAnnual, "2024-01-01"),
		factory.MaintenancePayment("W", generic.IntervalQuarterly, "2023-01-01"),
	); err != nil {
		return err
	}

	// Imported from the old spreadsheet with the dates swapped. The factory
	// rejects this, so it goes straight to the store.
	inverted := generic.Period{Start: generic.MustParseDate("2024-09-30"), End: generic.MustParseDate("2024-04-01")}
	return h.Store.SavePayment(ctx, maintenance.Payment{
		ID:           "legacy-A-2024-q2q3",
		UserID:       "A",
		CategoryID:   maintenance.MaintenanceCategoryID,
		Amount:       factory.RateFor(generic.IntervalHalfYearly),
		Method:       maintenance.MethodCheque,
		IntervalType: generic.IntervalHalfYearly,
		Period:       &inverted,
		PaymentDate:  generic.MustParseDate("2024-04-03"),
		Reference:    "legacy import",
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) saveMembers(ctx context.Context, members ...sqlite.Member) error {
	for _, m := range members {
		if err := h.Store.SaveMember(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) recordPayments(ctx context.Context, payments ...factory.PaymentJSON) error {
	for _, pj := range payments {
		p, err := h.Payments.Build(pj)
		if err != nil {
			return fmt.Errorf("payment for %s: %w", pj.UserID, err)
		}
		if err := h.Store.SavePayment(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
