/*
scenarios.go - Demo scenario loaders for training and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	front-desk data for demos and staff training. Each scenario seeds the
	plan catalog, registers members and drives the real engines (payments,
	check-ins, shifts) so every row is what the desk would have produced.

AVAILABLE SCENARIOS:

	front-desk-day: Open shift, a paying member, an expired one, a pack holder
	expiring-soon:  Memberships ending this week plus one overdue row to sweep
	visit-packs:    Pack holders with empty, last-visit and full balances

HOW SCENARIOS WORK:
 1. Seed the default plan catalog (upsert, safe to repeat)
 2. Register the scenario's members (ids are scenario-prefixed)
 3. Record payments and check-ins through the engines
 4. Write subscriptions directly only for dates in the past

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "front-desk-day"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios add data and never delete any. Loading the same scenario twice
	answers 409. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and error mapping
  - factory/plan.go: DefaultCatalogJSON
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/frontdesk/access"
	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/factory"
	"github.com/warp/frontdesk/payments"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// DemoStaffID is the desk account the scenarios act as.
const DemoStaffID core.StaffID = "demo-desk"

var scenarios = []ScenarioDTO{
	{
		ID:          "front-desk-day",
		Name:        "Front Desk Day",
		Description: "Open shift, a monthly payment, an expired member and a pack holder",
	},
	{
		ID:          "expiring-soon",
		Name:        "Expiring Soon",
		Description: "Memberships ending in 1, 3 and 6 days plus an overdue row for the status sweep",
	},
	{
		ID:          "visit-packs",
		Name:        "Visit Packs",
		Description: "Pack holders with no visits, a last visit, and a fresh 10-visit pack",
	},
}

// firstMember is the member each scenario registers first. Its presence
// means the scenario was already loaded.
var firstMember = map[string]core.MemberID{
	"front-desk-day": "fd-ana",
	"expiring-soon":  "exp-elena",
	"visit-packs":    "vp-hugo",
}

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last scenario loaded by this process.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, map[string]any{"scenario": s})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenario": nil})
}

// LoadScenario seeds the store with a demo scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	marker, ok := firstMember[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}
	_, err := h.svc.Store.GetMember(ctx, marker)
	switch {
	case err == nil:
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "This scenario is already loaded", Code: "scenario_loaded"})
		return
	case !errors.Is(err, core.ErrNotFound):
		h.fail(w, r, err)
		return
	}

	switch req.ScenarioID {
	case "front-desk-day":
		err = h.loadFrontDeskDayScenario(ctx)
	case "expiring-soon":
		err = h.loadExpiringSoonScenario(ctx)
	case "visit-packs":
		err = h.loadVisitPacksScenario(ctx)
	}
	if err != nil {
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadFrontDeskDayScenario: a typical morning.
//   - demo-desk opened the drawer with 500.00
//   - Ana paid a monthly plan in cash (goes into the drawer) and checked in
//   - Bruno's monthly ran out 10 days ago; his check-in was denied
//   - Carla bought a 10-visit pack by card and used one
//   - Diego registered but never paid
func (h *Handler) loadFrontDeskDayScenario(ctx context.Context) error {
	if err := h.seedDefaultCatalog(ctx); err != nil {
		return err
	}
	today := core.Today(h.svc.Clock)

	err := h.registerDemoMembers(ctx,
		demoMember("fd-ana", "Ana", "Lopez", "555-0101"),
		demoMember("fd-bruno", "Bruno", "Diaz", "555-0102"),
		demoMember("fd-carla", "Carla", "Ruiz", "555-0103"),
		demoMember("fd-diego", "Diego", "Moreno", "555-0104"),
	)
	if err != nil {
		return err
	}

	if _, err := h.svc.Shifts.Open(ctx, DemoStaffID, decimal.NewFromInt(500)); err != nil && !errors.Is(err, core.ErrShiftAlreadyOpen) {
		return fmt.Errorf("open demo shift: %w", err)
	}

	if err := h.payPlan(ctx, "fd-ana", "monthly", core.MethodCash); err != nil {
		return err
	}
	if err := h.payPlan(ctx, "fd-carla", "pack-10", core.MethodCard); err != nil {
		return err
	}
	if err := h.svc.Store.CreateSubscription(ctx, core.Subscription{
		ID:             core.SubscriptionID(core.NewID()),
		MemberID:       "fd-bruno",
		PlanID:         "monthly",
		StartDate:      today.AddDays(-40),
		ExpirationDate: today.AddDays(-10),
		Status:         core.SubscriptionExpired,
		CreatedAt:      h.svc.Clock.Now(),
		UpdatedAt:      h.svc.Clock.Now(),
	}); err != nil {
		return err
	}

	for _, q := range []string{"fd-ana", "fd-bruno", "fd-carla"} {
		if err := h.demoCheckIn(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// loadExpiringSoonScenario: the renewal call list.
//   - Elena, Felix and Gloria hold monthlies ending in 1, 3 and 6 days
//   - Ivan's row still says active though it ended 3 days ago
func (h *Handler) loadExpiringSoonScenario(ctx context.Context) error {
	if err := h.seedDefaultCatalog(ctx); err != nil {
		return err
	}
	today := core.Today(h.svc.Clock)
	now := h.svc.Clock.Now()

	err := h.registerDemoMembers(ctx,
		demoMember("exp-elena", "Elena", "Castro", "555-0201"),
		demoMember("exp-felix", "Felix", "Ortega", "555-0202"),
		demoMember("exp-gloria", "Gloria", "Navarro", "555-0203"),
		demoMember("exp-ivan", "Ivan", "Salas", "555-0204"),
	)
	if err != nil {
		return err
	}

	ends := []struct {
		member core.MemberID
		days   int
	}{
		{"exp-elena", 1},
		{"exp-felix", 3},
		{"exp-gloria", 6},
		{"exp-ivan", -3},
	}
	for _, e := range ends {
		exp := today.AddDays(e.days)
		if err := h.svc.Store.CreateSubscription(ctx, core.Subscription{
			ID:             core.SubscriptionID(core.NewID()),
			MemberID:       e.member,
			PlanID:         "monthly",
			StartDate:      exp.AddDays(-29),
			ExpirationDate: exp,
			Status:         core.SubscriptionActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadVisitPacksScenario: pack balances at the door.
//   - Hugo has used up his pack (0 visits)
//   - Irene has exactly 1 visit left and already came in today (re-entry is free)
//   - Julia just bought a 10-visit pack in cash
func (h *Handler) loadVisitPacksScenario(ctx context.Context) error {
	if err := h.seedDefaultCatalog(ctx); err != nil {
		return err
	}

	err := h.registerDemoMembers(ctx,
		demoMember("vp-hugo", "Hugo", "Vega", "555-0301"),
		demoMember("vp-irene", "Irene", "Campos", "555-0302"),
		demoMember("vp-julia", "Julia", "Rey", "555-0303"),
	)
	if err != nil {
		return err
	}

	if _, err := h.svc.Visits.Credit(ctx, "vp-irene", 2); err != nil {
		return err
	}
	if err := h.demoCheckIn(ctx, "vp-irene"); err != nil {
		return err
	}
	if err := h.payPlan(ctx, "vp-julia", "pack-10", core.MethodCash); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func demoMember(id, first, last, phone string) core.Member {
	return core.Member{
		ID:           core.MemberID(id),
		FirstName:    first,
		LastName:     last,
		Phone:        phone,
		Status:       core.MemberActive,
		RegisteredBy: DemoStaffID,
	}
}

func (h *Handler) seedDefaultCatalog(ctx context.Context) error {
	_, err := h.svc.SeedPlans(ctx, []byte(factory.DefaultCatalogJSON), factory.FormatJSON)
	return err
}

func (h *Handler) registerDemoMembers(ctx context.Context, members ...core.Member) error {
	now := h.svc.Clock.Now()
	for _, m := range members {
		m.RegisteredAt = now
		if err := h.svc.Store.CreateMember(ctx, m); err != nil {
			return fmt.Errorf("member %s: %w", m.ID, err)
		}
	}
	return nil
}

// payPlan pays the plan's list price as demo-desk.
func (h *Handler) payPlan(ctx context.Context, memberID core.MemberID, planID core.PlanID, method core.PaymentMethod) error {
	plan, err := h.svc.Plans.Get(ctx, planID)
	if err != nil {
		return err
	}
	res, err := h.svc.Payments.RecordPayment(ctx, payments.PaymentRequest{
		MemberID:       memberID,
		PlanID:         planID,
		Amount:         plan.Price,
		Method:         method,
		StaffID:        DemoStaffID,
		AllowDuplicate: true,
	})
	if err != nil {
		return fmt.Errorf("pay %s for %s: %w", planID, memberID, err)
	}
	if len(res.Warnings) > 0 {
		return fmt.Errorf("pay %s for %s: %s", planID, memberID, res.Warning())
	}
	return nil
}

func (h *Handler) demoCheckIn(ctx context.Context, query string) error {
	_, err := h.svc.Access.CheckIn(ctx, access.CheckInRequest{Query: query, StaffID: DemoStaffID})
	return err
}
