/*
handlers.go - HTTP API handlers for the front desk

PURPOSE:
  Exposes the membership, access and cash engines via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the engines
  in Services.

ENDPOINTS:
  Desk:
    POST   /api/checkins                    Decide and record an entry
    POST   /api/payments                    Record a payment and apply it

  Members:
    GET    /api/members?q=                  Search by name (empty lists all)
    POST   /api/members                     Register a member
    GET    /api/members/{id}                Member card
    PUT    /api/members/{id}                Edit profile or deactivate
    DELETE /api/members/{id}                Remove a member with no history (admin)
    PUT    /api/members/{id}/subscription/expiration
                                            Override the paid-through date (admin)
    GET    /api/members/{id}/status         Effective membership status
    GET    /api/members/{id}/stats          Attendance stats and level
    GET    /api/members/{id}/subscriptions  Subscription history
    GET    /api/members/{id}/payments       Payment history
    POST   /api/members/{id}/visits         Credit prepaid visits (admin)

  Plans:
    GET    /api/plans?all=true              Catalog (active only by default)
    POST   /api/plans                       Create or replace a plan (admin)
    PUT    /api/plans/{id}/active           Toggle a plan (admin)

  Products:
    GET    /api/products?all=true           Counter products (active only by default)
    POST   /api/products                    Create a product (admin)
    PUT    /api/products/{id}               Edit a product (admin)
    DELETE /api/products/{id}               Stop selling a product (admin)
    POST   /api/products/{id}/restock       Add units (admin)

  Shifts:
    POST   /api/shifts                      Open the caller's shift
    GET    /api/shifts?status=              Shift history
    GET    /api/shifts/current              Caller's open shift
    GET    /api/shifts/{id}                 Shift with expenses and payments
    POST   /api/shifts/{id}/expenses        Take cash out of the drawer
    POST   /api/shifts/{id}/close           Count the drawer and close

  Reports:
    GET    /api/attendance/today            Today's check-in feed
    GET    /api/subscriptions/expiring      Memberships ending soon
    GET    /api/reports/dashboard           Today's figures
    GET    /api/reports/revenue             Income for the last seven days
    GET    /api/reports/peak-hours          Check-ins by hour, last 30 days
    GET    /api/reports/shifts.xlsx         Workbook export (admin)

  Admin:
    POST   /api/admin/status-sweep          Write back expired statuses

ARCHITECTURE:
  Handler holds a *Services with every engine, built over one store
  wrapped in core.Guard. Handlers never talk SQL.

REQUEST FLOW:
  1. Parse HTTP request
  2. Take the acting staff member from the request context (identity.go)
  3. Call the engine
  4. Serialize response
  5. Map errors with fail()

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401/403: Missing identity, not an admin, someone else's shift
  - 404: Resource not found
  - 409: Duplicate payment, shift state, out of stock, member has history
  - 503: Store unavailable
  - 504: Store did not answer in time
  The "error" field is always a sentence for the desk screen; driver text
  is logged, never returned.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/frontdesk/access"
	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/factory"
	"github.com/warp/frontdesk/inventory"
	"github.com/warp/frontdesk/membership"
	"github.com/warp/frontdesk/payments"
	"github.com/warp/frontdesk/shifts"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	svc    *Services
	logger *slog.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the given services.
func NewHandler(svc *Services, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

var errForbidden = errors.New("forbidden")

// Health answers the load balancer.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// DESK HANDLERS
// =============================================================================

// CheckIn decides whether the person at the door may enter. A denial is
// a normal 200 response; only failures to decide are errors.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if !decode(w, r, &req) {
		return
	}
	staff, _ := StaffFrom(r.Context())

	shiftID := core.ShiftID(req.ShiftID)
	if shiftID == "" {
		shiftID = h.openShiftID(r.Context(), staff.ID)
	}

	result, err := h.svc.Access.CheckIn(r.Context(), access.CheckInRequest{
		Query:   req.Query,
		StaffID: staff.ID,
		ShiftID: shiftID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckInDTO(result))
}

// RecordPayment stores a payment taken by the caller and applies it to
// the member. Post-processing problems come back as warnings.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	staff, _ := StaffFrom(r.Context())

	result, err := h.svc.Payments.RecordPayment(r.Context(), payments.PaymentRequest{
		MemberID:       core.MemberID(req.MemberID),
		PlanID:         core.PlanID(req.PlanID),
		ProductID:      core.ProductID(req.ProductID),
		Quantity:       req.Quantity,
		Amount:         req.Amount,
		Method:         core.PaymentMethod(strings.ToLower(req.Method)),
		StaffID:        staff.ID,
		ShiftID:        core.ShiftID(req.ShiftID),
		Concept:        req.Concept,
		AllowDuplicate: req.AllowDuplicate,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResultDTO(result))
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers searches members by name.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	members, err := h.svc.Store.FindMembers(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember registers a member with no visits and no subscription.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if !decode(w, r, &req) {
		return
	}
	staff, _ := StaffFrom(r.Context())

	m := core.Member{
		ID:           core.MemberID(strings.TrimSpace(req.ID)),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Phone:        strings.TrimSpace(req.Phone),
		PhotoURL:     req.PhotoURL,
		Status:       core.MemberActive,
		RegisteredAt: h.svc.Clock.Now(),
		RegisteredBy: staff.ID,
	}
	if m.FirstName == "" {
		h.fail(w, r, core.Invalid("first_name", "is required"))
		return
	}
	if m.ID == "" {
		m.ID = core.MemberID(core.NewID())
	}
	if req.BirthDate != "" {
		d, err := core.ParseDate(req.BirthDate)
		if err != nil {
			h.fail(w, r, core.Invalid("birth_date", "use YYYY-MM-DD"))
			return
		}
		m.BirthDate = &d
	}

	if err := h.svc.Store.CreateMember(r.Context(), m); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Store.GetMember(r.Context(), memberParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// UpdateMember edits a member profile. Setting status to inactive is how
// a member with history leaves the gym.
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	var req UpdateMemberRequest
	if !decode(w, r, &req) {
		return
	}
	u := membership.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		PhotoURL:  req.PhotoURL,
	}
	if req.BirthDate != nil {
		d, err := core.ParseDate(*req.BirthDate)
		if err != nil {
			h.fail(w, r, core.Invalid("birth_date", "use YYYY-MM-DD"))
			return
		}
		u.BirthDate = &d
	}
	if req.Status != nil {
		status := core.MemberStatus(strings.ToLower(*req.Status))
		u.Status = &status
	}

	m, err := h.svc.Directory.Update(r.Context(), memberParam(r), u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m))
}

// DeleteMember removes a member registered by mistake.
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Directory.Remove(r.Context(), memberParam(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetExpiration corrects a member's paid-through date by hand.
func (h *Handler) SetExpiration(w http.ResponseWriter, r *http.Request) {
	var req SetExpirationRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := core.ParseDate(req.ExpirationDate)
	if err != nil {
		h.fail(w, r, core.Invalid("expiration_date", "use YYYY-MM-DD"))
		return
	}
	staff, _ := StaffFrom(r.Context())

	sub, err := h.svc.Directory.SetExpiration(r.Context(), membership.Override{
		MemberID:   memberParam(r),
		Expiration: d,
		PlanID:     core.PlanID(req.PlanID),
		StaffID:    staff.ID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionDTO(sub))
}

// GetMemberStatus returns the date-derived membership status.
func (h *Handler) GetMemberStatus(w http.ResponseWriter, r *http.Request) {
	id := memberParam(r)
	if _, err := h.svc.Store.GetMember(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.svc.Resolver.EffectiveStatus(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusDTO(id, res))
}

// GetMemberStats returns visit totals, streak and level.
func (h *Handler) GetMemberStats(w http.ResponseWriter, r *http.Request) {
	id := memberParam(r)
	if _, err := h.svc.Store.GetMember(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.svc.Rewards.Stats(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(id, stats))
}

// GetMemberSubscriptions lists a member's subscriptions, latest first.
func (h *Handler) GetMemberSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.Store.ListSubscriptions(r.Context(), memberParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]SubscriptionDTO, len(subs))
	for i := range subs {
		dtos[i] = *toSubscriptionDTO(&subs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMemberPayments lists a member's payments, newest first.
func (h *Handler) GetMemberPayments(w http.ResponseWriter, r *http.Request) {
	paid, err := h.svc.Store.ListPayments(r.Context(), core.PaymentFilter{MemberID: memberParam(r)})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(paid))
}

// CreditVisits adds prepaid visits outside a payment, e.g. a courtesy pass.
func (h *Handler) CreditVisits(w http.ResponseWriter, r *http.Request) {
	var req CreditVisitsRequest
	if !decode(w, r, &req) {
		return
	}
	id := memberParam(r)
	balance, err := h.svc.Visits.Credit(r.Context(), id, req.Visits)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	staff, _ := StaffFrom(r.Context())
	h.logger.Info("visits credited by hand", "member_id", id, "visits", req.Visits, "staff_id", staff.ID)
	writeJSON(w, http.StatusOK, CreditVisitsDTO{MemberID: string(id), VisitsAvailable: balance})
}

// =============================================================================
// PLAN HANDLERS
// =============================================================================

// ListPlans returns the catalog. ?all=true includes inactive plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	plans, err := h.svc.Store.ListPlans(r.Context(), !all)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = toPlanDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePlan validates a plan definition through the factory and stores
// it, replacing any plan with the same id.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req factory.PlanJSON
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Factory.FromJSON(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Store.CreatePlan(r.Context(), res.Plan); err != nil {
		h.fail(w, r, err)
		return
	}
	h.svc.Plans.Forget(res.Plan.ID)

	writeJSON(w, http.StatusCreated, CreatePlanResponse{
		Plan:   toPlanDTO(res.Plan),
		Legacy: res.Legacy,
		Notes:  res.Notes,
	})
}

// SetPlanActive takes a plan off sale or puts it back.
func (h *Handler) SetPlanActive(w http.ResponseWriter, r *http.Request) {
	var req TogglePlanRequest
	if !decode(w, r, &req) {
		return
	}
	id := core.PlanID(chi.URLParam(r, "id"))
	if err := h.svc.Store.SetPlanActive(r.Context(), id, req.Active); err != nil {
		h.fail(w, r, err)
		return
	}
	h.svc.Plans.Forget(id)

	p, err := h.svc.Store.GetPlan(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(*p))
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns counter products. ?all=true includes retired ones.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	products, err := h.svc.Catalog.List(r.Context(), !all)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateProduct adds a product with its opening stock.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "", http.StatusCreated)
}

// UpdateProduct edits a product's catalog fields. Stock is not touched.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, core.ProductID(chi.URLParam(r, "id")), http.StatusOK)
}

func (h *Handler) saveProduct(w http.ResponseWriter, r *http.Request, id core.ProductID, status int) {
	var req SaveProductRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.svc.Catalog.Save(r.Context(), inventory.ProductInput{
		ID:           id,
		Name:         req.Name,
		Price:        req.Price,
		InitialStock: req.Stock,
		MinStock:     req.MinStock,
		Category:     req.Category,
		Emoji:        req.Emoji,
		Active:       req.Active,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, toProductDTO(*p))
}

// DeactivateProduct stops a product from being sold.
func (h *Handler) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.Deactivate(r.Context(), core.ProductID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestockProduct adds delivered units to the shelf.
func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if !decode(w, r, &req) {
		return
	}
	id := core.ProductID(chi.URLParam(r, "id"))
	stock, err := h.svc.Catalog.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RestockDTO{ProductID: string(id), Stock: stock})
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// OpenShift opens the caller's cash drawer.
func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	var req OpenShiftRequest
	if !decode(w, r, &req) {
		return
	}
	staff, _ := StaffFrom(r.Context())

	s, err := h.svc.Shifts.Open(r.Context(), staff.ID, req.OpeningCash)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShiftDTO(*s))
}

// ListShifts returns shift history, newest first. Non-admins see their own.
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	f := core.ShiftFilter{
		Status:  core.ShiftStatus(q.Get("status")),
		StaffID: core.StaffID(q.Get("staff_id")),
		Limit:   limit,
	}
	switch f.Status {
	case "", core.ShiftOpen, core.ShiftClosed:
	default:
		h.fail(w, r, core.Invalid("status", "use open or closed"))
		return
	}
	if staff, _ := StaffFrom(r.Context()); !staff.IsAdmin() {
		f.StaffID = staff.ID
	}

	list, err := h.svc.Shifts.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ShiftDTO, len(list))
	for i, s := range list {
		dtos[i] = toShiftDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CurrentShift returns the caller's open shift.
func (h *Handler) CurrentShift(w http.ResponseWriter, r *http.Request) {
	staff, _ := StaffFrom(r.Context())
	s, err := h.svc.Shifts.Current(r.Context(), staff.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(*s))
}

// GetShift returns a shift with its expenses and payments.
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	id, err := h.authorizeShift(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sum, err := h.svc.Shifts.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}

// RegisterExpense takes cash out of the drawer of an open shift.
func (h *Handler) RegisterExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.authorizeShift(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	staff, _ := StaffFrom(r.Context())

	e, err := h.svc.Shifts.RegisterExpense(r.Context(), id, req.Amount, req.Concept, staff.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseDTO(*e))
}

// CloseShift records the cash count. A difference never blocks the close.
func (h *Handler) CloseShift(w http.ResponseWriter, r *http.Request) {
	var req CloseShiftRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.authorizeShift(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.svc.Shifts.Close(r.Context(), id, req.DeclaredCash, shifts.Breakdown(req.Breakdown))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClosureDTO(c))
}

// authorizeShift lets a staff member act on their own shifts and an admin
// on any.
func (h *Handler) authorizeShift(r *http.Request) (core.ShiftID, error) {
	id := core.ShiftID(chi.URLParam(r, "id"))
	staff, _ := StaffFrom(r.Context())
	s, err := h.svc.Store.GetShift(r.Context(), id)
	if err != nil {
		return "", err
	}
	if s.StaffID != staff.ID && !staff.IsAdmin() {
		return "", errForbidden
	}
	return id, nil
}

// openShiftID returns the caller's open shift, or "" when there is none
// or it cannot be read. Check-ins do not depend on a drawer being open.
func (h *Handler) openShiftID(ctx context.Context, staffID core.StaffID) core.ShiftID {
	if staffID == "" {
		return ""
	}
	s, err := h.svc.Shifts.Current(ctx, staffID)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			h.logger.Warn("open shift lookup failed", "staff_id", staffID, "error", err)
		}
		return ""
	}
	return s.ID
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// TodayAttendance returns today's check-in attempts, newest first.
func (h *Handler) TodayAttendance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Reports.TodayAttendance(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]AttendanceDTO, len(rows))
	for i, a := range rows {
		dtos[i] = toAttendanceDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListExpiring returns memberships ending within ?days (configured
// default when absent).
func (h *Handler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", h.svc.ExpiringDays)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.svc.Resolver.Expiring(r.Context(), days)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ExpiringDTO, len(rows))
	for i, e := range rows {
		dtos[i] = toExpiringDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Dashboard returns today's figures.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Reports.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardDTO(d))
}

// WeeklyRevenue returns one income total per day for the last week.
func (h *Handler) WeeklyRevenue(w http.ResponseWriter, r *http.Request) {
	days, err := h.svc.Reports.WeeklyRevenue(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyTotalDTOs(days))
}

// PeakHours returns permitted check-ins per opening hour.
func (h *Handler) PeakHours(w http.ResponseWriter, r *http.Request) {
	hours, err := h.svc.Reports.PeakHours(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHourCountDTOs(hours))
}

// ExportShifts streams an xlsx workbook of the shifts, payments and
// expenses between ?from and ?to (calendar dates, both inclusive, default
// today).
func (h *Handler) ExportShifts(w http.ResponseWriter, r *http.Request) {
	now := h.svc.Clock.Now()
	today := core.DateOf(now)
	from, err := dateParam(r, "from", today)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := dateParam(r, "to", from)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	loc := now.Location()
	start := from.In(loc)
	end := to.AddDays(1).In(loc).Add(-time.Nanosecond)

	var buf bytes.Buffer
	if err := h.svc.Reports.WriteShiftWorkbook(r.Context(), &buf, start, end); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="shifts-%s-%s.xlsx"`, from, to))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("workbook download interrupted", "error", err)
	}
}

// StatusSweep writes expired statuses back to overdue subscriptions.
func (h *Handler) StatusSweep(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Sweeper.Run(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepDTO{Expired: n})
}

// =============================================================================
// HELPERS
// =============================================================================

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

// decode reads a JSON body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// fail maps an engine error to a status and a message for the desk.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		dup   *core.DuplicatePaymentError
		input *core.InputError
		stock *core.StockError
	)
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: fmt.Sprintf("A payment of %s was already recorded for this member at %s. Confirm to charge again.",
				money(dup.Amount), dup.RecordedAt.In(h.svc.Clock.Now().Location()).Format("15:04")),
			Code: "duplicate_payment",
			Details: DuplicatePaymentDTO{
				ExistingPaymentID: dup.ExistingID,
				RecordedAt:        timestamp(dup.RecordedAt),
				Amount:            money(dup.Amount),
			},
		})
	case errors.Is(err, errForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "This shift belongs to someone else", Code: "forbidden"})
	case errors.As(err, &input):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   input.Error(),
			Code:    "invalid_input",
			Details: map[string]string{"field": input.Field},
		})
	case errors.Is(err, core.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_input"})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not found", Code: "not_found"})
	case errors.Is(err, core.ErrShiftAlreadyOpen):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "You already have an open shift. Close it before opening another.", Code: "shift_already_open"})
	case errors.Is(err, core.ErrShiftNotOpen):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "This shift is already closed", Code: "shift_not_open"})
	case errors.As(err, &stock):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   fmt.Sprintf("Only %d left in stock", stock.Available),
			Code:    "out_of_stock",
			Details: map[string]int{"available": stock.Available, "requested": stock.Requested},
		})
	case errors.Is(err, core.ErrOutOfStock):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Not enough stock", Code: "out_of_stock"})
	case errors.Is(err, core.ErrHasHistory):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "This member has payments or visits on record. Deactivate the member instead.",
			Code:  "has_history",
		})
	case errors.Is(err, core.ErrNoCredit):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "No visits available", Code: "no_credit"})
	case errors.Is(err, core.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		h.logServerError(r, http.StatusGatewayTimeout, err)
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "The database took too long to answer. Please try again.", Code: "timeout"})
	case errors.Is(err, core.ErrPersistence):
		h.logServerError(r, http.StatusServiceUnavailable, err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "The database is unavailable right now. Please try again.", Code: "unavailable"})
	default:
		h.logServerError(r, http.StatusInternalServerError, err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Something went wrong", Code: "internal"})
	}
}

func (h *Handler) logServerError(r *http.Request, status int, err error) {
	h.logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
}

func memberParam(r *http.Request) core.MemberID {
	return core.MemberID(chi.URLParam(r, "id"))
}

func dateParam(r *http.Request, name string, def core.Date) (core.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return core.Date{}, core.Invalid(name, "use YYYY-MM-DD")
	}
	return d, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.Invalid(name, "must be a whole number")
	}
	return n, nil
}
