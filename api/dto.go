/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures the front-desk screens exchange with the
  server. These types keep the domain model out of the wire contract:
  - money travels as fixed two-decimal strings ("550.00")
  - calendar dates travel as "2006-01-02", instants as RFC 3339
  - typed ids become plain strings

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Members:
    MemberDTO, CreateMemberRequest, UpdateMemberRequest, StatusDTO,
    StatsDTO, CreditVisitsRequest, SetExpirationRequest

  Plans:
    PlanDTO, TogglePlanRequest (plan creation takes factory.PlanJSON)

  Desk operations:
    CheckInRequest, CheckInDTO, PaymentRequest, PaymentResultDTO

  Shifts:
    ShiftDTO, OpenShiftRequest, ExpenseRequest, ExpenseDTO,
    CloseShiftRequest, ClosureDTO, ShiftSummaryDTO

  Products:
    ProductDTO, SaveProductRequest, RestockRequest, RestockDTO

  Reports:
    AttendanceDTO, ExpiringDTO, DashboardDTO, DailyTotalDTO,
    HourCountDTO, SweepDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done by the engines, not in DTOs. DTOs are pure data
  carriers; decimal fields accept both JSON numbers and strings.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/plan.go: PlanJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/frontdesk/access"
	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/membership"
	"github.com/warp/frontdesk/payments"
	"github.com/warp/frontdesk/reports"
	"github.com/warp/frontdesk/rewards"
	"github.com/warp/frontdesk/shifts"
)

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID              string `json:"id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Phone           string `json:"phone,omitempty"`
	PhotoURL        string `json:"photo_url,omitempty"`
	BirthDate       string `json:"birth_date,omitempty"`
	Status          string `json:"status"`
	VisitsAvailable int    `json:"visits_available"`
	LastVisitAt     string `json:"last_visit_at,omitempty"`
	RegisteredAt    string `json:"registered_at,omitempty"`
	RegisteredBy    string `json:"registered_by,omitempty"`
}

// CreateMemberRequest registers a member. ID is generated when empty.
type CreateMemberRequest struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	PhotoURL  string `json:"photo_url"`
	BirthDate string `json:"birth_date"`
}

// UpdateMemberRequest edits a member profile. Absent fields are kept.
type UpdateMemberRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	PhotoURL  *string `json:"photo_url"`
	BirthDate *string `json:"birth_date"`
	Status    *string `json:"status"`
}

// SetExpirationRequest overrides a member's paid-through date. PlanID is
// only used when the member has no subscription yet.
type SetExpirationRequest struct {
	ExpirationDate string `json:"expiration_date"`
	PlanID         string `json:"plan_id"`
}

// CreditVisitsRequest adds prepaid visits by hand.
type CreditVisitsRequest struct {
	Visits int `json:"visits"`
}

// CreditVisitsDTO is the balance after a manual credit.
type CreditVisitsDTO struct {
	MemberID        string `json:"member_id"`
	VisitsAvailable int    `json:"visits_available"`
}

// SubscriptionDTO represents one subscription row.
type SubscriptionDTO struct {
	ID             string `json:"id"`
	MemberID       string `json:"member_id"`
	PlanID         string `json:"plan_id"`
	StartDate      string `json:"start_date"`
	ExpirationDate string `json:"expiration_date"`
	Status         string `json:"status"`
}

// StatusDTO is the effective membership status of a member.
type StatusDTO struct {
	MemberID      string           `json:"member_id"`
	Status        string           `json:"status"`
	DaysRemaining int              `json:"days_remaining"`
	PlanName      string           `json:"plan_name,omitempty"`
	Subscription  *SubscriptionDTO `json:"subscription,omitempty"`
}

// StatsDTO is the attendance gamification card.
type StatsDTO struct {
	MemberID    string `json:"member_id"`
	TotalVisits int    `json:"total_visits"`
	ThisMonth   int    `json:"this_month"`
	StreakWeeks int    `json:"streak_weeks"`
	Level       string `json:"level"`
	LastVisitAt string `json:"last_visit_at,omitempty"`
}

// =============================================================================
// PLANS
// =============================================================================

// PlanDTO represents a plan in API responses.
type PlanDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Price          string `json:"price"`
	DurationDays   int    `json:"duration_days"`
	Category       string `json:"category"`
	CreditsGranted int    `json:"credits_granted,omitempty"`
	Active         bool   `json:"active"`
}

// CreatePlanResponse adds what the factory inferred from a legacy definition.
type CreatePlanResponse struct {
	Plan   PlanDTO  `json:"plan"`
	Legacy bool     `json:"legacy,omitempty"`
	Notes  []string `json:"notes,omitempty"`
}

// TogglePlanRequest switches a plan on or off in the catalog.
type TogglePlanRequest struct {
	Active bool `json:"active"`
}

// =============================================================================
// CHECK-IN & PAYMENTS
// =============================================================================

// CheckInRequest carries what the desk typed or scanned.
type CheckInRequest struct {
	Query   string `json:"query"`
	ShiftID string `json:"shift_id,omitempty"`
}

// CheckInDTO is the decision shown on the desk screen.
type CheckInDTO struct {
	Granted      bool   `json:"granted"`
	Code         string `json:"code"`
	Reason       string `json:"reason"`
	MemberID     string `json:"member_id,omitempty"`
	MemberName   string `json:"member_name,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
	Status       string `json:"status,omitempty"`
	VisitsLeft   int    `json:"visits_left"`
	AttendanceID string `json:"attendance_id,omitempty"`
}

// PaymentRequest records money taken at the desk.
type PaymentRequest struct {
	MemberID       string          `json:"member_id"`
	PlanID         string          `json:"plan_id"`
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	Amount         decimal.Decimal `json:"amount"`
	Method         string          `json:"method"`
	ShiftID        string          `json:"shift_id"`
	Concept        string          `json:"concept"`
	AllowDuplicate bool            `json:"allow_duplicate"`
}

// PaymentDTO represents a stored payment.
type PaymentDTO struct {
	ID        string `json:"id"`
	MemberID  string `json:"member_id,omitempty"`
	PlanID    string `json:"plan_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Quantity  int    `json:"quantity,omitempty"`
	Amount    string `json:"amount"`
	Method    string `json:"method"`
	PaidAt    string `json:"paid_at"`
	StaffID   string `json:"staff_id"`
	ShiftID   string `json:"shift_id,omitempty"`
	Concept   string `json:"concept,omitempty"`
}

// PaymentResultDTO is the payment plus what it did to the membership.
type PaymentResultDTO struct {
	Payment         PaymentDTO       `json:"payment"`
	Effect          string           `json:"effect"`
	Subscription    *SubscriptionDTO `json:"subscription,omitempty"`
	VisitsAvailable int              `json:"visits_available,omitempty"`
	StockLeft       *int             `json:"stock_left,omitempty"`
	Warnings        []string         `json:"warnings,omitempty"`
}

// DuplicatePaymentDTO is the 409 body for a suspected double charge.
type DuplicatePaymentDTO struct {
	ExistingPaymentID string `json:"existing_payment_id"`
	RecordedAt        string `json:"recorded_at"`
	Amount            string `json:"amount"`
}

// =============================================================================
// SHIFTS
// =============================================================================

// ShiftDTO represents a cash drawer shift.
type ShiftDTO struct {
	ID              string         `json:"id"`
	StaffID         string         `json:"staff_id"`
	Slot            string         `json:"slot"`
	Status          string         `json:"status"`
	OpenedAt        string         `json:"opened_at"`
	ClosedAt        string         `json:"closed_at,omitempty"`
	OpeningCash     string         `json:"opening_cash"`
	CashWithdrawals string         `json:"cash_withdrawals"`
	ExpectedCash    string         `json:"expected_cash"`
	DeclaredCash    string         `json:"declared_cash,omitempty"`
	Difference      string         `json:"difference,omitempty"`
	Breakdown       map[string]int `json:"breakdown,omitempty"`
}

// OpenShiftRequest starts a shift with the counted drawer.
type OpenShiftRequest struct {
	OpeningCash decimal.Decimal `json:"opening_cash"`
}

// ExpenseRequest takes cash out of the drawer.
type ExpenseRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Concept string          `json:"concept"`
}

// ExpenseDTO represents a drawer withdrawal.
type ExpenseDTO struct {
	ID      string `json:"id"`
	ShiftID string `json:"shift_id"`
	Amount  string `json:"amount"`
	Concept string `json:"concept"`
	At      string `json:"at"`
	StaffID string `json:"staff_id,omitempty"`
}

// CloseShiftRequest is the cash count at the end of a shift.
// Breakdown maps a denomination ("500", "0.5") to a count.
type CloseShiftRequest struct {
	DeclaredCash decimal.Decimal `json:"declared_cash"`
	Breakdown    map[string]int  `json:"breakdown,omitempty"`
}

// ClosureDTO is the outcome of closing a shift.
type ClosureDTO struct {
	Shift      ShiftDTO `json:"shift"`
	Expected   string   `json:"expected"`
	Declared   string   `json:"declared"`
	Difference string   `json:"difference"`
	Balanced   bool     `json:"balanced"`
}

// ShiftSummaryDTO is a shift with its movements.
type ShiftSummaryDTO struct {
	Shift    ShiftDTO          `json:"shift"`
	Expenses []ExpenseDTO      `json:"expenses"`
	Payments []PaymentDTO      `json:"payments"`
	ByMethod map[string]string `json:"by_method"`
}

// =============================================================================
// PRODUCTS
// =============================================================================

// ProductDTO represents a counter product.
type ProductDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
	MinStock int    `json:"min_stock"`
	LowStock bool   `json:"low_stock"`
	Category string `json:"category,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
	Active   bool   `json:"active"`
}

// SaveProductRequest creates or edits a product. Stock is the opening
// stock of a new product and is ignored on edits.
type SaveProductRequest struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	MinStock int             `json:"min_stock"`
	Category string          `json:"category"`
	Emoji    string          `json:"emoji"`
	Active   *bool           `json:"active"`
}

// RestockRequest adds units to the shelf.
type RestockRequest struct {
	Quantity int `json:"quantity"`
}

// RestockDTO is the stock after a restock.
type RestockDTO struct {
	ProductID string `json:"product_id"`
	Stock     int    `json:"stock"`
}

// =============================================================================
// REPORTS
// =============================================================================

// AttendanceDTO represents one check-in attempt.
type AttendanceDTO struct {
	ID        string `json:"id"`
	MemberID  string `json:"member_id"`
	At        string `json:"at"`
	Permitted bool   `json:"permitted"`
	Reason    string `json:"reason,omitempty"`
	StaffID   string `json:"staff_id,omitempty"`
}

// ExpiringDTO is a membership close to its end.
type ExpiringDTO struct {
	SubscriptionID string `json:"subscription_id"`
	MemberID       string `json:"member_id"`
	MemberName     string `json:"member_name"`
	Phone          string `json:"phone,omitempty"`
	PlanName       string `json:"plan_name,omitempty"`
	ExpirationDate string `json:"expiration_date"`
	DaysLeft       int    `json:"days_left"`
}

// DashboardDTO is today's summary.
type DashboardDTO struct {
	Date           string            `json:"date"`
	Income         string            `json:"income"`
	IncomeByMethod map[string]string `json:"income_by_method"`
	Payments       int               `json:"payments"`
	CheckIns       int               `json:"checkins"`
	Denied         int               `json:"denied"`
	OpenShifts     int               `json:"open_shifts"`
	Expiring       int               `json:"expiring"`
	LowStock       int               `json:"low_stock"`
}

// DailyTotalDTO is one day of the revenue chart.
type DailyTotalDTO struct {
	Date     string `json:"date"`
	Total    string `json:"total"`
	Payments int    `json:"payments"`
}

// HourCountDTO is one bar of the peak-hours chart.
type HourCountDTO struct {
	Hour     int `json:"hour"`
	CheckIns int `json:"checkins"`
}

// SweepDTO reports a status sweep.
type SweepDTO struct {
	Expired int `json:"expired"`
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

const dateLayout = "2006-01-02"

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func moneyPtr(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func timestampPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func toMemberDTO(m core.Member) MemberDTO {
	dto := MemberDTO{
		ID:              string(m.ID),
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		Phone:           m.Phone,
		PhotoURL:        m.PhotoURL,
		Status:          string(m.Status),
		VisitsAvailable: m.VisitsAvailable,
		LastVisitAt:     timestampPtr(m.LastVisitAt),
		RegisteredAt:    timestamp(m.RegisteredAt),
		RegisteredBy:    string(m.RegisteredBy),
	}
	if m.BirthDate != nil {
		dto.BirthDate = m.BirthDate.String()
	}
	return dto
}

func toPlanDTO(p core.Plan) PlanDTO {
	return PlanDTO{
		ID:             string(p.ID),
		Name:           p.Name,
		Price:          money(p.Price),
		DurationDays:   p.DurationDays,
		Category:       string(p.Category),
		CreditsGranted: p.CreditsGranted,
		Active:         p.Active,
	}
}

func toSubscriptionDTO(s *core.Subscription) *SubscriptionDTO {
	if s == nil {
		return nil
	}
	return &SubscriptionDTO{
		ID:             string(s.ID),
		MemberID:       string(s.MemberID),
		PlanID:         string(s.PlanID),
		StartDate:      s.StartDate.String(),
		ExpirationDate: s.ExpirationDate.String(),
		Status:         string(s.Status),
	}
}

func toStatusDTO(id core.MemberID, r membership.Resolution) StatusDTO {
	return StatusDTO{
		MemberID:      string(id),
		Status:        string(r.Status),
		DaysRemaining: r.DaysRemaining,
		PlanName:      r.PlanName,
		Subscription:  toSubscriptionDTO(r.Subscription),
	}
}

func toStatsDTO(id core.MemberID, s rewards.Stats) StatsDTO {
	return StatsDTO{
		MemberID:    string(id),
		TotalVisits: s.TotalVisits,
		ThisMonth:   s.ThisMonth,
		StreakWeeks: s.StreakWeeks,
		Level:       string(s.Level),
		LastVisitAt: timestampPtr(s.LastVisitAt),
	}
}

func toCheckInDTO(r access.CheckInResult) CheckInDTO {
	dto := CheckInDTO{
		Granted:      r.Granted,
		Code:         string(r.Code),
		Reason:       r.Reason,
		Status:       string(r.Status),
		VisitsLeft:   r.VisitsLeft,
		AttendanceID: r.AttendanceID,
	}
	if r.Member != nil {
		dto.MemberID = string(r.Member.ID)
		dto.MemberName = r.Member.Name
		dto.PhotoURL = r.Member.PhotoURL
	}
	return dto
}

func toPaymentDTO(p core.Payment) PaymentDTO {
	return PaymentDTO{
		ID:        p.ID,
		MemberID:  string(p.MemberID),
		PlanID:    string(p.PlanID),
		ProductID: string(p.ProductID),
		Quantity:  p.Quantity,
		Amount:    money(p.Amount),
		Method:    string(p.Method),
		PaidAt:    timestamp(p.PaidAt),
		StaffID:   string(p.StaffID),
		ShiftID:   string(p.ShiftID),
		Concept:   p.Concept,
	}
}

func toPaymentDTOs(ps []core.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(ps))
	for i, p := range ps {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toPaymentResultDTO(r payments.PaymentResult) PaymentResultDTO {
	dto := PaymentResultDTO{
		Payment:         toPaymentDTO(r.Payment),
		Effect:          string(r.Effect),
		Subscription:    toSubscriptionDTO(r.Subscription),
		VisitsAvailable: r.VisitsAvailable,
		Warnings:        r.Warnings,
	}
	if r.Payment.ProductID != "" {
		left := r.StockLeft
		dto.StockLeft = &left
	}
	return dto
}

func toProductDTO(p core.Product) ProductDTO {
	return ProductDTO{
		ID:       string(p.ID),
		Name:     p.Name,
		Price:    money(p.Price),
		Stock:    p.Stock,
		MinStock: p.MinStock,
		LowStock: p.LowStock(),
		Category: p.Category,
		Emoji:    p.Emoji,
		Active:   p.Active,
	}
}

func toShiftDTO(s core.Shift) ShiftDTO {
	return ShiftDTO{
		ID:              string(s.ID),
		StaffID:         string(s.StaffID),
		Slot:            string(s.Slot),
		Status:          string(s.Status),
		OpenedAt:        timestamp(s.OpenedAt),
		ClosedAt:        timestampPtr(s.ClosedAt),
		OpeningCash:     money(s.OpeningCash),
		CashWithdrawals: money(s.CashWithdrawals),
		ExpectedCash:    money(s.ExpectedCash),
		DeclaredCash:    moneyPtr(s.DeclaredCash),
		Difference:      moneyPtr(s.Difference),
		Breakdown:       s.Breakdown,
	}
}

func toExpenseDTO(e core.Expense) ExpenseDTO {
	return ExpenseDTO{
		ID:      e.ID,
		ShiftID: string(e.ShiftID),
		Amount:  money(e.Amount),
		Concept: e.Concept,
		At:      timestamp(e.At),
		StaffID: string(e.StaffID),
	}
}

func toClosureDTO(c shifts.Closure) ClosureDTO {
	return ClosureDTO{
		Shift:      toShiftDTO(c.Shift),
		Expected:   money(c.Expected),
		Declared:   money(c.Declared),
		Difference: money(c.Difference),
		Balanced:   c.Balanced(),
	}
}

func toSummaryDTO(s shifts.Summary) ShiftSummaryDTO {
	dto := ShiftSummaryDTO{
		Shift:    toShiftDTO(s.Shift),
		Expenses: make([]ExpenseDTO, len(s.Expenses)),
		Payments: toPaymentDTOs(s.Payments),
		ByMethod: moneyByMethod(s.ByMethod),
	}
	for i, e := range s.Expenses {
		dto.Expenses[i] = toExpenseDTO(e)
	}
	return dto
}

func toAttendanceDTO(a core.Attendance) AttendanceDTO {
	return AttendanceDTO{
		ID:        a.ID,
		MemberID:  string(a.MemberID),
		At:        timestamp(a.At),
		Permitted: a.Permitted,
		Reason:    a.Reason,
		StaffID:   string(a.StaffID),
	}
}

func toExpiringDTO(e membership.ExpiringMembership) ExpiringDTO {
	return ExpiringDTO{
		SubscriptionID: string(e.Subscription.ID),
		MemberID:       string(e.Subscription.MemberID),
		MemberName:     e.MemberName,
		Phone:          e.Phone,
		PlanName:       e.PlanName,
		ExpirationDate: e.Subscription.ExpirationDate.String(),
		DaysLeft:       e.DaysLeft,
	}
}

func toDashboardDTO(d reports.Dashboard) DashboardDTO {
	return DashboardDTO{
		Date:           d.Date.String(),
		Income:         money(d.Income),
		IncomeByMethod: moneyByMethod(d.IncomeByMethod),
		Payments:       d.Payments,
		CheckIns:       d.CheckIns,
		Denied:         d.Denied,
		OpenShifts:     d.OpenShifts,
		Expiring:       d.Expiring,
		LowStock:       d.LowStock,
	}
}

func toDailyTotalDTOs(days []reports.DailyTotal) []DailyTotalDTO {
	dtos := make([]DailyTotalDTO, len(days))
	for i, d := range days {
		dtos[i] = DailyTotalDTO{Date: d.Date.String(), Total: money(d.Total), Payments: d.Payments}
	}
	return dtos
}

func toHourCountDTOs(hours []reports.HourCount) []HourCountDTO {
	dtos := make([]HourCountDTO, len(hours))
	for i, h := range hours {
		dtos[i] = HourCountDTO{Hour: h.Hour, CheckIns: h.CheckIns}
	}
	return dtos
}

func moneyByMethod(m map[core.PaymentMethod]decimal.Decimal) map[string]string {
	out := make(map[string]string, len(m))
	for method, total := range m {
		out[string(method)] = money(total)
	}
	return out
}
