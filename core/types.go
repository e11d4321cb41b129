/*
Package core provides the records, calendar and store contracts shared by
the front-desk engines.

PURPOSE:
  Everything the rule packages (membership, access, payments, shifts)
  agree on lives here: the persisted records, money, calendar dates, the
  injected clock, the error taxonomy and the store interfaces. The core has
  no business rules of its own.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: a person who may enter the facility
  - Plan: something a member can pay for (time-boxed or visit pack)
  - Subscription: a paid-through window for one member and one plan
  - Attendance / Payment / Expense: append-only log rows
  - Shift: one cashier's drawer session

DESIGN PRINCIPLES:
  1. Log rows (Attendance, Payment, Expense) are never modified
  2. Money uses decimal.Decimal, never float64
  3. Stored subscription status is a cache; dates are ground truth
  4. Typed identifiers so a member id is never passed as a plan id

SEE ALSO:
  - time.go: Date and Clock
  - errors.go: error taxonomy
  - store.go: persistence contracts
*/
package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type MemberID string
type PlanID string
type SubscriptionID string
type ShiftID string
type StaffID string
type ProductID string

// NewID returns a random record identifier.
func NewID() string { return uuid.NewString() }

// WholeCents reports whether d has at most two decimal places. Stores keep
// money as integer cents.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}

// =============================================================================
// MEMBER
// =============================================================================

type MemberStatus string

const (
	MemberActive   MemberStatus = "active"
	MemberInactive MemberStatus = "inactive"
)

type Member struct {
	ID           MemberID
	FirstName    string
	LastName     string
	Phone        string
	PhotoURL     string
	BirthDate    *Date
	Status       MemberStatus
	RegisteredAt time.Time
	RegisteredBy StaffID

	// Mutated only by the visit ledger and the access engine.
	VisitsAvailable int
	LastVisitAt     *time.Time
}

// FullName joins first and last name.
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

// =============================================================================
// PLAN
// =============================================================================

type PlanCategory string

const (
	CategorySubscription PlanCategory = "subscription"
	CategoryVisitPack    PlanCategory = "visit_pack"
)

// Plan is conceptually immutable once a subscription references it.
type Plan struct {
	ID             PlanID
	Name           string
	Price          decimal.Decimal
	DurationDays   int
	Category       PlanCategory
	CreditsGranted int
	Active         bool
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	ID             SubscriptionID
	MemberID       MemberID
	PlanID         PlanID
	StartDate      Date
	ExpirationDate Date
	Status         SubscriptionStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// =============================================================================
// LOG ROWS - append-only
// =============================================================================

type Attendance struct {
	ID        string
	MemberID  MemberID
	At        time.Time
	Permitted bool
	Reason    string
	StaffID   StaffID
	ShiftID   ShiftID
}

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer:
		return true
	}
	return false
}

type Payment struct {
	ID        string
	MemberID  MemberID  // empty for walk-in sales
	PlanID    PlanID    // empty for non-membership sales
	ProductID ProductID // set for counter sales of stocked products
	Quantity  int       // units of ProductID sold
	Amount    decimal.Decimal
	Method    PaymentMethod
	PaidAt    time.Time
	StaffID   StaffID
	ShiftID   ShiftID
	Concept   string
}

type Expense struct {
	ID      string
	ShiftID ShiftID
	Amount  decimal.Decimal
	Concept string
	At      time.Time
	StaffID StaffID
}

// =============================================================================
// PRODUCT - counter stock (drinks, supplements)
// =============================================================================

type Product struct {
	ID       ProductID
	Name     string
	Price    decimal.Decimal
	Stock    int
	MinStock int
	Category string
	Emoji    string
	// Inactive products are hidden from the counter but keep their history.
	Active bool
}

// LowStock reports whether the shelf is at or below its reorder level.
func (p Product) LowStock() bool {
	return p.Stock <= p.MinStock
}

// =============================================================================
// SHIFT
// =============================================================================

type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "open"
	ShiftClosed ShiftStatus = "closed"
)

// ShiftSlot is for reporting only.
type ShiftSlot string

const (
	SlotMorning ShiftSlot = "morning"
	SlotEvening ShiftSlot = "evening"
)

type Shift struct {
	ID              ShiftID
	StaffID         StaffID
	Slot            ShiftSlot
	OpenedAt        time.Time
	ClosedAt        *time.Time
	OpeningCash     decimal.Decimal
	CashWithdrawals decimal.Decimal
	ExpectedCash    decimal.Decimal
	DeclaredCash    *decimal.Decimal
	Difference      *decimal.Decimal
	Breakdown       map[string]int
	Status          ShiftStatus
}

// ShiftFilter narrows ListShifts. Zero values mean "any".
type ShiftFilter struct {
	Status  ShiftStatus
	StaffID StaffID
	From    *time.Time
	To      *time.Time
	Limit   int
}
