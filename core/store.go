/*
store.go - Persistence contracts for members, plans and the cash drawer

PURPOSE:
  Defines the interface between the rule packages and the record store.
  Implementations exist for SQLite, PostgreSQL and memory; rules never
  know which one they talk to.

KEY INTERFACES:
  MemberStore:       member records and the visit-pack counter
  PlanStore:         plan catalog
  SubscriptionStore: paid-through windows
  AttendanceLog:     append-only check-in log
  PaymentLog:        append-only payment log
  ShiftStore:        cash shifts and their expenses
  ProductStore:      counter products and their stock
  TxStore:           Store plus WithTx for multi-row writes

APPEND-ONLY CONTRACT:
  Attendance, Payment and Expense rows have no Update or Delete. They are
  the durable truth; member and subscription fields are caches that can be
  rebuilt from them.

ATOMIC COUNTERS:
  VisitsAvailable, ExpectedCash, CashWithdrawals and Product.Stock are
  only changed by the increment methods below (AddVisits, ConsumeVisit,
  AddShiftCash, RecordExpense, DeductStock). Implementations apply them as single conditional
  updates so two terminals never lose each other's writes.

MISSING ROWS:
  Getters return ErrNotFound (wrapped) when the row does not exist.

IMPLEMENTATIONS:
  - core/store/memory.go: in-memory, for tests and demos
  - store/sqlite: SQLite
  - store/postgres: PostgreSQL via pgx

SEE ALSO:
  - guard.go: timeout and error mapping applied on top of any Store
*/
package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD STORES
// =============================================================================

type MemberStore interface {
	CreateMember(ctx context.Context, m Member) error
	GetMember(ctx context.Context, id MemberID) (*Member, error)

	// FindMembers matches query case-insensitively against first and last
	// name. An empty query lists members. Ordered by last name, first name.
	FindMembers(ctx context.Context, query string, limit int) ([]Member, error)

	// AddVisits adds qty to the visit balance and returns the new balance.
	AddVisits(ctx context.Context, id MemberID, qty int) (int, error)

	// ConsumeVisit decrements the balance by one and sets LastVisitAt, only
	// if the balance is positive. Returns ErrNoCredit otherwise.
	ConsumeVisit(ctx context.Context, id MemberID, at time.Time) (int, error)

	// TouchLastVisit sets LastVisitAt without changing the balance.
	TouchLastVisit(ctx context.Context, id MemberID, at time.Time) error

	// UpdateMember rewrites the profile fields of m (names, phone, photo,
	// birth date, status). The visit counter and LastVisitAt are untouched.
	UpdateMember(ctx context.Context, m Member) error

	// DeleteMember removes the member row. Callers check for history first.
	DeleteMember(ctx context.Context, id MemberID) error
}

type PlanStore interface {
	CreatePlan(ctx context.Context, p Plan) error
	GetPlan(ctx context.Context, id PlanID) (*Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error)
	SetPlanActive(ctx context.Context, id PlanID, active bool) error
}

type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, s Subscription) error

	// ListSubscriptions returns a member's subscriptions, latest expiration first.
	ListSubscriptions(ctx context.Context, memberID MemberID) ([]Subscription, error)

	// ExtendSubscription moves the expiration, switches the plan and forces
	// the stored status to active.
	ExtendSubscription(ctx context.Context, id SubscriptionID, planID PlanID, expiration Date, at time.Time) error

	// SetSubscriptionExpiration is the manual override: it moves the
	// expiration and stores status as given, leaving the plan alone.
	SetSubscriptionExpiration(ctx context.Context, id SubscriptionID, expiration Date, status SubscriptionStatus, at time.Time) error

	// ListExpiring returns subscriptions stored as active whose expiration
	// falls in [from, to], soonest first.
	ListExpiring(ctx context.Context, from, to Date) ([]Subscription, error)

	// ExpireOverdue marks active subscriptions expiring before today as
	// expired and returns how many rows changed.
	ExpireOverdue(ctx context.Context, today Date, at time.Time) (int, error)
}

// AttendanceFilter narrows ListAttendance. Zero values mean "any".
type AttendanceFilter struct {
	MemberID      MemberID
	From          *time.Time
	To            *time.Time
	PermittedOnly bool
	Limit         int
}

type AttendanceLog interface {
	AppendAttendance(ctx context.Context, a Attendance) error

	// ListAttendance returns matching rows, newest first.
	ListAttendance(ctx context.Context, f AttendanceFilter) ([]Attendance, error)
}

// PaymentFilter narrows ListPayments. Zero values mean "any".
type PaymentFilter struct {
	MemberID MemberID
	ShiftID  ShiftID
	Method   PaymentMethod
	From     *time.Time
	To       *time.Time
}

type PaymentLog interface {
	AppendPayment(ctx context.Context, p Payment) error

	// ListPayments returns matching rows, newest first.
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)
}

type ShiftStore interface {
	// CreateShift fails with ErrShiftAlreadyOpen if the staff member has one open.
	CreateShift(ctx context.Context, s Shift) error
	GetShift(ctx context.Context, id ShiftID) (*Shift, error)

	// OpenShiftFor returns the staff member's open shift or ErrNotFound.
	OpenShiftFor(ctx context.Context, staffID StaffID) (*Shift, error)
	ListShifts(ctx context.Context, f ShiftFilter) ([]Shift, error)

	// AddShiftCash adds delta to ExpectedCash of an open shift.
	AddShiftCash(ctx context.Context, id ShiftID, delta decimal.Decimal) error

	// RecordExpense inserts the expense and, in the same write, adds its
	// amount to CashWithdrawals and subtracts it from ExpectedCash.
	RecordExpense(ctx context.Context, e Expense) error
	ListExpenses(ctx context.Context, shiftID ShiftID) ([]Expense, error)

	// CloseShift stores the declared count and computes the difference
	// against ExpectedCash in one conditional update. Closing a shift that
	// is not open returns ErrShiftNotOpen.
	CloseShift(ctx context.Context, id ShiftID, declared decimal.Decimal, breakdown map[string]int, at time.Time) (*Shift, error)
}

type ProductStore interface {
	// SaveProduct inserts p, or replaces every field of the product with
	// the same id except Stock, which only DeductStock and RestockProduct move.
	SaveProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id ProductID) (*Product, error)

	// ListProducts is ordered by name.
	ListProducts(ctx context.Context, activeOnly bool) ([]Product, error)

	// DeductStock removes qty units only if at least qty are on the shelf
	// and returns what is left. Otherwise it returns a *StockError.
	DeductStock(ctx context.Context, id ProductID, qty int) (int, error)

	// RestockProduct adds qty units and returns the new stock.
	RestockProduct(ctx context.Context, id ProductID, qty int) (int, error)
}

// =============================================================================
// STORE - everything the engines need
// =============================================================================

type Store interface {
	MemberStore
	PlanStore
	SubscriptionStore
	AttendanceLog
	PaymentLog
	ShiftStore
	ProductStore
}

// TxStore wraps Store with transaction support.
// Use this when several writes must land together (check-in, expense).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// RunInTx runs fn inside a transaction when s supports one, and directly
// against s otherwise.
func RunInTx(ctx context.Context, s Store, fn func(Store) error) error {
	if tx, ok := s.(TxStore); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(s)
}
