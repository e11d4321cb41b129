package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultStoreTimeout bounds a single store call when none is configured.
const DefaultStoreTimeout = 10 * time.Second

// Guard decorates a Store so that no call blocks longer than Timeout and
// every failure surfaces as one of the taxonomy errors:
//
//	context.DeadlineExceeded -> ErrTimeout
//	domain sentinels          -> unchanged
//	anything else             -> *PersistenceError
type Guard struct {
	inner   Store
	timeout time.Duration
}

// NewGuard wraps s. A non-positive timeout selects DefaultStoreTimeout.
func NewGuard(s Store, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Guard{inner: s, timeout: timeout}
}

// Unwrap returns the decorated store.
func (g *Guard) Unwrap() Store { return g.inner }

func (g *Guard) mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	case errors.Is(err, context.Canceled),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNoCredit),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrDuplicatePayment),
		errors.Is(err, ErrShiftAlreadyOpen),
		errors.Is(err, ErrShiftNotOpen),
		errors.Is(err, ErrOutOfStock),
		errors.Is(err, ErrHasHistory),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrPersistence):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func guarded[T any](ctx context.Context, g *Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	v, err := fn(ctx)
	if err == nil && ctx.Err() == context.DeadlineExceeded {
		err = ctx.Err()
	}
	return v, g.mapErr(op, err)
}

func guardedErr(ctx context.Context, g *Guard, op string, fn func(context.Context) error) error {
	_, err := guarded(ctx, g, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTx runs fn in a transaction of the inner store, if it has one.
// The whole transaction shares one deadline.
func (g *Guard) WithTx(ctx context.Context, fn func(Store) error) error {
	return guardedErr(ctx, g, "transaction", func(ctx context.Context) error {
		tx, ok := g.inner.(TxStore)
		if !ok {
			return fn(g)
		}
		return tx.WithTx(ctx, func(s Store) error {
			return fn(&Guard{inner: s, timeout: g.timeout})
		})
	})
}

// =============================================================================
// MEMBERS
// =============================================================================

func (g *Guard) CreateMember(ctx context.Context, m Member) error {
	return guardedErr(ctx, g, "create member", func(ctx context.Context) error {
		return g.inner.CreateMember(ctx, m)
	})
}

func (g *Guard) GetMember(ctx context.Context, id MemberID) (*Member, error) {
	return guarded(ctx, g, "get member", func(ctx context.Context) (*Member, error) {
		return g.inner.GetMember(ctx, id)
	})
}

func (g *Guard) FindMembers(ctx context.Context, query string, limit int) ([]Member, error) {
	return guarded(ctx, g, "find members", func(ctx context.Context) ([]Member, error) {
		return g.inner.FindMembers(ctx, query, limit)
	})
}

func (g *Guard) AddVisits(ctx context.Context, id MemberID, qty int) (int, error) {
	return guarded(ctx, g, "add visits", func(ctx context.Context) (int, error) {
		return g.inner.AddVisits(ctx, id, qty)
	})
}

func (g *Guard) ConsumeVisit(ctx context.Context, id MemberID, at time.Time) (int, error) {
	return guarded(ctx, g, "consume visit", func(ctx context.Context) (int, error) {
		return g.inner.ConsumeVisit(ctx, id, at)
	})
}

func (g *Guard) TouchLastVisit(ctx context.Context, id MemberID, at time.Time) error {
	return guardedErr(ctx, g, "touch last visit", func(ctx context.Context) error {
		return g.inner.TouchLastVisit(ctx, id, at)
	})
}

func (g *Guard) UpdateMember(ctx context.Context, m Member) error {
	return guardedErr(ctx, g, "update member", func(ctx context.Context) error {
		return g.inner.UpdateMember(ctx, m)
	})
}

func (g *Guard) DeleteMember(ctx context.Context, id MemberID) error {
	return guardedErr(ctx, g, "delete member", func(ctx context.Context) error {
		return g.inner.DeleteMember(ctx, id)
	})
}

// =============================================================================
// PLANS
// =============================================================================

func (g *Guard) CreatePlan(ctx context.Context, p Plan) error {
	return guardedErr(ctx, g, "create plan", func(ctx context.Context) error {
		return g.inner.CreatePlan(ctx, p)
	})
}

func (g *Guard) GetPlan(ctx context.Context, id PlanID) (*Plan, error) {
	return guarded(ctx, g, "get plan", func(ctx context.Context) (*Plan, error) {
		return g.inner.GetPlan(ctx, id)
	})
}

func (g *Guard) ListPlans(ctx context.Context, activeOnly bool) ([]Plan, error) {
	return guarded(ctx, g, "list plans", func(ctx context.Context) ([]Plan, error) {
		return g.inner.ListPlans(ctx, activeOnly)
	})
}

func (g *Guard) SetPlanActive(ctx context.Context, id PlanID, active bool) error {
	return guardedErr(ctx, g, "set plan active", func(ctx context.Context) error {
		return g.inner.SetPlanActive(ctx, id, active)
	})
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

func (g *Guard) CreateSubscription(ctx context.Context, s Subscription) error {
	return guardedErr(ctx, g, "create subscription", func(ctx context.Context) error {
		return g.inner.CreateSubscription(ctx, s)
	})
}

func (g *Guard) ListSubscriptions(ctx context.Context, memberID MemberID) ([]Subscription, error) {
	return guarded(ctx, g, "list subscriptions", func(ctx context.Context) ([]Subscription, error) {
		return g.inner.ListSubscriptions(ctx, memberID)
	})
}

func (g *Guard) ExtendSubscription(ctx context.Context, id SubscriptionID, planID PlanID, expiration Date, at time.Time) error {
	return guardedErr(ctx, g, "extend subscription", func(ctx context.Context) error {
		return g.inner.ExtendSubscription(ctx, id, planID, expiration, at)
	})
}

func (g *Guard) SetSubscriptionExpiration(ctx context.Context, id SubscriptionID, expiration Date, status SubscriptionStatus, at time.Time) error {
	return guardedErr(ctx, g, "set subscription expiration", func(ctx context.Context) error {
		return g.inner.SetSubscriptionExpiration(ctx, id, expiration, status, at)
	})
}

func (g *Guard) ListExpiring(ctx context.Context, from, to Date) ([]Subscription, error) {
	return guarded(ctx, g, "list expiring", func(ctx context.Context) ([]Subscription, error) {
		return g.inner.ListExpiring(ctx, from, to)
	})
}

func (g *Guard) ExpireOverdue(ctx context.Context, today Date, at time.Time) (int, error) {
	return guarded(ctx, g, "expire overdue", func(ctx context.Context) (int, error) {
		return g.inner.ExpireOverdue(ctx, today, at)
	})
}

// =============================================================================
// LOGS
// =============================================================================

func (g *Guard) AppendAttendance(ctx context.Context, a Attendance) error {
	return guardedErr(ctx, g, "append attendance", func(ctx context.Context) error {
		return g.inner.AppendAttendance(ctx, a)
	})
}

func (g *Guard) ListAttendance(ctx context.Context, f AttendanceFilter) ([]Attendance, error) {
	return guarded(ctx, g, "list attendance", func(ctx context.Context) ([]Attendance, error) {
		return g.inner.ListAttendance(ctx, f)
	})
}

func (g *Guard) AppendPayment(ctx context.Context, p Payment) error {
	return guardedErr(ctx, g, "append payment", func(ctx context.Context) error {
		return g.inner.AppendPayment(ctx, p)
	})
}

func (g *Guard) ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error) {
	return guarded(ctx, g, "list payments", func(ctx context.Context) ([]Payment, error) {
		return g.inner.ListPayments(ctx, f)
	})
}

// =============================================================================
// SHIFTS
// =============================================================================

func (g *Guard) CreateShift(ctx context.Context, s Shift) error {
	return guardedErr(ctx, g, "create shift", func(ctx context.Context) error {
		return g.inner.CreateShift(ctx, s)
	})
}

func (g *Guard) GetShift(ctx context.Context, id ShiftID) (*Shift, error) {
	return guarded(ctx, g, "get shift", func(ctx context.Context) (*Shift, error) {
		return g.inner.GetShift(ctx, id)
	})
}

func (g *Guard) OpenShiftFor(ctx context.Context, staffID StaffID) (*Shift, error) {
	return guarded(ctx, g, "open shift lookup", func(ctx context.Context) (*Shift, error) {
		return g.inner.OpenShiftFor(ctx, staffID)
	})
}

func (g *Guard) ListShifts(ctx context.Context, f ShiftFilter) ([]Shift, error) {
	return guarded(ctx, g, "list shifts", func(ctx context.Context) ([]Shift, error) {
		return g.inner.ListShifts(ctx, f)
	})
}

func (g *Guard) AddShiftCash(ctx context.Context, id ShiftID, delta decimal.Decimal) error {
	return guardedErr(ctx, g, "add shift cash", func(ctx context.Context) error {
		return g.inner.AddShiftCash(ctx, id, delta)
	})
}

func (g *Guard) RecordExpense(ctx context.Context, e Expense) error {
	return guardedErr(ctx, g, "record expense", func(ctx context.Context) error {
		return g.inner.RecordExpense(ctx, e)
	})
}

func (g *Guard) ListExpenses(ctx context.Context, shiftID ShiftID) ([]Expense, error) {
	return guarded(ctx, g, "list expenses", func(ctx context.Context) ([]Expense, error) {
		return g.inner.ListExpenses(ctx, shiftID)
	})
}

func (g *Guard) CloseShift(ctx context.Context, id ShiftID, declared decimal.Decimal, breakdown map[string]int, at time.Time) (*Shift, error) {
	return guarded(ctx, g, "close shift", func(ctx context.Context) (*Shift, error) {
		return g.inner.CloseShift(ctx, id, declared, breakdown, at)
	})
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (g *Guard) SaveProduct(ctx context.Context, p Product) error {
	return guardedErr(ctx, g, "save product", func(ctx context.Context) error {
		return g.inner.SaveProduct(ctx, p)
	})
}

func (g *Guard) GetProduct(ctx context.Context, id ProductID) (*Product, error) {
	return guarded(ctx, g, "get product", func(ctx context.Context) (*Product, error) {
		return g.inner.GetProduct(ctx, id)
	})
}

func (g *Guard) ListProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	return guarded(ctx, g, "list products", func(ctx context.Context) ([]Product, error) {
		return g.inner.ListProducts(ctx, activeOnly)
	})
}

func (g *Guard) DeductStock(ctx context.Context, id ProductID, qty int) (int, error) {
	return guarded(ctx, g, "deduct stock", func(ctx context.Context) (int, error) {
		return g.inner.DeductStock(ctx, id, qty)
	})
}

func (g *Guard) RestockProduct(ctx context.Context, id ProductID, qty int) (int, error) {
	return guarded(ctx, g, "restock product", func(ctx context.Context) (int, error) {
		return g.inner.RestockProduct(ctx, id, qty)
	})
}

var _ TxStore = (*Guard)(nil)
