/*
Package shifts runs a cashier's drawer from opening count to closing count.

PURPOSE:
  A shift is one staff member's cash session. Cash payments and expenses
  move its expected cash as they happen; closing compares the counted
  cash with that running figure and records the difference.

STATE MACHINE:
  (none) --Open--> open --Close--> closed
  A closed shift is never reopened; the next session is a new shift.

RUNNING TOTAL:
  expected = opening + cash payments - expenses
  It is maintained by atomic store increments. Close never rescans
  payments, it reads the running figure.

CLOSING:
  Closing is never blocked by a mismatch. A non-zero difference is
  recorded, counted and sent to the admin channel.

SEE ALSO:
  - denominations.go: closing cash count
  - payments/reconciler.go: cash payments feed expected cash
*/
package shifts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/metrics"
)

// DefaultMorningCutoffHour splits morning and evening shifts.
const DefaultMorningCutoffHour = 14

// Closure is the outcome of closing a shift.
type Closure struct {
	Shift      core.Shift
	Expected   decimal.Decimal
	Declared   decimal.Decimal
	Difference decimal.Decimal
}

// Balanced reports whether the count matched exactly.
func (c Closure) Balanced() bool { return c.Difference.IsZero() }

// Notifier is told about closed shifts. Implementations must not block
// the close on delivery problems.
type Notifier interface {
	ShiftClosed(ctx context.Context, c Closure) error
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	store      core.Store
	clock      core.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics
	notifier   Notifier
	cutoffHour int
}

func NewReconciler(store core.Store, clock core.Clock, logger *slog.Logger, m *metrics.Metrics, notifier Notifier, cutoffHour int) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cutoffHour <= 0 || cutoffHour > 23 {
		cutoffHour = DefaultMorningCutoffHour
	}
	return &Reconciler{
		store:      store,
		clock:      clock,
		logger:     logger,
		metrics:    m,
		notifier:   notifier,
		cutoffHour: cutoffHour,
	}
}

// Open starts a shift for staffID with the counted opening cash.
func (r *Reconciler) Open(ctx context.Context, staffID core.StaffID, openingCash decimal.Decimal) (*core.Shift, error) {
	if staffID == "" {
		return nil, core.Invalid("staff", "staff member is required")
	}
	if openingCash.IsNegative() {
		return nil, core.Invalid("opening_cash", "must not be negative")
	}
	if !core.WholeCents(openingCash) {
		return nil, core.Invalid("opening_cash", "use at most two decimal places")
	}

	now := r.clock.Now()
	slot := core.SlotEvening
	if now.Hour() < r.cutoffHour {
		slot = core.SlotMorning
	}

	s := core.Shift{
		ID:              core.ShiftID(core.NewID()),
		StaffID:         staffID,
		Slot:            slot,
		OpenedAt:        now,
		OpeningCash:     openingCash,
		CashWithdrawals: decimal.Zero,
		ExpectedCash:    openingCash,
		Status:          core.ShiftOpen,
	}
	if err := r.store.CreateShift(ctx, s); err != nil {
		return nil, err
	}
	r.logger.Info("shift opened",
		"shift_id", s.ID,
		"staff_id", staffID,
		"slot", slot,
		"opening_cash", openingCash.StringFixed(2),
	)
	return &s, nil
}

// RegisterExpense takes cash out of an open shift's drawer.
func (r *Reconciler) RegisterExpense(ctx context.Context, shiftID core.ShiftID, amount decimal.Decimal, concept string, staffID core.StaffID) (*core.Expense, error) {
	concept = strings.TrimSpace(concept)
	switch {
	case !amount.IsPositive():
		return nil, core.Invalid("amount", "must be greater than zero")
	case !core.WholeCents(amount):
		return nil, core.Invalid("amount", "use at most two decimal places")
	case concept == "":
		return nil, core.Invalid("concept", "an expense needs a concept")
	}

	e := core.Expense{
		ID:      core.NewID(),
		ShiftID: shiftID,
		Amount:  amount,
		Concept: concept,
		At:      r.clock.Now(),
		StaffID: staffID,
	}
	if err := r.store.RecordExpense(ctx, e); err != nil {
		return nil, fmt.Errorf("expense on shift %s: %w", shiftID, err)
	}
	r.logger.Info("expense registered",
		"shift_id", shiftID,
		"expense_id", e.ID,
		"amount", amount.StringFixed(2),
		"concept", concept,
	)
	return &e, nil
}

// Close records the counted cash and closes the shift, whatever the
// difference. A non-empty breakdown must add up to declared.
func (r *Reconciler) Close(ctx context.Context, shiftID core.ShiftID, declared decimal.Decimal, breakdown Breakdown) (Closure, error) {
	if declared.IsNegative() {
		return Closure{}, core.Invalid("declared_cash", "must not be negative")
	}
	if !core.WholeCents(declared) {
		return Closure{}, core.Invalid("declared_cash", "use at most two decimal places")
	}

	var counted Breakdown
	if len(breakdown) > 0 {
		normalized, err := breakdown.Normalize()
		if err != nil {
			return Closure{}, err
		}
		total, _ := normalized.Total()
		if !total.Equal(declared) {
			return Closure{}, core.Invalid("breakdown",
				fmt.Sprintf("cash count adds up to %s but %s was declared", total.StringFixed(2), declared.StringFixed(2)))
		}
		counted = normalized
	}

	closed, err := r.store.CloseShift(ctx, shiftID, declared, counted, r.clock.Now())
	if err != nil {
		return Closure{}, fmt.Errorf("close shift %s: %w", shiftID, err)
	}

	c := Closure{
		Shift:      *closed,
		Expected:   closed.ExpectedCash,
		Declared:   declared,
		Difference: declared.Sub(closed.ExpectedCash),
	}
	if closed.Difference != nil {
		c.Difference = *closed.Difference
	}

	variance, _ := c.Difference.Float64()
	r.metrics.ShiftClosed(variance)
	r.logger.Info("shift closed",
		"shift_id", shiftID,
		"expected", c.Expected.StringFixed(2),
		"declared", c.Declared.StringFixed(2),
		"difference", c.Difference.StringFixed(2),
	)

	if !c.Balanced() && r.notifier != nil {
		if err := r.notifier.ShiftClosed(ctx, c); err != nil {
			r.logger.Warn("cash variance notification failed", "shift_id", shiftID, "error", err)
		}
	}
	return c, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Summary is a shift with the movements that fed its drawer.
type Summary struct {
	Shift    core.Shift
	Expenses []core.Expense
	Payments []core.Payment
	// ByMethod totals every payment taken during the shift per method.
	ByMethod map[core.PaymentMethod]decimal.Decimal
}

// Summary loads a shift with its expenses and payments.
func (r *Reconciler) Summary(ctx context.Context, shiftID core.ShiftID) (Summary, error) {
	s, err := r.store.GetShift(ctx, shiftID)
	if err != nil {
		return Summary{}, err
	}
	expenses, err := r.store.ListExpenses(ctx, shiftID)
	if err != nil {
		return Summary{}, err
	}
	paid, err := r.store.ListPayments(ctx, core.PaymentFilter{ShiftID: shiftID})
	if err != nil {
		return Summary{}, err
	}

	byMethod := make(map[core.PaymentMethod]decimal.Decimal)
	for _, p := range paid {
		byMethod[p.Method] = byMethod[p.Method].Add(p.Amount)
	}
	return Summary{Shift: *s, Expenses: expenses, Payments: paid, ByMethod: byMethod}, nil
}

// List returns shifts matching f, newest first.
func (r *Reconciler) List(ctx context.Context, f core.ShiftFilter) ([]core.Shift, error) {
	return r.store.ListShifts(ctx, f)
}

// Current returns the staff member's open shift, or ErrNotFound.
func (r *Reconciler) Current(ctx context.Context, staffID core.StaffID) (*core.Shift, error) {
	return r.store.OpenShiftFor(ctx, staffID)
}
