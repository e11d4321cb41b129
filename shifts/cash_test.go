package shifts_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/core/store"
	"github.com/warp/frontdesk/logger"
	"github.com/warp/frontdesk/membership"
	"github.com/warp/frontdesk/metrics"
	"github.com/warp/frontdesk/payments"
	"github.com/warp/frontdesk/shifts"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type recordingNotifier struct {
	mu       sync.Mutex
	closures []shifts.Closure
	err      error
}

func (n *recordingNotifier) ShiftClosed(_ context.Context, c shifts.Closure) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closures = append(n.closures, c)
	return n.err
}

type fixture struct {
	mem      *store.Memory
	clock    *core.FixedClock
	shifts   *shifts.Reconciler
	payments *payments.Reconciler
	notifier *recordingNotifier
}

func newFixture(t *testing.T, at time.Time) *fixture {
	t.Helper()
	mem := store.NewMemory()
	clock := core.NewFixedClock(at)
	guarded := core.NewGuard(mem, time.Second)
	m := metrics.MustNewMetrics(prometheus.NewRegistry())
	notifier := &recordingNotifier{}

	require.NoError(t, mem.CreateMember(context.Background(), core.Member{ID: "m-1", FirstName: "Ana"}))
	require.NoError(t, mem.CreatePlan(context.Background(), core.Plan{
		ID: "monthly", Name: "Monthly", DurationDays: 30, Category: core.CategorySubscription, Active: true,
	}))
	plans, err := membership.NewPlanCache(mem, 0)
	require.NoError(t, err)

	return &fixture{
		mem:      mem,
		clock:    clock,
		shifts:   shifts.NewReconciler(guarded, clock, logger.Discard(), m, notifier, 0),
		payments: payments.NewReconciler(guarded, plans, clock, logger.Discard(), m, 0),
		notifier: notifier,
	}
}

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

var nine = time.Date(2024, time.July, 8, 9, 0, 0, 0, time.UTC)

// =============================================================================
// END-TO-END DRAWER
// =============================================================================

func TestShift_OpenPayExpenseClose_Difference(t *testing.T) {
	// GIVEN: a shift opened with $500
	f := newFixture(t, nine)
	ctx := context.Background()
	shift, err := f.shifts.Open(ctx, "staff-1", money(500))
	require.NoError(t, err)
	assert.Equal(t, core.SlotMorning, shift.Slot)

	// WHEN: one $80 cash payment and one $30 withdrawal
	_, err = f.payments.RecordPayment(ctx, payments.PaymentRequest{
		MemberID: "m-1", PlanID: "monthly", Amount: money(80), Method: core.MethodCash, StaffID: "staff-1",
	})
	require.NoError(t, err)
	_, err = f.shifts.RegisterExpense(ctx, shift.ID, money(30), "Cleaning supplies", "staff-1")
	require.NoError(t, err)

	// THEN: expected cash is 550
	current, err := f.shifts.Current(ctx, "staff-1")
	require.NoError(t, err)
	assert.True(t, current.ExpectedCash.Equal(money(550)), current.ExpectedCash.String())
	assert.True(t, current.CashWithdrawals.Equal(money(30)))

	// WHEN: closing with $548 counted
	f.clock.Advance(6 * time.Hour)
	closure, err := f.shifts.Close(ctx, shift.ID, money(548), shifts.Breakdown{
		"500": 1, "20": 2, "5": 1, "2": 1, "1": 1,
	})

	// THEN: the shift closes short by 2
	require.NoError(t, err)
	assert.True(t, closure.Difference.Equal(money(-2)), closure.Difference.String())
	assert.True(t, closure.Expected.Equal(money(550)))
	assert.False(t, closure.Balanced())
	assert.Equal(t, core.ShiftClosed, closure.Shift.Status)
	require.NotNil(t, closure.Shift.ClosedAt)
	assert.Equal(t, 2, closure.Shift.Breakdown["20"])

	// AND: the admin channel heard about it
	require.Len(t, f.notifier.closures, 1)
	assert.Equal(t, shift.ID, f.notifier.closures[0].Shift.ID)
}

func TestShift_BalancedClose_NoNotification(t *testing.T) {
	f := newFixture(t, nine)
	ctx := context.Background()
	shift, err := f.shifts.Open(ctx, "staff-1", money(300))
	require.NoError(t, err)

	closure, err := f.shifts.Close(ctx, shift.ID, money(300), nil)

	require.NoError(t, err)
	assert.True(t, closure.Balanced())
	assert.Empty(t, f.notifier.closures)
}

func TestShift_NotifierFailure_DoesNotBlockClose(t *testing.T) {
	f := newFixture(t, nine)
	f.notifier.err = errors.New("telegram unreachable")
	ctx := context.Background()
	shift, err := f.shifts.Open(ctx, "staff-1", money(300))
	require.NoError(t, err)

	closure, err := f.shifts.Close(ctx, shift.ID, money(310), nil)

	require.NoError(t, err)
	assert.True(t, closure.Difference.Equal(money(10)))
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestShift_OneOpenShiftPerStaff(t *testing.T) {
	f := newFixture(t, nine)
	ctx := context.Background()

	_, err := f.shifts.Open(ctx, "staff-1", money(100))
	require.NoError(t, err)

	_, err = f.shifts.Open(ctx, "staff-1", money(100))
	assert.ErrorIs(t, err, core.ErrShiftAlreadyOpen)

	_, err = f.shifts.Open(ctx, "staff-2", money(100))
	assert.NoError(t, err, "other staff may open their own shift")
}

func TestShift_ClosedShiftRejectsWrites(t *testing.T) {
	f := newFixture(t, nine)
	ctx := context.Background()
	shift, err := f.shifts.Open(ctx, "staff-1", money(100))
	require.NoError(t, err)
	_, err = f.shifts.Close(ctx, shift.ID, money(100), nil)
	require.NoError(t, err)

	_, err = f.shifts.RegisterExpense(ctx, shift.ID, money(10), "Snacks", "staff-1")
	assert.ErrorIs(t, err, core.ErrShiftNotOpen)

	_, err = f.shifts.Close(ctx, shift.ID, money(100), nil)
	assert.ErrorIs(t, err, core.ErrShiftNotOpen)

	// A new shift can be opened after closing.
	_, err = f.shifts.Open(ctx, "staff-1", money(100))
	assert.NoError(t, err)
}

func TestShift_EveningSlot(t *testing.T) {
	f := newFixture(t, time.Date(2024, time.July, 8, 14, 0, 0, 0, time.UTC))

	shift, err := f.shifts.Open(context.Background(), "staff-1", money(0))

	require.NoError(t, err)
	assert.Equal(t, core.SlotEvening, shift.Slot)
}

func TestShift_ExpenseWriteFailure_LeavesCountersUntouched(t *testing.T) {
	f := newFixture(t, nine)
	ctx := context.Background()
	shift, err := f.shifts.Open(ctx, "staff-1", money(200))
	require.NoError(t, err)

	f.mem.FailNext("RecordExpense", errors.New("lock timeout"))
	_, err = f.shifts.RegisterExpense(ctx, shift.ID, money(50), "Water", "staff-1")
	require.ErrorIs(t, err, core.ErrPersistence)

	s, err := f.mem.GetShift(ctx, shift.ID)
	require.NoError(t, err)
	assert.True(t, s.ExpectedCash.Equal(money(200)))
	assert.True(t, s.CashWithdrawals.IsZero())
	expenses, _ := f.mem.ListExpenses(ctx, shift.ID)
	assert.Empty(t, expenses)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestShift_InvalidInput(t *testing.T) {
	f := newFixture(t, nine)
	ctx := context.Background()

	_, err := f.shifts.Open(ctx, "", money(100))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.shifts.Open(ctx, "staff-1", money(-1))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	shift, err := f.shifts.Open(ctx, "staff-1", money(100))
	require.NoError(t, err)

	_, err = f.shifts.RegisterExpense(ctx, shift.ID, money(0), "Nothing", "staff-1")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.shifts.RegisterExpense(ctx, shift.ID, money(5), "  ", "staff-1")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.shifts.Close(ctx, shift.ID, money(100), shifts.Breakdown{"50": 1})
	assert.ErrorIs(t, err, core.ErrInvalidInput, "count does not add up")

	current, err := f.shifts.Current(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, core.ShiftOpen, current.Status, "rejected close leaves the shift open")
}

func TestShift_SubCentAmountsRejected(t *testing.T) {
	f := newFixture(t, nine)
	ctx := context.Background()
	fraction := decimal.RequireFromString("0.005")

	_, err := f.shifts.Open(ctx, "staff-1", money(100).Add(fraction))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	shift, err := f.shifts.Open(ctx, "staff-1", money(100))
	require.NoError(t, err)

	_, err = f.shifts.RegisterExpense(ctx, shift.ID, money(5).Add(fraction), "Cleaning", "staff-1")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.shifts.Close(ctx, shift.ID, money(100).Add(fraction), nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	current, err := f.shifts.Current(ctx, "staff-1")
	require.NoError(t, err)
	assert.True(t, current.CashWithdrawals.IsZero())
	assert.Equal(t, core.ShiftOpen, current.Status)
}

func TestShift_Summary(t *testing.T) {
	f := newFixture(t, nine)
	ctx := context.Background()
	shift, err := f.shifts.Open(ctx, "staff-1", money(100))
	require.NoError(t, err)

	_, err = f.payments.RecordPayment(ctx, payments.PaymentRequest{
		Amount: money(40), Method: core.MethodCash, StaffID: "staff-1", Concept: "Protein bar",
	})
	require.NoError(t, err)
	_, err = f.payments.RecordPayment(ctx, payments.PaymentRequest{
		Amount: money(60), Method: core.MethodCard, StaffID: "staff-1", Concept: "Towel",
	})
	require.NoError(t, err)
	_, err = f.shifts.RegisterExpense(ctx, shift.ID, money(15), "Ice", "staff-1")
	require.NoError(t, err)

	sum, err := f.shifts.Summary(ctx, shift.ID)
	require.NoError(t, err)
	assert.Len(t, sum.Payments, 2)
	assert.Len(t, sum.Expenses, 1)
	assert.True(t, sum.ByMethod[core.MethodCash].Equal(money(40)))
	assert.True(t, sum.ByMethod[core.MethodCard].Equal(money(60)))
	assert.True(t, sum.Shift.ExpectedCash.Equal(money(125)))
}
