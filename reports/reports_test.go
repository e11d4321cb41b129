package reports_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/core/store"
	"github.com/warp/frontdesk/membership"
	"github.com/warp/frontdesk/reports"
)

var now = time.Date(2024, time.July, 8, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*reports.Service, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	clock := core.NewFixedClock(now)

	plans, err := membership.NewPlanCache(mem, 16)
	require.NoError(t, err)
	require.NoError(t, mem.CreatePlan(ctx, core.Plan{ID: "monthly", Name: "Monthly", Price: decimal.NewFromInt(500), DurationDays: 30, Category: core.CategorySubscription, Active: true}))
	require.NoError(t, mem.CreateMember(ctx, core.Member{ID: "m-1", FirstName: "Ana", LastName: "Lopez", Status: core.MemberActive}))
	require.NoError(t, mem.CreateSubscription(ctx, core.Subscription{
		ID: "sub-1", MemberID: "m-1", PlanID: "monthly",
		StartDate: core.NewDate(2024, time.June, 12), ExpirationDate: core.NewDate(2024, time.July, 11),
		Status: core.SubscriptionActive,
	}))

	resolver := membership.NewResolver(mem, plans, clock)
	return reports.NewService(mem, resolver, clock, 7), mem
}

func TestDashboard_TodayFigures(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t)

	// GIVEN: two payments today, one yesterday, mixed check-ins and an open shift
	require.NoError(t, mem.AppendPayment(ctx, core.Payment{ID: "p-1", Amount: decimal.NewFromInt(500), Method: core.MethodCash, PaidAt: now.Add(-time.Hour)}))
	require.NoError(t, mem.AppendPayment(ctx, core.Payment{ID: "p-2", Amount: decimal.RequireFromString("60.50"), Method: core.MethodCard, PaidAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, mem.AppendPayment(ctx, core.Payment{ID: "p-0", Amount: decimal.NewFromInt(999), Method: core.MethodCash, PaidAt: now.AddDate(0, 0, -1)}))
	require.NoError(t, mem.AppendAttendance(ctx, core.Attendance{ID: "a-1", MemberID: "m-1", At: now.Add(-time.Hour), Permitted: true}))
	require.NoError(t, mem.AppendAttendance(ctx, core.Attendance{ID: "a-2", MemberID: "m-1", At: now.Add(-30 * time.Minute), Permitted: false}))
	require.NoError(t, mem.CreateShift(ctx, core.Shift{ID: "s-1", StaffID: "staff-1", OpenedAt: now.Add(-3 * time.Hour), Status: core.ShiftOpen}))
	require.NoError(t, mem.SaveProduct(ctx, core.Product{ID: "water", Name: "Water", Price: decimal.NewFromInt(15), Stock: 2, MinStock: 5, Active: true}))
	require.NoError(t, mem.SaveProduct(ctx, core.Product{ID: "bar", Name: "Bar", Price: decimal.NewFromInt(30), Stock: 20, MinStock: 5, Active: true}))

	// WHEN: the dashboard is built
	d, err := svc.Dashboard(ctx)

	// THEN: only today's rows count
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, time.July, 8), d.Date)
	assert.Equal(t, 2, d.Payments)
	assert.True(t, d.Income.Equal(decimal.RequireFromString("560.50")), d.Income.String())
	assert.True(t, d.IncomeByMethod[core.MethodCash].Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 1, d.CheckIns)
	assert.Equal(t, 1, d.Denied)
	assert.Equal(t, 1, d.OpenShifts)
	assert.Equal(t, 1, d.Expiring)
	assert.Equal(t, 1, d.LowStock)
}

func TestDashboard_StoreFailure(t *testing.T) {
	svc, mem := newService(t)
	mem.FailNext("ListShifts", assert.AnError)

	_, err := svc.Dashboard(context.Background())

	assert.ErrorIs(t, err, assert.AnError)
}

func TestTodayAttendance(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t)
	require.NoError(t, mem.AppendAttendance(ctx, core.Attendance{ID: "old", MemberID: "m-1", At: now.AddDate(0, 0, -1), Permitted: true}))
	require.NoError(t, mem.AppendAttendance(ctx, core.Attendance{ID: "new", MemberID: "m-1", At: now.Add(-time.Minute), Permitted: true}))

	rows, err := svc.TodayAttendance(ctx)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].ID)
}

func TestWriteShiftWorkbook(t *testing.T) {
	ctx := context.Background()
	svc, mem := newService(t)

	// GIVEN: a closed shift with one expense and one payment
	require.NoError(t, mem.CreateShift(ctx, core.Shift{
		ID: "s-1", StaffID: "staff-1", Slot: core.SlotMorning, OpenedAt: now.Add(-3 * time.Hour),
		OpeningCash: decimal.NewFromInt(500), ExpectedCash: decimal.NewFromInt(500), Status: core.ShiftOpen,
	}))
	require.NoError(t, mem.AppendPayment(ctx, core.Payment{ID: "p-1", MemberID: "m-1", Amount: decimal.NewFromInt(80), Method: core.MethodCash, PaidAt: now.Add(-time.Hour), ShiftID: "s-1"}))
	require.NoError(t, mem.AddShiftCash(ctx, "s-1", decimal.NewFromInt(80)))
	require.NoError(t, mem.RecordExpense(ctx, core.Expense{ID: "e-1", ShiftID: "s-1", Amount: decimal.NewFromInt(30), Concept: "water", At: now.Add(-time.Minute)}))
	_, err := mem.CloseShift(ctx, "s-1", decimal.NewFromInt(548), nil, now)
	require.NoError(t, err)

	// WHEN: the day is exported
	var buf bytes.Buffer
	from := core.StartOfDay(now)
	require.NoError(t, svc.WriteShiftWorkbook(ctx, &buf, from, from.AddDate(0, 0, 1)))

	// THEN: every sheet carries its rows
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	shifts, err := f.GetRows(reports.ShiftsSheet)
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	assert.Equal(t, "s-1", shifts[1][0])
	assert.Equal(t, "550.00", shifts[1][8])
	assert.Equal(t, "-2.00", shifts[1][10])

	payments, err := f.GetRows(reports.PaymentsSheet)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "80.00", payments[1][5])

	expenses, err := f.GetRows(reports.ExpensesSheet)
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	assert.Equal(t, "water", expenses[1][4])
}

func TestWriteShiftWorkbook_InvalidRange(t *testing.T) {
	svc, _ := newService(t)

	err := svc.WriteShiftWorkbook(context.Background(), &bytes.Buffer{}, now, now.Add(-time.Hour))

	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
