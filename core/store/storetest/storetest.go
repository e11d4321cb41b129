// Package storetest is a conformance suite for core.TxStore
// implementations. Every store package runs it against its own backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
)

// Factory returns an empty store. It should register its own cleanup.
type Factory func(t *testing.T) core.TxStore

var base = time.Date(2024, time.July, 8, 9, 0, 0, 0, time.UTC)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Run executes every contract test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Members", func(t *testing.T) { testMembers(t, newStore(t)) })
	t.Run("MemberEdits", func(t *testing.T) { testMemberEdits(t, newStore(t)) })
	t.Run("MemberSearch", func(t *testing.T) { testMemberSearch(t, newStore(t)) })
	t.Run("VisitCounter", func(t *testing.T) { testVisitCounter(t, newStore(t)) })
	t.Run("Plans", func(t *testing.T) { testPlans(t, newStore(t)) })
	t.Run("Subscriptions", func(t *testing.T) { testSubscriptions(t, newStore(t)) })
	t.Run("Attendance", func(t *testing.T) { testAttendance(t, newStore(t)) })
	t.Run("Payments", func(t *testing.T) { testPayments(t, newStore(t)) })
	t.Run("Products", func(t *testing.T) { testProducts(t, newStore(t)) })
	t.Run("ShiftLifecycle", func(t *testing.T) { testShiftLifecycle(t, newStore(t)) })
	t.Run("ShiftErrors", func(t *testing.T) { testShiftErrors(t, newStore(t)) })
	t.Run("TransactionRollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

func seedMember(t *testing.T, s core.Store, id, first, last string) {
	t.Helper()
	require.NoError(t, s.CreateMember(context.Background(), core.Member{
		ID: core.MemberID(id), FirstName: first, LastName: last,
		Status: core.MemberActive, RegisteredAt: base,
	}))
}

func seedPlan(t *testing.T, s core.Store, id string) {
	t.Helper()
	require.NoError(t, s.CreatePlan(context.Background(), core.Plan{
		ID: core.PlanID(id), Name: id, Price: money("500"), DurationDays: 30,
		Category: core.CategorySubscription, Active: true,
	}))
}

func testMembers(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	birth := core.NewDate(1990, time.March, 4)
	last := base.Add(-time.Hour)
	require.NoError(t, s.CreateMember(ctx, core.Member{
		ID: "m-1", FirstName: "Ana", LastName: "López", Phone: "555-0101",
		BirthDate: &birth, Status: core.MemberActive, RegisteredAt: base,
		RegisteredBy: "staff-1", VisitsAvailable: 3, LastVisitAt: &last,
	}))

	m, err := s.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana López", m.FullName())
	assert.Equal(t, "555-0101", m.Phone)
	assert.Equal(t, 3, m.VisitsAvailable)
	assert.Equal(t, core.StaffID("staff-1"), m.RegisteredBy)
	require.NotNil(t, m.BirthDate)
	assert.Equal(t, birth, *m.BirthDate)
	require.NotNil(t, m.LastVisitAt)
	assert.True(t, last.Equal(*m.LastVisitAt))
	assert.True(t, base.Equal(m.RegisteredAt))

	err = s.CreateMember(ctx, core.Member{ID: "m-1", FirstName: "Dup", RegisteredAt: base})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = s.GetMember(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testMemberEdits(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateMember(ctx, core.Member{
		ID: "m-1", FirstName: "Ana", LastName: "Lopez", Status: core.MemberActive,
		RegisteredAt: base, RegisteredBy: "staff-1", VisitsAvailable: 4,
	}))
	seedMember(t, s, "m-2", "Bruno", "Diaz")

	birth := core.NewDate(1991, time.April, 2)
	require.NoError(t, s.UpdateMember(ctx, core.Member{
		ID: "m-1", FirstName: "Anabel", LastName: "Ortiz", Phone: "555-0199",
		BirthDate: &birth, Status: core.MemberInactive, VisitsAvailable: 99,
	}))

	m, err := s.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Anabel Ortiz", m.FullName())
	assert.Equal(t, "555-0199", m.Phone)
	assert.Equal(t, core.MemberInactive, m.Status)
	require.NotNil(t, m.BirthDate)
	assert.Equal(t, birth, *m.BirthDate)
	assert.Equal(t, 4, m.VisitsAvailable, "visit balance is not a profile field")
	assert.Equal(t, core.StaffID("staff-1"), m.RegisteredBy)

	found, err := s.FindMembers(ctx, "ortiz", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	err = s.UpdateMember(ctx, core.Member{ID: "missing", FirstName: "X"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.DeleteMember(ctx, "m-2"))
	_, err = s.GetMember(ctx, "m-2")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.DeleteMember(ctx, "m-2"), core.ErrNotFound)
}

func testMemberSearch(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	seedMember(t, s, "m-1", "Ana", "Lopez")
	seedMember(t, s, "m-2", "Mariana", "Diaz")
	seedMember(t, s, "m-3", "Bruno", "Anaya")
	seedMember(t, s, "m-4", "Carla", "Ruiz")

	found, err := s.FindMembers(ctx, "ANA", 0)
	require.NoError(t, err)
	ids := make([]core.MemberID, 0, len(found))
	for _, m := range found {
		ids = append(ids, m.ID)
	}
	// ordered by last name
	assert.Equal(t, []core.MemberID{"m-3", "m-2", "m-1"}, ids)

	limited, err := s.FindMembers(ctx, "ana", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, core.MemberID("m-3"), limited[0].ID)

	all, err := s.FindMembers(ctx, "  ", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := s.FindMembers(ctx, "%", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testVisitCounter(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	seedMember(t, s, "m-1", "Ana", "Lopez")

	balance, err := s.AddVisits(ctx, "m-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, balance)

	at := base.Add(30 * time.Minute)
	balance, err = s.ConsumeVisit(ctx, "m-1", at)
	require.NoError(t, err)
	assert.Equal(t, 1, balance)

	m, err := s.GetMember(ctx, "m-1")
	require.NoError(t, err)
	require.NotNil(t, m.LastVisitAt)
	assert.True(t, at.Equal(*m.LastVisitAt))

	_, err = s.ConsumeVisit(ctx, "m-1", at)
	require.NoError(t, err)
	balance, err = s.ConsumeVisit(ctx, "m-1", at)
	assert.ErrorIs(t, err, core.ErrNoCredit)
	assert.Equal(t, 0, balance)

	later := at.Add(time.Hour)
	require.NoError(t, s.TouchLastVisit(ctx, "m-1", later))
	m, err = s.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 0, m.VisitsAvailable)
	assert.True(t, later.Equal(*m.LastVisitAt))

	_, err = s.AddVisits(ctx, "missing", 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.ConsumeVisit(ctx, "missing", at)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.TouchLastVisit(ctx, "missing", at), core.ErrNotFound)
}

func testPlans(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreatePlan(ctx, core.Plan{ID: "pack", Name: "Pack", Price: money("450.50"), DurationDays: 60, Category: core.CategoryVisitPack, CreditsGranted: 10, Active: true}))
	require.NoError(t, s.CreatePlan(ctx, core.Plan{ID: "annual", Name: "Annual", Price: money("4800"), DurationDays: 365, Category: core.CategorySubscription, Active: false}))

	p, err := s.GetPlan(ctx, "pack")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(money("450.50")))
	assert.Equal(t, core.CategoryVisitPack, p.Category)
	assert.Equal(t, 10, p.CreditsGranted)

	// saving the same id replaces it
	require.NoError(t, s.CreatePlan(ctx, core.Plan{ID: "pack", Name: "Pack", Price: money("480"), DurationDays: 60, Category: core.CategoryVisitPack, CreditsGranted: 10, Active: true}))
	p, err = s.GetPlan(ctx, "pack")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(money("480")))

	active, err := s.ListPlans(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, s.SetPlanActive(ctx, "annual", true))
	all, err := s.ListPlans(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Annual", all[0].Name)

	_, err = s.GetPlan(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.SetPlanActive(ctx, "missing", false), core.ErrNotFound)
}

func testSubscriptions(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	seedMember(t, s, "m-1", "Ana", "Lopez")
	seedMember(t, s, "m-2", "Bruno", "Diaz")
	seedPlan(t, s, "monthly")
	seedPlan(t, s, "annual")

	subs := []core.Subscription{
		{ID: "s-old", MemberID: "m-1", PlanID: "monthly", StartDate: core.NewDate(2024, time.May, 1), ExpirationDate: core.NewDate(2024, time.May, 31), Status: core.SubscriptionActive},
		{ID: "s-new", MemberID: "m-1", PlanID: "monthly", StartDate: core.NewDate(2024, time.June, 10), ExpirationDate: core.NewDate(2024, time.July, 9), Status: core.SubscriptionActive},
		{ID: "s-other", MemberID: "m-2", PlanID: "monthly", StartDate: core.NewDate(2024, time.June, 20), ExpirationDate: core.NewDate(2024, time.July, 19), Status: core.SubscriptionActive},
	}
	for _, sub := range subs {
		sub.CreatedAt, sub.UpdatedAt = base, base
		require.NoError(t, s.CreateSubscription(ctx, sub))
	}

	list, err := s.ListSubscriptions(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, core.SubscriptionID("s-new"), list[0].ID)
	assert.Equal(t, core.NewDate(2024, time.July, 9), list[0].ExpirationDate)

	expiring, err := s.ListExpiring(ctx, core.NewDate(2024, time.July, 8), core.NewDate(2024, time.July, 19))
	require.NoError(t, err)
	require.Len(t, expiring, 2)
	assert.Equal(t, core.SubscriptionID("s-new"), expiring[0].ID)
	assert.Equal(t, core.SubscriptionID("s-other"), expiring[1].ID)

	n, err := s.ExpireOverdue(ctx, core.NewDate(2024, time.July, 8), base)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err = s.ListSubscriptions(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, core.SubscriptionExpired, list[1].Status)

	updated := base.Add(time.Hour)
	require.NoError(t, s.ExtendSubscription(ctx, "s-old", "annual", core.NewDate(2025, time.May, 31), updated))
	list, err = s.ListSubscriptions(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, core.SubscriptionID("s-old"), list[0].ID)
	assert.Equal(t, core.PlanID("annual"), list[0].PlanID)
	assert.Equal(t, core.SubscriptionActive, list[0].Status)
	assert.True(t, updated.Equal(list[0].UpdatedAt))

	err = s.ExtendSubscription(ctx, "missing", "annual", core.NewDate(2025, time.May, 31), updated)
	assert.ErrorIs(t, err, core.ErrNotFound)

	overridden := updated.Add(time.Hour)
	require.NoError(t, s.SetSubscriptionExpiration(ctx, "s-old", core.NewDate(2024, time.July, 1), core.SubscriptionExpired, overridden))
	list, err = s.ListSubscriptions(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, core.SubscriptionID("s-new"), list[0].ID)
	assert.Equal(t, core.SubscriptionID("s-old"), list[1].ID)
	assert.Equal(t, core.NewDate(2024, time.July, 1), list[1].ExpirationDate)
	assert.Equal(t, core.SubscriptionExpired, list[1].Status)
	assert.Equal(t, core.PlanID("annual"), list[1].PlanID, "override keeps the plan")
	assert.True(t, overridden.Equal(list[1].UpdatedAt))

	err = s.SetSubscriptionExpiration(ctx, "missing", core.NewDate(2024, time.July, 1), core.SubscriptionActive, overridden)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testAttendance(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	seedMember(t, s, "m-1", "Ana", "Lopez")
	seedMember(t, s, "m-2", "Bruno", "Diaz")

	rows := []core.Attendance{
		{ID: "a-1", MemberID: "m-1", At: base, Permitted: true, Reason: "Welcome"},
		{ID: "a-2", MemberID: "m-1", At: base.Add(time.Hour), Permitted: false, Reason: "Expired"},
		{ID: "a-3", MemberID: "m-2", At: base.Add(2 * time.Hour), Permitted: true, StaffID: "staff-1", ShiftID: "sh-1"},
		{ID: "a-4", MemberID: "m-1", At: base.AddDate(0, 0, 1), Permitted: true},
	}
	for _, a := range rows {
		require.NoError(t, s.AppendAttendance(ctx, a))
	}

	all, err := s.ListAttendance(ctx, core.AttendanceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "a-4", all[0].ID)

	from, to := base, base.Add(23*time.Hour)
	today, err := s.ListAttendance(ctx, core.AttendanceFilter{MemberID: "m-1", From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, today, 2)
	assert.Equal(t, "a-2", today[0].ID)
	assert.False(t, today[0].Permitted)
	assert.Equal(t, "Expired", today[0].Reason)

	permitted, err := s.ListAttendance(ctx, core.AttendanceFilter{MemberID: "m-1", PermittedOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, permitted, 1)
	assert.Equal(t, "a-4", permitted[0].ID)
}

func testPayments(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	rows := []core.Payment{
		{ID: "p-1", MemberID: "m-1", PlanID: "monthly", Amount: money("500"), Method: core.MethodCash, PaidAt: base, ShiftID: "sh-1", StaffID: "staff-1"},
		{ID: "p-2", MemberID: "m-1", PlanID: "monthly", Amount: money("500"), Method: core.MethodCard, PaidAt: base.Add(time.Minute)},
		{ID: "p-3", ProductID: "water", Quantity: 2, Amount: money("25.50"), Method: core.MethodCash, PaidAt: base.Add(2 * time.Minute), ShiftID: "sh-1", Concept: "water"},
	}
	for _, p := range rows {
		require.NoError(t, s.AppendPayment(ctx, p))
	}

	byMember, err := s.ListPayments(ctx, core.PaymentFilter{MemberID: "m-1"})
	require.NoError(t, err)
	require.Len(t, byMember, 2)
	assert.Equal(t, "p-2", byMember[0].ID)

	cash, err := s.ListPayments(ctx, core.PaymentFilter{ShiftID: "sh-1", Method: core.MethodCash})
	require.NoError(t, err)
	require.Len(t, cash, 2)
	assert.Equal(t, "p-3", cash[0].ID)
	assert.True(t, cash[0].Amount.Equal(money("25.50")))
	assert.Equal(t, "water", cash[0].Concept)
	assert.Equal(t, core.ProductID("water"), cash[0].ProductID)
	assert.Equal(t, 2, cash[0].Quantity)
	assert.Empty(t, cash[0].MemberID)

	since := base.Add(30 * time.Second)
	recent, err := s.ListPayments(ctx, core.PaymentFilter{MemberID: "m-1", From: &since})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, core.MethodCard, recent[0].Method)
}

func testProducts(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveProduct(ctx, core.Product{
		ID: "water", Name: "Water", Price: money("15"), Stock: 10, MinStock: 3, Category: "drinks", Emoji: "💧", Active: true,
	}))
	require.NoError(t, s.SaveProduct(ctx, core.Product{
		ID: "bar", Name: "Protein bar", Price: money("35.50"), Stock: 2, Active: true,
	}))
	require.NoError(t, s.SaveProduct(ctx, core.Product{ID: "gloves", Name: "Gloves", Price: money("250")}))

	p, err := s.GetProduct(ctx, "water")
	require.NoError(t, err)
	assert.True(t, p.Price.Equal(money("15")))
	assert.Equal(t, 10, p.Stock)
	assert.Equal(t, "💧", p.Emoji)

	// Saving again edits the catalog but never the stock counter.
	require.NoError(t, s.SaveProduct(ctx, core.Product{
		ID: "water", Name: "Water 1L", Price: money("18"), Stock: 0, MinStock: 3, Category: "drinks", Active: true,
	}))
	p, err = s.GetProduct(ctx, "water")
	require.NoError(t, err)
	assert.Equal(t, "Water 1L", p.Name)
	assert.True(t, p.Price.Equal(money("18")))
	assert.Equal(t, 10, p.Stock)

	left, err := s.DeductStock(ctx, "water", 7)
	require.NoError(t, err)
	assert.Equal(t, 3, left)

	left, err = s.DeductStock(ctx, "water", 4)
	var stockErr *core.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, core.ErrOutOfStock)
	assert.Equal(t, 3, stockErr.Available)
	assert.Equal(t, 3, left)

	left, err = s.RestockProduct(ctx, "water", 5)
	require.NoError(t, err)
	assert.Equal(t, 8, left)

	_, err = s.DeductStock(ctx, "missing", 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.RestockProduct(ctx, "missing", 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetProduct(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	active, err := s.ListProducts(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, core.ProductID("bar"), active[0].ID)
	assert.Equal(t, core.ProductID("water"), active[1].ID)

	all, err := s.ListProducts(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, core.ProductID("gloves"), all[0].ID)
}

func testShiftLifecycle(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateShift(ctx, core.Shift{
		ID: "sh-1", StaffID: "staff-1", Slot: core.SlotMorning, OpenedAt: base,
		OpeningCash: money("500"), ExpectedCash: money("500"), Status: core.ShiftOpen,
	}))

	open, err := s.OpenShiftFor(ctx, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, core.ShiftID("sh-1"), open.ID)

	require.NoError(t, s.AddShiftCash(ctx, "sh-1", money("80")))
	require.NoError(t, s.RecordExpense(ctx, core.Expense{ID: "e-1", ShiftID: "sh-1", Amount: money("30"), Concept: "cleaning", At: base.Add(time.Hour), StaffID: "staff-1"}))

	sh, err := s.GetShift(ctx, "sh-1")
	require.NoError(t, err)
	assert.True(t, sh.ExpectedCash.Equal(money("550")), sh.ExpectedCash.String())
	assert.True(t, sh.CashWithdrawals.Equal(money("30")))

	expenses, err := s.ListExpenses(ctx, "sh-1")
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "cleaning", expenses[0].Concept)
	assert.True(t, expenses[0].Amount.Equal(money("30")))

	closedAt := base.Add(6 * time.Hour)
	closed, err := s.CloseShift(ctx, "sh-1", money("548"), map[string]int{"500": 1, "20": 2, "5": 1, "1": 3}, closedAt)
	require.NoError(t, err)
	assert.Equal(t, core.ShiftClosed, closed.Status)
	require.NotNil(t, closed.Difference)
	assert.True(t, closed.Difference.Equal(money("-2")), closed.Difference.String())
	require.NotNil(t, closed.DeclaredCash)
	assert.True(t, closed.DeclaredCash.Equal(money("548")))
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, closedAt.Equal(*closed.ClosedAt))
	assert.Equal(t, 2, closed.Breakdown["20"])

	_, err = s.OpenShiftFor(ctx, "staff-1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	// a new shift may open once the previous one is closed
	require.NoError(t, s.CreateShift(ctx, core.Shift{
		ID: "sh-2", StaffID: "staff-1", Slot: core.SlotEvening, OpenedAt: closedAt,
		OpeningCash: money("548"), ExpectedCash: money("548"), Status: core.ShiftOpen,
	}))

	closedOnly, err := s.ListShifts(ctx, core.ShiftFilter{Status: core.ShiftClosed})
	require.NoError(t, err)
	require.Len(t, closedOnly, 1)
	assert.Equal(t, core.ShiftID("sh-1"), closedOnly[0].ID)

	latest, err := s.ListShifts(ctx, core.ShiftFilter{StaffID: "staff-1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, core.ShiftID("sh-2"), latest[0].ID)
}

func testShiftErrors(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateShift(ctx, core.Shift{
		ID: "sh-1", StaffID: "staff-1", Slot: core.SlotMorning, OpenedAt: base,
		OpeningCash: money("100"), ExpectedCash: money("100"), Status: core.ShiftOpen,
	}))

	err := s.CreateShift(ctx, core.Shift{
		ID: "sh-2", StaffID: "staff-1", Slot: core.SlotMorning, OpenedAt: base,
		OpeningCash: money("100"), ExpectedCash: money("100"), Status: core.ShiftOpen,
	})
	assert.ErrorIs(t, err, core.ErrShiftAlreadyOpen)

	_, err = s.CloseShift(ctx, "sh-1", money("100"), nil, base.Add(time.Hour))
	require.NoError(t, err)

	_, err = s.CloseShift(ctx, "sh-1", money("100"), nil, base.Add(2*time.Hour))
	assert.ErrorIs(t, err, core.ErrShiftNotOpen)
	assert.ErrorIs(t, s.AddShiftCash(ctx, "sh-1", money("10")), core.ErrShiftNotOpen)
	err = s.RecordExpense(ctx, core.Expense{ID: "e-1", ShiftID: "sh-1", Amount: money("5"), Concept: "x", At: base})
	assert.ErrorIs(t, err, core.ErrShiftNotOpen)

	expenses, err := s.ListExpenses(ctx, "sh-1")
	require.NoError(t, err)
	assert.Empty(t, expenses)

	_, err = s.GetShift(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.AddShiftCash(ctx, "missing", money("1")), core.ErrNotFound)
	_, err = s.CloseShift(ctx, "missing", money("1"), nil, base)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testRollback(t *testing.T, s core.TxStore) {
	ctx := context.Background()
	seedMember(t, s, "m-1", "Ana", "Lopez")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx core.Store) error {
		if _, err := tx.AddVisits(ctx, "m-1", 5); err != nil {
			return err
		}
		if err := tx.AppendAttendance(ctx, core.Attendance{ID: "a-1", MemberID: "m-1", At: base, Permitted: true}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	m, err := s.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 0, m.VisitsAvailable)
	rows, err := s.ListAttendance(ctx, core.AttendanceFilter{MemberID: "m-1"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	err = s.WithTx(ctx, func(tx core.Store) error {
		_, err := tx.AddVisits(ctx, "m-1", 2)
		return err
	})
	require.NoError(t, err)
	m, err = s.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.VisitsAvailable)
}
