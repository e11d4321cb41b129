package payments_test

import (
	"context"
	"errors"
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
)

// =============================================================================
// TEST SETUP
// =============================================================================

var sep10 = time.Date(2024, time.September, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	mem        *store.Memory
	clock      *core.FixedClock
	reconciler *payments.Reconciler
	resolver   *membership.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	clock := core.NewFixedClock(sep10)

	require.NoError(t, mem.CreateMember(ctx, core.Member{ID: "m-1", FirstName: "Ana", LastName: "Ruiz"}))
	require.NoError(t, mem.CreatePlan(ctx, core.Plan{
		ID: "monthly", Name: "Monthly", Price: decimal.NewFromInt(100),
		DurationDays: 30, Category: core.CategorySubscription, Active: true,
	}))
	require.NoError(t, mem.CreatePlan(ctx, core.Plan{
		ID: "visita", Name: "Visita", Price: decimal.NewFromInt(50),
		DurationDays: 1, Category: core.CategoryVisitPack, CreditsGranted: 1, Active: true,
	}))
	require.NoError(t, mem.CreatePlan(ctx, core.Plan{
		ID: "pack10", Name: "10 visitas", Price: decimal.NewFromInt(400),
		DurationDays: 60, Category: core.CategoryVisitPack, CreditsGranted: 10, Active: true,
	}))

	plans, err := membership.NewPlanCache(mem, 0)
	require.NoError(t, err)
	guarded := core.NewGuard(mem, time.Second)
	return &fixture{
		mem:   mem,
		clock: clock,
		reconciler: payments.NewReconciler(guarded, plans, clock, logger.Discard(),
			metrics.MustNewMetrics(prometheus.NewRegistry()), 0),
		resolver: membership.NewResolver(guarded, plans, clock),
	}
}

func (f *fixture) openShift(t *testing.T, id, staff string, opening int64) {
	t.Helper()
	require.NoError(t, f.mem.CreateShift(context.Background(), core.Shift{
		ID: core.ShiftID(id), StaffID: core.StaffID(staff), Status: core.ShiftOpen, OpenedAt: sep10,
		OpeningCash: decimal.NewFromInt(opening), ExpectedCash: decimal.NewFromInt(opening),
	}))
}

func (f *fixture) subscriptions(t *testing.T) []core.Subscription {
	t.Helper()
	subs, err := f.mem.ListSubscriptions(context.Background(), "m-1")
	require.NoError(t, err)
	return subs
}

func pay(plan string, amount int64, method core.PaymentMethod) payments.PaymentRequest {
	return payments.PaymentRequest{
		MemberID: "m-1",
		PlanID:   core.PlanID(plan),
		Amount:   decimal.NewFromInt(amount),
		Method:   method,
		StaffID:  "staff-1",
	}
}

// =============================================================================
// MEMBERSHIP EFFECTS
// =============================================================================

func TestRecordPayment_VisitPack_NoSubscriptionRow(t *testing.T) {
	// GIVEN: a member with no subscriptions
	f := newFixture(t)
	ctx := context.Background()

	// WHEN: she buys a single visit for $50
	res, err := f.reconciler.RecordPayment(ctx, pay("visita", 50, core.MethodCash))

	// THEN: one visit is credited and no subscription exists
	require.NoError(t, err)
	assert.Equal(t, payments.EffectVisitPack, res.Effect)
	assert.Equal(t, 1, res.VisitsAvailable)
	assert.Empty(t, res.Warnings)
	assert.Empty(t, f.subscriptions(t))

	status, err := f.resolver.EffectiveStatus(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, membership.StatusNoSubscription, status.Status)
}

func TestRecordPayment_VisitPack_CreditsPlanQuantity(t *testing.T) {
	f := newFixture(t)

	res, err := f.reconciler.RecordPayment(context.Background(), pay("pack10", 400, core.MethodCard))

	require.NoError(t, err)
	assert.Equal(t, 10, res.VisitsAvailable)
}

func TestRecordPayment_ExpiredYesterday_CreatesNewSubscription(t *testing.T) {
	// GIVEN: a subscription that expired yesterday
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mem.CreateSubscription(ctx, core.Subscription{
		ID: "old", MemberID: "m-1", PlanID: "monthly",
		StartDate:      core.NewDate(2024, time.August, 10),
		ExpirationDate: core.NewDate(2024, time.September, 9),
		Status:         core.SubscriptionActive,
	}))

	// WHEN: she pays for a 30-day plan
	res, err := f.reconciler.RecordPayment(ctx, pay("monthly", 100, core.MethodCash))

	// THEN: a new row starts today and ends 29 days later
	require.NoError(t, err)
	assert.Equal(t, payments.EffectNew, res.Effect)
	require.NotNil(t, res.Subscription)
	assert.NotEqual(t, core.SubscriptionID("old"), res.Subscription.ID)
	assert.Equal(t, core.NewDate(2024, time.September, 10), res.Subscription.StartDate)
	assert.Equal(t, core.NewDate(2024, time.September, 10).AddDays(29), res.Subscription.ExpirationDate)

	subs := f.subscriptions(t)
	require.Len(t, subs, 2)
	assert.Equal(t, res.Subscription.ID, subs[0].ID)
	assert.Equal(t, core.NewDate(2024, time.September, 9), subs[1].ExpirationDate, "old row untouched")
}

func TestRecordPayment_NoSubscription_CreatesNew(t *testing.T) {
	f := newFixture(t)

	res, err := f.reconciler.RecordPayment(context.Background(), pay("monthly", 100, core.MethodCard))

	require.NoError(t, err)
	assert.Equal(t, payments.EffectNew, res.Effect)
	assert.Equal(t, core.NewDate(2024, time.October, 9), res.Subscription.ExpirationDate)
	assert.Len(t, f.subscriptions(t), 1)
}

func TestRecordPayment_ActiveSubscription_ExtendsFromCurrentExpiration(t *testing.T) {
	// GIVEN: a subscription expiring in 10 days, stored as expired by mistake
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.mem.CreatePlan(ctx, core.Plan{
		ID: "monthly-plus", Name: "Monthly Plus", Price: decimal.NewFromInt(150),
		DurationDays: 30, Category: core.CategorySubscription, Active: true,
	}))
	require.NoError(t, f.mem.CreateSubscription(ctx, core.Subscription{
		ID: "current", MemberID: "m-1", PlanID: "monthly",
		StartDate:      core.NewDate(2024, time.August, 21),
		ExpirationDate: core.NewDate(2024, time.September, 20),
		Status:         core.SubscriptionExpired,
	}))

	// WHEN: she pays again for a monthly plan
	res, err := f.reconciler.RecordPayment(ctx, pay("monthly-plus", 150, core.MethodTransfer))

	// THEN: the same row moves to old expiration + 1 month - 1 day
	require.NoError(t, err)
	assert.Equal(t, payments.EffectExtension, res.Effect)

	subs := f.subscriptions(t)
	require.Len(t, subs, 1)
	assert.Equal(t, core.SubscriptionID("current"), subs[0].ID)
	assert.Equal(t, core.NewDate(2024, time.October, 19), subs[0].ExpirationDate)
	assert.Equal(t, core.PlanID("monthly-plus"), subs[0].PlanID)
	assert.Equal(t, core.SubscriptionActive, subs[0].Status)
	assert.Equal(t, core.NewDate(2024, time.August, 21), subs[0].StartDate)
}

// =============================================================================
// DUPLICATE GUARD
// =============================================================================

func TestRecordPayment_DuplicateWithinWindow_Rejected(t *testing.T) {
	// GIVEN: a $100 cash payment
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reconciler.RecordPayment(ctx, pay("monthly", 100, core.MethodCash))
	require.NoError(t, err)

	// WHEN: the same amount is submitted two minutes later
	f.clock.Advance(2 * time.Minute)
	_, err = f.reconciler.RecordPayment(ctx, pay("monthly", 100, core.MethodCash))

	// THEN: it is rejected as a duplicate
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDuplicatePayment)
	var dup *core.DuplicatePaymentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, core.MemberID("m-1"), dup.MemberID)

	all, err := f.mem.ListPayments(ctx, core.PaymentFilter{MemberID: "m-1"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordPayment_DuplicateOverride_Accepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reconciler.RecordPayment(ctx, pay("monthly", 100, core.MethodCash))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	req := pay("monthly", 100, core.MethodCash)
	req.AllowDuplicate = true
	res, err := f.reconciler.RecordPayment(ctx, req)

	require.NoError(t, err)
	assert.Equal(t, payments.EffectExtension, res.Effect)
}

func TestRecordPayment_SameAmountAfterWindow_Accepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reconciler.RecordPayment(ctx, pay("visita", 50, core.MethodCash))
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	res, err := f.reconciler.RecordPayment(ctx, pay("visita", 50, core.MethodCash))

	require.NoError(t, err)
	assert.Equal(t, 2, res.VisitsAvailable)
}

func TestRecordPayment_DifferentAmount_NotDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.reconciler.RecordPayment(ctx, pay("visita", 50, core.MethodCash))
	require.NoError(t, err)

	_, err = f.reconciler.RecordPayment(ctx, pay("pack10", 400, core.MethodCash))
	assert.NoError(t, err)
}

// =============================================================================
// SHIFT CASH
// =============================================================================

func TestRecordPayment_Cash_FeedsOwnOpenShift(t *testing.T) {
	// GIVEN: two cashiers with open shifts
	f := newFixture(t)
	ctx := context.Background()
	f.openShift(t, "shift-1", "staff-1", 500)
	f.openShift(t, "shift-2", "staff-2", 200)

	// WHEN: staff-1 takes $80 cash
	res, err := f.reconciler.RecordPayment(ctx, pay("monthly", 80, core.MethodCash))
	require.NoError(t, err)

	// THEN: only staff-1's drawer grows
	assert.Equal(t, core.ShiftID("shift-1"), res.Payment.ShiftID)
	s1, _ := f.mem.GetShift(ctx, "shift-1")
	s2, _ := f.mem.GetShift(ctx, "shift-2")
	assert.True(t, s1.ExpectedCash.Equal(decimal.NewFromInt(580)), s1.ExpectedCash.String())
	assert.True(t, s2.ExpectedCash.Equal(decimal.NewFromInt(200)), s2.ExpectedCash.String())
}

func TestRecordPayment_Card_DoesNotTouchDrawer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openShift(t, "shift-1", "staff-1", 500)

	res, err := f.reconciler.RecordPayment(ctx, pay("monthly", 80, core.MethodCard))
	require.NoError(t, err)

	assert.Equal(t, core.ShiftID("shift-1"), res.Payment.ShiftID)
	s, _ := f.mem.GetShift(ctx, "shift-1")
	assert.True(t, s.ExpectedCash.Equal(decimal.NewFromInt(500)))
}

func TestRecordPayment_ExplicitShiftOfAnotherStaff_Rejected(t *testing.T) {
	f := newFixture(t)
	f.openShift(t, "shift-2", "staff-2", 200)

	req := pay("monthly", 80, core.MethodCash)
	req.ShiftID = "shift-2"
	_, err := f.reconciler.RecordPayment(context.Background(), req)

	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

// =============================================================================
// VALIDATION AND FAILURES
// =============================================================================

func TestRecordPayment_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	negative := pay("monthly", -5, core.MethodCash)
	_, err := f.reconciler.RecordPayment(ctx, negative)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	unknown := pay("monthly", 100, "crypto")
	_, err = f.reconciler.RecordPayment(ctx, unknown)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	noStaff := pay("monthly", 100, core.MethodCash)
	noStaff.StaffID = ""
	_, err = f.reconciler.RecordPayment(ctx, noStaff)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	missingPlan := pay("gold", 100, core.MethodCash)
	_, err = f.reconciler.RecordPayment(ctx, missingPlan)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRecordPayment_SubCentAmount_Rejected(t *testing.T) {
	// GIVEN: an amount with a fraction of a cent
	f := newFixture(t)
	req := pay("monthly", 0, core.MethodCash)
	req.Amount = decimal.RequireFromString("100.005")

	// WHEN: it is recorded
	_, err := f.reconciler.RecordPayment(context.Background(), req)

	// THEN: it is rejected before anything is stored
	var inputErr *core.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "amount", inputErr.Field)
	rows, err := f.mem.ListPayments(context.Background(), core.PaymentFilter{MemberID: "m-1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecordPayment_WalkInSale(t *testing.T) {
	f := newFixture(t)
	f.openShift(t, "shift-1", "staff-1", 100)
	ctx := context.Background()

	res, err := f.reconciler.RecordPayment(ctx, payments.PaymentRequest{
		Amount: decimal.RequireFromString("25.50"), Method: core.MethodCash,
		StaffID: "staff-1", Concept: "Water bottle",
	})

	require.NoError(t, err)
	assert.Equal(t, payments.EffectSale, res.Effect)
	assert.Equal(t, "Water bottle", res.Payment.Concept)
	s, _ := f.mem.GetShift(ctx, "shift-1")
	assert.Equal(t, "125.50", s.ExpectedCash.StringFixed(2))
}

func TestRecordPayment_PostProcessingFailure_IsWarning(t *testing.T) {
	// GIVEN: the subscription write will fail
	f := newFixture(t)
	ctx := context.Background()
	f.mem.FailNext("CreateSubscription", errors.New("write conflict"))

	// WHEN: a payment is recorded
	res, err := f.reconciler.RecordPayment(ctx, pay("monthly", 100, core.MethodCard))

	// THEN: success with a warning; the payment row exists
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warning(), "correct it manually")
	assert.Nil(t, res.Subscription)

	all, err := f.mem.ListPayments(ctx, core.PaymentFilter{MemberID: "m-1"})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordPayment_PaymentInsertFails_Error(t *testing.T) {
	f := newFixture(t)
	f.mem.FailNext("AppendPayment", errors.New("disk full"))

	_, err := f.reconciler.RecordPayment(context.Background(), pay("monthly", 100, core.MethodCash))

	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.Empty(t, f.subscriptions(t))
}

// =============================================================================
// PRODUCT SALES
// =============================================================================

func (f *fixture) product(t *testing.T, id string, price string, stock int, active bool) {
	t.Helper()
	require.NoError(t, f.mem.SaveProduct(context.Background(), core.Product{
		ID: core.ProductID(id), Name: "Water", Price: decimal.RequireFromString(price), Stock: stock, Active: active,
	}))
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.mem.GetProduct(context.Background(), core.ProductID(id))
	require.NoError(t, err)
	return p.Stock
}

func TestRecordPayment_ProductSale_DeductsStockAndPricesByQuantity(t *testing.T) {
	// GIVEN: five bottles on the shelf and an open drawer
	f := newFixture(t)
	ctx := context.Background()
	f.openShift(t, "shift-1", "staff-1", 100)
	f.product(t, "water", "15.50", 5, true)

	// WHEN: three bottles are sold for cash with no amount typed
	res, err := f.reconciler.RecordPayment(ctx, payments.PaymentRequest{
		ProductID: "water", Quantity: 3, Method: core.MethodCash, StaffID: "staff-1",
	})

	// THEN: the sale is priced, linked to the product, and stock drops by three
	require.NoError(t, err)
	assert.Equal(t, payments.EffectSale, res.Effect)
	assert.Equal(t, "46.50", res.Payment.Amount.StringFixed(2))
	assert.Equal(t, core.ProductID("water"), res.Payment.ProductID)
	assert.Equal(t, 3, res.Payment.Quantity)
	assert.Equal(t, "Water x3", res.Payment.Concept)
	assert.Equal(t, 2, res.StockLeft)
	assert.Equal(t, 2, f.stock(t, "water"))

	stored, err := f.mem.ListPayments(ctx, core.PaymentFilter{ShiftID: "shift-1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, core.ProductID("water"), stored[0].ProductID)

	s, _ := f.mem.GetShift(ctx, "shift-1")
	assert.Equal(t, "146.50", s.ExpectedCash.StringFixed(2))
}

func TestRecordPayment_ProductSale_DefaultsToOneUnitAndKeepsTypedAmount(t *testing.T) {
	f := newFixture(t)
	f.product(t, "water", "15", 5, true)

	res, err := f.reconciler.RecordPayment(context.Background(), payments.PaymentRequest{
		ProductID: "water", Amount: decimal.NewFromInt(10), Method: core.MethodCard, StaffID: "staff-1",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Payment.Quantity)
	assert.True(t, res.Payment.Amount.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 4, f.stock(t, "water"))
}

func TestRecordPayment_ProductSale_OutOfStockRecordsNothing(t *testing.T) {
	// GIVEN: two bottles left
	f := newFixture(t)
	ctx := context.Background()
	f.product(t, "water", "15", 2, true)

	// WHEN: three are sold
	_, err := f.reconciler.RecordPayment(ctx, payments.PaymentRequest{
		ProductID: "water", Quantity: 3, Method: core.MethodCash, StaffID: "staff-1",
	})

	// THEN: the sale is refused with the shelf count and nothing is stored
	var stockErr *core.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.ErrorIs(t, err, core.ErrOutOfStock)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 2, f.stock(t, "water"))

	all, err := f.mem.ListPayments(ctx, core.PaymentFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRecordPayment_ProductSale_PaymentFailureRestoresStock(t *testing.T) {
	// GIVEN: the payment insert will fail after stock was deducted
	f := newFixture(t)
	f.product(t, "water", "15", 5, true)
	f.mem.FailNext("AppendPayment", errors.New("disk full"))

	// WHEN: a bottle is sold
	_, err := f.reconciler.RecordPayment(context.Background(), payments.PaymentRequest{
		ProductID: "water", Method: core.MethodCash, StaffID: "staff-1",
	})

	// THEN: the sale fails as a whole
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.Equal(t, 5, f.stock(t, "water"))
}

func TestRecordPayment_ProductSale_InvalidRequests(t *testing.T) {
	tests := []struct {
		name  string
		req   payments.PaymentRequest
		field string
		want  error
	}{
		{"plan and product together", payments.PaymentRequest{MemberID: "m-1", PlanID: "monthly", ProductID: "water", Method: core.MethodCash, StaffID: "staff-1"}, "product", core.ErrInvalidInput},
		{"negative quantity", payments.PaymentRequest{ProductID: "water", Quantity: -1, Method: core.MethodCash, StaffID: "staff-1"}, "quantity", core.ErrInvalidInput},
		{"quantity without product", payments.PaymentRequest{Quantity: 2, Amount: decimal.NewFromInt(10), Method: core.MethodCash, StaffID: "staff-1"}, "quantity", core.ErrInvalidInput},
		{"inactive product", payments.PaymentRequest{ProductID: "retired", Method: core.MethodCash, StaffID: "staff-1"}, "product", core.ErrInvalidInput},
		{"unknown product", payments.PaymentRequest{ProductID: "ghost", Method: core.MethodCash, StaffID: "staff-1"}, "", core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.product(t, "water", "15", 5, true)
			f.product(t, "retired", "15", 5, false)

			_, err := f.reconciler.RecordPayment(context.Background(), tt.req)

			assert.ErrorIs(t, err, tt.want)
			if tt.field != "" {
				var inputErr *core.InputError
				require.ErrorAs(t, err, &inputErr)
				assert.Equal(t, tt.field, inputErr.Field)
			}
			assert.Equal(t, 5, f.stock(t, "water"))
			assert.Equal(t, 5, f.stock(t, "retired"))
		})
	}
}
