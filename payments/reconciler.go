/*
Package payments records money taken at the front desk and applies its
effects to memberships, visit packs and the cash drawer.

PURPOSE:

	A payment row is the unit of truth. Once it is stored, the money has
	changed hands; everything after that is best-effort and degrades to a
	warning on the result rather than an error, so staff never re-enter a
	payment that already happened.

FLOW:

	validate -> duplicate guard -> resolve shift -> store payment
	         -> visit pack credit | subscription extension | new subscription
	         -> expected cash += amount (cash only)

PRODUCT SALES:

	A payment naming a product deducts stock and stores the payment in one
	transaction. Short stock refuses the sale and nothing is recorded. The
	amount defaults to price times quantity.

EXTENSION VS NEW:

	If the member's latest subscription is still valid today, the same row
	is extended from its current expiration. Otherwise a new row starts
	today. Both use membership.ComputeExpiration.

SEE ALSO:
  - membership/renewal.go: expiration arithmetic
  - shifts/cash.go: the drawer that cash payments feed
*/
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/membership"
	"github.com/warp/frontdesk/metrics"
	"github.com/warp/frontdesk/telemetry"
)

// DefaultDuplicateWindow is how far back an identical payment counts as a
// double submission.
const DefaultDuplicateWindow = 5 * time.Minute

// =============================================================================
// REQUEST / RESULT
// =============================================================================

type PaymentRequest struct {
	MemberID core.MemberID // empty for walk-in sales
	PlanID   core.PlanID   // empty when not paying for a plan
	// ProductID sells Quantity units from stock. Quantity defaults to one.
	ProductID core.ProductID
	Quantity  int
	Amount    decimal.Decimal
	Method    core.PaymentMethod
	StaffID   core.StaffID
	ShiftID   core.ShiftID // optional; defaults to the staff member's open shift
	Concept   string

	// AllowDuplicate is the staff override after a DuplicatePaymentError.
	AllowDuplicate bool
}

// Effect is what the payment did beyond being recorded.
type Effect string

const (
	EffectExtension Effect = "extension"
	EffectNew       Effect = "new"
	EffectVisitPack Effect = "visit_pack"
	EffectSale      Effect = "sale"
)

type PaymentResult struct {
	Payment      core.Payment
	Effect       Effect
	Subscription *core.Subscription
	// VisitsAvailable is the balance after a visit pack credit.
	VisitsAvailable int
	// StockLeft is the product's stock after a product sale.
	StockLeft int
	// Warnings lists post-processing steps that failed and need a manual fix.
	Warnings []string
}

// Warning joins warnings into one message, empty when there are none.
func (r PaymentResult) Warning() string {
	return strings.Join(r.Warnings, "; ")
}

// =============================================================================
// RECONCILER
// =============================================================================

type Reconciler struct {
	store   core.Store
	plans   *membership.PlanCache
	clock   core.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	window  time.Duration
}

// NewReconciler builds a reconciler. A zero window selects
// DefaultDuplicateWindow; a negative one disables the duplicate guard.
func NewReconciler(store core.Store, plans *membership.PlanCache, clock core.Clock, logger *slog.Logger, m *metrics.Metrics, window time.Duration) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if window == 0 {
		window = DefaultDuplicateWindow
	}
	return &Reconciler{
		store:   store,
		plans:   plans,
		clock:   clock,
		logger:  logger,
		metrics: m,
		tracer:  telemetry.Tracer(),
		window:  window,
	}
}

// RecordPayment stores the payment and applies its effects.
func (r *Reconciler) RecordPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	ctx, span := r.tracer.Start(ctx, "payments.RecordPayment")
	defer span.End()

	res, err := r.record(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "payment not recorded")
		return PaymentResult{}, err
	}
	span.SetAttributes(
		attribute.String("payment.id", res.Payment.ID),
		attribute.String("payment.effect", string(res.Effect)),
		attribute.Int("payment.warnings", len(res.Warnings)),
	)
	return res, nil
}

func (r *Reconciler) record(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	now := r.clock.Now()

	product, err := r.prepareSale(ctx, &req)
	if err != nil {
		return PaymentResult{}, err
	}
	if err := validate(req); err != nil {
		return PaymentResult{}, err
	}

	var plan *core.Plan
	if req.MemberID != "" {
		if _, err := r.store.GetMember(ctx, req.MemberID); err != nil {
			return PaymentResult{}, err
		}
	}
	if req.PlanID != "" {
		p, err := r.plans.Get(ctx, req.PlanID)
		if err != nil {
			return PaymentResult{}, err
		}
		plan = p
	}

	if err := r.checkDuplicate(ctx, req, now); err != nil {
		return PaymentResult{}, err
	}

	shift, err := r.resolveShift(ctx, req)
	if err != nil {
		return PaymentResult{}, err
	}

	payment := core.Payment{
		ID:       core.NewID(),
		MemberID: req.MemberID,
		PlanID:   req.PlanID,
		Amount:   req.Amount,
		Method:   req.Method,
		PaidAt:   now,
		StaffID:  req.StaffID,
		Concept:  concept(req, plan, product),
	}
	if shift != nil {
		payment.ShiftID = shift.ID
	}
	res := PaymentResult{Payment: payment, Effect: EffectSale}
	if product != nil {
		payment.ProductID = product.ID
		payment.Quantity = req.Quantity
		res.Payment = payment
		err = core.RunInTx(ctx, r.store, func(st core.Store) error {
			left, err := st.DeductStock(ctx, product.ID, req.Quantity)
			if err != nil {
				return err
			}
			res.StockLeft = left
			return st.AppendPayment(ctx, payment)
		})
	} else {
		err = r.store.AppendPayment(ctx, payment)
	}
	if err != nil {
		return PaymentResult{}, err
	}

	// The payment is durable from here on. Nothing below returns an error.
	if plan != nil && req.MemberID != "" {
		r.applyPlan(ctx, &res, plan, now)
	}
	if shift != nil && req.Method == core.MethodCash {
		if err := r.store.AddShiftCash(ctx, shift.ID, req.Amount); err != nil {
			r.warn(&res, "shift_cash", fmt.Sprintf("payment %s stored but shift %s expected cash not updated", payment.ID, shift.ID), err)
		}
	}

	r.metrics.Payment(string(req.Method), string(res.Effect))
	r.logger.Info("payment recorded",
		"payment_id", payment.ID,
		"member_id", payment.MemberID,
		"plan_id", payment.PlanID,
		"product_id", payment.ProductID,
		"amount", payment.Amount.StringFixed(2),
		"method", payment.Method,
		"shift_id", payment.ShiftID,
		"effect", res.Effect,
	)
	return res, nil
}

func validate(req PaymentRequest) error {
	switch {
	case !req.Amount.IsPositive():
		return core.Invalid("amount", "must be greater than zero")
	case !core.WholeCents(req.Amount):
		return core.Invalid("amount", "use at most two decimal places")
	case !req.Method.Valid():
		return core.Invalid("method", fmt.Sprintf("unknown payment method %q", req.Method))
	case req.StaffID == "":
		return core.Invalid("staff", "collecting staff member is required")
	case req.PlanID != "" && req.MemberID == "":
		return core.Invalid("member", "a plan payment needs a member")
	}
	return nil
}

// prepareSale loads the product a sale names and fills in the quantity
// and amount the desk left out. It returns nil for non-product payments.
func (r *Reconciler) prepareSale(ctx context.Context, req *PaymentRequest) (*core.Product, error) {
	if req.ProductID == "" {
		if req.Quantity != 0 {
			return nil, core.Invalid("quantity", "only product sales have a quantity")
		}
		return nil, nil
	}
	switch {
	case req.PlanID != "":
		return nil, core.Invalid("product", "a payment sells either a plan or a product")
	case req.Quantity < 0:
		return nil, core.Invalid("quantity", "must be positive")
	case req.Quantity == 0:
		req.Quantity = 1
	}

	p, err := r.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, core.Invalid("product", "product is no longer sold")
	}
	if req.Amount.IsZero() {
		req.Amount = p.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	}
	return p, nil
}

func concept(req PaymentRequest, plan *core.Plan, product *core.Product) string {
	if c := strings.TrimSpace(req.Concept); c != "" {
		return c
	}
	if plan != nil {
		return plan.Name
	}
	if product != nil {
		return fmt.Sprintf("%s x%d", product.Name, req.Quantity)
	}
	return "Sale"
}

// checkDuplicate rejects an equal amount for the same member inside the window.
func (r *Reconciler) checkDuplicate(ctx context.Context, req PaymentRequest, now time.Time) error {
	if req.AllowDuplicate || req.MemberID == "" || r.window < 0 {
		return nil
	}
	since := now.Add(-r.window)
	recent, err := r.store.ListPayments(ctx, core.PaymentFilter{MemberID: req.MemberID, From: &since})
	if err != nil {
		return err
	}
	for _, p := range recent {
		if p.Amount.Equal(req.Amount) {
			return &core.DuplicatePaymentError{
				MemberID:   req.MemberID,
				Amount:     p.Amount,
				ExistingID: p.ID,
				RecordedAt: p.PaidAt,
			}
		}
	}
	return nil
}

// resolveShift returns the shift the payment belongs to, always one owned
// by the collecting staff member. No open shift is not an error.
func (r *Reconciler) resolveShift(ctx context.Context, req PaymentRequest) (*core.Shift, error) {
	if req.ShiftID == "" {
		s, err := r.store.OpenShiftFor(ctx, req.StaffID)
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return s, err
	}

	s, err := r.store.GetShift(ctx, req.ShiftID)
	if err != nil {
		return nil, err
	}
	if s.Status != core.ShiftOpen {
		return nil, fmt.Errorf("shift %s: %w", s.ID, core.ErrShiftNotOpen)
	}
	if s.StaffID != req.StaffID {
		return nil, core.Invalid("shift", "shift belongs to another staff member")
	}
	return s, nil
}

// applyPlan credits a visit pack or extends/creates a subscription.
func (r *Reconciler) applyPlan(ctx context.Context, res *PaymentResult, plan *core.Plan, now time.Time) {
	memberID := res.Payment.MemberID

	if membership.IsPackPlan(plan) {
		res.Effect = EffectVisitPack
		balance, err := membership.NewVisitLedger(r.store).Credit(ctx, memberID, membership.Credits(*plan))
		if err != nil {
			r.warn(res, "visit_credit", fmt.Sprintf("payment %s stored but %d visits were not credited", res.Payment.ID, membership.Credits(*plan)), err)
			return
		}
		res.VisitsAvailable = balance
		return
	}

	today := core.DateOf(now)
	subs, err := r.store.ListSubscriptions(ctx, memberID)
	if err != nil {
		res.Effect = EffectNew
		r.warn(res, "subscription", fmt.Sprintf("payment %s stored but membership dates were not updated", res.Payment.ID), err)
		return
	}

	if len(subs) > 0 && !subs[0].ExpirationDate.Before(today) {
		res.Effect = EffectExtension
		current := subs[0]
		current.PlanID = plan.ID
		current.ExpirationDate = membership.ComputeExpiration(current.ExpirationDate, plan.DurationDays)
		current.Status = core.SubscriptionActive
		current.UpdatedAt = now
		if err := r.store.ExtendSubscription(ctx, current.ID, plan.ID, current.ExpirationDate, now); err != nil {
			r.warn(res, "subscription", fmt.Sprintf("payment %s stored but subscription %s was not extended", res.Payment.ID, current.ID), err)
			return
		}
		res.Subscription = &current
		return
	}

	res.Effect = EffectNew
	created := core.Subscription{
		ID:             core.SubscriptionID(core.NewID()),
		MemberID:       memberID,
		PlanID:         plan.ID,
		StartDate:      today,
		ExpirationDate: membership.ComputeExpiration(today, plan.DurationDays),
		Status:         core.SubscriptionActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.CreateSubscription(ctx, created); err != nil {
		r.warn(res, "subscription", fmt.Sprintf("payment %s stored but no subscription was created", res.Payment.ID), err)
		return
	}
	res.Subscription = &created
}

func (r *Reconciler) warn(res *PaymentResult, step, message string, err error) {
	res.Warnings = append(res.Warnings, message+"; please correct it manually")
	r.metrics.PaymentWarning(step)
	r.logger.Warn("payment post-processing failed",
		"payment_id", res.Payment.ID,
		"step", step,
		"error", err,
	)
}
