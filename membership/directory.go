package membership

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/warp/frontdesk/core"
)

// =============================================================================
// DIRECTORY - member edits and manual overrides
// =============================================================================

// ProfileUpdate carries the member fields to change. Nil fields are kept.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
	Phone     *string
	PhotoURL  *string
	BirthDate *core.Date
	Status    *core.MemberStatus
}

// Override is an admin correction of a member's paid-through date.
type Override struct {
	MemberID   core.MemberID
	Expiration core.Date
	// PlanID is used only when the member has no subscription yet. Empty
	// means the cheapest active subscription plan.
	PlanID  core.PlanID
	StaffID core.StaffID
}

// Directory edits member records. Visit balances and subscriptions bought
// through payments are not its business; it only corrects them.
type Directory struct {
	store  core.Store
	clock  core.Clock
	logger *slog.Logger
}

func NewDirectory(store core.Store, clock core.Clock, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{store: store, clock: clock, logger: logger}
}

// Update applies u to the member's profile and returns the stored result.
func (d *Directory) Update(ctx context.Context, id core.MemberID, u ProfileUpdate) (*core.Member, error) {
	var updated *core.Member
	err := core.RunInTx(ctx, d.store, func(st core.Store) error {
		m, err := st.GetMember(ctx, id)
		if err != nil {
			return err
		}
		if err := u.apply(m); err != nil {
			return err
		}
		if err := st.UpdateMember(ctx, *m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.logger.Info("member updated", "member_id", id, "status", updated.Status)
	return updated, nil
}

func (u ProfileUpdate) apply(m *core.Member) error {
	if u.FirstName != nil {
		name := strings.TrimSpace(*u.FirstName)
		if name == "" {
			return core.Invalid("first_name", "is required")
		}
		m.FirstName = name
	}
	if u.LastName != nil {
		m.LastName = strings.TrimSpace(*u.LastName)
	}
	if u.Phone != nil {
		m.Phone = strings.TrimSpace(*u.Phone)
	}
	if u.PhotoURL != nil {
		m.PhotoURL = strings.TrimSpace(*u.PhotoURL)
	}
	if u.BirthDate != nil {
		b := *u.BirthDate
		m.BirthDate = &b
	}
	if u.Status != nil {
		switch *u.Status {
		case core.MemberActive, core.MemberInactive:
			m.Status = *u.Status
		default:
			return core.Invalid("status", "must be active or inactive")
		}
	}
	return nil
}

// Remove deletes a member who never bought, visited or held a
// subscription. Members with history are deactivated through Update
// instead, because the logs that mention them are never rewritten.
func (d *Directory) Remove(ctx context.Context, id core.MemberID) error {
	err := core.RunInTx(ctx, d.store, func(st core.Store) error {
		if _, err := st.GetMember(ctx, id); err != nil {
			return err
		}
		subs, err := st.ListSubscriptions(ctx, id)
		if err != nil {
			return err
		}
		paid, err := st.ListPayments(ctx, core.PaymentFilter{MemberID: id})
		if err != nil {
			return err
		}
		visits, err := st.ListAttendance(ctx, core.AttendanceFilter{MemberID: id, Limit: 1})
		if err != nil {
			return err
		}
		if len(subs) > 0 || len(paid) > 0 || len(visits) > 0 {
			return fmt.Errorf("member %s: %w", id, core.ErrHasHistory)
		}
		return st.DeleteMember(ctx, id)
	})
	if err != nil {
		return err
	}
	d.logger.Info("member removed", "member_id", id)
	return nil
}

// SetExpiration moves the member's latest subscription to o.Expiration.
// The stored status follows the new date: active through that day,
// expired after it. A member with no subscription gets one, starting today
// or on the new date when that is earlier.
func (d *Directory) SetExpiration(ctx context.Context, o Override) (*core.Subscription, error) {
	now := d.clock.Now()
	today := core.DateOf(now)
	status := core.SubscriptionActive
	if o.Expiration.Before(today) {
		status = core.SubscriptionExpired
	}

	var result core.Subscription
	err := core.RunInTx(ctx, d.store, func(st core.Store) error {
		if _, err := st.GetMember(ctx, o.MemberID); err != nil {
			return err
		}
		subs, err := st.ListSubscriptions(ctx, o.MemberID)
		if err != nil {
			return err
		}
		if latest := latestSubscription(subs); latest != nil {
			if err := st.SetSubscriptionExpiration(ctx, latest.ID, o.Expiration, status, now); err != nil {
				return err
			}
			result = *latest
			result.ExpirationDate = o.Expiration
			result.Status = status
			result.UpdatedAt = now
			return nil
		}

		plan, err := overridePlan(ctx, st, o.PlanID)
		if err != nil {
			return err
		}
		start := today
		if o.Expiration.Before(start) {
			start = o.Expiration
		}
		result = core.Subscription{
			ID:             core.SubscriptionID(core.NewID()),
			MemberID:       o.MemberID,
			PlanID:         plan.ID,
			StartDate:      start,
			ExpirationDate: o.Expiration,
			Status:         status,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return st.CreateSubscription(ctx, result)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Warn("expiration overridden",
		"member_id", o.MemberID,
		"subscription_id", result.ID,
		"expiration", o.Expiration.String(),
		"status", result.Status,
		"staff_id", o.StaffID,
	)
	return &result, nil
}

func latestSubscription(subs []core.Subscription) *core.Subscription {
	var latest *core.Subscription
	for i := range subs {
		if latest == nil || subs[i].ExpirationDate.After(latest.ExpirationDate) {
			latest = &subs[i]
		}
	}
	return latest
}

// overridePlan picks the plan for a subscription created by hand.
func overridePlan(ctx context.Context, st core.PlanStore, id core.PlanID) (*core.Plan, error) {
	if id != "" {
		p, err := st.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		if IsPackPlan(p) {
			return nil, core.Invalid("plan_id", "visit packs have no expiration")
		}
		return p, nil
	}

	plans, err := st.ListPlans(ctx, true)
	if err != nil {
		return nil, err
	}
	var cheapest *core.Plan
	for i := range plans {
		p := &plans[i]
		if IsPackPlan(p) {
			continue
		}
		if cheapest == nil || p.Price.LessThan(cheapest.Price) {
			cheapest = p
		}
	}
	if cheapest == nil {
		return nil, core.Invalid("plan_id", "no active subscription plan to attach")
	}
	return cheapest, nil
}
