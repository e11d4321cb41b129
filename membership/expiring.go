package membership

import (
	"context"
	"errors"

	"github.com/warp/frontdesk/core"
)

// DefaultExpiringDays is the look-ahead of the expiring list.
const DefaultExpiringDays = 7

// ExpiringMembership is one row of the "about to expire" list shown to
// front-desk staff so they can remind the member.
type ExpiringMembership struct {
	Subscription core.Subscription
	MemberName   string
	Phone        string
	PlanName     string
	DaysLeft     int
}

// Expiring lists active subscriptions ending within the next `within`
// days, today included, soonest first.
func (r *Resolver) Expiring(ctx context.Context, within int) ([]ExpiringMembership, error) {
	if within < 0 {
		return nil, core.Invalid("days", "must not be negative")
	}
	today := core.Today(r.clock)
	subs, err := r.store.ListExpiring(ctx, today, today.AddDays(within))
	if err != nil {
		return nil, err
	}

	result := make([]ExpiringMembership, 0, len(subs))
	for _, s := range subs {
		row := ExpiringMembership{Subscription: s, DaysLeft: today.DaysUntil(s.ExpirationDate)}

		m, err := r.store.GetMember(ctx, s.MemberID)
		switch {
		case err == nil:
			row.MemberName = m.FullName()
			row.Phone = m.Phone
		case errors.Is(err, core.ErrNotFound):
		default:
			return nil, err
		}

		p, err := r.plans.Get(ctx, s.PlanID)
		switch {
		case err == nil:
			row.PlanName = p.Name
		case errors.Is(err, core.ErrNotFound):
		default:
			return nil, err
		}
		result = append(result, row)
	}
	return result, nil
}
