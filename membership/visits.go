package membership

import (
	"context"
	"time"

	"github.com/warp/frontdesk/core"
)

// =============================================================================
// VISIT-PACK LEDGER
// =============================================================================
//
// Prepaid single-visit credits live on the member, independent of any
// subscription. One credit is spent per calendar day: re-entering on the
// same day refreshes LastVisitAt and costs nothing.

// IsPackPlan reports whether buying p credits visits instead of time.
func IsPackPlan(p *core.Plan) bool {
	return p != nil && p.Category == core.CategoryVisitPack
}

// Credits is how many visits buying p grants.
func Credits(p core.Plan) int {
	return max(1, p.CreditsGranted)
}

// VisitOutcome describes a successful consume.
type VisitOutcome struct {
	Balance int
	Reentry bool
}

// ConsumeVisit decides what spending a visit does to a balance.
// Same-day is calendar equality in now's location, not a 24h window.
func ConsumeVisit(balance int, lastVisitAt *time.Time, now time.Time) (VisitOutcome, error) {
	if balance <= 0 {
		return VisitOutcome{Balance: balance}, core.ErrNoCredit
	}
	if lastVisitAt != nil && core.SameDay(*lastVisitAt, now, now.Location()) {
		return VisitOutcome{Balance: balance, Reentry: true}, nil
	}
	return VisitOutcome{Balance: balance - 1}, nil
}

// VisitLedger applies visit decisions to the member store.
type VisitLedger struct {
	store core.MemberStore
}

func NewVisitLedger(store core.MemberStore) *VisitLedger {
	return &VisitLedger{store: store}
}

// Credit adds qty visits and returns the new balance.
func (l *VisitLedger) Credit(ctx context.Context, memberID core.MemberID, qty int) (int, error) {
	if qty <= 0 {
		return 0, core.Invalid("quantity", "must be positive")
	}
	return l.store.AddVisits(ctx, memberID, qty)
}

// TryConsume spends a visit for m at now. The decrement itself is a
// conditional store update, so a concurrent check-in that drained the
// balance first surfaces as ErrNoCredit.
func (l *VisitLedger) TryConsume(ctx context.Context, m core.Member, now time.Time) (VisitOutcome, error) {
	out, err := ConsumeVisit(m.VisitsAvailable, m.LastVisitAt, now)
	if err != nil {
		return out, err
	}

	if out.Reentry {
		if err := l.store.TouchLastVisit(ctx, m.ID, now); err != nil {
			return VisitOutcome{}, err
		}
		return out, nil
	}

	balance, err := l.store.ConsumeVisit(ctx, m.ID, now)
	if err != nil {
		return VisitOutcome{Balance: balance}, err
	}
	return VisitOutcome{Balance: balance}, nil
}
