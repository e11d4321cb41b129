package membership

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/warp/frontdesk/core"
)

// =============================================================================
// EFFECTIVE STATUS
// =============================================================================

// EffectiveStatus is the status a member actually has right now, derived
// from subscription dates. The stored status is only a cache.
type EffectiveStatus string

const (
	StatusActive         EffectiveStatus = "active"
	StatusExpired        EffectiveStatus = "expired"
	StatusCancelled      EffectiveStatus = "cancelled"
	StatusNoSubscription EffectiveStatus = "no_subscription"
)

// Resolution is the outcome of status resolution for one member.
type Resolution struct {
	Status        EffectiveStatus
	DaysRemaining int
	PlanName      string

	// Subscription is the row the status was derived from (nil when none).
	Subscription *core.Subscription
	// Plan is that subscription's plan, when it could be loaded.
	Plan *core.Plan
}

// ResolveStatus picks the subscription that governs a member's status.
//
// Subscriptions are ordered by expiration, latest first. The first one
// stored as active and not yet past its expiration wins; otherwise the
// latest one does. A subscription is valid through the end of its
// expiration day, in the calendar of now.
func ResolveStatus(subs []core.Subscription, now time.Time) Resolution {
	if len(subs) == 0 {
		return Resolution{Status: StatusNoSubscription}
	}

	ordered := make([]core.Subscription, len(subs))
	copy(ordered, subs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExpirationDate.After(ordered[j].ExpirationDate)
	})

	today := core.DateOf(now)
	chosen := ordered[0]
	for _, s := range ordered {
		if s.Status == core.SubscriptionActive && !s.ExpirationDate.Before(today) {
			chosen = s
			break
		}
	}

	res := Resolution{
		DaysRemaining: today.DaysUntil(chosen.ExpirationDate),
		Subscription:  &chosen,
	}
	switch {
	case chosen.ExpirationDate.Before(today):
		res.Status = StatusExpired
	case chosen.Status == core.SubscriptionCancelled:
		res.Status = StatusCancelled
	case chosen.Status == core.SubscriptionExpired:
		res.Status = StatusExpired
	default:
		res.Status = StatusActive
	}
	return res
}

// =============================================================================
// PLAN CACHE
// =============================================================================

// DefaultPlanCacheSize bounds the plan cache. Gyms sell a handful of plans.
const DefaultPlanCacheSize = 256

// PlanCache keeps recently used plans in an LRU in front of the store.
type PlanCache struct {
	store core.PlanStore
	cache *lru.Cache[core.PlanID, core.Plan]
}

func NewPlanCache(store core.PlanStore, size int) (*PlanCache, error) {
	if size <= 0 {
		size = DefaultPlanCacheSize
	}
	cache, err := lru.New[core.PlanID, core.Plan](size)
	if err != nil {
		return nil, fmt.Errorf("create plan cache: %w", err)
	}
	return &PlanCache{store: store, cache: cache}, nil
}

// Get returns the plan, loading it on a miss.
func (c *PlanCache) Get(ctx context.Context, id core.PlanID) (*core.Plan, error) {
	return c.GetVia(ctx, c.store, id)
}

// GetVia is Get with misses loaded through s. Callers inside a store
// transaction pass the transaction so the load shares its connection.
func (c *PlanCache) GetVia(ctx context.Context, s core.PlanStore, id core.PlanID) (*core.Plan, error) {
	if p, ok := c.cache.Get(id); ok {
		return &p, nil
	}
	p, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, *p)
	return p, nil
}

// Forget drops a plan after it was changed.
func (c *PlanCache) Forget(id core.PlanID) {
	c.cache.Remove(id)
}

// =============================================================================
// RESOLVER - store-backed status lookup
// =============================================================================

type Resolver struct {
	store core.Store
	plans *PlanCache
	clock core.Clock
}

func NewResolver(store core.Store, plans *PlanCache, clock core.Clock) *Resolver {
	return &Resolver{store: store, plans: plans, clock: clock}
}

// EffectiveStatus resolves a member's status now. It has no side effects.
func (r *Resolver) EffectiveStatus(ctx context.Context, memberID core.MemberID) (Resolution, error) {
	if _, err := r.store.GetMember(ctx, memberID); err != nil {
		return Resolution{}, err
	}
	return r.Resolve(ctx, r.store, memberID, r.clock.Now())
}

// StatusSource is the part of a store status resolution reads.
type StatusSource interface {
	core.SubscriptionStore
	core.PlanStore
}

// Resolve resolves status against s, which may be a transaction. Both the
// subscriptions and a cache miss on the plan are read through s.
func (r *Resolver) Resolve(ctx context.Context, s StatusSource, memberID core.MemberID, now time.Time) (Resolution, error) {
	subs, err := s.ListSubscriptions(ctx, memberID)
	if err != nil {
		return Resolution{}, err
	}
	res := ResolveStatus(subs, now)
	if res.Subscription == nil {
		return res, nil
	}

	plan, err := r.plans.GetVia(ctx, s, res.Subscription.PlanID)
	switch {
	case err == nil:
		res.Plan = plan
		res.PlanName = plan.Name
	case errors.Is(err, core.ErrNotFound):
		// A deleted plan does not change what the dates say.
	default:
		return Resolution{}, err
	}
	return res, nil
}
