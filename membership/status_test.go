package membership_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/core/store"
	"github.com/warp/frontdesk/membership"
)

var noon = time.Date(2024, time.July, 8, 12, 0, 0, 0, time.UTC)

func sub(id string, status core.SubscriptionStatus, exp core.Date) core.Subscription {
	return core.Subscription{
		ID:             core.SubscriptionID(id),
		MemberID:       "m-1",
		PlanID:         "monthly",
		StartDate:      exp.AddDays(-29),
		ExpirationDate: exp,
		Status:         status,
	}
}

func TestResolveStatus_NoSubscriptions(t *testing.T) {
	res := membership.ResolveStatus(nil, noon)
	assert.Equal(t, membership.StatusNoSubscription, res.Status)
	assert.Nil(t, res.Subscription)
}

func TestResolveStatus_PastExpirationIsExpiredWhateverStored(t *testing.T) {
	for _, stored := range []core.SubscriptionStatus{
		core.SubscriptionActive, core.SubscriptionCancelled, core.SubscriptionExpired,
	} {
		t.Run(string(stored), func(t *testing.T) {
			res := membership.ResolveStatus([]core.Subscription{
				sub("s-1", stored, date(2024, time.July, 7)),
			}, noon)
			assert.Equal(t, membership.StatusExpired, res.Status)
			assert.Equal(t, -1, res.DaysRemaining)
		})
	}
}

func TestResolveStatus_ValidThroughExpirationDay(t *testing.T) {
	// GIVEN: a subscription expiring today
	res := membership.ResolveStatus([]core.Subscription{
		sub("s-1", core.SubscriptionActive, date(2024, time.July, 8)),
	}, time.Date(2024, time.July, 8, 23, 30, 0, 0, time.UTC))

	// THEN: still active with zero days left
	assert.Equal(t, membership.StatusActive, res.Status)
	assert.Equal(t, 0, res.DaysRemaining)
}

func TestResolveStatus_PrefersActiveFutureOverLaterCancelled(t *testing.T) {
	// GIVEN: a cancelled row with a later expiration and an active row
	subs := []core.Subscription{
		sub("cancelled", core.SubscriptionCancelled, date(2024, time.September, 1)),
		sub("active", core.SubscriptionActive, date(2024, time.August, 1)),
	}

	res := membership.ResolveStatus(subs, noon)

	assert.Equal(t, membership.StatusActive, res.Status)
	assert.Equal(t, core.SubscriptionID("active"), res.Subscription.ID)
	assert.Equal(t, 24, res.DaysRemaining)
}

func TestResolveStatus_FallsBackToMostRecent(t *testing.T) {
	subs := []core.Subscription{
		sub("old", core.SubscriptionActive, date(2024, time.March, 1)),
		sub("cancelled", core.SubscriptionCancelled, date(2024, time.August, 1)),
	}

	res := membership.ResolveStatus(subs, noon)

	assert.Equal(t, membership.StatusCancelled, res.Status)
	assert.Equal(t, core.SubscriptionID("cancelled"), res.Subscription.ID)
}

func TestResolveStatus_DoesNotReorderInput(t *testing.T) {
	subs := []core.Subscription{
		sub("a", core.SubscriptionActive, date(2024, time.March, 1)),
		sub("b", core.SubscriptionActive, date(2024, time.August, 1)),
	}
	membership.ResolveStatus(subs, noon)
	assert.Equal(t, core.SubscriptionID("a"), subs[0].ID)
}

func TestResolver_EffectiveStatus(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateMember(ctx, core.Member{ID: "m-1", FirstName: "Ana"}))
	require.NoError(t, mem.CreatePlan(ctx, core.Plan{
		ID: "monthly", Name: "Monthly", Price: decimal.NewFromInt(100),
		DurationDays: 30, Category: core.CategorySubscription, Active: true,
	}))
	require.NoError(t, mem.CreateSubscription(ctx, sub("s-1", core.SubscriptionActive, date(2024, time.July, 18))))

	plans, err := membership.NewPlanCache(mem, 0)
	require.NoError(t, err)
	r := membership.NewResolver(mem, plans, core.NewFixedClock(noon))

	res, err := r.EffectiveStatus(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, membership.StatusActive, res.Status)
	assert.Equal(t, 10, res.DaysRemaining)
	assert.Equal(t, "Monthly", res.PlanName)

	_, err = r.EffectiveStatus(ctx, "nobody")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPlanCache_ServesFromCacheUntilForgotten(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreatePlan(ctx, core.Plan{ID: "p", Name: "Monthly", Active: true}))

	plans, err := membership.NewPlanCache(mem, 4)
	require.NoError(t, err)

	p, err := plans.Get(ctx, "p")
	require.NoError(t, err)
	assert.True(t, p.Active)

	require.NoError(t, mem.SetPlanActive(ctx, "p", false))
	p, _ = plans.Get(ctx, "p")
	assert.True(t, p.Active, "cached copy")

	plans.Forget("p")
	p, _ = plans.Get(ctx, "p")
	assert.False(t, p.Active)
}
