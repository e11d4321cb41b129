package membership_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/core/store"
	"github.com/warp/frontdesk/membership"
)

func seedSubs(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateMember(ctx, core.Member{ID: "m-1", FirstName: "Ana", LastName: "Ruiz", Phone: "555-0101"}))
	require.NoError(t, mem.CreatePlan(ctx, core.Plan{ID: "monthly", Name: "Monthly", DurationDays: 30, Active: true}))

	for _, s := range []core.Subscription{
		sub("overdue", core.SubscriptionActive, date(2024, time.July, 1)),
		sub("today", core.SubscriptionActive, date(2024, time.July, 8)),
		sub("soon", core.SubscriptionActive, date(2024, time.July, 12)),
		sub("later", core.SubscriptionActive, date(2024, time.August, 30)),
		sub("cancelled", core.SubscriptionCancelled, date(2024, time.July, 10)),
	} {
		require.NoError(t, mem.CreateSubscription(ctx, s))
	}
	return mem
}

func TestResolver_Expiring(t *testing.T) {
	ctx := context.Background()
	mem := seedSubs(t)
	plans, err := membership.NewPlanCache(mem, 0)
	require.NoError(t, err)
	r := membership.NewResolver(mem, plans, core.NewFixedClock(noon))

	rows, err := r.Expiring(ctx, 7)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, core.SubscriptionID("today"), rows[0].Subscription.ID)
	assert.Equal(t, 0, rows[0].DaysLeft)
	assert.Equal(t, core.SubscriptionID("soon"), rows[1].Subscription.ID)
	assert.Equal(t, 4, rows[1].DaysLeft)
	assert.Equal(t, "Ana Ruiz", rows[1].MemberName)
	assert.Equal(t, "Monthly", rows[1].PlanName)

	_, err = r.Expiring(ctx, -1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestSweeper_ExpiresOnlyOverdueActiveRows(t *testing.T) {
	ctx := context.Background()
	mem := seedSubs(t)

	n, err := membership.NewSweeper(mem, core.NewFixedClock(noon), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	subs, err := mem.ListSubscriptions(ctx, "m-1")
	require.NoError(t, err)
	for _, s := range subs {
		switch s.ID {
		case "overdue":
			assert.Equal(t, core.SubscriptionExpired, s.Status)
		case "cancelled":
			assert.Equal(t, core.SubscriptionCancelled, s.Status)
		default:
			assert.Equal(t, core.SubscriptionActive, s.Status)
		}
	}

	// A second run finds nothing left to do.
	n, err = membership.NewSweeper(mem, core.NewFixedClock(noon), nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
