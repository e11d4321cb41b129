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

func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.May, day, hour, minute, 0, 0, time.UTC)
}

func TestConsumeVisit_NoBalance(t *testing.T) {
	_, err := membership.ConsumeVisit(0, nil, at(10, 9, 0))
	assert.ErrorIs(t, err, core.ErrNoCredit)

	_, err = membership.ConsumeVisit(-1, nil, at(10, 9, 0))
	assert.ErrorIs(t, err, core.ErrNoCredit)
}

func TestConsumeVisit_DifferentDayDecrementsByOne(t *testing.T) {
	last := at(9, 23, 59)
	for balance := 1; balance <= 5; balance++ {
		out, err := membership.ConsumeVisit(balance, &last, at(10, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, balance-1, out.Balance)
		assert.False(t, out.Reentry)
	}
}

func TestConsumeVisit_SameDayIsReentry(t *testing.T) {
	last := at(10, 0, 1)
	out, err := membership.ConsumeVisit(3, &last, at(10, 23, 58))
	require.NoError(t, err)
	assert.True(t, out.Reentry)
	assert.Equal(t, 3, out.Balance)
}

func newLedger(t *testing.T, visits int) (*membership.VisitLedger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateMember(context.Background(), core.Member{
		ID: "m-1", FirstName: "Ana", VisitsAvailable: visits,
	}))
	return membership.NewVisitLedger(mem), mem
}

func TestVisitLedger_LastCreditThenReentry(t *testing.T) {
	// GIVEN: a member with one prepaid visit
	ctx := context.Background()
	ledger, mem := newLedger(t, 1)

	// WHEN: they enter in the morning
	m, _ := mem.GetMember(ctx, "m-1")
	out, err := ledger.TryConsume(ctx, *m, at(10, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Balance)

	m, _ = mem.GetMember(ctx, "m-1")
	assert.Equal(t, 0, m.VisitsAvailable)
	assert.Equal(t, at(10, 8, 0), *m.LastVisitAt)

	// AND: try again the same day with an empty balance
	_, err = ledger.TryConsume(ctx, *m, at(10, 18, 0))

	// THEN: no credit, balance untouched
	assert.ErrorIs(t, err, core.ErrNoCredit)
	m, _ = mem.GetMember(ctx, "m-1")
	assert.Equal(t, 0, m.VisitsAvailable)
}

func TestVisitLedger_ReentryRefreshesLastVisitOnly(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newLedger(t, 2)

	m, _ := mem.GetMember(ctx, "m-1")
	_, err := ledger.TryConsume(ctx, *m, at(10, 8, 0))
	require.NoError(t, err)

	m, _ = mem.GetMember(ctx, "m-1")
	out, err := ledger.TryConsume(ctx, *m, at(10, 19, 30))
	require.NoError(t, err)
	assert.True(t, out.Reentry)
	assert.Equal(t, 1, out.Balance)

	m, _ = mem.GetMember(ctx, "m-1")
	assert.Equal(t, 1, m.VisitsAvailable)
	assert.Equal(t, at(10, 19, 30), *m.LastVisitAt)
}

func TestVisitLedger_StaleReadLosesRaceAsNoCredit(t *testing.T) {
	ctx := context.Background()
	ledger, mem := newLedger(t, 1)

	// Two terminals read the same member with one visit left.
	m, _ := mem.GetMember(ctx, "m-1")
	stale := *m

	_, err := ledger.TryConsume(ctx, *m, at(10, 8, 0))
	require.NoError(t, err)

	stale.LastVisitAt = nil
	_, err = ledger.TryConsume(ctx, stale, at(10, 8, 0))
	assert.ErrorIs(t, err, core.ErrNoCredit)

	m, _ = mem.GetMember(ctx, "m-1")
	assert.Equal(t, 0, m.VisitsAvailable)
}

func TestVisitLedger_Credit(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t, 2)

	balance, err := ledger.Credit(ctx, "m-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 12, balance)

	_, err = ledger.Credit(ctx, "m-1", 0)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = ledger.Credit(ctx, "ghost", 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestIsPackPlanAndCredits(t *testing.T) {
	pack := core.Plan{Category: core.CategoryVisitPack, CreditsGranted: 10}
	single := core.Plan{Category: core.CategoryVisitPack}
	monthly := core.Plan{Category: core.CategorySubscription}

	assert.True(t, membership.IsPackPlan(&pack))
	assert.False(t, membership.IsPackPlan(&monthly))
	assert.False(t, membership.IsPackPlan(nil))
	assert.Equal(t, 10, membership.Credits(pack))
	assert.Equal(t, 1, membership.Credits(single))
}
