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
	"github.com/warp/frontdesk/logger"
	"github.com/warp/frontdesk/membership"
)

func newDirectory(t *testing.T) (*membership.Directory, *store.Memory) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateMember(ctx, core.Member{ID: "m-1", FirstName: "Ana", LastName: "Ruiz", Status: core.MemberActive, VisitsAvailable: 2}))
	for _, p := range []core.Plan{
		{ID: "monthly", Name: "Monthly", Price: decimal.NewFromInt(400), DurationDays: 30, Category: core.CategorySubscription, Active: true},
		{ID: "weekly", Name: "Weekly", Price: decimal.NewFromInt(150), DurationDays: 7, Category: core.CategorySubscription, Active: true},
		{ID: "pack", Name: "10 visits", Price: decimal.NewFromInt(50), Category: core.CategoryVisitPack, CreditsGranted: 10, Active: true},
	} {
		require.NoError(t, mem.CreatePlan(ctx, p))
	}
	return membership.NewDirectory(mem, core.NewFixedClock(noon), logger.Discard()), mem
}

func ptr[T any](v T) *T { return &v }

func TestDirectory_UpdateChangesOnlyGivenFields(t *testing.T) {
	// GIVEN: a member with a visit balance
	ctx := context.Background()
	dir, mem := newDirectory(t)

	// WHEN: the phone and status are edited
	m, err := dir.Update(ctx, "m-1", membership.ProfileUpdate{
		Phone:  ptr(" 555-0102 "),
		Status: ptr(core.MemberInactive),
	})

	// THEN: the edit is stored and everything else is kept
	require.NoError(t, err)
	assert.Equal(t, "555-0102", m.Phone)

	stored, err := mem.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Ruiz", stored.FullName())
	assert.Equal(t, core.MemberInactive, stored.Status)
	assert.Equal(t, 2, stored.VisitsAvailable)
}

func TestDirectory_UpdateRejectsBlankNameAndUnknownStatus(t *testing.T) {
	ctx := context.Background()
	dir, mem := newDirectory(t)

	_, err := dir.Update(ctx, "m-1", membership.ProfileUpdate{FirstName: ptr("  ")})
	var inputErr *core.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "first_name", inputErr.Field)

	_, err = dir.Update(ctx, "m-1", membership.ProfileUpdate{Status: ptr(core.MemberStatus("banned"))})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = dir.Update(ctx, "ghost", membership.ProfileUpdate{Phone: ptr("1")})
	assert.ErrorIs(t, err, core.ErrNotFound)

	stored, err := mem.GetMember(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.FirstName)
}

func TestDirectory_RemoveMemberWithoutHistory(t *testing.T) {
	// GIVEN: a member registered by mistake
	ctx := context.Background()
	dir, mem := newDirectory(t)

	// WHEN: the member is removed
	require.NoError(t, dir.Remove(ctx, "m-1"))

	// THEN: the record is gone
	_, err := mem.GetMember(ctx, "m-1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, dir.Remove(ctx, "m-1"), core.ErrNotFound)
}

func TestDirectory_RemoveRefusesMemberWithHistory(t *testing.T) {
	tests := []struct {
		name string
		seed func(t *testing.T, mem *store.Memory)
	}{
		{"subscription", func(t *testing.T, mem *store.Memory) {
			require.NoError(t, mem.CreateSubscription(context.Background(), sub("s-1", core.SubscriptionActive, date(2024, time.July, 30))))
		}},
		{"payment", func(t *testing.T, mem *store.Memory) {
			require.NoError(t, mem.AppendPayment(context.Background(), core.Payment{
				ID: "p-1", MemberID: "m-1", Amount: decimal.NewFromInt(50), Method: core.MethodCash, PaidAt: noon,
			}))
		}},
		{"attendance", func(t *testing.T, mem *store.Memory) {
			require.NoError(t, mem.AppendAttendance(context.Background(), core.Attendance{
				ID: "a-1", MemberID: "m-1", At: noon, Permitted: false,
			}))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN: a member with one kind of history
			ctx := context.Background()
			dir, mem := newDirectory(t)
			tt.seed(t, mem)

			// WHEN: removal is attempted
			err := dir.Remove(ctx, "m-1")

			// THEN: it is refused and the member stays
			assert.ErrorIs(t, err, core.ErrHasHistory)
			_, err = mem.GetMember(ctx, "m-1")
			assert.NoError(t, err)
		})
	}
}

func TestDirectory_SetExpirationMovesLatestSubscription(t *testing.T) {
	// GIVEN: an older expired row and a current monthly row
	ctx := context.Background()
	dir, mem := newDirectory(t)
	require.NoError(t, mem.CreateSubscription(ctx, sub("old", core.SubscriptionExpired, date(2024, time.May, 31))))
	require.NoError(t, mem.CreateSubscription(ctx, sub("current", core.SubscriptionActive, date(2024, time.July, 20))))

	// WHEN: the desk corrects the date into the past
	got, err := dir.SetExpiration(ctx, membership.Override{MemberID: "m-1", Expiration: date(2024, time.July, 5), StaffID: "admin"})

	// THEN: only the latest row changes and its status follows the date
	require.NoError(t, err)
	assert.Equal(t, core.SubscriptionID("current"), got.ID)
	assert.Equal(t, core.SubscriptionExpired, got.Status)

	subs, err := mem.ListSubscriptions(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	for _, s := range subs {
		switch s.ID {
		case "current":
			assert.Equal(t, date(2024, time.July, 5), s.ExpirationDate)
			assert.Equal(t, core.SubscriptionExpired, s.Status)
			assert.Equal(t, core.PlanID("monthly"), s.PlanID)
		case "old":
			assert.Equal(t, date(2024, time.May, 31), s.ExpirationDate)
		}
	}

	// WHEN: the date is moved to today
	got, err = dir.SetExpiration(ctx, membership.Override{MemberID: "m-1", Expiration: date(2024, time.July, 8)})

	// THEN: the member is active again through the end of today
	require.NoError(t, err)
	assert.Equal(t, core.SubscriptionActive, got.Status)
}

func TestDirectory_SetExpirationCreatesSubscriptionWhenNone(t *testing.T) {
	// GIVEN: a member who never paid
	ctx := context.Background()
	dir, mem := newDirectory(t)

	// WHEN: an expiration is set without naming a plan
	got, err := dir.SetExpiration(ctx, membership.Override{MemberID: "m-1", Expiration: date(2024, time.August, 1)})

	// THEN: a row on the cheapest subscription plan starts today
	require.NoError(t, err)
	assert.Equal(t, core.PlanID("weekly"), got.PlanID)
	assert.Equal(t, date(2024, time.July, 8), got.StartDate)
	assert.Equal(t, core.SubscriptionActive, got.Status)

	subs, err := mem.ListSubscriptions(ctx, "m-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, date(2024, time.August, 1), subs[0].ExpirationDate)
}

func TestDirectory_SetExpirationWithNamedPlan(t *testing.T) {
	ctx := context.Background()
	dir, mem := newDirectory(t)

	got, err := dir.SetExpiration(ctx, membership.Override{MemberID: "m-1", Expiration: date(2024, time.July, 1), PlanID: "monthly"})
	require.NoError(t, err)
	assert.Equal(t, core.PlanID("monthly"), got.PlanID)
	assert.Equal(t, date(2024, time.July, 1), got.StartDate, "start never falls after expiration")
	assert.Equal(t, core.SubscriptionExpired, got.Status)

	_, err = dir.SetExpiration(ctx, membership.Override{MemberID: "m-2", Expiration: date(2024, time.July, 1)})
	assert.ErrorIs(t, err, core.ErrNotFound)

	subs, err := mem.ListSubscriptions(ctx, "m-1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestDirectory_SetExpirationRejectsVisitPack(t *testing.T) {
	ctx := context.Background()
	dir, mem := newDirectory(t)

	_, err := dir.SetExpiration(ctx, membership.Override{MemberID: "m-1", Expiration: date(2024, time.August, 1), PlanID: "pack"})

	var inputErr *core.InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "plan_id", inputErr.Field)
	subs, err := mem.ListSubscriptions(ctx, "m-1")
	require.NoError(t, err)
	assert.Empty(t, subs)
}
