package rewards_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/core/store"
	"github.com/warp/frontdesk/rewards"
)

func visit(at time.Time, permitted bool) core.Attendance {
	return core.Attendance{ID: core.NewID(), MemberID: "m-1", At: at, Permitted: permitted}
}

func TestCompute_StreakAcrossYearBoundary(t *testing.T) {
	// GIVEN: visits in each of the last three ISO weeks, spanning new year
	now := time.Date(2025, time.January, 8, 10, 0, 0, 0, time.UTC) // 2025-W02
	visits := []core.Attendance{
		visit(time.Date(2025, time.January, 7, 9, 0, 0, 0, time.UTC), true),   // 2025-W02
		visit(time.Date(2024, time.December, 31, 9, 0, 0, 0, time.UTC), true), // 2025-W01
		visit(time.Date(2024, time.December, 24, 9, 0, 0, 0, time.UTC), true), // 2024-W52
		visit(time.Date(2024, time.December, 3, 9, 0, 0, 0, time.UTC), true),  // gap before
	}

	st := rewards.Compute(visits, now)

	assert.Equal(t, 3, st.StreakWeeks)
	assert.Equal(t, 4, st.TotalVisits)
	assert.Equal(t, 1, st.ThisMonth)
	assert.Equal(t, rewards.LevelNovice, st.Level)
}

func TestCompute_NoVisitThisWeek_ZeroStreak(t *testing.T) {
	now := time.Date(2024, time.July, 15, 10, 0, 0, 0, time.UTC) // Monday
	visits := []core.Attendance{
		visit(time.Date(2024, time.July, 12, 9, 0, 0, 0, time.UTC), true),
	}

	st := rewards.Compute(visits, now)

	assert.Equal(t, 0, st.StreakWeeks)
	assert.Equal(t, 1, st.ThisMonth)
}

func TestCompute_IgnoresDenied(t *testing.T) {
	now := time.Date(2024, time.July, 15, 10, 0, 0, 0, time.UTC)
	st := rewards.Compute([]core.Attendance{visit(now.Add(-time.Hour), false)}, now)

	assert.Equal(t, 0, st.TotalVisits)
	assert.Nil(t, st.LastVisitAt)
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, rewards.LevelNovice, rewards.LevelFor(20))
	assert.Equal(t, rewards.LevelPro, rewards.LevelFor(21))
	assert.Equal(t, rewards.LevelPro, rewards.LevelFor(50))
	assert.Equal(t, rewards.LevelElite, rewards.LevelFor(51))
}

func TestService_Stats(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	now := time.Date(2024, time.July, 17, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 22; i++ {
		require.NoError(t, mem.AppendAttendance(ctx, visit(now.AddDate(0, 0, -i), true)))
	}
	require.NoError(t, mem.AppendAttendance(ctx, visit(now, false)))

	st, err := rewards.NewService(mem, core.NewFixedClock(now)).Stats(ctx, "m-1")

	require.NoError(t, err)
	assert.Equal(t, 22, st.TotalVisits)
	assert.Equal(t, 17, st.ThisMonth)
	assert.Equal(t, rewards.LevelPro, st.Level)
	assert.Equal(t, 4, st.StreakWeeks)
}
