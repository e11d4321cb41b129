package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
)

func TestDate_AddDays_CrossesMonthAndYear(t *testing.T) {
	assert.Equal(t, core.NewDate(2025, time.January, 1), core.NewDate(2024, time.December, 31).AddDays(1))
	assert.Equal(t, core.NewDate(2024, time.March, 1), core.NewDate(2024, time.February, 28).AddDays(2))
	assert.Equal(t, core.NewDate(2024, time.February, 29), core.NewDate(2024, time.March, 1).AddDays(-1))
}

func TestDate_DaysUntil(t *testing.T) {
	from := core.NewDate(2024, time.July, 8)
	assert.Equal(t, 30, from.DaysUntil(core.NewDate(2024, time.August, 7)))
	assert.Equal(t, -1, from.DaysUntil(core.NewDate(2024, time.July, 7)))
	assert.Equal(t, 0, from.DaysUntil(from))
}

func TestDate_ParseAndString(t *testing.T) {
	d, err := core.ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())

	_, err = core.ParseDate("2023-02-29")
	assert.Error(t, err)
}

func TestDaysInMonth_LeapYears(t *testing.T) {
	assert.Equal(t, 29, core.DaysInMonth(2024, time.February))
	assert.Equal(t, 28, core.DaysInMonth(2025, time.February))
	assert.Equal(t, 28, core.DaysInMonth(1900, time.February))
	assert.Equal(t, 29, core.DaysInMonth(2000, time.February))
	assert.Equal(t, 31, core.DaysInMonth(2024, time.December))
}

func TestSameDay_IsCalendarEquality(t *testing.T) {
	loc := time.UTC

	// GIVEN: 23:59 and 00:01 the next day, two minutes apart
	late := time.Date(2024, 5, 10, 23, 59, 0, 0, loc)
	early := time.Date(2024, 5, 11, 0, 1, 0, 0, loc)
	// THEN: different days
	assert.False(t, core.SameDay(late, early, loc))

	// GIVEN: 00:01 and 23:58 on the same day
	first := time.Date(2024, 5, 11, 0, 1, 0, 0, loc)
	last := time.Date(2024, 5, 11, 23, 58, 0, 0, loc)
	// THEN: same day
	assert.True(t, core.SameDay(first, last, loc))
}

func TestSameDay_UsesGivenLocation(t *testing.T) {
	est := time.FixedZone("UTC-5", -5*3600)

	// 03:00 UTC on the 11th and 23:00 UTC on the 10th are both the 10th at UTC-5
	a := time.Date(2024, 5, 11, 3, 0, 0, 0, time.UTC)
	b := time.Date(2024, 5, 10, 23, 0, 0, 0, time.UTC)

	assert.True(t, core.SameDay(a, b, est))
	assert.False(t, core.SameDay(a, b, time.UTC))
}

func TestFixedClock(t *testing.T) {
	start := time.Date(2024, 7, 8, 9, 0, 0, 0, time.UTC)
	clock := core.NewFixedClock(start)

	assert.Equal(t, start, clock.Now())
	clock.Advance(24 * time.Hour)
	assert.Equal(t, core.NewDate(2024, time.July, 9), core.Today(clock))
}
