/*
Package rewards turns a member's attendance history into the small
gamification panel shown on the member card.

KEY CONCEPTS:
  - Total visits: every permitted check-in
  - This month: permitted check-ins since the first of the month
  - Streak: consecutive ISO weeks with at least one visit, ending with
    the current week (0 if the member has not come this week)
  - Level: Novice, Pro (> 20 visits), Elite (> 50 visits)

Only permitted attendance counts. Denied attempts are audit rows, not
visits.
*/
package rewards

import (
	"context"
	"time"

	"github.com/warp/frontdesk/core"
)

type Level string

const (
	LevelNovice Level = "novice"
	LevelPro    Level = "pro"
	LevelElite  Level = "elite"
)

const (
	proThreshold   = 20
	eliteThreshold = 50
)

// LevelFor maps a visit count to a level.
func LevelFor(totalVisits int) Level {
	switch {
	case totalVisits > eliteThreshold:
		return LevelElite
	case totalVisits > proThreshold:
		return LevelPro
	default:
		return LevelNovice
	}
}

type Stats struct {
	TotalVisits int
	ThisMonth   int
	StreakWeeks int
	Level       Level
	LastVisitAt *time.Time
}

type Service struct {
	log   core.AttendanceLog
	clock core.Clock
}

func NewService(log core.AttendanceLog, clock core.Clock) *Service {
	return &Service{log: log, clock: clock}
}

// Stats computes the panel for one member.
func (s *Service) Stats(ctx context.Context, memberID core.MemberID) (Stats, error) {
	visits, err := s.log.ListAttendance(ctx, core.AttendanceFilter{MemberID: memberID, PermittedOnly: true})
	if err != nil {
		return Stats{}, err
	}
	return Compute(visits, s.clock.Now()), nil
}

// Compute derives stats from permitted attendance rows. Times are read in
// now's location.
func Compute(visits []core.Attendance, now time.Time) Stats {
	loc := now.Location()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	st := Stats{}
	weeks := make(map[isoWeek]bool)
	for _, v := range visits {
		if !v.Permitted {
			continue
		}
		st.TotalVisits++
		at := v.At.In(loc)
		if !at.Before(monthStart) && !at.After(now) {
			st.ThisMonth++
		}
		weeks[weekOf(at)] = true
		if st.LastVisitAt == nil || at.After(*st.LastVisitAt) {
			t := at
			st.LastVisitAt = &t
		}
	}

	for day := now; weeks[weekOf(day)]; day = day.AddDate(0, 0, -7) {
		st.StreakWeeks++
	}
	st.Level = LevelFor(st.TotalVisits)
	return st
}

type isoWeek struct{ year, week int }

func weekOf(t time.Time) isoWeek {
	y, w := t.ISOWeek()
	return isoWeek{y, w}
}
