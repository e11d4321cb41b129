/*
Package reports builds the read-only views the front desk and the owner
look at: the daily dashboard, recent revenue and attendance trends, and
the shift workbook export.

Nothing here writes to the store.
*/
package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/frontdesk/core"
	"github.com/warp/frontdesk/membership"
)

// Dashboard is the front-desk summary for one calendar day.
type Dashboard struct {
	Date           core.Date
	Income         decimal.Decimal
	IncomeByMethod map[core.PaymentMethod]decimal.Decimal
	Payments       int
	CheckIns       int
	Denied         int
	OpenShifts     int
	Expiring       int
	LowStock       int
}

type Service struct {
	store        core.Store
	resolver     *membership.Resolver
	clock        core.Clock
	expiringDays int
}

func NewService(store core.Store, resolver *membership.Resolver, clock core.Clock, expiringDays int) *Service {
	if expiringDays < 0 {
		expiringDays = membership.DefaultExpiringDays
	}
	return &Service{store: store, resolver: resolver, clock: clock, expiringDays: expiringDays}
}

// Dashboard gathers today's figures. The reads run concurrently and
// the first failure cancels the rest.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	now := s.clock.Now()
	from := core.StartOfDay(now)
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)

	d := Dashboard{
		Date:           core.DateOf(now),
		Income:         decimal.Zero,
		IncomeByMethod: make(map[core.PaymentMethod]decimal.Decimal),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		payments, err := s.store.ListPayments(ctx, core.PaymentFilter{From: &from, To: &to})
		if err != nil {
			return err
		}
		d.Payments = len(payments)
		for _, p := range payments {
			d.Income = d.Income.Add(p.Amount)
			d.IncomeByMethod[p.Method] = d.IncomeByMethod[p.Method].Add(p.Amount)
		}
		return nil
	})

	g.Go(func() error {
		rows, err := s.store.ListAttendance(ctx, core.AttendanceFilter{From: &from, To: &to})
		if err != nil {
			return err
		}
		for _, a := range rows {
			if a.Permitted {
				d.CheckIns++
			} else {
				d.Denied++
			}
		}
		return nil
	})

	g.Go(func() error {
		open, err := s.store.ListShifts(ctx, core.ShiftFilter{Status: core.ShiftOpen})
		if err != nil {
			return err
		}
		d.OpenShifts = len(open)
		return nil
	})

	g.Go(func() error {
		expiring, err := s.resolver.Expiring(ctx, s.expiringDays)
		if err != nil {
			return err
		}
		d.Expiring = len(expiring)
		return nil
	})

	g.Go(func() error {
		low, err := s.LowStock(ctx)
		if err != nil {
			return err
		}
		d.LowStock = len(low)
		return nil
	})

	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

// TodayAttendance lists today's check-in attempts, newest first.
func (s *Service) TodayAttendance(ctx context.Context) ([]core.Attendance, error) {
	from := core.StartOfDay(s.clock.Now())
	to := from.AddDate(0, 0, 1).Add(-time.Nanosecond)
	return s.store.ListAttendance(ctx, core.AttendanceFilter{From: &from, To: &to})
}
