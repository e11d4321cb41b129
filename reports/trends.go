package reports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/frontdesk/core"
)

// =============================================================================
// TRENDS - revenue and attendance over recent days
// =============================================================================

const (
	RevenueDays   = 7
	PeakHoursDays = 30

	// Opening hours shown on the peak-hours chart.
	FirstHour = 6
	LastHour  = 22
)

// DailyTotal is the income of one calendar day.
type DailyTotal struct {
	Date     core.Date
	Total    decimal.Decimal
	Payments int
}

// HourCount is how many permitted check-ins started in one hour of day.
type HourCount struct {
	Hour     int
	CheckIns int
}

// WeeklyRevenue returns one total per day for the last RevenueDays days,
// oldest first and ending today. Days without payments are zero.
func (s *Service) WeeklyRevenue(ctx context.Context) ([]DailyTotal, error) {
	now := s.clock.Now()
	today := core.DateOf(now)
	first := today.AddDays(-(RevenueDays - 1))
	from := first.In(now.Location())
	to := core.StartOfDay(now).AddDate(0, 0, 1).Add(-time.Nanosecond)

	payments, err := s.store.ListPayments(ctx, core.PaymentFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}

	days := make([]DailyTotal, RevenueDays)
	index := make(map[core.Date]int, RevenueDays)
	for i := range days {
		d := first.AddDays(i)
		days[i] = DailyTotal{Date: d, Total: decimal.Zero}
		index[d] = i
	}
	for _, p := range payments {
		i, ok := index[core.DateOf(p.PaidAt.In(now.Location()))]
		if !ok {
			continue
		}
		days[i].Total = days[i].Total.Add(p.Amount)
		days[i].Payments++
	}
	return days, nil
}

// PeakHours counts permitted check-ins of the last PeakHoursDays days by
// hour of day, for each hour from FirstHour to LastHour inclusive.
// Check-ins outside those hours are left out.
func (s *Service) PeakHours(ctx context.Context) ([]HourCount, error) {
	now := s.clock.Now()
	from := core.StartOfDay(now).AddDate(0, 0, -(PeakHoursDays - 1))
	to := core.StartOfDay(now).AddDate(0, 0, 1).Add(-time.Nanosecond)

	rows, err := s.store.ListAttendance(ctx, core.AttendanceFilter{From: &from, To: &to, PermittedOnly: true})
	if err != nil {
		return nil, err
	}

	hours := make([]HourCount, 0, LastHour-FirstHour+1)
	for h := FirstHour; h <= LastHour; h++ {
		hours = append(hours, HourCount{Hour: h})
	}
	for _, a := range rows {
		h := a.At.In(now.Location()).Hour()
		if h < FirstHour || h > LastHour {
			continue
		}
		hours[h-FirstHour].CheckIns++
	}
	return hours, nil
}

// LowStock lists active products at or below their restock threshold.
func (s *Service) LowStock(ctx context.Context) ([]core.Product, error) {
	products, err := s.store.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}
	var low []core.Product
	for _, p := range products {
		if p.LowStock() {
			low = append(low, p)
		}
	}
	return low, nil
}
