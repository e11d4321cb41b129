/*
Package membership holds the rules about what a member has paid for:
how long a payment lasts, what a member's subscription status really is,
and how prepaid visit packs are spent.

PURPOSE (renewal.go):
  Computes the paid-through date produced by a payment.

RENEWAL RULE:
  Short plans (< 28 days) add exact days. Monthly-or-longer plans are
  counted in whole months and end the day before the same day-of-month
  of the last cycle, so a plan paid on the 8th never overlaps the next
  renewal on the 8th:

    2024-07-08 + 30 days  ->  2024-08-07
    2025-01-31 + 30 days  ->  2025-02-27   (Feb clamped to 28, minus one)
    2024-01-31 + 30 days  ->  2024-02-28   (leap year, 29 minus one)
    2024-07-08 +  7 days  ->  2024-07-15

SEE ALSO:
  - status.go: effective status from dates
  - visits.go: visit-pack ledger
*/
package membership

import (
	"math"
	"time"

	"github.com/warp/frontdesk/core"
)

// MonthlyThresholdDays is the shortest plan counted in months.
const MonthlyThresholdDays = 28

// ComputeExpiration returns the last valid day of a plan of durationDays
// bought on base. It is pure and depends only on its inputs.
func ComputeExpiration(base core.Date, durationDays int) core.Date {
	if durationDays < MonthlyThresholdDays {
		return base.AddDays(durationDays)
	}

	months := int(math.Round(float64(durationDays) / 30))
	result := AddMonthsClamped(base, months).AddDays(-1)

	// Degenerate month arithmetic must never shorten a paid plan to nothing.
	if !result.After(base) {
		return base.AddDays(durationDays)
	}
	return result
}

// AddMonthsClamped adds calendar months, keeping the day-of-month when
// possible and clamping to the end of shorter months.
func AddMonthsClamped(d core.Date, months int) core.Date {
	idx := int(d.Month) - 1 + months
	year := d.Year + floorDiv(idx, 12)
	month := time.Month(idx - floorDiv(idx, 12)*12 + 1)

	day := min(d.Day, core.DaysInMonth(year, month))
	return core.Date{Year: year, Month: month, Day: day}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
