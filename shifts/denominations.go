package shifts

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/frontdesk/core"
)

// Bills and Coins are the denominations offered on the cash count screen.
var (
	Bills = []string{"1000", "500", "200", "100", "50", "20"}
	Coins = []string{"10", "5", "2", "1", "0.5"}
)

// Breakdown is a closing cash count: denomination value -> number of pieces.
type Breakdown map[string]int

// Total returns the sum of denomination x count. Keys must be positive
// decimal values and counts must not be negative.
func (b Breakdown) Total() (decimal.Decimal, error) {
	total := decimal.Zero
	for _, key := range b.keys() {
		count := b[key]
		value, err := decimal.NewFromString(key)
		if err != nil || !value.IsPositive() {
			return decimal.Zero, core.Invalid("breakdown", fmt.Sprintf("denomination %q is not a positive amount", key))
		}
		if count < 0 {
			return decimal.Zero, core.Invalid("breakdown", fmt.Sprintf("negative count for %s", key))
		}
		total = total.Add(value.Mul(decimal.NewFromInt(int64(count))))
	}
	return total, nil
}

// Normalize rewrites keys in canonical form ("500.00" -> "500") and drops
// zero counts, merging keys that name the same value.
func (b Breakdown) Normalize() (Breakdown, error) {
	if _, err := b.Total(); err != nil {
		return nil, err
	}
	out := make(Breakdown, len(b))
	for key, count := range b {
		if count == 0 {
			continue
		}
		value := decimal.RequireFromString(key)
		out[value.String()] += count
	}
	return out, nil
}

func (b Breakdown) keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
