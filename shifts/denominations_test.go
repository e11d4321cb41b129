package shifts

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/frontdesk/core"
)

func TestBreakdown_Total(t *testing.T) {
	b := Breakdown{"500": 1, "20": 2, "0.5": 3, "1": 0}

	total, err := b.Total()

	require.NoError(t, err)
	assert.Equal(t, "541.50", total.StringFixed(2))
}

func TestBreakdown_RejectsBadEntries(t *testing.T) {
	_, err := Breakdown{"abc": 1}.Total()
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = Breakdown{"-20": 1}.Total()
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = Breakdown{"20": -1}.Total()
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestBreakdown_Normalize(t *testing.T) {
	n, err := Breakdown{"500.00": 1, "500": 2, "0.50": 4, "10": 0}.Normalize()

	require.NoError(t, err)
	assert.Equal(t, Breakdown{"500": 3, "0.5": 4}, n)

	total, _ := n.Total()
	assert.True(t, total.Equal(decimal.NewFromInt(1502)))
}

func TestDenominationLists_AreValid(t *testing.T) {
	all := Breakdown{}
	for _, d := range append(append([]string{}, Bills...), Coins...) {
		all[d] = 1
	}
	_, err := all.Total()
	assert.NoError(t, err)
}
