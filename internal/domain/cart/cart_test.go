package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tableside/internal/domain/menu"
	"github.com/xenking/tableside/internal/domain/pricing"
	"github.com/xenking/tableside/internal/domain/tip"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func plainLine(id, price string, qty int) Line {
	return Line{
		ID:        id,
		Item:      menu.Item{ID: "item-" + id, Name: "Dish " + id, Price: d(price), Available: true},
		Selection: pricing.Selection{Quantity: qty},
	}
}

func TestComputeTotals_TenPercent(t *testing.T) {
	lines := []Line{plainLine("a", "50.00", 1), plainLine("b", "15.00", 2)}

	totals, err := ComputeTotals(lines, tip.Percent(10))

	require.NoError(t, err)
	assert.True(t, d("80.00").Equal(totals.Subtotal))
	assert.True(t, d("8.00").Equal(totals.Tip))
	assert.True(t, d("88.00").Equal(totals.Total))
	require.Len(t, totals.Lines, 2)
	assert.Equal(t, "a", totals.Lines[0].ID)
	assert.True(t, d("30.00").Equal(totals.Lines[1].LineTotal))
}

func TestComputeTotals_TipKinds(t *testing.T) {
	lines := []Line{plainLine("a", "100.00", 1)}

	tests := []struct {
		name  string
		spec  tip.Spec
		tip   string
		total string
	}{
		{name: "fifteen percent", spec: tip.Percent(15), tip: "15.00", total: "115.00"},
		{name: "custom seven", spec: tip.Custom(decimal.NewFromInt(7)), tip: "7.00", total: "107.00"},
		{name: "zero", spec: tip.None(), tip: "0", total: "100.00"},
		{name: "negative custom", spec: tip.Custom(decimal.NewFromInt(-3)), tip: "0", total: "100.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := ComputeTotals(lines, tt.spec)
			require.NoError(t, err)
			assert.True(t, d(tt.tip).Equal(totals.Tip), "tip %s", totals.Tip)
			assert.True(t, d(tt.total).Equal(totals.Total), "total %s", totals.Total)
		})
	}
}

func TestComputeTotals_Empty(t *testing.T) {
	totals, err := ComputeTotals(nil, tip.Percent(20))

	require.NoError(t, err)
	assert.True(t, totals.Total.IsZero())
	assert.Empty(t, totals.Lines)
}

func TestComputeTotals_InvalidTip(t *testing.T) {
	_, err := ComputeTotals([]Line{plainLine("a", "1", 1)}, tip.Spec{Kind: "bogus"})
	require.ErrorIs(t, err, tip.ErrInvalidTip)
}
