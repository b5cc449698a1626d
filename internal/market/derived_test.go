package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

func lvl(price string, qty int64) domain.BookLevel {
	return domain.BookLevel{Price: decimal.RequireFromString(price), Quantity: qty, OrderCount: 1}
}

func TestSummarizeScenario(t *testing.T) {
	snap := Summarize(domain.BookSnapshot{
		Bids: []domain.BookLevel{lvl("100.00", 50), lvl("99.50", 30)},
		Asks: []domain.BookLevel{lvl("100.50", 20)},
	})

	require.True(t, snap.BestBid.Valid)
	require.True(t, snap.BestAsk.Valid)
	require.True(t, snap.Spread.Valid)
	assert.True(t, snap.BestBid.Decimal.Equal(decimal.RequireFromString("100")))
	assert.True(t, snap.BestAsk.Decimal.Equal(decimal.RequireFromString("100.5")))
	assert.True(t, snap.Spread.Decimal.Equal(decimal.RequireFromString("0.50")))
	assert.Equal(t, int64(50), DepthNormalization(snap.Bids, snap.Asks))
	assert.False(t, Crossed(snap.BestBid, snap.BestAsk))

	mid := MidPrice(snap.BestBid, snap.BestAsk)
	require.True(t, mid.Valid)
	assert.True(t, mid.Decimal.Equal(decimal.RequireFromString("100.25")))
}

func TestEmptySideIsUndefined(t *testing.T) {
	snap := Summarize(domain.BookSnapshot{
		Bids: []domain.BookLevel{lvl("10", 5)},
	})

	assert.True(t, snap.BestBid.Valid)
	assert.False(t, snap.BestAsk.Valid)
	assert.False(t, snap.Spread.Valid)
	assert.False(t, MidPrice(snap.BestBid, snap.BestAsk).Valid)
	assert.False(t, Crossed(snap.BestBid, snap.BestAsk))
}

func TestZeroSpreadIsDefined(t *testing.T) {
	bid := decimal.NewNullDecimal(decimal.RequireFromString("10"))
	ask := decimal.NewNullDecimal(decimal.RequireFromString("10"))

	spread := Spread(bid, ask)
	require.True(t, spread.Valid)
	assert.True(t, spread.Decimal.IsZero())
}

func TestCrossedBookKeepsNegativeSpread(t *testing.T) {
	bid := decimal.NewNullDecimal(decimal.RequireFromString("101"))
	ask := decimal.NewNullDecimal(decimal.RequireFromString("100"))

	assert.True(t, Crossed(bid, ask))
	spread := Spread(bid, ask)
	require.True(t, spread.Valid)
	assert.True(t, spread.Decimal.Equal(decimal.NewFromInt(-1)))
}

func TestDepthNormalizationFloor(t *testing.T) {
	assert.Equal(t, int64(1), DepthNormalization(nil, nil))
	assert.Equal(t, int64(1), DepthNormalization([]domain.BookLevel{lvl("1", 0)}, nil))
	assert.Equal(t, int64(70), DepthNormalization([]domain.BookLevel{lvl("1", 3)}, []domain.BookLevel{lvl("2", 70)}))
}

func TestBarWidth(t *testing.T) {
	tests := []struct {
		qty, norm int64
		want      string
	}{
		{50, 50, "100"},
		{30, 50, "60"},
		{0, 50, "0"},
		{1, 3, "33.33"},
		{5, 0, "100"},
	}
	for _, tt := range tests {
		got := BarWidth(tt.qty, tt.norm)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "BarWidth(%d,%d) = %s", tt.qty, tt.norm, got)
	}
}

func TestSpreadBps(t *testing.T) {
	bid := decimal.NewNullDecimal(decimal.RequireFromString("99"))
	ask := decimal.NewNullDecimal(decimal.RequireFromString("101"))

	bps := SpreadBps(bid, ask)
	require.True(t, bps.Valid)
	assert.True(t, bps.Decimal.Equal(decimal.NewFromInt(200)))
	assert.False(t, SpreadBps(bid, decimal.NullDecimal{}).Valid)
}
