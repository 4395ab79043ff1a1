package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBestLevelPicksHighestBidAndLowestAsk(t *testing.T) {
	bids := []level{{Price: json.Number("0.40")}, {Price: json.Number("0.44")}, {Price: json.Number("0.38")}}
	asks := []level{{Price: json.Number("0.48")}, {Price: json.Number("0.46")}, {Price: json.Number("0.50")}}

	bestBid, ok := bestLevel(bids, true)
	require.True(t, ok)
	assert.InDelta(t, 0.44, bestBid, 1e-9)

	bestAsk, ok := bestLevel(asks, false)
	require.True(t, ok)
	assert.InDelta(t, 0.46, bestAsk, 1e-9)
}

func TestBestLevelEmptyReturnsFalse(t *testing.T) {
	_, ok := bestLevel(nil, true)
	assert.False(t, ok)
}

func TestSumDepthMultipliesPriceBySize(t *testing.T) {
	levels := []level{
		{Price: json.Number("0.5"), Size: json.Number("100")},
		{Price: json.Number("0.4"), Size: json.Number("50")},
	}
	assert.InDelta(t, 70.0, sumDepth(levels), 1e-9)
}

func TestSumDepthSkipsUnparseableLevels(t *testing.T) {
	levels := []level{{Price: json.Number("bad"), Size: json.Number("100")}}
	assert.Equal(t, 0.0, sumDepth(levels))
}

func TestEnabledReflectsAPIKeyPresence(t *testing.T) {
	assert.False(t, New(Config{}).Enabled())
	assert.True(t, New(Config{APIKey: "key"}).Enabled())
}

func TestNewAppliesDefaultConcurrencyWhenUnset(t *testing.T) {
	a := New(Config{})
	assert.Equal(t, defaultConcurrency, a.concurrency)

	custom := New(Config{Concurrency: 4})
	assert.Equal(t, 4, custom.concurrency)
}
