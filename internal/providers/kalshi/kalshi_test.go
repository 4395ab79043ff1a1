package kalshi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSnapshotsDerivesYesNoFromBidAskMid(t *testing.T) {
	a := New(Config{})
	ts := time.Now().UTC().Truncate(time.Minute)

	m := rawMarket{
		Ticker:    "BTC-100K",
		Title:     "Will BTC top $100k this year?",
		Category:  "Crypto",
		Status:    "open",
		YesBid:    json.Number("40"),
		YesAsk:    json.Number("44"),
		Volume24h: json.Number("12000"),
		Liquidity: json.Number("50000"),
	}

	snaps, err := a.toSnapshots(m, ts)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	yes, no := snaps[0], snaps[1]
	assert.Equal(t, "BTC-100K:yes", yes.OutcomeID)
	assert.InDelta(t, 0.42, yes.Probability, 1e-9)
	assert.Equal(t, "BTC-100K:no", no.OutcomeID)
	assert.InDelta(t, 0.58, no.Probability, 1e-9)
	require.NotNil(t, yes.SpreadPp)
	assert.InDelta(t, 4.0, *yes.SpreadPp, 1e-9)
	assert.Equal(t, "crypto", string(yes.NormalizedCategory))
}

func TestToSnapshotsFallsBackToLastPriceWhenQuoteSentinel(t *testing.T) {
	a := New(Config{})
	m := rawMarket{
		Ticker:    "ELECTION-X",
		Title:     "Will X win?",
		YesBid:    json.Number("0"),
		YesAsk:    json.Number("100"),
		LastPrice: json.Number("63"),
	}

	snaps, err := a.toSnapshots(m, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 0.63, snaps[0].Probability, 1e-9)
	assert.Nil(t, snaps[0].SpreadPp)
}

func TestToSnapshotsRejectsMissingTickerAndNoUsableQuote(t *testing.T) {
	a := New(Config{})

	_, err := a.toSnapshots(rawMarket{Title: "no ticker"}, time.Now())
	assert.Error(t, err)

	_, err = a.toSnapshots(rawMarket{Ticker: "X"}, time.Now())
	assert.Error(t, err)
}

func TestComboMetadataSummarizesLongCommaTitles(t *testing.T) {
	a := New(Config{})
	title := "Yes Team A wins in regulation/No Team A loses or draws in regulation, Extra padding text to exceed eighty characters total length requirement"
	m := rawMarket{Ticker: "COMBO-1", Title: title}

	summary, meta := a.comboMetadata(m)
	assert.Contains(t, summary, "legs")
	legs, ok := meta["legs"].([]string)
	require.True(t, ok)
	assert.Len(t, legs, 2)
}

func TestComboMetadataLeavesSimpleTitlesUnchanged(t *testing.T) {
	a := New(Config{})
	m := rawMarket{Ticker: "SIMPLE-1", Title: "Will it rain tomorrow?"}

	summary, meta := a.comboMetadata(m)
	assert.Equal(t, "Will it rain tomorrow?", summary)
	assert.NotContains(t, meta, "legs")
}

func TestEnabledReflectsAPIKeyPresence(t *testing.T) {
	assert.False(t, New(Config{}).Enabled())
	assert.True(t, New(Config{APIKey: "key"}).Enabled())
}
