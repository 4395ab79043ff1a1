package anchor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictradar/signalscan/internal/model"
)

func TestSplitBucketStable(t *testing.T) {
	a := SplitBucket("kalshi:BTC-100K-DEC")
	b := SplitBucket("kalshi:BTC-100K-DEC")
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, 0)
	assert.Less(t, a, 10)
}

func TestTrainAndPredict(t *testing.T) {
	anchorTypes := []model.AnchorType{model.AnchorSpotPrice, model.AnchorLiveScore}

	var docs []Document
	for i := 0; i < 20; i++ {
		docs = append(docs, Document{
			ProviderMarketID: "kalshi:btc-" + string(rune('a'+i)),
			Tokens:           Tokenize("will bitcoin reach 100000 dollars"),
			AnchorType:       model.AnchorSpotPrice,
		})
		docs = append(docs, Document{
			ProviderMarketID: "kalshi:nba-" + string(rune('a'+i)),
			Tokens:           Tokenize("lakers vs celtics who wins the game"),
			AnchorType:       model.AnchorLiveScore,
		})
	}

	m := Train(docs, anchorTypes, DefaultTrainConfig())
	require.NotEmpty(t, m.Vocab)

	pred := m.Predict(Tokenize("will bitcoin reach 120000 dollars"))
	assert.Equal(t, model.AnchorSpotPrice, pred.AnchorType)
	assert.Greater(t, pred.Confidence, 0.5)

	pred2 := m.Predict(Tokenize("lakers vs warriors who wins tonight"))
	assert.Equal(t, model.AnchorLiveScore, pred2.AnchorType)
}

func TestTokenizeDropsStopwordsAndShortTokens(t *testing.T) {
	tokens := Tokenize("Will the Fed cut rates by 0.5 in 2026?")
	for _, tok := range tokens {
		assert.NotEqual(t, "the", tok)
		assert.NotEqual(t, "in", tok)
		assert.NotEqual(t, "0", tok)
		assert.NotEqual(t, "5", tok)
	}
}
