package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/predictradar/signalscan/internal/model"
	"github.com/predictradar/signalscan/internal/store"
)

func TestClassifyHardRuleSpotPrice(t *testing.T) {
	p := New("/nonexistent/model.json")
	profile := p.Classify(store.MarketText{
		Provider: model.ProviderKalshi, MarketID: "m1",
		Title: "Will BTC reach $100,000 by December?", Category: model.CategoryCrypto,
	})
	assert.Equal(t, model.AnchorSpotPrice, profile.AnchorType)
	assert.False(t, profile.InsiderPossible)
	assert.Equal(t, 0.95, profile.Confidence)
}

func TestClassifyHardRuleLiveScore(t *testing.T) {
	p := New("/nonexistent/model.json")
	profile := p.Classify(store.MarketText{
		Provider: model.ProviderPolymarket, MarketID: "m2",
		Title: "Lakers vs Celtics: who wins the game?", Category: model.CategorySports,
	})
	assert.Equal(t, model.AnchorLiveScore, profile.AnchorType)
	assert.False(t, profile.InsiderPossible)
}

func TestClassifyFallbackByCategory(t *testing.T) {
	p := New("/nonexistent/model.json")
	profile := p.Classify(store.MarketText{
		Provider: model.ProviderOpinion, MarketID: "m3",
		Title: "Will Congress pass the new housing regulation this session?", Category: model.CategoryPolicy,
	})
	assert.Equal(t, model.AnchorPolicyDecision, profile.AnchorType)
	assert.True(t, profile.InsiderPossible)
	assert.Equal(t, 0.65, profile.Confidence)
}

func TestClassifyOtherUnknown(t *testing.T) {
	p := New("/nonexistent/model.json")
	profile := p.Classify(store.MarketText{
		Provider: model.ProviderKalshi, MarketID: "m4",
		Title: "Will it happen before the deadline?", Category: model.CategoryOther,
	})
	assert.Equal(t, model.AnchorOtherUnknown, profile.AnchorType)
	assert.True(t, profile.InsiderPossible)
}

func TestClassifyUsesComboLegTextWhenSummaryTitleHidesIt(t *testing.T) {
	p := New("/nonexistent/model.json")
	profile := p.Classify(store.MarketText{
		Provider: model.ProviderKalshi, MarketID: "m5",
		Title: "Team A wins (+2 legs)", Category: model.CategoryOther,
		Metadata: map[string]any{
			"legs": []string{"Yes Team A wins", "No Team A loses", "Fed hikes rates in March"},
		},
	})
	assert.Equal(t, model.AnchorScheduledMacro, profile.AnchorType)
}

func TestClassifyToleratesJSONRoundTrippedLegSlice(t *testing.T) {
	p := New("/nonexistent/model.json")
	profile := p.Classify(store.MarketText{
		Provider: model.ProviderKalshi, MarketID: "m6",
		Title: "Team A wins (+2 legs)", Category: model.CategoryOther,
		Metadata: map[string]any{
			// map[string]any unmarshaled from JSON yields []any, not []string.
			"legs": []any{"Yes Team A wins", "No Team A loses", "Fed hikes rates in March"},
		},
	})
	assert.Equal(t, model.AnchorScheduledMacro, profile.AnchorType)
}

func TestModelVersionRulesOnlyWhenUnloaded(t *testing.T) {
	p := New("/nonexistent/model.json")
	assert.Equal(t, "rules-only", p.ModelVersion())
}
