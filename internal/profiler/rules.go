package profiler

import (
	"regexp"
	"strings"

	"github.com/predictradar/signalscan/internal/model"
)

var (
	cryptoKeyword  = regexp.MustCompile(`\b(btc|eth|sol|xrp|doge|bitcoin|ethereum|solana|crypto|token|coin)\b`)
	priceAnchorKw  = regexp.MustCompile(`\babove\b|\bbelow\b|\bover\b|\bunder\b|at least|>=|<=|\$`)
	digitPattern   = regexp.MustCompile(`[0-9]`)
	liveScoreKw    = regexp.MustCompile(`\bvs\.?\b| beat | defeat |moneyline|point spread|over/under|final score|halftime|in-play|live odds`)
	teamNewsKw     = regexp.MustCompile(`injury|injured|traded|trade request|suspended|suspension|benched|signs with|coaching change|fired|retire`)
	macroKw        = regexp.MustCompile(`\bfed\b|fomc|interest rate|\bcpi\b|jobs report|nonfarm|\bgdp\b|inflation print|rate (hike|cut)|unemployment rate`)
	cryptoNewsKw   = regexp.MustCompile(`hack|exploit|rug pull|sec lawsuit|sec charges|delisting|bankruptcy|outage|depeg`)
	policyKw       = regexp.MustCompile(`supreme court|congress|senate|executive order|regulation|bill pass|sec v\.|lawsuit ruling|veto|regulatory`)
)

// contextCrypto reports whether category or text implies a crypto context.
func contextCrypto(category model.Category, text string) bool {
	return category == model.CategoryCrypto || cryptoKeyword.MatchString(text)
}

// contextSports reports whether category implies a sports context.
func contextSports(category model.Category) bool {
	return category == model.CategorySports
}

// matchHardRules applies the two highest-precision hard rules
// (spec.md §4.3 step 2). Only these two anchor types are ever produced
// by a hard rule; everything else waits for the ML step or the
// fallback ladder.
func matchHardRules(category model.Category, text string) (model.AnchorType, float64, bool) {
	lower := strings.ToLower(text)

	if contextCrypto(category, lower) && priceAnchorKw.MatchString(lower) && digitPattern.MatchString(lower) {
		return model.AnchorSpotPrice, 0.95, true
	}

	if contextSports(category) && liveScoreKw.MatchString(lower) && !teamNewsKw.MatchString(lower) {
		return model.AnchorLiveScore, 0.95, true
	}

	return "", 0, false
}

// mlPredictionRejected reports whether an ML verdict of spot/live-score
// should be discarded because the surrounding context doesn't support
// it (spec.md §4.3 step 3's reject rule).
func mlPredictionRejected(anchorType model.AnchorType, category model.Category, text string) bool {
	lower := strings.ToLower(text)
	switch anchorType {
	case model.AnchorSpotPrice:
		return !contextCrypto(category, lower)
	case model.AnchorLiveScore:
		return !contextSports(category)
	default:
		return false
	}
}

// fallbackLadder is step 4: the first matching rule wins (spec.md §4.3).
func fallbackLadder(category model.Category, text string) (model.AnchorType, float64, bool) {
	lower := strings.ToLower(text)

	if macroKw.MatchString(lower) {
		return model.AnchorScheduledMacro, 0.8, true
	}
	if contextCrypto(category, lower) && cryptoNewsKw.MatchString(lower) && !liveScoreKw.MatchString(lower) {
		return model.AnchorCryptoNews, 0.8, true
	}
	if contextSports(category) && teamNewsKw.MatchString(lower) {
		return model.AnchorSportsTeamNews, 0.8, true
	}
	if policyKw.MatchString(lower) {
		return model.AnchorPolicyDecision, 0.65, true
	}
	return "", 0, false
}
