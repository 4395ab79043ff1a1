package providers

import (
	"strconv"
	"strings"
)

// NormalizeProbability canonicalizes a raw probability-like value into
// [0,1]. Values greater than 1 are assumed to be a percent (spec.md §4.1).
func NormalizeProbability(raw float64) float64 {
	p := raw
	if p > 1 {
		p = p / 100
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// SpreadFromBidAsk computes the percentage-point spread between best bid
// and ask, both already normalized to [0,1], treating the provider's
// absence-of-quote sentinels (0 and 1) as missing rather than a real
// zero spread (spec.md §4.1, §9). Callers whose raw quotes arrive on a
// different scale (e.g. cents) must run them through NormalizeProbability
// first.
func SpreadFromBidAsk(bid, ask float64, haveBid, haveAsk bool) *float64 {
	if !haveBid || !haveAsk {
		return nil
	}
	if isQuoteSentinel(bid) || isQuoteSentinel(ask) {
		return nil
	}
	spread := (ask - bid) * 100
	if spread < 0 {
		spread = -spread
	}
	return &spread
}

func isQuoteSentinel(v float64) bool {
	return v == 0 || v == 1
}

// NormalizeCategory maps a provider's raw free-text category into the
// fixed set used by the classifier and the read API filters.
func NormalizeCategory(raw string) string {
	r := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(r, "crypto") || strings.Contains(r, "bitcoin") || strings.Contains(r, "btc") || strings.Contains(r, "eth"):
		return "crypto"
	case strings.Contains(r, "politic") || strings.Contains(r, "election"):
		return "politics"
	case strings.Contains(r, "macro") || strings.Contains(r, "fed") || strings.Contains(r, "inflation") || strings.Contains(r, "gdp"):
		return "macro"
	case strings.Contains(r, "polic") || strings.Contains(r, "regulat") || strings.Contains(r, "law"):
		return "policy"
	case strings.Contains(r, "sport") || strings.Contains(r, "nfl") || strings.Contains(r, "nba") || strings.Contains(r, "soccer"):
		return "sports"
	default:
		return "other"
	}
}

// ComboSummary renders a short combo-market display title, "head (+N legs)",
// preserving the full leg list in metadata (spec.md §4.1, §9).
func ComboSummary(head string, legCount int) string {
	if legCount <= 1 {
		return head
	}
	return head + " (+" + strconv.Itoa(legCount-1) + " legs)"
}
