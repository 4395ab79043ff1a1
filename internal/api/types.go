package api

import (
	"time"

	"github.com/predictradar/signalscan/internal/model"
)

// OutcomeRow is one outcome's current quote plus its full per-window
// delta map (spec.md §4.9).
type OutcomeRow struct {
	OutcomeID    string                      `json:"outcomeId"`
	OutcomeLabel string                      `json:"outcomeLabel"`
	Probability  float64                     `json:"probability"`
	SpreadPp     *float64                    `json:"spreadPp"`
	Volume24hUSD float64                     `json:"volume24hUsd"`
	LiquidityUSD float64                     `json:"liquidityUsd"`
	Deltas       map[model.Window]*float64   `json:"deltas"`
}

// MarketRow groups a market with its outcomes; Label/ReasonTags/
// LeadOutcomeID reflect the lead outcome (spec.md §4.9).
type MarketRow struct {
	Provider           model.Provider `json:"provider"`
	MarketID           string         `json:"marketId"`
	MarketTitle        string         `json:"marketTitle"`
	NormalizedCategory model.Category `json:"normalizedCategory"`
	Label              model.Label    `json:"label"`
	ReasonTags         []string       `json:"reasonTags"`
	LeadOutcomeID      string         `json:"leadOutcomeId"`
	MarketMeta         map[string]any `json:"marketMeta"`
	Outcomes           []OutcomeRow   `json:"outcomes"`
	Timestamp          time.Time      `json:"timestamp"`
}

// Meta describes the pagination and sort state of one movers response.
type Meta struct {
	SortWindow model.Window `json:"sortWindow"`
	Sort       string       `json:"sort"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalRows  int          `json:"totalRows"`
	TotalPages int          `json:"totalPages"`
}

// MoversResponse is the top-level body of GET /v1/movers.
type MoversResponse struct {
	Data []MarketRow `json:"data"`
	Meta Meta        `json:"meta"`
}

type errorResponse struct {
	Error string `json:"error"`
}
