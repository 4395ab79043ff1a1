// Package api implements C9, the read-only HTTP surface over the
// latest tick's snapshots, deltas and classifications. Grounded on the
// teacher's internal/interfaces/http server: gorilla/mux routing, one
// JSON-content-type middleware, request logging, and a single opaque
// 5xx error body on internal failure.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictradar/signalscan/internal/model"
)

// outcomeQueryRow is one raw outcome join result at the resolved tick,
// before grouping by market.
type outcomeQueryRow struct {
	provider     model.Provider
	marketID     string
	marketTitle  string
	category     model.Category
	marketMeta   map[string]any
	tsMinute     time.Time
	outcomeID    string
	outcomeLabel string
	probability  float64
	spreadPp     *float64
	volume       float64
	liquidity    float64
	deltas       map[model.Window]*float64
	label        model.Label
	reasonTags   []string
}

func latestDeltaTick(ctx context.Context, db *sqlx.DB) (time.Time, error) {
	var t *time.Time
	err := db.QueryRowContext(ctx, `SELECT MAX(ts_minute) FROM deltas`).Scan(&t)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, nil
	}
	return *t, nil
}

func loadOutcomeRows(ctx context.Context, db *sqlx.DB, tsMinute time.Time, q moversQuery) ([]outcomeQueryRow, error) {
	args := []any{tsMinute}
	where := `d.ts_minute = $1`

	args = append(args, providersToStrings(q.providers))
	where += fmt.Sprintf(` AND m.provider = ANY($%d)`, len(args))

	if q.category != "all" {
		args = append(args, q.category)
		where += fmt.Sprintf(` AND m.normalized_category = $%d`, len(args))
	}

	switch q.tab {
	case "opaque":
		args = append(args, string(model.LabelOpaqueInfoSensitive))
		where += fmt.Sprintf(` AND c.label = $%d`, len(args))
	case "exogenous":
		args = append(args, string(model.LabelExogenousArbitrage))
		where += fmt.Sprintf(` AND c.label = $%d`, len(args))
	}

	if !q.includeLowLiquidity {
		args = append(args, q.minLiquidity, q.maxSpread)
		where += fmt.Sprintf(` AND s.liquidity_usd >= $%d AND (s.spread_pp IS NULL OR s.spread_pp <= $%d)`, len(args)-1, len(args))
	}

	query := fmt.Sprintf(`
		SELECT m.provider, m.market_id, m.title, m.normalized_category, m.metadata,
		       o.outcome_id, o.label,
		       s.probability, s.spread_pp, s.volume_24h_usd, s.liquidity_usd,
		       d.delta_1m, d.delta_5m, d.delta_10m, d.delta_30m, d.delta_1h, d.delta_6h, d.delta_12h, d.delta_24h,
		       c.label, c.reason_tags
		FROM deltas d
		JOIN markets m ON m.provider = d.provider AND m.market_id = d.market_id
		JOIN outcomes o ON o.provider = d.provider AND o.market_id = d.market_id AND o.outcome_id = d.outcome_id
		JOIN snapshots s ON s.ts_minute = d.ts_minute AND s.provider = d.provider
			AND s.market_id = d.market_id AND s.outcome_id = d.outcome_id
		LEFT JOIN classifications c ON c.ts_minute = d.ts_minute AND c.provider = d.provider
			AND c.market_id = d.market_id AND c.outcome_id = d.outcome_id
		WHERE %s`, where)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query movers: %w", err)
	}
	defer rows.Close()

	var out []outcomeQueryRow
	for rows.Next() {
		var r outcomeQueryRow
		var metaJSON []byte
		var category string
		var d1m, d5m, d10m, d30m, d1h, d6h, d12h, d24h *float64
		var label *string
		var tagsJSON []byte

		if err := rows.Scan(&r.provider, &r.marketID, &r.marketTitle, &category, &metaJSON,
			&r.outcomeID, &r.outcomeLabel,
			&r.probability, &r.spreadPp, &r.volume, &r.liquidity,
			&d1m, &d5m, &d10m, &d30m, &d1h, &d6h, &d12h, &d24h,
			&label, &tagsJSON); err != nil {
			return nil, fmt.Errorf("scan movers row: %w", err)
		}

		r.category = model.Category(category)
		r.tsMinute = tsMinute
		_ = json.Unmarshal(metaJSON, &r.marketMeta)
		r.deltas = map[model.Window]*float64{
			model.Window1m: d1m, model.Window5m: d5m, model.Window10m: d10m, model.Window30m: d30m,
			model.Window1h: d1h, model.Window6h: d6h, model.Window12h: d12h, model.Window24h: d24h,
		}
		if label != nil {
			r.label = model.Label(*label)
		}
		_ = json.Unmarshal(tagsJSON, &r.reasonTags)

		out = append(out, r)
	}
	return out, rows.Err()
}

func providersToStrings(ps []model.Provider) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// Movers handles GET /v1/movers (spec.md §4.9).
func (s *Server) Movers(w http.ResponseWriter, r *http.Request) {
	q := parseMoversQuery(r)
	ctx := r.Context()

	tsMinute, err := latestDeltaTick(ctx, s.db)
	if err != nil {
		s.writeError(w, err, "resolve latest tick")
		return
	}
	if tsMinute.IsZero() {
		writeJSON(w, http.StatusOK, MoversResponse{
			Data: []MarketRow{},
			Meta: Meta{SortWindow: q.sortWindow, Sort: q.sort, Page: q.page, PageSize: q.pageSize},
		})
		return
	}

	records, err := loadOutcomeRows(ctx, s.db, tsMinute, q)
	if err != nil {
		s.writeError(w, err, "load outcome rows")
		return
	}

	groups := groupByMarket(records)
	sortGroups(groups, q.sortWindow, q.sort)

	total := len(groups)
	page := paginate(groups, q.page, q.pageSize)

	data := make([]MarketRow, 0, len(page))
	for _, g := range page {
		sortOutcomesWithinMarket(g.outcomes, q.sortWindow)
		lead := g.outcomes[leadIndex(g, q.sortWindow, q.sort)]

		outcomes := make([]OutcomeRow, 0, len(g.outcomes))
		for _, o := range g.outcomes {
			outcomes = append(outcomes, OutcomeRow{
				OutcomeID: o.outcomeID, OutcomeLabel: o.outcomeLabel, Probability: o.probability,
				SpreadPp: o.spreadPp, Volume24hUSD: o.volume, LiquidityUSD: o.liquidity, Deltas: o.deltas,
			})
		}

		data = append(data, MarketRow{
			Provider: g.provider, MarketID: g.marketID, MarketTitle: g.marketTitle,
			NormalizedCategory: g.category, Label: lead.label, ReasonTags: lead.reasonTags,
			LeadOutcomeID: lead.outcomeID, MarketMeta: g.marketMeta, Outcomes: outcomes,
			Timestamp: g.tsMinute,
		})
	}

	writeJSON(w, http.StatusOK, MoversResponse{
		Data: data,
		Meta: Meta{
			SortWindow: q.sortWindow, Sort: q.sort, Page: q.page, PageSize: q.pageSize,
			TotalRows: total, TotalPages: totalPages(total, q.pageSize),
		},
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error, context string) {
	logging := s.log.With().Str("context", context).Logger()
	logging.Error().Err(err).Msg("movers request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to load movers."})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
