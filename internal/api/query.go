package api

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/predictradar/signalscan/internal/model"
)

var defaultProviders = []model.Provider{model.ProviderPolymarket, model.ProviderKalshi}

const (
	defaultMinLiquidity = 5000.0
	defaultMaxSpreadPp  = 15.0
	defaultPageSize     = 50
	minPageSize         = 10
	maxPageSize         = 100
)

// moversQuery is the parsed, defaulted form of the movers endpoint's
// query parameters (spec.md §4.9).
type moversQuery struct {
	providers           []model.Provider
	category            string
	tab                 string
	sortWindow          model.Window
	sort                string
	includeLowLiquidity bool
	minLiquidity        float64
	maxSpread           float64
	page                int
	pageSize            int
}

func parseMoversQuery(r *http.Request) moversQuery {
	q := r.URL.Query()

	providers := parseProviders(q.Get("providers"))

	category := strings.ToLower(strings.TrimSpace(q.Get("category")))
	if category == "" {
		category = "all"
	}

	tab := strings.ToLower(strings.TrimSpace(q.Get("tab")))
	switch tab {
	case "opaque", "exogenous":
	default:
		tab = "all"
	}

	sortWindow := model.Window(q.Get("sortWindow"))
	if !sortWindow.Valid() {
		sortWindow = model.Window1h
	}

	sortDir := strings.ToLower(strings.TrimSpace(q.Get("sort")))
	if sortDir != "asc" {
		sortDir = "desc"
	}

	includeLow := parseBool(q.Get("includeLowLiquidity"))

	minLiquidity := defaultMinLiquidity
	if v, err := strconv.ParseFloat(q.Get("minLiquidity"), 64); err == nil {
		minLiquidity = v
	}

	maxSpread := defaultMaxSpreadPp
	if v, err := strconv.ParseFloat(q.Get("maxSpread"), 64); err == nil {
		maxSpread = v
	}

	page := 1
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v >= 1 {
		page = v
	}

	pageSize := defaultPageSize
	if v, err := strconv.Atoi(q.Get("pageSize")); err == nil {
		pageSize = clampInt(v, minPageSize, maxPageSize)
	}

	return moversQuery{
		providers: providers, category: category, tab: tab,
		sortWindow: sortWindow, sort: sortDir,
		includeLowLiquidity: includeLow, minLiquidity: minLiquidity, maxSpread: maxSpread,
		page: page, pageSize: pageSize,
	}
}

func parseProviders(raw string) []model.Provider {
	if raw == "" {
		return defaultProviders
	}
	var out []model.Provider
	for _, part := range strings.Split(raw, ",") {
		switch model.Provider(strings.ToLower(strings.TrimSpace(part))) {
		case model.ProviderKalshi:
			out = append(out, model.ProviderKalshi)
		case model.ProviderPolymarket:
			out = append(out, model.ProviderPolymarket)
		case model.ProviderOpinion:
			out = append(out, model.ProviderOpinion)
		}
	}
	if len(out) == 0 {
		return defaultProviders
	}
	return out
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// marketGroup accumulates outcomeRecords for one market keyed by provider
// and market ID, and resolves the lead outcome for ranking.
type marketGroup struct {
	provider    model.Provider
	marketID    string
	marketTitle string
	category    model.Category
	marketMeta  map[string]any
	tsMinute    time.Time
	outcomes    []outcomeRecord
}

// outcomeRecord is one outcome row joined from deltas, markets,
// outcomes, snapshots and classifications at the resolved tick.
type outcomeRecord struct {
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

func groupByMarket(records []outcomeQueryRow) []*marketGroup {
	index := make(map[string]*marketGroup)
	var order []string

	for _, r := range records {
		key := string(r.provider) + ":" + r.marketID
		g, ok := index[key]
		if !ok {
			g = &marketGroup{
				provider: r.provider, marketID: r.marketID,
				marketTitle: r.marketTitle, category: r.category, marketMeta: r.marketMeta,
				tsMinute: r.tsMinute,
			}
			index[key] = g
			order = append(order, key)
		}
		g.outcomes = append(g.outcomes, outcomeRecord{
			outcomeID: r.outcomeID, outcomeLabel: r.outcomeLabel, probability: r.probability,
			spreadPp: r.spreadPp, volume: r.volume, liquidity: r.liquidity,
			deltas: r.deltas, label: r.label, reasonTags: r.reasonTags,
		})
	}

	groups := make([]*marketGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, index[key])
	}
	return groups
}

// leadIndex returns the index within g.outcomes of the lead outcome: the
// one with the most extreme delta[w] under dir, NULLs sorted last
// (spec.md §4.9 step 2).
func leadIndex(g *marketGroup, w model.Window, dir string) int {
	best := -1
	var bestVal float64
	for i, o := range g.outcomes {
		dv := o.deltas[w]
		if dv == nil {
			continue
		}
		if best == -1 || better(*dv, bestVal, dir) {
			best, bestVal = i, *dv
		}
	}
	if best == -1 {
		return 0
	}
	return best
}

func better(candidate, current float64, dir string) bool {
	if dir == "asc" {
		return candidate < current
	}
	return candidate > current
}

// sortGroups orders market groups by their lead outcome's delta[w],
// NULLs last, per dir.
func sortGroups(groups []*marketGroup, w model.Window, dir string) {
	sort.SliceStable(groups, func(i, j int) bool {
		li := groups[i].outcomes[leadIndex(groups[i], w, dir)].deltas[w]
		lj := groups[j].outcomes[leadIndex(groups[j], w, dir)].deltas[w]
		if li == nil && lj == nil {
			return false
		}
		if li == nil {
			return false
		}
		if lj == nil {
			return true
		}
		if dir == "asc" {
			return *li < *lj
		}
		return *li > *lj
	})
}

// sortOutcomesWithinMarket orders a market's outcomes by |delta[w]| desc,
// NULLs last (spec.md §4.9 step 5).
func sortOutcomesWithinMarket(outcomes []outcomeRecord, w model.Window) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		di, dj := outcomes[i].deltas[w], outcomes[j].deltas[w]
		if di == nil && dj == nil {
			return false
		}
		if di == nil {
			return false
		}
		if dj == nil {
			return true
		}
		return math.Abs(*di) > math.Abs(*dj)
	})
}

func totalPages(totalRows, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(totalRows) / float64(pageSize)))
}

func paginate(groups []*marketGroup, page, pageSize int) []*marketGroup {
	start := (page - 1) * pageSize
	if start >= len(groups) {
		return nil
	}
	end := start + pageSize
	if end > len(groups) {
		end = len(groups)
	}
	return groups[start:end]
}
