package api

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictradar/signalscan/internal/model"
)

func mustRequest(t *testing.T, rawQuery string) *http.Request {
	t.Helper()
	u := &url.URL{Path: "/v1/movers", RawQuery: rawQuery}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	require.NoError(t, err)
	return req
}

func TestParseMoversQueryDefaults(t *testing.T) {
	q := parseMoversQuery(mustRequest(t, ""))
	assert.Equal(t, defaultProviders, q.providers)
	assert.Equal(t, "all", q.category)
	assert.Equal(t, "all", q.tab)
	assert.Equal(t, model.Window1h, q.sortWindow)
	assert.Equal(t, "desc", q.sort)
	assert.False(t, q.includeLowLiquidity)
	assert.Equal(t, defaultMinLiquidity, q.minLiquidity)
	assert.Equal(t, defaultMaxSpreadPp, q.maxSpread)
	assert.Equal(t, 1, q.page)
	assert.Equal(t, defaultPageSize, q.pageSize)
}

func TestParseMoversQueryInvalidProvidersFallsBack(t *testing.T) {
	q := parseMoversQuery(mustRequest(t, "providers=not-a-provider,also-bad"))
	assert.Equal(t, defaultProviders, q.providers)
}

func TestParseMoversQueryPageSizeClamped(t *testing.T) {
	q := parseMoversQuery(mustRequest(t, "pageSize=5"))
	assert.Equal(t, minPageSize, q.pageSize)

	q = parseMoversQuery(mustRequest(t, "pageSize=500"))
	assert.Equal(t, maxPageSize, q.pageSize)
}

func TestParseMoversQueryInvalidSortWindowFallsBack(t *testing.T) {
	q := parseMoversQuery(mustRequest(t, "sortWindow=3h"))
	assert.Equal(t, model.Window1h, q.sortWindow)
}

func TestParseMoversQueryTabRestrictedToKnownValues(t *testing.T) {
	q := parseMoversQuery(mustRequest(t, "tab=opaque"))
	assert.Equal(t, "opaque", q.tab)

	q = parseMoversQuery(mustRequest(t, "tab=bogus"))
	assert.Equal(t, "all", q.tab)
}

func fp(v float64) *float64 { return &v }

func TestLeadIndexPicksExtremeNonNullDelta(t *testing.T) {
	g := &marketGroup{outcomes: []outcomeRecord{
		{outcomeID: "a", deltas: map[model.Window]*float64{model.Window1h: fp(2)}},
		{outcomeID: "b", deltas: map[model.Window]*float64{model.Window1h: fp(9)}},
		{outcomeID: "c", deltas: map[model.Window]*float64{model.Window1h: nil}},
	}}
	idx := leadIndex(g, model.Window1h, "desc")
	assert.Equal(t, "b", g.outcomes[idx].outcomeID)

	idx = leadIndex(g, model.Window1h, "asc")
	assert.Equal(t, "a", g.outcomes[idx].outcomeID)
}

func TestSortGroupsPutsNullsLast(t *testing.T) {
	groups := []*marketGroup{
		{marketID: "null-market", outcomes: []outcomeRecord{{deltas: map[model.Window]*float64{model.Window1h: nil}}}},
		{marketID: "high", outcomes: []outcomeRecord{{deltas: map[model.Window]*float64{model.Window1h: fp(20)}}}},
		{marketID: "mid", outcomes: []outcomeRecord{{deltas: map[model.Window]*float64{model.Window1h: fp(5)}}}},
	}
	sortGroups(groups, model.Window1h, "desc")
	require.Len(t, groups, 3)
	assert.Equal(t, "high", groups[0].marketID)
	assert.Equal(t, "mid", groups[1].marketID)
	assert.Equal(t, "null-market", groups[2].marketID)
}

func TestSortOutcomesWithinMarketByAbsoluteDeltaDescending(t *testing.T) {
	outcomes := []outcomeRecord{
		{outcomeID: "small", deltas: map[model.Window]*float64{model.Window1h: fp(-3)}},
		{outcomeID: "big", deltas: map[model.Window]*float64{model.Window1h: fp(15)}},
		{outcomeID: "none", deltas: map[model.Window]*float64{model.Window1h: nil}},
	}
	sortOutcomesWithinMarket(outcomes, model.Window1h)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "big", outcomes[0].outcomeID)
	assert.Equal(t, "small", outcomes[1].outcomeID)
	assert.Equal(t, "none", outcomes[2].outcomeID)
}

func TestTotalPagesAndPaginateMatchSpecExample(t *testing.T) {
	groups := make([]*marketGroup, 125)
	for i := range groups {
		groups[i] = &marketGroup{marketID: string(rune('a' + i%26))}
	}
	assert.Equal(t, 3, totalPages(125, 50))

	page3 := paginate(groups, 3, 50)
	assert.Len(t, page3, 25)
}

func TestPaginateBeyondRangeReturnsEmpty(t *testing.T) {
	groups := []*marketGroup{{marketID: "only"}}
	assert.Empty(t, paginate(groups, 5, 50))
}
