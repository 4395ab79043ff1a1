// Package kalshi implements the binary-quote provider variant of C1:
// one listing request, yes/no outcomes derived from bid/ask mid with
// combo-market detection, grounded on the teacher's kraken REST client
// (internal/providers/kraken/client.go) for the HTTP shape; a failed
// request is not retried within the cycle.
package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/predictradar/signalscan/internal/logging"
	"github.com/predictradar/signalscan/internal/model"
	"github.com/predictradar/signalscan/internal/providers"
)

const baseURL = "https://trading-api.kalshi.com/trade-api/v2"

var comboTitlePattern = regexp.MustCompile(`(?i)^yes\s+.+/\s*no\s+.+$`)

// Adapter is the Kalshi-style binary-quote provider.
type Adapter struct {
	httpClient *http.Client
	apiKey     string
	enabled    bool
}

// Config configures the adapter.
type Config struct {
	APIKey         string
	RequestTimeout time.Duration
}

// New builds a Kalshi adapter. Enabled() reports false when the API key
// is missing, per spec.md §4.1's provider-disablement rule.
func New(cfg Config) *Adapter {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	transport := providers.NewBreakerTransport("kalshi", http.DefaultTransport)
	return &Adapter{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		apiKey:     cfg.APIKey,
		enabled:    cfg.APIKey != "",
	}
}

func (a *Adapter) Name() model.Provider { return model.ProviderKalshi }
func (a *Adapter) Enabled() bool        { return a.enabled }

// marketListing is the subset of the Kalshi market-listing payload we use.
// Fields are decoded defensively: numeric fields sometimes arrive as
// strings, and optional fields may be absent (spec.md §6).
type marketListing struct {
	Markets []rawMarket `json:"markets"`
}

type rawMarket struct {
	Ticker         string          `json:"ticker"`
	Title          string          `json:"title"`
	Category       string          `json:"category"`
	Status         string          `json:"status"`
	EventTicker    string          `json:"event_ticker"`
	YesBid         json.Number     `json:"yes_bid"`
	YesAsk         json.Number     `json:"yes_ask"`
	LastPrice      json.Number     `json:"last_price"`
	Volume24h      json.Number     `json:"volume_24h"`
	Liquidity      json.Number     `json:"liquidity"`
	SelectedLegs   json.RawMessage `json:"selected_legs"`
}

// FetchSnapshots implements providers.Adapter.
func (a *Adapter) FetchSnapshots(ctx context.Context, tsMinute time.Time) ([]providers.Snapshot, error) {
	log := logging.Component("provider.kalshi")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/markets?status=open&limit=1000", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var listing marketListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}

	snapshots := make([]providers.Snapshot, 0, len(listing.Markets)*2)
	for _, m := range listing.Markets {
		snaps, err := a.toSnapshots(m, tsMinute)
		if err != nil {
			log.Warn().Err(err).Str("ticker", m.Ticker).Msg("skipping market with bad payload")
			continue
		}
		snapshots = append(snapshots, snaps...)
	}
	return snapshots, nil
}

func (a *Adapter) toSnapshots(m rawMarket, tsMinute time.Time) ([]providers.Snapshot, error) {
	if m.Ticker == "" {
		return nil, fmt.Errorf("missing ticker")
	}

	yesBid, haveBid := numOrZero(m.YesBid)
	yesAsk, haveAsk := numOrZero(m.YesAsk)
	last, haveLast := numOrZero(m.LastPrice)

	var yesProb float64
	switch {
	case haveBid && haveAsk && !sentinel(yesBid) && !sentinel(yesAsk):
		yesProb = (yesBid + yesAsk) / 2
	case haveLast:
		yesProb = last
	default:
		return nil, fmt.Errorf("no usable quote")
	}
	yesProb = providers.NormalizeProbability(yesProb)
	noProb := model.Clamp01(1 - yesProb)

	// Kalshi quotes bid/ask in cents (0-100); SpreadFromBidAsk expects the
	// [0,1] probability scale it multiplies back out to percentage points.
	spread := providers.SpreadFromBidAsk(
		providers.NormalizeProbability(yesBid), providers.NormalizeProbability(yesAsk), haveBid, haveAsk)
	volume, _ := numOrZero(m.Volume24h)
	liquidity, _ := numOrZero(m.Liquidity)

	title, metadata := a.comboMetadata(m)
	category := providers.NormalizeCategory(m.Category)

	base := providers.Snapshot{
		TsMinute:           tsMinute,
		MarketID:           m.Ticker,
		MarketTitle:        title,
		RawCategory:        m.Category,
		NormalizedCategory: model.Category(category),
		MarketStatus:       m.Status,
		MarketMetadata:     metadata,
		SpreadPp:           spread,
		Volume24hUSD:       volume,
		LiquidityUSD:       liquidity,
	}

	yes := base
	yes.OutcomeID = m.Ticker + ":yes"
	yes.OutcomeLabel = "Yes"
	yes.Probability = yesProb

	no := base
	no.OutcomeID = m.Ticker + ":no"
	no.OutcomeLabel = "No"
	no.Probability = noProb

	return []providers.Snapshot{yes, no}, nil
}

// comboMetadata detects combination markets heuristically (ticker shape,
// selected-legs field, or a long comma-delimited "yes .../no ..." title)
// and replaces the display title with a short summary, per spec.md §4.1/§9.
func (a *Adapter) comboMetadata(m rawMarket) (string, map[string]any) {
	meta := map[string]any{}
	if m.EventTicker != "" {
		meta["event_ticker"] = m.EventTicker
	}

	isCombo := len(m.SelectedLegs) > 2 // present and non-empty/"null"
	legs := strings.Split(m.Title, ",")
	if !isCombo && len(legs) > 1 && len(m.Title) > 80 && comboTitlePattern.MatchString(strings.TrimSpace(legs[0])) {
		isCombo = true
	}
	if !isCombo {
		return m.Title, meta
	}

	trimmedLegs := make([]string, 0, len(legs))
	for _, l := range legs {
		trimmedLegs = append(trimmedLegs, strings.TrimSpace(l))
	}
	meta["legs"] = trimmedLegs
	head := trimmedLegs[0]
	if len(head) > 60 {
		head = head[:60]
	}
	return providers.ComboSummary(head, len(trimmedLegs)), meta
}

func numOrZero(n json.Number) (float64, bool) {
	if n == "" {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

func sentinel(v float64) bool { return v == 0 || v == 100 || v == 1 }
