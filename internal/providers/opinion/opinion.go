// Package opinion implements the rate-limited REST provider variant of
// C1: paginated listing, a process-scoped single-writer token bucket
// pacing requests strictly below the documented rate, and bounded
// exponential backoff on 429 (spec.md §4.1, §9).
package opinion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/predictradar/signalscan/internal/logging"
	"github.com/predictradar/signalscan/internal/model"
	"github.com/predictradar/signalscan/internal/providers"
)

const (
	baseURL     = "https://api.opinion.trade/v1"
	ratePerSec  = 14 // strictly below Opinion's documented ceiling
	pageSize    = 200
	maxRetries  = 4
)

// Adapter is the Opinion-style rate-limited REST provider. The limiter
// is process-scoped and single-writer: it must not leak across adapter
// instances (spec.md §9).
type Adapter struct {
	httpClient *http.Client
	apiKey     string
	enabled    bool
	limiter    *rate.Limiter
}

// Config configures the adapter.
type Config struct {
	APIKey         string
	RequestTimeout time.Duration
}

// New builds an Opinion adapter.
func New(cfg Config) *Adapter {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	transport := providers.NewBreakerTransport("opinion", http.DefaultTransport)
	return &Adapter{
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		apiKey:     cfg.APIKey,
		enabled:    cfg.APIKey != "",
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}
}

func (a *Adapter) Name() model.Provider { return model.ProviderOpinion }
func (a *Adapter) Enabled() bool        { return a.enabled }

type page struct {
	Markets []rawMarket `json:"markets"`
	Cursor  string      `json:"next_cursor"`
}

type rawMarket struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Category  string       `json:"category"`
	Status    string       `json:"status"`
	Binary    bool         `json:"binary"`
	Volume24h json.Number  `json:"volume_24h"`
	Outcomes  []rawOutcome `json:"outcomes"`
}

type rawOutcome struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Yes   json.Number `json:"yes_price"`
	Bid   json.Number `json:"bid"`
	Ask   json.Number `json:"ask"`
	Depth json.Number `json:"liquidity"`
}

// FetchSnapshots implements providers.Adapter.
func (a *Adapter) FetchSnapshots(ctx context.Context, tsMinute time.Time) ([]providers.Snapshot, error) {
	log := logging.Component("provider.opinion")

	markets, err := a.listAllMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	var snapshots []providers.Snapshot
	for _, m := range markets {
		snaps, err := a.toSnapshots(m, tsMinute)
		if err != nil {
			log.Warn().Err(err).Str("market_id", m.ID).Msg("skipping market with bad payload")
			continue
		}
		snapshots = append(snapshots, snaps...)
	}
	return snapshots, nil
}

// listAllMarkets paginates until an empty or short page is returned.
func (a *Adapter) listAllMarkets(ctx context.Context) ([]rawMarket, error) {
	var all []rawMarket
	cursor := ""
	for {
		p, err := a.fetchPage(ctx, cursor)
		if err != nil {
			return all, err
		}
		all = append(all, p.Markets...)
		if len(p.Markets) < pageSize || p.Cursor == "" {
			break
		}
		cursor = p.Cursor
	}
	return all, nil
}

func (a *Adapter) fetchPage(ctx context.Context, cursor string) (page, error) {
	var result page

	url := fmt.Sprintf("%s/markets?limit=%d", baseURL, pageSize)
	if cursor != "" {
		url += "&cursor=" + cursor
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return result, err
		}
		if a.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.apiKey)
		}

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return result, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			backoff := retryDelay(resp, attempt)
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return result, err
		}
		if resp.StatusCode != http.StatusOK {
			return result, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		if err := json.Unmarshal(body, &result); err != nil {
			return result, fmt.Errorf("decode page: %w", err)
		}
		return result, nil
	}
	return result, fmt.Errorf("rate limited after %d retries", maxRetries)
}

// retryDelay honors a server Retry-After header when present, else backs
// off exponentially with a 2^attempt second base.
func retryDelay(resp *http.Response, attempt int) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := time.ParseDuration(ra + "s"); err == nil {
			return secs
		}
	}
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func (a *Adapter) toSnapshots(m rawMarket, tsMinute time.Time) ([]providers.Snapshot, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	category := providers.NormalizeCategory(m.Category)
	volume, _ := numOrZero(m.Volume24h)

	base := providers.Snapshot{
		TsMinute:           tsMinute,
		MarketID:           m.ID,
		MarketTitle:        m.Title,
		RawCategory:        m.Category,
		NormalizedCategory: model.Category(category),
		MarketStatus:       m.Status,
		Volume24hUSD:       volume,
	}

	if m.Binary {
		if len(m.Outcomes) == 0 {
			return nil, fmt.Errorf("binary market with no outcomes")
		}
		yesOut := m.Outcomes[0]
		yesProb, ok := a.outcomeProbability(yesOut)
		if !ok {
			return nil, fmt.Errorf("no usable quote for %s", yesOut.ID)
		}
		depth, _ := numOrZero(yesOut.Depth)

		yes := base
		yes.OutcomeID = yesOut.ID
		yes.OutcomeLabel = "Yes"
		yes.Probability = yesProb
		yes.LiquidityUSD = depth
		yes.SpreadPp = spreadFor(yesOut)

		no := base
		no.OutcomeID = yesOut.ID + ":no"
		no.OutcomeLabel = "No"
		no.Probability = model.Clamp01(1 - yesProb)
		no.LiquidityUSD = depth
		no.SpreadPp = spreadFor(yesOut)

		return []providers.Snapshot{yes, no}, nil
	}

	snapshots := make([]providers.Snapshot, 0, len(m.Outcomes))
	for _, o := range m.Outcomes {
		prob, ok := a.outcomeProbability(o)
		if !ok {
			continue
		}
		depth, _ := numOrZero(o.Depth)
		snap := base
		snap.OutcomeID = o.ID
		snap.OutcomeLabel = o.Name
		snap.Probability = prob
		snap.LiquidityUSD = depth
		snap.SpreadPp = spreadFor(o)
		snapshots = append(snapshots, snap)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("no usable outcomes")
	}
	return snapshots, nil
}

func (a *Adapter) outcomeProbability(o rawOutcome) (float64, bool) {
	bid, haveBid := numOrZero(o.Bid)
	ask, haveAsk := numOrZero(o.Ask)
	if haveBid && haveAsk && !isSentinel(bid) && !isSentinel(ask) {
		return providers.NormalizeProbability((bid + ask) / 2), true
	}
	if yes, ok := numOrZero(o.Yes); ok {
		return providers.NormalizeProbability(yes), true
	}
	return 0, false
}

func spreadFor(o rawOutcome) *float64 {
	bid, haveBid := numOrZero(o.Bid)
	ask, haveAsk := numOrZero(o.Ask)
	return providers.SpreadFromBidAsk(
		providers.NormalizeProbability(bid), providers.NormalizeProbability(ask), haveBid, haveAsk)
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

func isSentinel(v float64) bool { return v == 0 || v == 100 }
