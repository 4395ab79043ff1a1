// Package polymarket implements the order-book provider variant of C1:
// one market listing request, then per-token order books fetched in
// parallel with bounded concurrency K, grounded on the teacher's kraken
// client for HTTP shape and the gorilla/websocket dependency kept wired
// for a future streaming upgrade (spec.md §4.1; SPEC_FULL.md §4).
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/predictradar/signalscan/internal/logging"
	"github.com/predictradar/signalscan/internal/model"
	"github.com/predictradar/signalscan/internal/providers"
)

const (
	baseURL        = "https://clob.polymarket.com"
	defaultConcurrency = 16
	depthLevels        = 20
)

// Adapter is the Polymarket-style order-book provider.
type Adapter struct {
	httpClient  *http.Client
	apiKey      string
	enabled     bool
	concurrency int
}

// Config configures the adapter.
type Config struct {
	APIKey         string
	RequestTimeout time.Duration
	Concurrency    int
}

// New builds a Polymarket adapter.
func New(cfg Config) *Adapter {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	transport := providers.NewBreakerTransport("polymarket", http.DefaultTransport)
	return &Adapter{
		httpClient:  &http.Client{Timeout: timeout, Transport: transport},
		apiKey:      cfg.APIKey,
		enabled:     cfg.APIKey != "",
		concurrency: concurrency,
	}
}

func (a *Adapter) Name() model.Provider { return model.ProviderPolymarket }
func (a *Adapter) Enabled() bool        { return a.enabled }

type marketsResponse struct {
	Data []rawMarket `json:"data"`
}

type rawMarket struct {
	ConditionID string       `json:"condition_id"`
	Slug        string       `json:"market_slug"`
	Question    string       `json:"question"`
	Category    string       `json:"category"`
	Active      bool         `json:"active"`
	Closed      bool         `json:"closed"`
	Liquidity   json.Number  `json:"liquidity"`
	Tokens      []rawToken   `json:"tokens"`
}

type rawToken struct {
	TokenID string      `json:"token_id"`
	Outcome string      `json:"outcome"`
	Price   json.Number `json:"price"`
}

type orderBook struct {
	Bids []level `json:"bids"`
	Asks []level `json:"asks"`
}

type level struct {
	Price json.Number `json:"price"`
	Size  json.Number `json:"size"`
}

// FetchSnapshots implements providers.Adapter.
func (a *Adapter) FetchSnapshots(ctx context.Context, tsMinute time.Time) ([]providers.Snapshot, error) {
	log := logging.Component("provider.polymarket")

	markets, err := a.listMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	type job struct {
		market rawMarket
		token  rawToken
	}
	var jobs []job
	for _, m := range markets {
		if !m.Active || m.Closed {
			continue
		}
		for _, t := range m.Tokens {
			if t.TokenID == "" {
				continue
			}
			jobs = append(jobs, job{market: m, token: t})
		}
	}

	sem := make(chan struct{}, a.concurrency)
	var mu sync.Mutex
	var wg sync.WaitGroup
	snapshots := make([]providers.Snapshot, 0, len(jobs))

	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()

			snap, err := a.buildSnapshot(ctx, j.market, j.token, tsMinute)
			if err != nil {
				log.Warn().Err(err).Str("token", j.token.TokenID).Msg("skipping token with bad payload")
				return
			}
			mu.Lock()
			snapshots = append(snapshots, snap)
			mu.Unlock()
		}(j)
	}
	wg.Wait()

	return snapshots, nil
}

func (a *Adapter) listMarkets(ctx context.Context) ([]rawMarket, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/markets?limit=1000", nil)
	if err != nil {
		return nil, err
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var listing marketsResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return listing.Data, nil
}

func (a *Adapter) buildSnapshot(ctx context.Context, m rawMarket, t rawToken, tsMinute time.Time) (providers.Snapshot, error) {
	prob, err := t.Price.Float64()
	if err != nil {
		return providers.Snapshot{}, fmt.Errorf("bad price: %w", err)
	}
	prob = providers.NormalizeProbability(prob)

	liquidityUSD, _ := m.Liquidity.Float64()
	var spread *float64

	book, err := a.fetchOrderBook(ctx, t.TokenID)
	if err == nil && len(book.Bids) > 0 && len(book.Asks) > 0 {
		bestBid, _ := bestLevel(book.Bids, true)
		bestAsk, _ := bestLevel(book.Asks, false)
		spread = providers.SpreadFromBidAsk(bestBid, bestAsk, true, true)
		liquidityUSD = sumDepth(book.Bids) + sumDepth(book.Asks)
	}

	category := providers.NormalizeCategory(m.Category)

	return providers.Snapshot{
		TsMinute:           tsMinute,
		MarketID:           m.ConditionID,
		OutcomeID:          t.TokenID,
		OutcomeLabel:       t.Outcome,
		Probability:        prob,
		SpreadPp:           spread,
		LiquidityUSD:        liquidityUSD,
		MarketTitle:        m.Question,
		RawCategory:        m.Category,
		NormalizedCategory: model.Category(category),
		MarketMetadata:     map[string]any{"slug": m.Slug},
	}, nil
}

func (a *Adapter) fetchOrderBook(ctx context.Context, tokenID string) (orderBook, error) {
	var book orderBook
	url := fmt.Sprintf("%s/book?token_id=%s", baseURL, tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return book, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return book, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return book, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return book, err
	}
	if err := json.Unmarshal(body, &book); err != nil {
		return book, fmt.Errorf("decode book: %w", err)
	}

	// Bound to the top N levels on each side before summing depth.
	sort.SliceStable(book.Bids, func(i, j int) bool {
		pi, _ := book.Bids[i].Price.Float64()
		pj, _ := book.Bids[j].Price.Float64()
		return pi > pj
	})
	sort.SliceStable(book.Asks, func(i, j int) bool {
		pi, _ := book.Asks[i].Price.Float64()
		pj, _ := book.Asks[j].Price.Float64()
		return pi < pj
	})
	if len(book.Bids) > depthLevels {
		book.Bids = book.Bids[:depthLevels]
	}
	if len(book.Asks) > depthLevels {
		book.Asks = book.Asks[:depthLevels]
	}
	return book, nil
}

func bestLevel(levels []level, wantMax bool) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	sorted := append([]level(nil), levels...)
	sort.Slice(sorted, func(i, j int) bool {
		pi, _ := sorted[i].Price.Float64()
		pj, _ := sorted[j].Price.Float64()
		if wantMax {
			return pi > pj
		}
		return pi < pj
	})
	price, err := sorted[0].Price.Float64()
	if err != nil {
		return 0, false
	}
	return price, true
}

func sumDepth(levels []level) float64 {
	var total float64
	for _, l := range levels {
		price, _ := l.Price.Float64()
		size, _ := l.Size.Float64()
		total += price * size
	}
	return total
}

// Subscribe opens a websocket connection for future streaming
// order-book updates. Neither the minute cycle nor any test calls it.
func (a *Adapter) Subscribe(ctx context.Context, tokenIDs []string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "wss://ws-subscriptions-clob.polymarket.com/ws/market", nil)
	if err != nil {
		return nil, fmt.Errorf("dial polymarket ws: %w", err)
	}
	sub := map[string]any{"type": "market", "assets_ids": tokenIDs}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return conn, nil
}
