package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictradar/signalscan/internal/logging"
	"github.com/predictradar/signalscan/internal/model"
)

// Alerter implements runAlerts() (spec.md §4.7).
type Alerter struct {
	db          *sqlx.DB
	thresholds  Thresholds
	cooldown    time.Duration
	minLiquidity float64
	maxSpreadPp  float64
	selectionCap int
	dispatcher   Dispatcher
	state        *Cooldown
}

// Config configures an Alerter.
type Config struct {
	Thresholds       Thresholds
	CooldownMinutes  int
	MinLiquidityUSD  float64
	MaxSpreadPp      float64
	SelectionCap     int
}

// New builds an Alerter.
func New(db *sqlx.DB, dispatcher Dispatcher, state *Cooldown, cfg Config) *Alerter {
	thresholds := cfg.Thresholds
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	cap := cfg.SelectionCap
	if cap <= 0 {
		cap = 500
	}
	return &Alerter{
		db:           db,
		thresholds:   thresholds,
		cooldown:     time.Duration(cfg.CooldownMinutes) * time.Minute,
		minLiquidity: cfg.MinLiquidityUSD,
		maxSpreadPp:  cfg.MaxSpreadPp,
		selectionCap: cap,
		dispatcher:   dispatcher,
		state:        state,
	}
}

// candidate is one selected opaque-labeled outcome awaiting scoring.
type candidate struct {
	provider     model.Provider
	marketID     string
	outcomeID    string
	marketTitle  string
	outcomeLabel string
	probability  float64
	label        model.Label
	reasonTags   []string
	deltas       map[model.Window]*float64
}

// RunAlerts selects qualifying outcomes at the latest classification
// tick, picks each one's best-triggered window, and dispatches at most
// one message per eligible signature.
func (a *Alerter) RunAlerts(ctx context.Context) (int, error) {
	log := logging.Component("alert")

	var tsMinute time.Time
	if err := a.db.QueryRowContext(ctx, `SELECT MAX(ts_minute) FROM classifications`).Scan(&tsMinute); err != nil {
		return 0, fmt.Errorf("resolve latest classification tick: %w", err)
	}
	if tsMinute.IsZero() {
		return 0, nil
	}

	candidates, err := a.selectCandidates(ctx, tsMinute)
	if err != nil {
		return 0, err
	}

	var sent int
	now := time.Now().UTC()
	for _, c := range candidates {
		window, direction, score, ok := bestTriggeredWindow(c.deltas, a.thresholds)
		if !ok {
			continue
		}

		signature := model.AlertSignature(c.provider, c.marketID, c.outcomeID, window, direction)

		eligible, err := a.state.ShouldSend(ctx, signature, a.cooldown, now)
		if err != nil {
			log.Warn().Err(err).Str("signature", signature).Msg("cooldown check failed")
			continue
		}
		if !eligible {
			continue
		}

		body := formatMessage(c, window, direction, score, tsMinute)
		if err := a.dispatcher.Send(ctx, body); err != nil {
			log.Warn().Err(err).Str("signature", signature).Msg("chat dispatch failed")
			continue
		}

		if err := a.state.Record(ctx, signature, now); err != nil {
			log.Error().Err(err).Str("signature", signature).Msg("failed to record alert state after send")
			continue
		}
		sent++
	}

	log.Info().Int("sent", sent).Int("candidates", len(candidates)).Msg("alert cycle done")
	return sent, nil
}

func (a *Alerter) selectCandidates(ctx context.Context, tsMinute time.Time) ([]candidate, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT c.provider, c.market_id, c.outcome_id, m.title, o.label,
		       s.probability, c.label, c.reason_tags,
		       d.delta_1m, d.delta_5m, d.delta_10m, d.delta_30m, d.delta_1h, d.delta_6h, d.delta_12h, d.delta_24h
		FROM classifications c
		JOIN snapshots s ON s.ts_minute = c.ts_minute AND s.provider = c.provider
			AND s.market_id = c.market_id AND s.outcome_id = c.outcome_id
		JOIN deltas d ON d.ts_minute = c.ts_minute AND d.provider = c.provider
			AND d.market_id = c.market_id AND d.outcome_id = c.outcome_id
		JOIN markets m ON m.provider = c.provider AND m.market_id = c.market_id
		JOIN outcomes o ON o.provider = c.provider AND o.market_id = c.market_id AND o.outcome_id = c.outcome_id
		WHERE c.ts_minute = $1 AND c.label = $2
		  AND s.liquidity_usd >= $3 AND (s.spread_pp IS NULL OR s.spread_pp <= $4)
		ORDER BY ABS(COALESCE(d.delta_1m, 0)) DESC
		LIMIT $5`,
		tsMinute, string(model.LabelOpaqueInfoSensitive), a.minLiquidity, a.maxSpreadPp, a.selectionCap)
	if err != nil {
		return nil, fmt.Errorf("select alert candidates: %w", err)
	}
	defer rows.Close()

	var candidates []candidate
	for rows.Next() {
		var c candidate
		var label string
		var tagsJSON []byte
		var d1m, d5m, d10m, d30m, d1h, d6h, d12h, d24h *float64

		if err := rows.Scan(&c.provider, &c.marketID, &c.outcomeID, &c.marketTitle, &c.outcomeLabel,
			&c.probability, &label, &tagsJSON,
			&d1m, &d5m, &d10m, &d30m, &d1h, &d6h, &d12h, &d24h); err != nil {
			return candidates, err
		}
		c.label = model.Label(label)
		c.reasonTags = decodeTags(tagsJSON)
		c.deltas = map[model.Window]*float64{
			model.Window1m: d1m, model.Window5m: d5m, model.Window10m: d10m, model.Window30m: d30m,
			model.Window1h: d1h, model.Window6h: d6h, model.Window12h: d12h, model.Window24h: d24h,
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// bestTriggeredWindow scores every window with a non-null delta as
// |delta_w| / threshold[w], keeps only scores >= 1, and returns the
// window with the maximum score (spec.md §4.7, §8 example 5).
func bestTriggeredWindow(deltas map[model.Window]*float64, thresholds Thresholds) (model.Window, model.Direction, float64, bool) {
	var bestWindow model.Window
	var bestScore float64
	found := false

	for _, w := range model.Windows {
		dv := deltas[w]
		if dv == nil {
			continue
		}
		threshold := thresholds[w]
		if threshold <= 0 {
			continue
		}
		score := math.Abs(*dv) / threshold
		if score < 1 {
			continue
		}
		if !found || score > bestScore {
			bestWindow, bestScore, found = w, score, true
		}
	}
	if !found {
		return "", "", 0, false
	}

	dir := model.DirectionUp
	if *deltas[bestWindow] < 0 {
		dir = model.DirectionDown
	}
	return bestWindow, dir, bestScore, true
}

func formatMessage(c candidate, window model.Window, direction model.Direction, score float64, tsMinute time.Time) string {
	delta := deref(c.deltas[window])
	return fmt.Sprintf(
		"Provider: %s\nMarket: %s\nOutcome: %s\nProbability: %.4f\nWindow: %s (%s)\nDelta: %.2f pp (score %.2f)\nLabel: %s\nReasons: %v\nTick: %s",
		c.provider, c.marketTitle, c.outcomeLabel, c.probability, window, direction, delta, score, c.label, c.reasonTags, tsMinute.Format(time.RFC3339))
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func decodeTags(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return tags
}
