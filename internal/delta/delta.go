// Package delta implements C4: computing the probability delta for
// every outcome across the fixed window set W by looking back to the
// snapshot nearest each window's target timestamp, grounded on the
// teacher's scoring.MomentumCore multi-timeframe shape (spec.md §4.4).
package delta

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/predictradar/signalscan/internal/model"
)

// Engine computes deltas for a tick against stored history.
type Engine struct {
	db *sqlx.DB
}

// New builds a delta Engine over the shared pool.
func New(db *sqlx.DB) *Engine {
	return &Engine{db: db}
}

// Compute builds deltas for every outcome present at tsMinute, for each
// provider/market/outcome found in the snapshots table at that tick.
func (e *Engine) Compute(ctx context.Context, tsMinute time.Time) ([]model.Delta, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT provider, market_id, outcome_id, probability
		FROM snapshots WHERE ts_minute = $1`, tsMinute)
	if err != nil {
		return nil, fmt.Errorf("query current snapshots: %w", err)
	}
	defer rows.Close()

	type current struct {
		provider  model.Provider
		marketID  string
		outcomeID string
		prob      float64
	}
	var currents []current
	for rows.Next() {
		var c current
		if err := rows.Scan(&c.provider, &c.marketID, &c.outcomeID, &c.prob); err != nil {
			return nil, err
		}
		currents = append(currents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	deltas := make([]model.Delta, 0, len(currents))
	for _, c := range currents {
		d := model.Delta{
			TsMinute:  tsMinute,
			Provider:  c.provider,
			MarketID:  c.marketID,
			OutcomeID: c.outcomeID,
			Values:    make(map[model.Window]*float64, len(model.Windows)),
		}
		for _, w := range model.Windows {
			prior, ok, err := e.nearestSnapshot(ctx, c.provider, c.marketID, c.outcomeID, tsMinute.Add(-w.Duration()))
			if err != nil {
				return nil, fmt.Errorf("lookup %s window %s: %w", c.outcomeID, w, err)
			}
			if !ok {
				d.Values[w] = nil
				continue
			}
			dv := round2((c.prob - prior) * 100)
			d.Values[w] = &dv
		}
		deltas = append(deltas, d)
	}
	return deltas, nil
}

// nearestSnapshot finds the most recent snapshot at or before target,
// with no distance bound: a prior snapshot older than the window still
// counts as that window's baseline rather than being dropped, covering
// the case where adapters lag and miss a tick (spec.md §4.4).
func (e *Engine) nearestSnapshot(ctx context.Context, provider model.Provider, marketID, outcomeID string, target time.Time) (float64, bool, error) {
	var prob float64
	err := e.db.QueryRowContext(ctx, `
		SELECT probability FROM snapshots
		WHERE provider = $1 AND market_id = $2 AND outcome_id = $3
		  AND ts_minute <= $4
		ORDER BY ts_minute DESC
		LIMIT 1`,
		provider, marketID, outcomeID, target).Scan(&prob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return prob, true, nil
}

// round2 rounds half away from zero to 2 decimal places, matching
// spec.md §8's worked examples.
func round2(v float64) float64 {
	d := decimal.NewFromFloat(v).Round(2)
	f, _ := d.Float64()
	return f
}
