package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/predictradar/signalscan/internal/model"
)

// UpsertDeltas writes one tick's worth of computed deltas in a single
// transaction, mirroring upsertProviderBatch's per-cycle atomicity.
func UpsertDeltas(ctx context.Context, db *sqlx.DB, deltas []model.Delta) error {
	if len(deltas) == 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, d := range deltas {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO deltas (ts_minute, provider, market_id, outcome_id,
				delta_1m, delta_5m, delta_10m, delta_30m, delta_1h, delta_6h, delta_12h, delta_24h)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (ts_minute, provider, market_id, outcome_id) DO UPDATE SET
				delta_1m = EXCLUDED.delta_1m, delta_5m = EXCLUDED.delta_5m,
				delta_10m = EXCLUDED.delta_10m, delta_30m = EXCLUDED.delta_30m,
				delta_1h = EXCLUDED.delta_1h, delta_6h = EXCLUDED.delta_6h,
				delta_12h = EXCLUDED.delta_12h, delta_24h = EXCLUDED.delta_24h`,
			d.TsMinute, d.Provider, d.MarketID, d.OutcomeID,
			d.Get(model.Window1m), d.Get(model.Window5m), d.Get(model.Window10m), d.Get(model.Window30m),
			d.Get(model.Window1h), d.Get(model.Window6h), d.Get(model.Window12h), d.Get(model.Window24h))
		if err != nil {
			return fmt.Errorf("upsert delta %s/%s: %w", d.MarketID, d.OutcomeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deltas: %w", err)
	}
	return nil
}
