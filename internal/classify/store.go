package classify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/predictradar/signalscan/internal/model"
)

// upsertClassifications writes one tick's classifications in a single
// transaction, mirroring the store package's per-cycle atomicity.
func upsertClassifications(ctx context.Context, db *sqlx.DB, results []model.Classification) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, c := range results {
		tagsJSON, err := json.Marshal(c.ReasonTags)
		if err != nil {
			return fmt.Errorf("marshal reason tags: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO classifications (ts_minute, provider, market_id, outcome_id, opaque_score, exogenous_score, label, reason_tags, model_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (ts_minute, provider, market_id, outcome_id) DO UPDATE SET
				opaque_score = EXCLUDED.opaque_score,
				exogenous_score = EXCLUDED.exogenous_score,
				label = EXCLUDED.label,
				reason_tags = EXCLUDED.reason_tags,
				model_version = EXCLUDED.model_version`,
			c.TsMinute, c.Provider, c.MarketID, c.OutcomeID,
			c.OpaqueScore, c.ExogenousScore, string(c.Label), tagsJSON, c.ModelVersion)
		if err != nil {
			return fmt.Errorf("upsert classification %s/%s: %w", c.MarketID, c.OutcomeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit classifications: %w", err)
	}
	return nil
}
