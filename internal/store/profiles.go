package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/predictradar/signalscan/internal/model"
)

// UpsertProfile writes one market's anchor classification (C3's output).
func UpsertProfile(ctx context.Context, db *sqlx.DB, p model.MarketProfile) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO market_profiles (provider, market_id, anchor_type, insider_possible, confidence, model_version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (provider, market_id) DO UPDATE SET
			anchor_type = EXCLUDED.anchor_type,
			insider_possible = EXCLUDED.insider_possible,
			confidence = EXCLUDED.confidence,
			model_version = EXCLUDED.model_version,
			updated_at = now()`,
		p.Provider, p.MarketID, string(p.AnchorType), p.InsiderPossible, p.Confidence, p.ModelVersion)
	if err != nil {
		return fmt.Errorf("upsert profile %s/%s: %w", p.Provider, p.MarketID, err)
	}
	return nil
}

// Profile fetches one market's stored profile. Returns ok=false if none exists.
func Profile(ctx context.Context, db *sqlx.DB, key model.MarketKey) (model.MarketProfile, bool, error) {
	var p model.MarketProfile
	var anchorType string
	err := db.QueryRowContext(ctx, `
		SELECT provider, market_id, anchor_type, insider_possible, confidence, model_version, updated_at
		FROM market_profiles WHERE provider = $1 AND market_id = $2`,
		key.Provider, key.MarketID).Scan(
		&p.Provider, &p.MarketID, &anchorType, &p.InsiderPossible, &p.Confidence, &p.ModelVersion, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.MarketProfile{}, false, nil
		}
		return model.MarketProfile{}, false, err
	}
	p.AnchorType = model.AnchorType(anchorType)
	return p, true, nil
}
