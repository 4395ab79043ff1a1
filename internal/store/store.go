// Package store implements C2: upserting markets, outcomes and
// snapshots into Postgres. Grounded on the teacher's
// internal/persistence/postgres/premove_repo.go upsert style: one
// ON CONFLICT DO UPDATE statement per identity, RETURNING nothing we
// don't need, wrapped in a bounded-timeout context per call.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictradar/signalscan/internal/model"
	"github.com/predictradar/signalscan/internal/providers"
)

// Store upserts snapshot data for one tick.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// New builds a Store over the shared pool.
func New(db *sqlx.DB, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

// UpsertCycle writes every provider's snapshots for tsMinute. Per
// spec.md §3, the set of outcomes for one (provider, market) in a cycle
// is atomic: it wraps each provider's batch in its own transaction so a
// failure retries that provider's contribution next tick without
// touching markets that already committed.
func (s *Store) UpsertCycle(ctx context.Context, byProvider map[model.Provider][]providers.Snapshot) (int, error) {
	var written int
	var firstErr error
	for provider, snaps := range byProvider {
		n, err := s.upsertProviderBatch(ctx, provider, snaps)
		written += n
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("upsert %s batch: %w", provider, err)
		}
	}
	return written, firstErr
}

func (s *Store) upsertProviderBatch(ctx context.Context, provider model.Provider, snaps []providers.Snapshot) (int, error) {
	if len(snaps) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	seenMarkets := make(map[string]bool)
	var written int

	for _, snap := range snaps {
		if !seenMarkets[snap.MarketID] {
			if err := upsertMarket(ctx, tx, provider, snap); err != nil {
				return written, fmt.Errorf("upsert market %s: %w", snap.MarketID, err)
			}
			seenMarkets[snap.MarketID] = true
		}

		if err := upsertOutcome(ctx, tx, provider, snap); err != nil {
			return written, fmt.Errorf("upsert outcome %s/%s: %w", snap.MarketID, snap.OutcomeID, err)
		}

		if err := upsertSnapshot(ctx, tx, provider, snap); err != nil {
			return written, fmt.Errorf("upsert snapshot %s/%s: %w", snap.MarketID, snap.OutcomeID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return written, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func upsertMarket(ctx context.Context, tx *sqlx.Tx, provider model.Provider, snap providers.Snapshot) error {
	metaJSON, err := json.Marshal(snap.MarketMetadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO markets (provider, market_id, title, raw_category, normalized_category, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (provider, market_id) DO UPDATE SET
			title = EXCLUDED.title,
			raw_category = EXCLUDED.raw_category,
			normalized_category = EXCLUDED.normalized_category,
			status = EXCLUDED.status,
			metadata = EXCLUDED.metadata,
			updated_at = now()`,
		provider, snap.MarketID, snap.MarketTitle, snap.RawCategory,
		string(snap.NormalizedCategory), snap.MarketStatus, metaJSON)
	return err
}

func upsertOutcome(ctx context.Context, tx *sqlx.Tx, provider model.Provider, snap providers.Snapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outcomes (provider, market_id, outcome_id, label, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (provider, market_id, outcome_id) DO UPDATE SET
			label = EXCLUDED.label,
			updated_at = now()`,
		provider, snap.MarketID, snap.OutcomeID, snap.OutcomeLabel)
	return err
}

func upsertSnapshot(ctx context.Context, tx *sqlx.Tx, provider model.Provider, snap providers.Snapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (ts_minute, provider, market_id, outcome_id, probability, spread_pp, volume_24h_usd, liquidity_usd, market_title, normalized_category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (ts_minute, provider, market_id, outcome_id) DO UPDATE SET
			probability = EXCLUDED.probability,
			spread_pp = EXCLUDED.spread_pp,
			volume_24h_usd = EXCLUDED.volume_24h_usd,
			liquidity_usd = EXCLUDED.liquidity_usd,
			market_title = EXCLUDED.market_title,
			normalized_category = EXCLUDED.normalized_category`,
		snap.TsMinute, provider, snap.MarketID, snap.OutcomeID,
		model.Clamp01(snap.Probability), snap.SpreadPp, snap.Volume24hUSD,
		snap.LiquidityUSD, snap.MarketTitle, string(snap.NormalizedCategory))
	return err
}

// UnprofiledMarkets returns markets that either have no profile yet or
// whose profile's model_version differs from modelVersion, bounded by
// limit (spec.md §4.3).
func UnprofiledMarkets(ctx context.Context, db *sqlx.DB, modelVersion string, limit int) ([]model.MarketKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.provider, m.market_id
		FROM markets m
		LEFT JOIN market_profiles p ON p.provider = m.provider AND p.market_id = m.market_id
		WHERE p.market_id IS NULL OR p.model_version <> $1
		LIMIT $2`, modelVersion, limit)
	if err != nil {
		return nil, fmt.Errorf("query unprofiled markets: %w", err)
	}
	defer rows.Close()

	var keys []model.MarketKey
	for rows.Next() {
		var k model.MarketKey
		if err := rows.Scan(&k.Provider, &k.MarketID); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// MarketText gathers the title/category fields C3 needs to build its
// normalized classification text for one market.
type MarketText struct {
	Provider    model.Provider
	MarketID    string
	Title       string
	RawCategory string
	Category    model.Category
	Metadata    map[string]any
}

// LoadMarketText fetches the text fields for the given market keys.
func LoadMarketText(ctx context.Context, db *sqlx.DB, keys []model.MarketKey) ([]MarketText, error) {
	out := make([]MarketText, 0, len(keys))
	for _, k := range keys {
		var title, rawCategory, category string
		var metaJSON []byte
		err := db.QueryRowContext(ctx, `
			SELECT title, raw_category, normalized_category, metadata
			FROM markets WHERE provider = $1 AND market_id = $2`,
			k.Provider, k.MarketID).Scan(&title, &rawCategory, &category, &metaJSON)
		if err != nil {
			return out, fmt.Errorf("load market %s/%s: %w", k.Provider, k.MarketID, err)
		}
		var meta map[string]any
		_ = json.Unmarshal(metaJSON, &meta)
		out = append(out, MarketText{
			Provider: k.Provider, MarketID: k.MarketID, Title: title,
			RawCategory: rawCategory, Category: model.Category(category), Metadata: meta,
		})
	}
	return out, nil
}

// LatestSnapshotTick returns MAX(ts_minute) across snapshots, the zero
// time if the table is empty.
func LatestSnapshotTick(ctx context.Context, db *sqlx.DB) (time.Time, error) {
	var t *time.Time
	err := db.QueryRowContext(ctx, `SELECT MAX(ts_minute) FROM snapshots`).Scan(&t)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, nil
	}
	return *t, nil
}
