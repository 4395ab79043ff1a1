// Package classify implements C5: scoring each outcome's latest move on
// opaque-info vs exogenous-arbitrage axes from its deltas, anchor
// profile and external spot-price context, grounded on the teacher's
// premove gates package for its additive rule-table shape (spec.md
// §4.6).
package classify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictradar/signalscan/internal/model"
)

// defaultConfidence is used when a profile exists but its confidence is
// missing; abruptMicroMoveConfidenceFloor is the distinct 0.9 default
// that applies only within the abrupt_micro_move exogenous branch.
// spec.md §9 calls out these two defaults as deliberately different.
const (
	defaultConfidence              = 0.7
	abruptMicroMoveConfidenceFloor = 0.9
)

const (
	baseOpaque    = 20.0
	baseExogenous = 10.0
)

// Input is everything classify() needs for one outcome at the latest tick.
type Input struct {
	Provider           model.Provider
	MarketID           string
	OutcomeID          string
	NormalizedCategory model.Category
	VolumeUSD24h       float64
	SpreadPp           *float64
	Delta1m            *float64
	Profile            *model.MarketProfile
	BTC1mPct           *float64
	ETH1mPct           *float64
}

// Classify scores one outcome per spec.md §4.6's additive rule table.
func Classify(in Input) model.Classification {
	opaque := baseOpaque
	exogenous := baseExogenous
	var tags []string

	add := func(name string, opaqueDelta, exogenousDelta float64) {
		opaque += opaqueDelta
		exogenous += exogenousDelta
		tags = append(tags, name)
	}

	hasProfile := in.Profile != nil
	var anchorType model.AnchorType
	conf := defaultConfidence
	if hasProfile {
		anchorType = in.Profile.AnchorType
		conf = clamp01(in.Profile.Confidence)
		if in.Profile.Confidence == 0 {
			conf = defaultConfidence
		}
	}

	switch anchorType {
	case model.AnchorLiveScore:
		add("anchor_live_score", 0, 60*conf)
	case model.AnchorSpotPrice:
		add("anchor_spot_price", 0, 55*conf)
	case model.AnchorSportsTeamNews:
		add("anchor_sports_team_news", 45*conf, 0)
	case model.AnchorCryptoNews:
		add("anchor_crypto_news", 45*conf, 0)
	case model.AnchorScheduledMacro:
		add("anchor_macro_release", 35*conf, 0)
	case model.AnchorPolicyDecision:
		add("anchor_policy_decision", 30*conf, 0)
	}

	noAnchorOrUnknown := !hasProfile || anchorType == model.AnchorOtherUnknown
	if noAnchorOrUnknown && in.NormalizedCategory == model.CategorySports {
		add("sports_related", 0, 15)
	}
	if noAnchorOrUnknown && in.NormalizedCategory == model.CategoryCrypto {
		add("crypto_related", 0, 10)
	}

	if anchorType == model.AnchorSpotPrice && maxAbs(in.BTC1mPct, in.ETH1mPct) >= 0.8 {
		add("spot_price_shock", 0, 18)
	}

	switch in.NormalizedCategory {
	case model.CategoryPolitics, model.CategoryPolicy, model.CategoryMacro, model.CategoryOther:
		add("opaque_info_prone_category", 20, 0)
	}

	if in.VolumeUSD24h >= 10000 && absOrZero(in.Delta1m) >= 4 {
		add("meaningful_size_move", 20, 0)
	}

	if in.SpreadPp != nil && *in.SpreadPp <= 8 {
		add("tight_spread", 10, 0)
	}

	d1 := absOrZero(in.Delta1m)
	if d1 >= 15 {
		if anchorType == model.AnchorLiveScore || anchorType == model.AnchorSpotPrice {
			add("abrupt_micro_move", 0, 12*math.Max(conf, abruptMicroMoveConfidenceFloor))
		} else {
			add("abrupt_micro_move", 10, 0)
		}
	}

	opaque = model.ClampScore(opaque)
	exogenous = model.ClampScore(exogenous)

	var label model.Label
	switch {
	case opaque >= exogenous && opaque >= 50:
		label = model.LabelOpaqueInfoSensitive
	case exogenous >= 50:
		label = model.LabelExogenousArbitrage
	default:
		label = model.LabelUnclear
	}

	return model.Classification{
		Provider:       in.Provider,
		MarketID:       in.MarketID,
		OutcomeID:      in.OutcomeID,
		OpaqueScore:    opaque,
		ExogenousScore: exogenous,
		Label:          label,
		ReasonTags:     tags,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return math.Abs(*v)
}

func maxAbs(a, b *float64) float64 {
	av, bv := absOrZero(a), absOrZero(b)
	if av > bv {
		return av
	}
	return bv
}

// row is the joined data Run needs per outcome at the latest tick.
type row struct {
	provider     model.Provider
	marketID     string
	outcomeID    string
	category     model.Category
	volume       float64
	spreadPp     *float64
	delta1m      *float64
	profile      *model.MarketProfile
}

// Run classifies every outcome present at the latest delta tick and
// writes the resulting classifications, called after C4 and before C7
// in the same cycle (spec.md §5).
func Run(ctx context.Context, db *sqlx.DB, modelVersion string, btc1mPct, eth1mPct *float64) (int, error) {
	var tsMinute time.Time
	if err := db.QueryRowContext(ctx, `SELECT MAX(ts_minute) FROM deltas`).Scan(&tsMinute); err != nil {
		return 0, fmt.Errorf("resolve latest delta tick: %w", err)
	}
	if tsMinute.IsZero() {
		return 0, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT d.provider, d.market_id, d.outcome_id, s.normalized_category,
		       s.volume_24h_usd, s.spread_pp, d.delta_1m,
		       p.anchor_type, p.insider_possible, p.confidence, p.model_version
		FROM deltas d
		JOIN snapshots s ON s.ts_minute = d.ts_minute AND s.provider = d.provider
			AND s.market_id = d.market_id AND s.outcome_id = d.outcome_id
		LEFT JOIN market_profiles p ON p.provider = d.provider AND p.market_id = d.market_id
		WHERE d.ts_minute = $1`, tsMinute)
	if err != nil {
		return 0, fmt.Errorf("query classifier inputs: %w", err)
	}
	defer rows.Close()

	var results []model.Classification
	for rows.Next() {
		var r row
		var category string
		var anchorType *string
		var insiderPossible *bool
		var confidence *float64
		var profileModelVersion *string

		if err := rows.Scan(&r.provider, &r.marketID, &r.outcomeID, &category,
			&r.volume, &r.spreadPp, &r.delta1m,
			&anchorType, &insiderPossible, &confidence, &profileModelVersion); err != nil {
			return len(results), err
		}
		r.category = model.Category(category)

		if anchorType != nil {
			r.profile = &model.MarketProfile{
				Provider: r.provider, MarketID: r.marketID,
				AnchorType:      model.AnchorType(*anchorType),
				InsiderPossible: derefBool(insiderPossible),
				Confidence:      derefFloat(confidence),
				ModelVersion:    derefString(profileModelVersion),
			}
		}

		c := Classify(Input{
			Provider: r.provider, MarketID: r.marketID, OutcomeID: r.outcomeID,
			NormalizedCategory: r.category, VolumeUSD24h: r.volume, SpreadPp: r.spreadPp,
			Delta1m: r.delta1m, Profile: r.profile, BTC1mPct: btc1mPct, ETH1mPct: eth1mPct,
		})
		c.TsMinute = tsMinute
		c.ModelVersion = modelVersion
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return len(results), err
	}

	if err := upsertClassifications(ctx, db, results); err != nil {
		return 0, err
	}
	return len(results), nil
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
