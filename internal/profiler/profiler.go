// Package profiler implements C3: classifying each market's anchor
// type (what its probability tracks) through a hybrid cascade of hard
// rules, an ML step, and a category fallback, grounded on the
// teacher's gates package for its rule-table shape and on its
// atomic-pointer hot-reload pattern for config (spec.md §4.3, §9).
package profiler

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictradar/signalscan/internal/logging"
	"github.com/predictradar/signalscan/internal/model"
	"github.com/predictradar/signalscan/internal/profiler/anchor"
	"github.com/predictradar/signalscan/internal/store"
)

// mlAcceptThreshold is the minimum softmax confidence for the ML step's
// verdict to be accepted over the fallback rule (spec.md §4.3.1).
const mlAcceptThreshold = 0.55

// Profiler classifies markets lazily, reloading its ML model from disk
// without restarting the process.
type Profiler struct {
	modelPath string
	model     atomic.Pointer[anchor.Model]
}

// New builds a Profiler. The model is loaded on first Reload; Classify
// falls back to rules alone until a model is present.
func New(modelPath string) *Profiler {
	return &Profiler{modelPath: modelPath}
}

// Reload loads (or re-loads) the model artifact from disk and swaps it
// in atomically; safe to call while Classify runs concurrently.
func (p *Profiler) Reload() error {
	m, err := anchor.LoadFile(p.modelPath)
	if err != nil {
		return err
	}
	p.model.Store(m)
	return nil
}

// Classify assigns an anchor type to one market following the cascade
// from spec.md §4.3: hard rules, then the ML model (if loaded,
// confident, and not rejected by context), then the fallback ladder,
// then the other_unknown default.
func (p *Profiler) Classify(mt store.MarketText) model.MarketProfile {
	text := classificationText(mt)

	modelVersion := "rules-only"
	if m := p.model.Load(); m != nil {
		modelVersion = m.ModelVersion
	}

	build := func(anchorType model.AnchorType, confidence float64, version string) model.MarketProfile {
		return model.MarketProfile{
			Provider:        mt.Provider,
			MarketID:        mt.MarketID,
			AnchorType:      anchorType,
			InsiderPossible: model.InsiderPossible(anchorType),
			Confidence:      confidence,
			ModelVersion:    version,
			UpdatedAt:       time.Now().UTC(),
		}
	}

	if anchorType, confidence, ok := matchHardRules(mt.Category, text); ok {
		return build(anchorType, confidence, modelVersion)
	}

	if m := p.model.Load(); m != nil {
		tokens := anchor.Tokenize(text)
		pred := m.Predict(tokens)
		if !mlPredictionRejected(pred.AnchorType, mt.Category, text) && pred.Confidence >= mlAcceptThreshold {
			return build(pred.AnchorType, pred.Confidence, m.ModelVersion)
		}
	}

	if anchorType, confidence, ok := fallbackLadder(mt.Category, text); ok {
		return build(anchorType, confidence, modelVersion)
	}

	return build(model.AnchorOtherUnknown, 0.3, modelVersion)
}

// classificationText builds the title ∪ raw category ∪ leg texts
// union the hard rules, tokenizer, and fallback ladder all match
// against (spec.md §4.3 step 1). Combo markets get their display title
// replaced with a short summary and their per-leg text stashed under
// metadata["legs"] (internal/providers/kalshi/kalshi.go's comboMetadata);
// without folding that back in, a leg's macro keyword or price anchor
// would never reach the classifier.
func classificationText(mt store.MarketText) string {
	parts := []string{mt.Title, mt.RawCategory}
	parts = append(parts, legTexts(mt.Metadata["legs"])...)
	return strings.Join(parts, " ")
}

func legTexts(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, l := range v {
			if s, ok := l.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ModelVersion reports the currently loaded model's version, or
// "rules-only" if none is loaded.
func (p *Profiler) ModelVersion() string {
	if m := p.model.Load(); m != nil {
		return m.ModelVersion
	}
	return "rules-only"
}

// Run classifies every market missing a current profile, writing
// results back through the store. Called once per cycle by the
// scheduler ahead of the delta engine (spec.md §4.3).
func (p *Profiler) Run(ctx context.Context, db *sqlx.DB, batchLimit int) (int, error) {
	log := logging.Component("profiler")

	if err := p.Reload(); err != nil {
		log.Debug().Err(err).Msg("anchor model not reloaded, keeping current model")
	}

	keys, err := store.UnprofiledMarkets(ctx, db, p.ModelVersion(), batchLimit)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	texts, err := store.LoadMarketText(ctx, db, keys)
	if err != nil {
		return 0, err
	}

	var written int
	for _, mt := range texts {
		profile := p.Classify(mt)
		if err := store.UpsertProfile(ctx, db, profile); err != nil {
			log.Warn().Err(err).Str("market_id", mt.MarketID).Msg("failed to persist profile")
			continue
		}
		written++
	}

	log.Info().Int("profiled", written).Int("candidates", len(keys)).Msg("profiler cycle done")
	return written, nil
}
