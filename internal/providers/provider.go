// Package providers defines the C1 provider-adapter capability set and
// the per-cycle fan-out that fetches snapshots from every enabled
// provider in parallel without letting one adapter's failure affect
// another's (spec.md §4.1, §7).
package providers

import (
	"context"
	"time"

	"github.com/predictradar/signalscan/internal/logging"
	"github.com/predictradar/signalscan/internal/model"
)

// Snapshot is the uniform record every adapter normalizes into,
// regardless of the provider's native wire shape.
type Snapshot struct {
	TsMinute     time.Time
	MarketID     string
	OutcomeID    string
	OutcomeLabel string
	Probability  float64
	SpreadPp     *float64
	Volume24hUSD float64
	LiquidityUSD float64

	MarketTitle        string
	RawCategory        string
	NormalizedCategory model.Category
	MarketStatus       string
	MarketMetadata     map[string]any
}

// Adapter is the capability set every provider variant implements:
// {name, enabled, fetchSnapshots} per spec.md §4.1.
type Adapter interface {
	Name() model.Provider
	Enabled() bool
	FetchSnapshots(ctx context.Context, tsMinute time.Time) ([]Snapshot, error)
}

// FetchAll runs FetchSnapshots on every enabled adapter concurrently and
// fails soft: an adapter error is logged and contributes an empty
// sequence rather than aborting the others or the cycle.
func FetchAll(ctx context.Context, tsMinute time.Time, adapters []Adapter) map[model.Provider][]Snapshot {
	log := logging.Component("providers")

	type result struct {
		provider  model.Provider
		snapshots []Snapshot
	}

	results := make(chan result, len(adapters))
	var inflight int
	for _, a := range adapters {
		if !a.Enabled() {
			log.Debug().Str("provider", string(a.Name())).Msg("provider disabled, skipping")
			continue
		}
		inflight++
		go func(a Adapter) {
			snaps, err := a.FetchSnapshots(ctx, tsMinute)
			if err != nil {
				log.Error().Err(err).Str("provider", string(a.Name())).Msg("adapter fetch failed, yielding empty set")
				snaps = nil
			}
			results <- result{provider: a.Name(), snapshots: snaps}
		}(a)
	}

	out := make(map[model.Provider][]Snapshot, inflight)
	for i := 0; i < inflight; i++ {
		r := <-results
		out[r.provider] = r.snapshots
	}
	return out
}
