// Package pipeline drives one end-to-end cycle of snapshot ingest,
// profiling, delta computation, spot-signal refresh, classification and
// alerting, and runs that cycle on a fixed tick (spec.md §4.8, §5).
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/predictradar/signalscan/internal/alert"
	"github.com/predictradar/signalscan/internal/classify"
	"github.com/predictradar/signalscan/internal/delta"
	"github.com/predictradar/signalscan/internal/logging"
	"github.com/predictradar/signalscan/internal/profiler"
	"github.com/predictradar/signalscan/internal/providers"
	"github.com/predictradar/signalscan/internal/spotsignal"
	"github.com/predictradar/signalscan/internal/store"
)

// Config bounds one cycle's work.
type Config struct {
	Interval        time.Duration
	ProfileBatchCap int
}

// Pipeline sequences C2 through C7 on a timer. Cycles never overlap: a
// tick that lands while the previous cycle is still running is dropped
// and logged rather than queued (spec.md §4.8).
type Pipeline struct {
	db        *sqlx.DB
	adapters  []providers.Adapter
	snapshots *store.Store
	profiles  *profiler.Profiler
	deltas    *delta.Engine
	spot      *spotsignal.Store
	alerter   *alert.Alerter
	cfg       Config

	running atomic.Bool

	// cycleFn defaults to p.RunCycle; overridable in tests so the
	// overlap-guard can be exercised without a real database.
	cycleFn func(context.Context) error
}

// New wires every component into one cycle driver.
func New(db *sqlx.DB, adapters []providers.Adapter, snapshots *store.Store, profiles *profiler.Profiler, deltas *delta.Engine, spot *spotsignal.Store, alerter *alert.Alerter, cfg Config) *Pipeline {
	if cfg.ProfileBatchCap <= 0 {
		cfg.ProfileBatchCap = 500
	}
	p := &Pipeline{
		db: db, adapters: adapters, snapshots: snapshots, profiles: profiles,
		deltas: deltas, spot: spot, alerter: alerter, cfg: cfg,
	}
	p.cycleFn = p.RunCycle
	return p
}

// Start runs one cycle immediately, then one every cfg.Interval, until
// ctx is cancelled. It blocks until the current cycle (if any) finishes
// draining, then returns.
func (p *Pipeline) Start(ctx context.Context) {
	log := logging.Component("pipeline")

	p.tick(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("pipeline stopping, draining current cycle")
			for p.running.Load() {
				time.Sleep(50 * time.Millisecond)
			}
			return
		case <-ticker.C:
			// Run off the select loop so a tick that lands mid-cycle
			// reaches tick's guard and is dropped, not buffered.
			go p.tick(ctx)
		}
	}
}

func (p *Pipeline) tick(ctx context.Context) {
	log := logging.Component("pipeline")

	if !p.running.CompareAndSwap(false, true) {
		log.Warn().Msg("previous cycle still running, dropping this tick")
		return
	}
	defer p.running.Store(false)

	start := time.Now()
	if err := p.cycleFn(ctx); err != nil {
		log.Error().Err(err).Msg("cycle failed")
		return
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("cycle complete")
}

// RunCycle executes C2 through C7 once, in spec order: snapshot ingest,
// market profiling, delta computation, external spot-signal refresh,
// classification, and alert dispatch. C3 runs after C2 and before C5 in
// the same cycle; C4 runs before C5; C5 runs before C7 (spec.md §5).
func (p *Pipeline) RunCycle(ctx context.Context) error {
	log := logging.Component("pipeline")
	tsMinute := time.Now().UTC().Truncate(time.Minute)

	byProvider := providers.FetchAll(ctx, tsMinute, p.adapters)
	written, err := p.snapshots.UpsertCycle(ctx, byProvider)
	if err != nil {
		return fmt.Errorf("c2 snapshot ingest: %w", err)
	}
	log.Debug().Int("snapshots", written).Msg("c2 done")

	profiled, err := p.profiles.Run(ctx, p.db, p.cfg.ProfileBatchCap)
	if err != nil {
		return fmt.Errorf("c3 profiler: %w", err)
	}
	log.Debug().Int("profiled", profiled).Msg("c3 done")

	deltas, err := p.deltas.Compute(ctx, tsMinute)
	if err != nil {
		return fmt.Errorf("c4 delta compute: %w", err)
	}
	if err := store.UpsertDeltas(ctx, p.db, deltas); err != nil {
		return fmt.Errorf("c4 delta upsert: %w", err)
	}
	log.Debug().Int("deltas", len(deltas)).Msg("c4 done")

	p.spot.Refresh(ctx)
	btc1m, btcOK := p.spot.PercentChange("BTC", time.Minute)
	eth1m, ethOK := p.spot.PercentChange("ETH", time.Minute)
	var btcPct, ethPct *float64
	if btcOK {
		btcPct = &btc1m
	}
	if ethOK {
		ethPct = &eth1m
	}
	log.Debug().Msg("c6 done")

	classified, err := classify.Run(ctx, p.db, p.profiles.ModelVersion(), btcPct, ethPct)
	if err != nil {
		return fmt.Errorf("c5 classify: %w", err)
	}
	log.Debug().Int("classified", classified).Msg("c5 done")

	sent, err := p.alerter.RunAlerts(ctx)
	if err != nil {
		return fmt.Errorf("c7 alerts: %w", err)
	}
	log.Debug().Int("sent", sent).Msg("c7 done")

	return nil
}
