package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/predictradar/signalscan/internal/alert"
	"github.com/predictradar/signalscan/internal/api"
	"github.com/predictradar/signalscan/internal/config"
	"github.com/predictradar/signalscan/internal/dbpool"
	"github.com/predictradar/signalscan/internal/delta"
	"github.com/predictradar/signalscan/internal/logging"
	"github.com/predictradar/signalscan/internal/migrations"
	"github.com/predictradar/signalscan/internal/pipeline"
	"github.com/predictradar/signalscan/internal/profiler"
	"github.com/predictradar/signalscan/internal/providers"
	"github.com/predictradar/signalscan/internal/spotsignal"
	"github.com/predictradar/signalscan/internal/store"
)

const modelPathDefault = "config/anchor_model.json"

func main() {
	root := &cobra.Command{
		Use:   "predictradar",
		Short: "Signal-detection pipeline for prediction market moves",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run migrations then the scheduler and read API (default)",
		RunE:  runDaemon,
	}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE:  runMigrate,
	}
	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Run a single pipeline cycle and exit, without starting the read API",
		RunE:  runProbe,
	}

	root.AddCommand(runCmd, migrateCmd, probeCmd)
	root.RunE = runDaemon

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("fatal error")
		os.Exit(1)
	}
}

func loadConfigAndDB() (*config.Config, *dbpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.LogLevel)

	pool, err := dbpool.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database pool: %w", err)
	}
	return cfg, pool, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	_, pool, err := loadConfigAndDB()
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool.DB); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func buildPipeline(cfg *config.Config, db *sqlx.DB) (*pipeline.Pipeline, error) {
	adapters := providers.BuildAdapters(cfg)
	snapshotStore := store.New(db, cfg.PGQueryTimeout)
	prof := profiler.New(modelPathDefault)
	if err := prof.Reload(); err != nil {
		log.Warn().Err(err).Msg("no anchor model loaded yet, falling back to rule cascade only")
	}
	deltaEngine := delta.New(db)
	spot := spotsignal.New([]string{"BTC", "ETH"})

	var redisClient *redis.Client
	if opts, err := redis.ParseURL(cfg.RedisURL); err == nil {
		redisClient = redis.NewClient(opts)
	} else {
		log.Warn().Err(err).Msg("invalid REDIS_URL, alert cooldown falls back to postgres-only")
	}
	cooldownState := alert.NewCooldown(db, redisClient)

	var dispatcher alert.Dispatcher
	switch {
	case cfg.ChatConfigured() && cfg.ChatMode == "bot":
		dispatcher = alert.NewBotDispatcher(cfg.ChatBotToken, cfg.ChatChannelID)
	case cfg.ChatConfigured() && cfg.ChatMode == "user":
		dispatcher = alert.NewUserDispatcher(cfg.ChatUserToken, cfg.ChatChannelID)
	default:
		dispatcher = alert.NoopDispatcher{}
	}

	thresholds, err := alert.LoadThresholds("config/thresholds.yaml")
	if err != nil {
		log.Warn().Err(err).Msg("alert thresholds file not loaded, using built-in defaults")
	}

	alerter := alert.New(db, dispatcher, cooldownState, alert.Config{
		Thresholds:      thresholds,
		CooldownMinutes: cfg.CooldownMinutes,
		MinLiquidityUSD: cfg.MinLiquidityUSD,
		MaxSpreadPp:     cfg.MaxSpreadPp,
		SelectionCap:    cfg.AlertSelectionCap,
	})

	return pipeline.New(db, adapters, snapshotStore, prof, deltaEngine, spot, alerter, pipeline.Config{
		Interval: cfg.CycleInterval(),
	}), nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, pool, err := loadConfigAndDB()
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool.DB); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	p, err := buildPipeline(cfg, pool.DB)
	if err != nil {
		return err
	}
	return p.RunCycle(ctx)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, pool, err := loadConfigAndDB()
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool.DB); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	p, err := buildPipeline(cfg, pool.DB)
	if err != nil {
		return err
	}

	server := api.New(pool.DB, fmt.Sprintf("%s:%d", cfg.HTTPHost, cfg.HTTPPort))

	serverErrs := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrs <- err
		}
	}()

	pipelineDone := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(pipelineDone)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, draining")
	case err := <-serverErrs:
		log.Error().Err(err).Msg("read API server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("read API shutdown error")
	}

	<-pipelineDone
	log.Info().Msg("clean shutdown complete")
	return nil
}
