package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/cppla/heistctf/catalog"
	"github.com/cppla/heistctf/config"
	"github.com/cppla/heistctf/hints"
	"github.com/cppla/heistctf/leaderboard"
	"github.com/cppla/heistctf/metrics"
	"github.com/cppla/heistctf/routes"
	"github.com/cppla/heistctf/scoring"
	"github.com/cppla/heistctf/store"
	"github.com/cppla/heistctf/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	logger := utils.Logger
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var st store.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		st = store.NewMemoryStore()
	default:
		db := config.InitDatabase(config.Models()...)
		st = store.NewGormStore(db)
		if sqlDB, err := db.DB(); err == nil {
			go recordPoolStats(ctx, sqlDB.Stats, m)
		}
	}

	rc := utils.GetRedis()
	cache := utils.NewCache(rc, logger.Named("cache"))

	scoringCfg := scoring.DefaultConfig()
	scoringCfg.Location = cfg.StreakLocation()
	scoringCfg.SpeedThresholdSeconds = cfg.SpeedThresholdSeconds
	engine := scoring.NewEngine(scoringCfg)

	board := leaderboard.NewBoard(st, engine, cache, cfg.LeaderboardCacheTTL(), logger.Named("leaderboard"))
	recorder := scoring.NewRecorder(st, engine, logger.Named("scoring"),
		scoring.WithInvalidator(board),
		scoring.WithMetrics(m),
	)
	svc := hints.NewService(st, catalog.New(st, cache, cfg.HintCacheTTL()), logger.Named("hints"), hints.WithMetrics(m))
	sweeper := hints.NewSweeper(svc, cfg.AutoApproveAfter(), cfg.HintSweepBatchSize)

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		hints.RunEvery(ctx, cfg.SweepInterval(), sweeper,
			hints.NewRedisLease(rc, hints.DefaultLeaseKey, cfg.SweepLeaseTTL()),
			logger.Named("sweeper"))
	}()

	r := routes.SetupRouter(cfg, routes.Dependencies{
		Store:    st,
		Hints:    svc,
		Sweeper:  sweeper,
		Recorder: recorder,
		Board:    board,
		Metrics:  m,
		Gatherer: reg,
		Logger:   logger,
	})

	stopWorkers := func() {
		cancel()
		<-sweepDone
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r, stopWorkers); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

// recordPoolStats samples the database pool until ctx is cancelled.
func recordPoolStats(ctx context.Context, stats func() sql.DBStats, m *metrics.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		m.RecordDBPoolStats(stats())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
