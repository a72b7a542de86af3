package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jax-papertrader/internal/accounting"
	"jax-papertrader/internal/auth"
	"jax-papertrader/internal/candles"
	"jax-papertrader/internal/config"
	"jax-papertrader/internal/database"
	"jax-papertrader/internal/execution"
	"jax-papertrader/internal/httpapi"
	"jax-papertrader/internal/marketdata"
	"jax-papertrader/internal/observability"
	"jax-papertrader/internal/oms"
	"jax-papertrader/internal/orchestrator"
	"jax-papertrader/internal/pricing"
	"jax-papertrader/internal/risk"
	"jax-papertrader/internal/strategy"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

const defaultStrategyID = "ema_cross_atr_v1"

func main() {
	configFlag := flag.String("config", "", "path to config file (accepted but not read; configuration comes from environment variables)")
	flag.Parse()
	if *configFlag != "" {
		log.Printf("config flag provided: %s (note: the file is not read; configuration comes from environment variables)", *configFlag)
	}

	cfg := config.Load()
	log.Printf("starting papertrader v%s (built: %s)", version, buildTime)
	log.Printf("config: %s", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := database.DefaultConfig()
	dbCfg.DSN = cfg.DSN
	dbCfg.MigrationsPath = cfg.MigrationsDir
	dbCfg.RetryAttempts = config.DBRetryAttempts
	dbCfg.RetryDelay = config.DBRetryDelay

	db, err := database.ConnectWithMigrations(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database and run migrations: %v", err)
	}
	defer db.Close()
	log.Println("database connected, migrations applied")

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		log.Fatalf("failed to create pgx pool: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping pgx pool: %v", err)
	}

	if err := bootstrapAccount(ctx, pool, cfg); err != nil {
		log.Fatalf("failed to bootstrap account: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	candleStore := candles.NewPostgresStore(pool)
	vendor := buildVendorAdapter(cfg)
	ingestor := candles.NewIngestor(candleStore, vendor, cfg.IngestOverlapCandles)
	retention := candles.NewRetention(candleStore)

	if err := seedInitialBackfill(ctx, ingestor, cfg); err != nil {
		log.Printf("warning: initial backfill failed: %v", err)
	}

	pricingModel := pricing.NewModel(pricing.Config{
		SpreadPips:   cfg.ExecutionSpreadPips,
		SlippagePips: cfg.ExecutionSlippagePips,
		PipSize:      cfg.PipSize,
	})

	policy, err := risk.LoadPolicy(cfg.RiskPolicyFile)
	if err != nil {
		log.Fatalf("failed to load risk policy: %v", err)
	}
	riskEngine := risk.NewEngineWithPolicy(risk.NewEnforcer(policy))
	baselines := risk.NewPostgresBaselineStore(pool)
	riskLimits := risk.Limits{
		MaxOpenPositions:          cfg.RiskMaxOpenPositions,
		MaxOpenPositionsPerSymbol: cfg.RiskMaxOpenPositionsPerSymbol,
		MaxTotalNotional:          cfg.RiskMaxTotalNotional,
		MaxSymbolNotional:         cfg.RiskMaxSymbolNotional,
		RiskPerTradePct:           cfg.RiskPerTradePct,
		DailyLossLimitPct:         cfg.RiskDailyLossLimitPct,
		DailyLossLimitAmount:      cfg.RiskDailyLossLimitAmount,
		Leverage:                  cfg.AccountLeverage,
		LotStep:                   cfg.RiskLotStep,
	}

	acctStore := accounting.NewPostgresStore(pool)
	acctEngine := accounting.NewEngine(acctStore, pricingModel, cfg.AccountID, cfg.AccountLeverage)

	riskInputs := &oms.AccountingRiskInputs{
		Accounting: acctEngine,
		Baselines:  baselines,
		AccountID:  cfg.AccountID,
		Limits:     riskLimits,
	}

	allowedSymbols := make(map[string]bool, len(cfg.OMSAllowedSymbols))
	for _, s := range cfg.OMSAllowedSymbols {
		allowedSymbols[s] = true
	}
	omsStore := oms.NewPostgresStore(pool)
	omsService := oms.NewService(omsStore, riskEngine, riskInputs, oms.Config{
		MinQty:         cfg.OMSMinQty,
		AllowedSymbols: allowedSymbols,
		PipSize:        cfg.PipSize,
	}, nil)

	executionStore := execution.NewPostgresStore(pool)
	executionEngine := execution.NewEngine(executionStore, pricingModel)

	strategies := strategy.NewRegistry()
	if err := strategies.Register(strategy.NewEMACrossATR(
		cfg.StratEMAFast, cfg.StratEMASlow, cfg.StratATRPeriod, cfg.StratATRSLMult, cfg.StratATRTPMult,
	)); err != nil {
		log.Fatalf("failed to register strategy: %v", err)
	}

	reportStore := orchestrator.NewPostgresStore(pool)
	orch := orchestrator.NewOrchestrator(
		candleStore, reportStore, strategies, defaultStrategyID,
		omsService, executionEngine, acctEngine,
		orchestrator.Config{
			Symbol:          cfg.Symbol,
			Timeframe:       cfg.Timeframe,
			WindowSize:      cfg.WindowSize,
			DefaultOrderQty: cfg.DefaultOrderQty,
		},
	)

	scheduler := orchestrator.NewScheduler(orch, candleStore, cfg.Symbol, cfg.Timeframe, cfg.SchedulerPollInterval)
	if cfg.SchedulerEnabled {
		scheduler.Start(ctx)
		log.Printf("scheduler started for %s/%s, polling every %s", cfg.Symbol, cfg.Timeframe, cfg.SchedulerPollInterval)
	}

	go pollMetrics(ctx, metrics, scheduler, acctEngine, cfg)

	var authManager *auth.Manager
	if cfg.JWTSecret != "" {
		authManager, err = auth.NewManager(auth.Config{
			Secret: []byte(cfg.JWTSecret),
			Expiry: cfg.JWTExpiry,
			Issuer: "papertrader",
		})
		if err != nil {
			log.Fatalf("failed to build auth manager: %v", err)
		}
	} else {
		log.Println("JWT_SECRET unset: admin routes are unauthenticated (development only)")
	}

	api := httpapi.NewServer(&httpapi.Server{
		Candles:             candleStore,
		Ingestor:            ingestor,
		Retention:           retention,
		OMS:                 omsService,
		Risk:                riskEngine,
		RiskLimits:          riskLimits,
		RiskInputs:          riskInputs,
		Accounting:          acctEngine,
		Orchestrator:        orch,
		Reports:             reportStore,
		Strategies:          strategies,
		Auth:                authManager,
		Symbol:              cfg.Symbol,
		Timeframe:           cfg.Timeframe,
		InitialBackfillDays: cfg.InitialBackfillDays,
		PipSize:             cfg.PipSize,
	})

	mux := http.NewServeMux()
	mux.Handle("/", api)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutdown signal received, gracefully stopping...")
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("papertrader stopped")
}

// buildVendorAdapter selects the ingestion vendor per MARKET_DATA_PROVIDER:
// "mock" drives the deterministic synthetic generator used for local runs
// and tests; "real" hits a REST vendor behind a circuit breaker, wrapped in
// an optional Redis cache when REDIS_URL is set.
func buildVendorAdapter(cfg *config.Config) marketdata.VendorAdapter {
	if cfg.MarketDataProvider != "real" {
		return marketdata.NewSyntheticAdapter()
	}

	rest := marketdata.NewRESTAdapter(cfg.VendorBaseURL)
	if cfg.RedisURL == "" {
		return rest
	}
	cache, err := marketdata.NewCache(cfg.RedisURL, cfg.RedisTTL)
	if err != nil {
		log.Printf("warning: redis cache unavailable, ingesting uncached: %v", err)
		return rest
	}
	return marketdata.NewCachedAdapter(rest, cache)
}

// bootstrapAccount upserts the single paper-trading account row from config
// on startup so a fresh deployment has a balance for the accounting engine
// to read before the scheduler ever runs a cycle. Existing accounts are left
// untouched — only a missing row gets seeded.
func bootstrapAccount(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
	const query = `
		INSERT INTO accounts (id, balance, currency, leverage)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`
	_, err := pool.Exec(ctx, query, cfg.AccountID, cfg.InitialBalance, cfg.AccountCurrency, cfg.AccountLeverage)
	return err
}

// seedInitialBackfill pulls InitialBackfillDays of history on startup so a
// fresh deployment has candles to analyze before the scheduler's first poll.
func seedInitialBackfill(ctx context.Context, ingestor *candles.Ingestor, cfg *config.Config) error {
	if cfg.InitialBackfillDays <= 0 {
		return nil
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -cfg.InitialBackfillDays)
	_, err := ingestor.Backfill(ctx, cfg.Symbol, cfg.Timeframe, start, end)
	return err
}

// pollMetrics periodically samples scheduler state and account equity into
// the gauge metrics, since those are snapshots of live state rather than
// counters any single call site can increment.
func pollMetrics(ctx context.Context, metrics *observability.Metrics, sched *orchestrator.Scheduler, acct *accounting.Engine, cfg *config.Config) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	states := []orchestrator.SchedulerState{orchestrator.StateStopped, orchestrator.StateRunning, orchestrator.StateError}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, _ := sched.Snapshot()
			for _, st := range states {
				v := 0.0
				if st == current {
					v = 1
				}
				metrics.SchedulerState.WithLabelValues(cfg.Symbol, cfg.Timeframe, string(st)).Set(v)
			}

			if snap, found, err := acct.LatestSnapshot(ctx); err == nil && found {
				metrics.Equity.Set(snap.Equity)
			}
			if positions, err := acct.Positions(ctx); err == nil {
				open := 0
				for _, p := range positions {
					if p.NetQty != 0 {
						open++
					}
				}
				metrics.OpenPositions.Set(float64(open))
			}
		}
	}
}
