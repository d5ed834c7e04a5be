package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"trading-tick-controller/config"
	"trading-tick-controller/internal/api"
	"trading-tick-controller/internal/auth"
	"trading-tick-controller/internal/circuit"
	"trading-tick-controller/internal/controller"
	"trading-tick-controller/internal/cooldown"
	"trading-tick-controller/internal/database"
	"trading-tick-controller/internal/decision"
	"trading-tick-controller/internal/events"
	"trading-tick-controller/internal/feed"
	"trading-tick-controller/internal/logging"
	"trading-tick-controller/internal/metrics"
	"trading-tick-controller/internal/regime"
	"trading-tick-controller/internal/risk"
	"trading-tick-controller/internal/slots"
	"trading-tick-controller/internal/store"
	"trading-tick-controller/internal/trim"
	"trading-tick-controller/internal/venue"
)

func main() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	metrics.Register()

	// Shared state store (Redis)
	stateStore, err := store.NewClient(store.Config{
		Address:     cfg.StoreConfig.Address,
		Password:    cfg.StoreConfig.Password,
		DB:          cfg.StoreConfig.DB,
		PoolSize:    cfg.StoreConfig.PoolSize,
		CallTimeout: cfg.StoreConfig.CallTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to state store: %v", err)
	}
	defer stateStore.Close()

	// Postgres for positions, realizations, and the decision audit log
	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	positions := database.NewPositionRepository(db)
	audit := database.NewAuditRepository(db)

	eventBus := events.NewEventBus()

	// Execution venue. Paper trading is the default; live execution is a
	// separate deployment decision.
	var execVenue venue.Venue
	if cfg.TradingConfig.DryRun {
		execVenue = venue.NewPaperVenue(cfg.TradingConfig.PaperBalance)
		logger.Info("Paper venue initialized", "balance", cfg.TradingConfig.PaperBalance)
	} else {
		log.Fatalf("Live venue not configured; set TRADING_DRY_RUN=true")
	}

	engine := decision.NewEngine(decision.DefaultConfig())

	riskMgr := risk.NewManager(risk.Config{
		RiskPerTradePct:     cfg.RiskConfig.RiskPerTradePct,
		MaxDailyLossPct:     cfg.RiskConfig.MaxDailyLossPct,
		MaxPortfolioRiskPct: cfg.RiskConfig.MaxPortfolioRiskPct,
		FeeBufferPct:        cfg.RiskConfig.FeeBufferPct,
	}, positions, logger)

	allocator := slots.NewAllocator(stateStore, cfg.TradingConfig.SlotCapitalUnit, zlog)
	cooldowns := cooldown.NewRegistry(stateStore, logger)

	trimmer := trim.NewEvaluator(trim.Config{
		MinCandidateConfidence: cfg.TrimConfig.MinCandidateConfidence,
		WinnerConfidenceDelta:  cfg.TrimConfig.WinnerConfidenceDelta,
		LoserConfidenceDelta:   cfg.TrimConfig.LoserConfidenceDelta,
		AdverseThresholdPct:    cfg.TrimConfig.AdverseThresholdPct,
		MaxAcceptableLossPct:   cfg.TrimConfig.MaxAcceptableLossPct,
		TrimFraction:           cfg.TrimConfig.TrimFraction,
	}, zlog)

	signalSource := feed.NewHTTPSignalSource(cfg.FeedConfig.SignalURL, cfg.FeedConfig.Timeout)
	macroFeed := feed.NewHTTPMacroFeed(cfg.FeedConfig.MacroURL, cfg.FeedConfig.Timeout)

	ctrl := controller.New(
		controller.Config{
			CooldownWindow:  cfg.TradingConfig.CooldownWindow,
			RewardRiskRatio: cfg.TradingConfig.RewardRiskRatio,
			Circuit: circuit.Config{
				L1Drop24h:  cfg.CircuitConfig.L1Drop24h,
				L2Drop24h:  cfg.CircuitConfig.L2Drop24h,
				L3Drop7d:   cfg.CircuitConfig.L3Drop7d,
				L2Cooldown: cfg.CircuitConfig.L2Cooldown,
				L3Cooldown: cfg.CircuitConfig.L3Cooldown,
			},
			Regime: regime.ClassifierConfig{
				VolRiskOff:   cfg.RegimeConfig.VolRiskOff,
				VolCrash:     cfg.RegimeConfig.VolCrash,
				Crash24hDrop: cfg.RegimeConfig.Crash24hDrop,
			},
		},
		signalSource,
		macroFeed,
		engine,
		riskMgr,
		allocator,
		cooldowns,
		trimmer,
		execVenue,
		positions,
		audit,
		stateStore,
		eventBus,
		logger,
	)

	authService := auth.NewService(
		cfg.AuthConfig.OperatorKeyHash,
		cfg.AuthConfig.JWTSecret,
		cfg.AuthConfig.TokenDuration,
	)

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		ProductionMode: cfg.ServerConfig.ProductionMode,
		AllowedOrigins: cfg.ServerConfig.AllowedOrigins,
	}, positions, audit, stateStore, allocator, ctrl, eventBus, authService, logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()

	// Reconcile the slot counter against the venue before the first tick.
	if err := ctrl.SyncSlots(ctx); err != nil {
		logger.Warn("Initial slot sync failed", "error", err.Error())
	}

	runCtx, cancelTicks := context.WithCancel(ctx)
	go tickLoop(runCtx, ctrl, cfg.TradingConfig.TickInterval, cfg.TradingConfig.SlotSyncInterval, logger)

	log.Println("Starting trading tick controller...")
	log.Printf("Dry run mode: %v", cfg.TradingConfig.DryRun)
	log.Printf("API available at http://%s:%d", cfg.ServerConfig.Host, cfg.ServerConfig.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancelTicks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down API server: %v", err)
	}

	log.Println("Shutdown complete")
}

// tickLoop fires one controller cycle per interval. Cycles run in their
// own goroutines so a slow cycle never delays the next one; the shared
// store keeps overlapping cycles consistent.
func tickLoop(ctx context.Context, ctrl *controller.Controller, tickInterval, syncInterval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	syncTicker := time.NewTicker(syncInterval)
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go ctrl.RunTick(ctx)
		case <-syncTicker.C:
			go func() {
				if err := ctrl.SyncSlots(ctx); err != nil {
					logger.Warn("Slot sync failed", "error", err.Error())
				}
			}()
		}
	}
}
