// Package main is the entry point for the tick engine.
// It initializes all components and starts the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/northbeam/tickengine/api"
	"github.com/northbeam/tickengine/config"
	"github.com/northbeam/tickengine/controller"
	"github.com/northbeam/tickengine/data"
	"github.com/northbeam/tickengine/data/providers"
	"github.com/northbeam/tickengine/eventbus"
	"github.com/northbeam/tickengine/exchange"
	"github.com/northbeam/tickengine/execution"
	"github.com/northbeam/tickengine/instance"
	"github.com/northbeam/tickengine/notifications"
	"github.com/northbeam/tickengine/realtime"
	"github.com/northbeam/tickengine/risk"
	"github.com/northbeam/tickengine/store"
	"github.com/northbeam/tickengine/strategies"
	"github.com/northbeam/tickengine/tick"
)

func main() {
	// Configure zerolog for structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("Starting Tick Engine...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Log trading mode warning
	if cfg.IsLive() {
		log.Warn().Msg("⚠️  LIVE TRADING MODE - Real money at risk!")
	} else {
		log.Info().Msg("📝 Paper trading mode (dry run)")
	}

	// Initialize WebSocket Manager
	wsManager := realtime.NewWebSocketManager()
	go wsManager.Run()

	// Initialize Data Provider based on configuration
	log.Info().Msgf("Using data provider: %s", cfg.DataProvider)
	provider, err := providers.NewProviderFromString(cfg.DataProvider, cfg)
	if err != nil {
		log.Fatal().Err(err).Msgf("Failed to create data provider: %s", cfg.DataProvider)
	}
	exchangeAdapter := exchange.New(provider)

	// Initialize Strategy Registry, wired to the Exchange Adapter
	registry := strategies.NewRegistry()
	log.Info().Msgf("Enabled strategies: %v", cfg.EnabledStrategies)
	if len(cfg.EnabledStrategies) == 0 {
		log.Warn().Msg("No strategies enabled - engine will run but not schedule signals")
	}
	for _, strategyName := range cfg.EnabledStrategies {
		strategy, err := strategies.NewStrategyByName(strategyName, exchangeAdapter, "", []string{"global"})
		if err != nil {
			log.Fatal().Err(err).Msgf("Failed to create strategy: %s", strategyName)
		}
		if err := registry.Register(strategy); err != nil {
			log.Fatal().Err(err).Msgf("Failed to register strategy: %s", strategyName)
		}
		log.Info().Msgf("✓ Registered strategy: %s", strategyName)
	}

	// Initialize Database (orders/positions)
	db, err := data.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Initialize Order Store
	orderStore := data.NewOrderStore(db)

	// Initialize Execution Layer (Paper Trading for now)
	initialCash := 100000.0
	broker := execution.NewPaperBrokerWithFees(initialCash, cfg.Fees())
	if err := broker.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to paper broker")
	}

	// Initialize Order Manager with persistence and WebSocket
	orderManager := execution.NewOrderManager(broker, nil, orderStore, wsManager)
	if err := orderManager.LoadOrders(); err != nil {
		log.Warn().Err(err).Msg("Failed to load orders from database")
	}

	riskManager := execution.NewRiskManager(execution.DefaultRiskConfig(), broker)

	// Initialize the Persistence Store each instance's Signal Store sits on
	if err := os.MkdirAll(cfg.PersistenceRoot, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create persistence root")
	}
	signalDB, err := store.Open(cfg.PersistenceRoot + "/signals.db")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open signal store")
	}
	defer signalDB.Close()
	signalStore, err := store.NewSignalStore(signalDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize signal store")
	}
	candleCache, err := store.NewCandleCache(signalDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize candle cache")
	}
	exchangeAdapter.WithCache(candleCache)

	// Tick Engine: Exchange Adapter + Risk Engine + Event Bus + Signal Store
	bus := eventbus.New()
	riskEngine := risk.New()

	// "global" gates every signal that schedules without a more specific
	// risk name of its own: no more than execution.DefaultRiskConfig's
	// open-order ceiling active at once, no stop placed further than 5%
	// from entry, and a halt once the day's realized loss exceeds the
	// same ceiling execution.RiskManager enforces on settlement fills.
	dailyLoss := risk.NewDailyLossTracker(execution.DefaultRiskConfig().MaxDailyLoss)
	riskEngine.Register("global", risk.Merge(
		risk.MaxOpenPositions(execution.DefaultRiskConfig().MaxOpenOrders),
		risk.MaxRiskPerSignal(0.05),
		dailyLoss.Rule(),
	))

	tickEngine := tick.New(exchangeAdapter, riskEngine, bus, signalStore, cfg.Fees())

	// Controller: Instance Registry wired to the Tick Engine, with
	// Settlement booking simulated fills through the paper-trading stack.
	instances := instance.New()
	settlement := controller.NewSettlement(orderManager, broker, riskManager, dailyLoss, cfg.SettlementNotional)
	ctrl := controller.New(instances, registry, tickEngine, cfg.DumpRoot, settlement)

	// Notifications and the WebSocket fan-out both listen on the same bus
	// the Controller's recorder and Settlement are already subscribed to,
	// so every tick/partial/breakeven/risk-reject event reaches a browser,
	// and every risk-reject and breakeven event reaches the notification
	// feed, the moment it's published.
	notifStore := data.NewNotificationStore(db)
	notifManager := notifications.NewManager(notifStore, wsManager)
	notifManager.Subscribe(bus)
	wsManager.Subscribe(bus)

	// Create API router with WebSocket Manager
	router := api.NewRouter(cfg, registry, provider, orderManager, ctrl, wsManager, notifManager)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Msgf("🚀 API server listening on %s:%d", cfg.ServerHost, cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}
