package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imminent-crash/server/internal/domain/market"
	"github.com/imminent-crash/server/internal/engine"
	"github.com/imminent-crash/server/internal/infra/marketdata"
	"github.com/imminent-crash/server/internal/infra/storage"
	"github.com/imminent-crash/server/internal/network"
	"github.com/imminent-crash/server/internal/platform/config"
	"github.com/imminent-crash/server/internal/platform/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})

	log.Info().Msg("Starting Imminent Crash server")

	// Initialize highscore storage
	db, err := storage.InitSQLite(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()
	scores := storage.NewSQLiteHighscoreRepository(db)

	// Load historical market data
	prices, err := marketdata.Load(cfg.MarketDataPath, market.DefaultCatalog())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load market data")
	}
	log.Info().
		Time("min_date", prices.MinDate()).
		Time("max_date", prices.MaxDate()).
		Msg("Market data loaded")

	// Load the life event script
	script := engine.DefaultScript()
	if cfg.ScriptPath != "" {
		script, err = engine.LoadScript(cfg.ScriptPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.ScriptPath).Msg("Failed to load script")
		}
	}

	// Initialize the session registry
	engineCfg := engine.DefaultConfig()
	engineCfg.TickPeriod = cfg.TickPeriod
	engineCfg.InitialBalance = cfg.InitialBalance
	engineCfg.BaselineCost = cfg.BaselineCost
	engineCfg.LookbackLimit = cfg.LookbackLimit
	engineCfg.Script = script
	registry := engine.NewRegistry(prices, engineCfg, logger.Component(log, "engine"))

	// Initialize HTTP server
	srv := network.NewServer(network.ServerConfig{
		Addr:     cfg.ListenAddr,
		Registry: registry,
		Scores:   scores,
		Log:      log,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Str("addr", cfg.ListenAddr).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	registry.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
