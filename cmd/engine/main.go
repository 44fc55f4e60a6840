// Command engine is the process entrypoint for the engine manager (spec.md
// §4.7): it loads the configuration envelope, wires the exchange client,
// risk core and backtest pool, starts the configured grid under a fixed id,
// and serves until an interrupt signal triggers graceful shutdown.
//
// Grounded on the teacher's cmd/live_server/main.go: flag-based config path,
// structured-logger bootstrap, telemetry setup before any background work
// starts, and a signal channel driving a timeout-bounded shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DaviRain-Su/zigquant-core/internal/backtest"
	"github.com/DaviRain-Su/zigquant-core/internal/config"
	"github.com/DaviRain-Su/zigquant-core/internal/exchange"
	"github.com/DaviRain-Su/zigquant-core/internal/manager"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/internal/risk"
	"github.com/DaviRain-Su/zigquant-core/pkg/logging"
	"github.com/DaviRain-Su/zigquant-core/pkg/telemetry"
)

// defaultGridID is the fixed registry key the grid configured in the
// envelope's grid section runs under. The manager's id namespace has room
// for many grids; this process only ever starts the one named in its
// config file.
const defaultGridID = "default"

func main() {
	configPath := flag.String("config", "configs/engine.yaml", "Path to configuration file")
	logLevel := flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	startingBalance := flag.Float64("paper-balance", 100000, "Starting USDT balance for the paper exchange")
	maxRetries := flag.Int("exchange-max-retries", 3, "Max retry attempts for a transient exchange error")
	minBackoff := flag.Duration("exchange-min-backoff", 200*time.Millisecond, "Minimum retry backoff for a transient exchange error")
	maxBackoff := flag.Duration("exchange-max-backoff", 5*time.Second, "Maximum retry backoff for a transient exchange error")
	rateLimit := flag.Float64("exchange-rate-limit", 20, "Requests per second allowed against the exchange client")
	flag.Parse()

	logger, err := logging.NewZapLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", "path", *configPath, "error", err)
	}
	logger.Info("configuration loaded", "path", *configPath, "grid_pair", cfg.Grid.Pair)

	tel, err := telemetry.Setup("zigquant-engine-manager")
	if err != nil {
		logger.Fatal("failed to set up telemetry", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	paper := exchange.NewPaperExchange([]exchange.Balance{
		{Asset: "USDT", Free: quant.NewFromFloat(*startingBalance)},
	})
	client := exchange.NewResilient(paper, *maxRetries, *minBackoff, *maxBackoff, *rateLimit)

	killSwitch := risk.NewKillSwitch()
	alertChannel := risk.NewLogChannel(logger)
	alerts, err := cfg.BuildAlertQueue(256, alertChannel)
	if err != nil {
		logger.Fatal("failed to build alert queue", "error", err)
	}

	maxDailyLossPct, err := cfg.BuildMaxDailyLossPct()
	if err != nil {
		logger.Fatal("invalid risk configuration", "error", err)
	}
	riskGate := risk.NewGate(killSwitch, maxDailyLossPct, alerts)

	backtestPool := backtest.NewPool(4, 32, logger)

	eng := manager.New(client, killSwitch, riskGate, alerts, backtestPool, logger)

	gridCfg, err := cfg.BuildGridConfig()
	if err != nil {
		logger.Fatal("invalid grid configuration", "error", err)
	}
	mid := gridCfg.Lower.Add(gridCfg.Upper).Div(quant.NewFromInt(2))
	spread := gridCfg.Upper.Sub(gridCfg.Lower).Div(quant.NewFromInt(int64(gridCfg.GridCount) * 4))
	paper.SetQuote(gridCfg.Pair,
		quant.Level{Price: mid.Sub(spread), Size: gridCfg.OrderSize.Mul(quant.NewFromInt(100))},
		quant.Level{Price: mid.Add(spread), Size: gridCfg.OrderSize.Mul(quant.NewFromInt(100))},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.StartGrid(ctx, defaultGridID, gridCfg); err != nil {
		logger.Fatal("failed to start configured grid", "grid_id", defaultGridID, "error", err)
	}
	logger.Info("grid started", "grid_id", defaultGridID, "pair", gridCfg.Pair.String(), "levels", gridCfg.GridCount)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

runLoop:
	for {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal, stopping gracefully")
			break runLoop
		case <-ticker.C:
			health := eng.GetSystemHealth()
			logger.Info("system health",
				"status", health.Status,
				"grids_running", health.RunningGrids,
				"strategies_running", health.RunningStrategies,
				"backtests_running", health.RunningBacktests,
				"kill_switch_active", health.KillSwitchActive,
			)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	eng.Shutdown(shutdownCtx, true)

	logger.Info("engine manager stopped")
}
