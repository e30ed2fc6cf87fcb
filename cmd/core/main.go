// qaultra-core is a self-matched quantitative trading backend: an
// Account/Position Ledger, an Order Matching Engine, an Algorithmic Order
// Splitter, and a Market-Data Broadcast Hub, wired together by
// internal/corewiring.
//
// Architecture:
//
//	main.go                   — entry point: loads config, wires the system, waits for SIGINT/SIGTERM
//	internal/account          — account aggregate: cash, positions, orders, trades, settlement
//	internal/position         — per-symbol position ledger entry
//	internal/order            — order value object
//	internal/preset           — instrument preset table (tick size, commission, margin)
//	internal/matching         — sharded multi-symbol order matching engine
//	internal/splitter         — TWAP/VWAP/Iceberg/Custom order splitting
//	internal/broadcast        — fixed-size block market-data broadcast hub (in-process + websocket)
//	internal/snapshot         — JSON file persistence for account QIFI snapshots
//	internal/corewiring       — wires account settlement, order submission, and split-plan dispatch together
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"qaultra-core/internal/config"
	"qaultra-core/internal/corewiring"
	"qaultra-core/internal/preset"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("CORE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	presets := preset.NewTable()
	if cfg.Presets.Path != "" {
		if err := presets.LoadFromFile(cfg.Presets.Path); err != nil {
			logger.Error("failed to load preset overrides", "path", cfg.Presets.Path, "error", err)
			os.Exit(1)
		}
	}

	sys, err := corewiring.New(cfg, presets, logger)
	if err != nil {
		logger.Error("failed to wire core system", "error", err)
		os.Exit(1)
	}

	sys.Start()

	logger.Info("qaultra-core started",
		"environment", cfg.Environment,
		"matching_workers", cfg.Matching.Workers,
		"broadcast_preset", cfg.Broadcast.Preset,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	sys.Stop()
	logger.Info("shutdown complete")
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
