// backtest_v2 — a production-grade event-driven backtesting engine for
// 15-minute binary ("up/down") prediction markets settled by an external
// oracle. Replays a prerecorded dataset against a strategy and emits a
// certified, reproducible performance report.
//
// Architecture:
//
//	cmd/backtest/main.go     — entry point: loads config, replays a dataset, prints the Result
//	internal/engine          — Orchestrator: owns every subsystem, drives the event loop
//	internal/clock           — EventQueue min-heap and VisibilityWatermark
//	internal/book            — BookManager and QueueModel
//	internal/oms             — order state machine and venue constraints
//	internal/ledger          — fixed-point double-entry ledger
//	internal/settlement      — SettlementEngine binding windows to oracle rounds
//	internal/fillgate        — MakerFillGate, the sole path to a maker fill
//	internal/integrity       — StreamIntegrityGuard duplicate/gap/out-of-order handling
//	internal/hermetic        — sandbox boundary around strategy callbacks
//	internal/store           — read-only GORM/SQLite dataset reader
//	internal/replay          — turns dataset rows into EventQueue pushes and windows
//	internal/feedloader      — outer boundary: fetches dataset artifacts, live tail for visibility only
//	internal/gate            — adversarial zero-edge gate suite
//	internal/trust           — truthfulness certificate and verdict
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"backtestv2/internal/config"
	"backtestv2/internal/engine"
	"backtestv2/internal/fingerprint"
	"backtestv2/internal/replay"
	"backtestv2/internal/store"
	"backtestv2/internal/strategy"
	"backtestv2/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("BACKTEST_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to config.yaml")
	requireTrusted := flag.Bool("require-trusted", false, "exit non-zero if the run's trust verdict is not Trusted")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid config", "error", e)
		}
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

	result, err := run(cfg, logger)
	if err != nil {
		logger.Error("backtest run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("backtest complete",
		"operating_mode", result.OperatingMode,
		"events_processed", result.Counters.EventsProcessed,
		"final_cash", result.Economics.FinalCash.String(),
		"realized_pnl", result.Economics.RealizedPnL.String(),
		"total_fees", result.Economics.TotalFees.String(),
		"trust_verdict", result.Integrity.Certificate.Verdict.String(),
		"aborted", result.Aborted,
	)

	if result.Aborted {
		logger.Error("run aborted", "reason", result.AbortReason)
		os.Exit(1)
	}
	if *requireTrusted && result.Integrity.Certificate.Verdict.String() != "Trusted" {
		logger.Error("trust verdict not Trusted", "verdict", result.Integrity.Certificate.Verdict.String())
		os.Exit(1)
	}
}

// run opens the dataset, discovers its markets, loads every stream and
// settlement window, and drives the Orchestrator to completion. Splitting
// this out of main keeps the replay wiring testable without touching
// os.Exit.
func run(cfg *config.Config, logger *slog.Logger) (engine.Result, error) {
	ds, err := store.Open(cfg.Store.DatasetPath)
	if err != nil {
		return engine.Result{}, fmt.Errorf("open dataset: %w", err)
	}

	markets, err := ds.Markets()
	if err != nil {
		return engine.Result{}, fmt.Errorf("discover markets: %w", err)
	}
	if len(markets) == 0 {
		return engine.Result{}, fmt.Errorf("dataset %s has no markets", cfg.Store.DatasetPath)
	}

	orchestrator := engine.New(cfg, strategy.NullStrategy{}, logger)

	manifest, err := ds.Manifest()
	if err != nil {
		return engine.Result{}, fmt.Errorf("dataset manifest: %w", err)
	}
	orchestrator.SetDatasetHash(fingerprint.HashBytes([]byte(manifest)))

	windowLengthNs := cfg.Settlement.WindowLengthSeconds * 1_000_000_000
	for _, mt := range markets {
		if err := replay.LoadToken(orchestrator.Queue(), ds, mt.TokenId); err != nil {
			return engine.Result{}, err
		}

		minNs, maxNs, err := ds.TimeBounds(mt.TokenId)
		if err != nil {
			return engine.Result{}, fmt.Errorf("time bounds for %s: %w", mt.TokenId, err)
		}
		for _, w := range replay.AlignedWindows(types.MarketId(mt.MarketId), minNs, maxNs, windowLengthNs) {
			orchestrator.OpenMarket(w.MarketId, w.StartNs, w.EndNs)
		}
		logger.Info("loaded market", "market_id", mt.MarketId, "token_id", mt.TokenId)
	}

	if err := replay.LoadOracleFeed(orchestrator.Queue(), ds, cfg.Oracle.FeedId); err != nil {
		return engine.Result{}, err
	}

	return orchestrator.Run(), nil
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
