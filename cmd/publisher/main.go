// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: main.go — publisher entrypoint
//
// Wires config, logging, the diagnostics endpoint and the Publisher loop
// together. Signal handling, CLI flag parsing and TUI rendering are kept
// minimal and outside the core loop.
// ─────────────────────────────────────────────────────────────────────────────
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tickfeed/internal/config"
	"tickfeed/internal/diagnostics"
	"tickfeed/internal/logging"
	"tickfeed/internal/publisher"
	"tickfeed/internal/symbolnames"
	"tickfeed/internal/ticksource"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "publisher:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadPublisher()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{FilePath: cfg.LogFilePath})
	if err != nil {
		return err
	}
	defer log.Sync()

	market := ticksource.Neutral
	switch cfg.MarketCondition {
	case "bullish":
		market = ticksource.Bullish
	case "bearish":
		market = ticksource.Bearish
	}

	pub, err := publisher.New(publisher.Config{
		Port:           cfg.Port,
		NumSymbols:     cfg.NumSymbols,
		TickRate:       cfg.TickRate,
		Market:         market,
		FaultInjection: cfg.FaultInjection,
		SendBufBytes:   cfg.SendBufBytes,
		SymbolNames:    cfg.SymbolNames,
	}, log)
	if err != nil {
		return fmt.Errorf("publisher init: %w", err)
	}

	if len(cfg.SymbolNames) > 0 {
		sample := symbolnames.Name(0, cfg.SymbolNames)
		log.Info("symbol names configured", zap.Int("count", len(cfg.SymbolNames)), zap.String("symbol_0", sample))
	}

	var diag *diagnostics.Server
	if cfg.DiagAddr != "" {
		diag, err = diagnostics.Start(cfg.DiagAddr, func() any { return pub.Stats() })
		if err != nil {
			log.Warn("diagnostics endpoint failed to start", zap.Error(err))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		pub.Stop()
	}()

	log.Info("publisher starting", zap.Int("port", cfg.Port), zap.Int("num_symbols", cfg.NumSymbols),
		zap.Int("tick_rate", cfg.TickRate), zap.String("market", cfg.MarketCondition))

	err = pub.Run()
	if diag != nil {
		diag.Stop(context.Background())
	}
	return err
}
