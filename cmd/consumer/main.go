// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: main.go — consumer entrypoint
//
// Wires config, logging, the diagnostics endpoint and the Consumer loop
// together. A presentation layer (TUI rendering, keystroke handling)
// would read the cache and histogram this entrypoint exposes; neither
// is rendered here.
// ─────────────────────────────────────────────────────────────────────────────
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tickfeed/internal/config"
	"tickfeed/internal/consumer"
	"tickfeed/internal/diagnostics"
	"tickfeed/internal/logging"
	"tickfeed/internal/symbolnames"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "consumer:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConsumer()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Options{FilePath: cfg.LogFilePath})
	if err != nil {
		return err
	}
	defer log.Sync()

	subIDs := make([]uint16, len(cfg.SubscribeSymbols))
	for i, id := range cfg.SubscribeSymbols {
		subIDs[i] = uint16(id)
	}

	cons, err := consumer.New(consumer.Config{
		Host:             cfg.Host,
		Port:             cfg.Port,
		ConnectTimeout:   time.Duration(cfg.ConnectTimeoutMs) * time.Millisecond,
		SubscribeSymbols: subIDs,
		ReconnectEnabled: cfg.ReconnectEnabled,
		RecvBufBytes:     cfg.RecvBufBytes,
		DumpPath:         cfg.DumpPath,
		SymbolNames:      cfg.SymbolNames,
	}, log)
	if err != nil {
		return fmt.Errorf("consumer init: %w", err)
	}

	if len(cfg.SymbolNames) > 0 {
		sample := symbolnames.Name(0, cfg.SymbolNames)
		log.Info("symbol names configured", zap.Int("count", len(cfg.SymbolNames)), zap.String("symbol_0", sample))
	}

	var diag *diagnostics.Server
	if cfg.DiagAddr != "" {
		diag, err = diagnostics.Start(cfg.DiagAddr, func() any { return cons.Stats() })
		if err != nil {
			log.Warn("diagnostics endpoint failed to start", zap.Error(err))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		cons.Stop()
	}()

	log.Info("consumer starting", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))

	err = cons.Run()
	if diag != nil {
		diag.Stop(context.Background())
	}
	return err
}
