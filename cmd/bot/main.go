package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cdcbot/internal/broker"
	"cdcbot/internal/config"
	"cdcbot/internal/engine"
	"cdcbot/internal/exchange"
	"cdcbot/internal/logging"
	"cdcbot/internal/risk"
	"cdcbot/internal/state"
	"cdcbot/internal/status"
	"cdcbot/internal/strategy"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, uuid.NewString(), logger)
	cancel()
	if err != nil {
		logger.Error("bot stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run wires the bot and blocks until ctx is cancelled, or after one cycle
// with -once. Everything it opens is closed before it returns.
func run(ctx context.Context, cfg config.Config, runID string, logger *zap.Logger) error {
	logger = logger.With(zap.String("run_id", runID))

	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID, logger)
	if err != nil {
		return fmt.Errorf("decision logger: %w", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			logger.Error("failed to close decision logger", zap.Error(err))
		}
	}()

	exchangeClient := exchange.New(exchange.Config{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		SecretKey: cfg.APISecret,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
	}, logger)
	brokerClient := broker.New(exchangeClient, logger)
	store := state.NewStore(cfg.Instrument)

	strategyImpl := strategy.ProfitTarget{
		Quantity:    cfg.Quantity,
		ProfitPct:   cfg.ProfitPct,
		EpsilonUp:   cfg.EpsilonUp,
		EpsilonDown: cfg.EpsilonDown,
		PriceTick:   cfg.PriceTick,
	}
	gate := risk.NewGate(logger)
	engineImpl := engine.New(cfg, strategyImpl, gate, brokerClient, store, decisions, logger)

	logger.Info("starting bot",
		zap.String("mode", string(cfg.Mode)),
		zap.String("instrument", cfg.Instrument),
		zap.Stringer("quantity", cfg.Quantity),
		zap.Stringer("profit", cfg.ProfitPct),
		zap.Duration("interval", cfg.PollInterval),
	)

	if cfg.Once {
		decision := engineImpl.Cycle(ctx)
		logger.Info("single cycle finished", zap.String("result", decision.Result))
		return nil
	}

	if cfg.StatusAddr != "" {
		listener, err := net.Listen("tcp", cfg.StatusAddr)
		if err != nil {
			return fmt.Errorf("status listener %s: %w", cfg.StatusAddr, err)
		}
		statusServer := status.NewServer(store, cfg.StatusOrigins, logger)
		go func() {
			if err := statusServer.Serve(listener); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := statusServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("status server shutdown failed", zap.Error(err))
			}
		}()
	}

	if cfg.ReconcileInterval > 0 {
		go engine.ReconcileLoop(ctx, brokerClient, store, cfg.Instrument, cfg.ReconcileInterval, logger)
	}

	if err := engineImpl.Run(ctx, cfg.PollInterval); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("engine: %w", err)
	}

	logger.Info("bot shutdown complete")
	return nil
}
