// Package main запускает HTTP-сервер и фоновые задачи сервиса greenledger.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/greenledger/internal/carbon"
	"github.com/mmeshcher/greenledger/internal/chain"
	"github.com/mmeshcher/greenledger/internal/config"
	"github.com/mmeshcher/greenledger/internal/ecopoints"
	"github.com/mmeshcher/greenledger/internal/gamification"
	"github.com/mmeshcher/greenledger/internal/handler"
	"github.com/mmeshcher/greenledger/internal/marketplace"
	"github.com/mmeshcher/greenledger/internal/middleware"
	"github.com/mmeshcher/greenledger/internal/repository"
	"github.com/mmeshcher/greenledger/internal/repository/memstore"
	"github.com/mmeshcher/greenledger/internal/scheduler"
	"github.com/mmeshcher/greenledger/internal/seed"
	"github.com/mmeshcher/greenledger/internal/service"
	"github.com/mmeshcher/greenledger/internal/store"
	"github.com/mmeshcher/greenledger/internal/wallet"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	st, err := openStore(cfg)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fixtures, err := seed.Default()
	if err != nil {
		sugar.Fatalw("fixtures error", "error", err.Error())
	}
	if _, err := seed.Apply(ctx, st, fixtures, logger); err != nil {
		sugar.Fatalw("fixtures apply error", "error", err.Error())
	}

	tokenMinter, creditMinter := newMinters(cfg)
	if cfg.UseDemoMinter() {
		sugar.Warn("chain gateway not configured, tokens are minted in demo mode")
	}

	engine := gamification.NewEngine(logger)
	ledger := wallet.NewLedger(st, cfg.HandleSuffix, logger)
	economy := ecopoints.NewEconomy(st, engine, tokenMinter, ecopoints.Config{
		ConversionRate: cfg.ConversionRate,
		AutoThreshold:  cfg.AutoThreshold,
		Multiplier:     cfg.PointsMultiplier,
	}, logger)
	market := marketplace.New(st, ledger, creditMinter, cfg.KgPerCredit, logger)

	if _, err := ledger.EnsureDefaultMerchant(ctx); err != nil {
		sugar.Fatalw("default merchant error", "error", err.Error())
	}

	svc := service.NewService(st, ledger, carbon.NewAccounting(logger), economy, engine, market, logger)
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, sessions will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	jobs := scheduler.New(logger)
	if err := registerJobs(jobs, cfg, economy, market, logger); err != nil {
		sugar.Fatalw("scheduler error", "error", err.Error())
	}

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Фоновые задачи сверки и пересчёта кредитов
	g.Go(func() error {
		return jobs.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting greenledger server", "addr", cfg.RunAddress, "postgres", cfg.DatabaseURI != "")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.DatabaseURI == "" {
		return memstore.New(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}

func newMinters(cfg *config.Config) (chain.Minter, chain.Minter) {
	if cfg.UseDemoMinter() {
		return chain.NewDemoMinter(), chain.NewDemoMinter()
	}
	return chain.NewClient(cfg.ChainGatewayAddress, cfg.EcoTokenAddress, cfg.ChainRateLimit),
		chain.NewClient(cfg.ChainGatewayAddress, cfg.CarbonCreditTokenAddress, cfg.ChainRateLimit)
}

func registerJobs(s *scheduler.Scheduler, cfg *config.Config, economy *ecopoints.Economy, market *marketplace.Marketplace, logger *zap.Logger) error {
	if err := s.Add("mint_reconcile", cfg.ReconcileSchedule,
		scheduler.Batch("mint_reconcile", scheduler.DefaultBatch, economy.ReconcileFailedMints, logger)); err != nil {
		return err
	}
	if err := s.Add("settlement_reconcile", cfg.ReconcileSchedule,
		scheduler.Batch("settlement_reconcile", scheduler.DefaultBatch, market.ReconcileSettlements, logger)); err != nil {
		return err
	}
	return s.Add("credits_regenerate", cfg.CreditsSchedule, func(ctx context.Context) error {
		n, err := market.GenerateAllCredits(ctx)
		if err != nil {
			return err
		}
		logger.Info("credits regenerated", zap.Int("users", n))
		return nil
	})
}
