// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-settlement/internal/config"
	"wallet-settlement/internal/domain/ports/adapter"
	payAdapters "wallet-settlement/internal/infra/adapters/payment"
	pg "wallet-settlement/internal/infra/db/postgres"
	"wallet-settlement/internal/infra/logging"
	"wallet-settlement/internal/infra/metrics"
	red "wallet-settlement/internal/infra/redis"
	"wallet-settlement/internal/infra/sched"
	"wallet-settlement/internal/infra/web"
	"wallet-settlement/internal/infra/worker"
	"wallet-settlement/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, mock driver allowed)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()
	tm := pg.NewTxManager(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	statusCache := red.NewStatusCache(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	payRepo := pg.NewPaymentRepo(pool)
	walletRepo := pg.NewWalletRepo(pool)
	walletTxRepo := pg.NewWalletTransactionRepo(pool)
	planRepo := pg.NewPlanRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)

	// ---- Payment drivers ----
	// A provider with no credentials is simply not registered; requests
	// naming it fail with the unsupported-provider error.
	var gateways []adapter.PaymentGateway
	if cfg.Payment.Paystack.SecretKey != "" {
		gw, err := payAdapters.NewPaystackGateway(cfg.Payment.Paystack)
		if err != nil {
			logger.Fatal().Err(err).Msg("paystack gateway")
		}
		gateways = append(gateways, gw)
	}
	if cfg.Payment.Flutterwave.SecretKey != "" {
		gw, err := payAdapters.NewFlutterwaveGateway(cfg.Payment.Flutterwave)
		if err != nil {
			logger.Fatal().Err(err).Msg("flutterwave gateway")
		}
		gateways = append(gateways, gw)
	}
	if cfg.Payment.MockEnabled {
		if !cfg.Runtime.Dev {
			logger.Warn().Msg("mock payment driver enabled outside developer mode")
		}
		gateways = append(gateways, payAdapters.NewMockGateway())
	}
	if len(gateways) == 0 {
		logger.Fatal().Msg("no payment provider configured")
	}
	registry := payAdapters.NewRegistry(gateways...)
	logger.Info().Strs("providers", registry.Providers()).Msg("payment drivers registered")

	// ---- Use case ----
	settlementUC := usecase.NewSettlementUseCase(
		payRepo, walletRepo, walletTxRepo, planRepo, subRepo,
		registry, tm, statusCache,
		cfg.Settlement.CoinsPerUnit, cfg.Settlement.TxTimeout, logger,
	)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.SecureCookie, cfg.Admin.CookieDomain, cfg.Admin.SessionTTL)
	srv := web.NewServer(settlementUC, registry, cfg.Admin.APIKey, auth, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Stale payment reconciler ----
	wp := worker.NewPool(4, logger)
	wp.Start(ctx)
	defer wp.Stop()
	reconciler := sched.NewPaymentReconciler(settlementUC, payRepo, wp,
		cfg.Settlement.ReconcileInterval, cfg.Settlement.ReconcileStaleAfter, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
