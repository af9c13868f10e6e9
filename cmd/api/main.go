package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"einvoice-dispatch/config"
	httpHandler "einvoice-dispatch/internal/adapter/http/handler"
	"einvoice-dispatch/internal/adapter/provider"
	pgStorage "einvoice-dispatch/internal/adapter/storage/postgres"
	redisStorage "einvoice-dispatch/internal/adapter/storage/redis"
	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"
	"einvoice-dispatch/internal/service"
	"einvoice-dispatch/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting e-invoice dispatch service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Repositories
	orgRepo := pgStorage.NewOrganizationRepo(pool)
	docRepo := pgStorage.NewDocumentRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	subRepo := pgStorage.NewSubscriptionRepo(pool)
	deliveryRepo := pgStorage.NewDeliveryRepo(pool)
	deadLetterRepo := pgStorage.NewDeadLetterRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Redis stores
	counterStore := redisStorage.NewCounterStore(rdb)
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)
	queue := redisStorage.NewQueue(rdb)

	// External collaborators
	providerClient := provider.NewKolaysoftClient(cfg.Provider)
	paymentClient := provider.NewPaymentClient(cfg.Payments)

	// Core services
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	signer := service.NewHMACWebhookSigner()
	builder := service.NewUBLPayloadBuilder()
	breaker := service.NewRedisBreaker(counterStore, cfg.Breaker, logger.Component(log, "breaker"))

	// Business services
	creditSvc := service.NewCreditService(walletRepo, ledgerRepo, docRepo, transactor, paymentClient, cfg.Credits, logger.Component(log, "credits"))
	idempotencySvc := service.NewIdempotencyService(idempotencyRepo, idempotencyCache, logger.Component(log, "idempotency"))
	fanoutSvc := service.NewFanoutService(subRepo, deliveryRepo, queue, logger.Component(log, "fanout"))
	enqueuer := service.NewDispatchEnqueuer(queue)

	// Workers
	dispatchWorker := service.NewDispatchWorker(
		docRepo, orgRepo, providerClient, breaker, creditSvc, fanoutSvc, deadLetterRepo, builder,
		provider.MapProviderError,
		cfg.Dispatch, cfg.Credits, cfg.Provider,
		logger.Component(log, "dispatch_worker"),
	)
	webhookWorker := service.NewWebhookWorker(deliveryRepo, subRepo, signer, cfg.Webhook, logger.Component(log, "webhook_worker"))

	runner := service.NewRunner(queue, logger.Component(log, "runner"))
	runner.Register(domain.QueueDispatch, dispatchWorker, cfg.Dispatch.Workers)
	runner.Register(domain.QueueWebhook, webhookWorker, cfg.Webhook.Workers)
	runner.Start(ctx)

	// Auto-purchase sweep
	go func() {
		every := cfg.Credits.SweepEvery
		if every <= 0 {
			every = time.Hour
		}
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := creditSvc.RunAutoPurchaseSweep(ctx); err != nil {
					log.Error().Err(err).Msg("auto-purchase sweep failed")
				}
			}
		}
	}()

	// Health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		OrgRepo:        orgRepo,
		DocRepo:        docRepo,
		WalletRepo:     walletRepo,
		LedgerRepo:     ledgerRepo,
		SubRepo:        subRepo,
		DeliveryRepo:   deliveryRepo,
		DeadLetterRepo: deadLetterRepo,
		Ledger:         creditSvc,
		Enqueuer:       enqueuer,
		IdemStore:      idempotencySvc,
		HashSvc:        hashSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		RateLimit:      cfg.Server.RateLimit,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         logger.Component(log, "http"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	runner.Wait()
	log.Info().Msg("Server exited")
}
