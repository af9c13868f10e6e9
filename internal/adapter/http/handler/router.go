package handler

import (
	"einvoice-dispatch/internal/adapter/http/middleware"
	redisStore "einvoice-dispatch/internal/adapter/storage/redis"
	"einvoice-dispatch/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	OrgRepo        ports.OrganizationRepository
	DocRepo        ports.DocumentRepository
	WalletRepo     ports.WalletRepository
	LedgerRepo     ports.LedgerRepository
	SubRepo        ports.WebhookSubscriptionRepository
	DeliveryRepo   ports.WebhookDeliveryRepository
	DeadLetterRepo ports.DeadLetterRepository
	Ledger         ports.CreditLedger
	Enqueuer       ports.DispatchEnqueuer
	IdemStore      ports.IdempotencyStore
	HashSvc        ports.HashService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimit      int64                      // documents per minute per key
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules(deps.RateLimit)
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.OrgRepo, deps.HashSvc, deps.TokenSvc)
	v1.POST("/auth/token", rl("auth_token"), authHandler.Token)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.OrgRepo, deps.Logger)
	idem := middleware.Idempotency(deps.IdemStore, deps.Logger)

	docHandler := NewDocumentHandler(deps.DocRepo, deps.Ledger, deps.Enqueuer)
	documents := v1.Group("/documents", jwtAuth)
	{
		documents.POST("", rl("documents"), idem, docHandler.Create)
		documents.GET("/:id", rl("reads"), docHandler.Get)
		documents.GET("", rl("reads"), docHandler.List)
	}

	webhookHandler := NewWebhookHandler(deps.SubRepo, deps.DeliveryRepo)
	webhooks := v1.Group("/webhooks", jwtAuth)
	{
		webhooks.POST("", rl("webhooks"), webhookHandler.CreateSubscription)
		webhooks.GET("", rl("reads"), webhookHandler.ListSubscriptions)
		webhooks.GET("/deliveries", rl("reads"), webhookHandler.ListDeliveries)
	}

	creditHandler := NewCreditHandler(deps.WalletRepo, deps.LedgerRepo, deps.Ledger)
	credits := v1.Group("/credits", jwtAuth)
	{
		credits.GET("/balance", rl("reads"), creditHandler.GetBalance)
		credits.POST("/topup", rl("credits"), creditHandler.TopUp)
		credits.GET("/transactions", rl("reads"), creditHandler.ListTransactions)
	}

	adminHandler := NewAdminHandler(deps.DeadLetterRepo)
	v1.GET("/deadletters", jwtAuth, rl("reads"), adminHandler.ListDeadLetters)

	return r
}
