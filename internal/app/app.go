package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tableside/internal/domain/cart"
	"github.com/xenking/tableside/internal/domain/feedback"
	"github.com/xenking/tableside/internal/domain/order"
	"github.com/xenking/tableside/internal/domain/payment"
	"github.com/xenking/tableside/internal/domain/tableorder"
	"github.com/xenking/tableside/internal/domain/waiter"
	"github.com/xenking/tableside/internal/gateway"
	"github.com/xenking/tableside/internal/handler"
	"github.com/xenking/tableside/internal/redisstore"
	"github.com/xenking/tableside/internal/repository"
	"github.com/xenking/tableside/pkg/health"
	"github.com/xenking/tableside/pkg/httpmiddleware"
	pkgredis "github.com/xenking/tableside/pkg/redis"
	pkgstripe "github.com/xenking/tableside/pkg/stripe"
)

const webhookScope = "stripe_webhook"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("currency", cfg.Currency),
		zap.Bool("payments", cfg.Stripe.Enabled()),
	)

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis for carts, webhook dedup and rate limiting.
	rdb, err := pkgredis.New(ctx, cfg.Redis)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			lg.Warn("Close redis", zap.Error(err))
		}
	}()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddReadinessCheck("redis", 2*time.Second, health.PingCheck("redis", rdb))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	menuRepo := repository.NewMenuRepository(pool)
	tableRepo := repository.NewTableRepository(pool)
	tableOrderRepo := repository.NewTableOrderRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)
	cartStore := redisstore.NewCartStore(rdb.Raw(), cfg.Cart.TTL, cfg.Cart.MaxAttempts)

	// Payment gateway, when configured.
	var (
		gw       payment.Gateway
		webhooks handler.WebhookParser
		events   handler.EventGuard
	)
	if cfg.Stripe.Enabled() {
		client, err := pkgstripe.NewClient(cfg.Stripe)
		if err != nil {
			return errors.Wrap(err, "create stripe client")
		}
		stripeGateway := gateway.NewStripe(client)
		guard, err := pkgredis.NewIdempotencyGuard(rdb, cfg.Webhook.DedupTTL, webhookScope)
		if err != nil {
			return errors.Wrap(err, "create webhook guard")
		}
		gw, webhooks, events = stripeGateway, stripeGateway, guard
		lg.Info("Stripe payments enabled", zap.String("environment", client.Environment()))
	} else {
		lg.Warn("Stripe is not configured, payment creation is disabled")
	}

	// Domain services.
	tableOrderService := tableorder.NewService(tableOrderRepo, cfg.TableOrder.MaxAttempts)
	orderService := order.NewService(menuRepo, tableRepo, orderRepo)
	cartService := cart.NewService(cartStore, menuRepo, tableOrderService, orderService)
	paymentService, err := payment.NewService(paymentRepo, gw, tableOrderService, cfg.Currency,
		m.MeterProvider().Meter("github.com/xenking/tableside"),
	)
	if err != nil {
		return errors.Wrap(err, "create payment service")
	}

	// HTTP handlers.
	h := handler.New(handler.Deps{
		Menu:        menuRepo,
		Tables:      tableRepo,
		APIKeys:     apikeyRepo,
		Carts:       cartService,
		TableOrders: tableOrderService,
		Orders:      orderService,
		Payments:    paymentService,
		Feedback:    feedback.NewService(repository.NewFeedbackRepository(pool)),
		Waiter:      waiter.NewService(repository.NewWaiterCallRepository(pool)),
		Webhooks:    webhooks,
		Events:      events,
	}, []byte(cfg.APIKeyPepper))

	// Route-aware middleware runs inside chi so the pattern is resolved.
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.LogRequests(handler.RoutePattern),
		httpmiddleware.Labeler(handler.RoutePattern),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Register(router, httpmiddleware.RateLimit(rdb, httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	}))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("tableside-api", m.TracerProvider(), m.MeterProvider()),
			cors.Handler(cors.Options{
				AllowedOrigins:   cfg.CORS.Origins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
				AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "Idempotency-Key", "X-Request-ID"},
				ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           300,
			}),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
