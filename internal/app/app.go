package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/atelier-commerce/checkout/internal/domain/cart"
	"github.com/atelier-commerce/checkout/internal/domain/checkout"
	"github.com/atelier-commerce/checkout/internal/domain/order"
	"github.com/atelier-commerce/checkout/internal/domain/pricing"
	"github.com/atelier-commerce/checkout/internal/handler"
	"github.com/atelier-commerce/checkout/internal/storage/postgres"
	redisstore "github.com/atelier-commerce/checkout/internal/storage/redis"
	"github.com/atelier-commerce/checkout/internal/submit"
	"github.com/atelier-commerce/checkout/pkg/health"
	"github.com/atelier-commerce/checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Redis: carts, the pending queue, the badge channel.
	redisClient, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return errors.Wrap(err, "create redis client")
	}
	defer func() { _ = redisClient.Close() }()

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	receiptRepo := postgres.NewReceiptRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)
	addressRepo := postgres.NewAddressRepository(pool)
	preferenceRepo := postgres.NewPreferenceRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := redisstore.NewCartRepository(redisClient)
	pendingQueue := redisstore.NewPendingQueue(redisClient)
	badge := redisstore.NewBadgePublisher(redisClient)

	// Domain services.
	policy := order.ShippingPolicy{
		FreeThreshold: decimal.NewFromFloat(cfg.Shipping.FreeThreshold),
		FlatFee:       decimal.NewFromFloat(cfg.Shipping.FlatFee),
	}
	cartStore := cart.NewStore(cartRepo, pricing.NewEngine(), badge)
	go func() {
		// Mirrors badge updates into the log so externally observed counts
		// can be correlated with cart mutations.
		if err := badge.Watch(ctx, func(userID string, count int) {
			lg.Debug("cart badge updated", zap.String("user_id", userID), zap.Int("count", count))
		}); err != nil && !errors.Is(err, context.Canceled) {
			lg.Warn("badge watcher stopped", zap.Error(err))
		}
	}()
	submitter := submit.New(submit.Config{
		Candidates:     cfg.Submission.Candidates,
		AttemptTimeout: cfg.Submission.AttemptTimeout,
	})
	checkoutSvc := checkout.NewService(cartStore, addressRepo, submitter, pendingQueue, policy)

	// HTTP surface.
	h := handler.NewHandler(
		cartStore, checkoutSvc, orderRepo, receiptRepo,
		notificationRepo, addressRepo, preferenceRepo, productRepo, policy,
	)

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(
			otelhttp.NewHandler(router, "checkout-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-User-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
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
