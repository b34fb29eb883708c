package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ajaySingh2615/devices/internal/domain/cart"
	"github.com/ajaySingh2615/devices/internal/domain/checkout"
	"github.com/ajaySingh2615/devices/internal/domain/coupon"
	"github.com/ajaySingh2615/devices/internal/domain/order"
	"github.com/ajaySingh2615/devices/internal/events"
	"github.com/ajaySingh2615/devices/internal/handler"
	"github.com/ajaySingh2615/devices/internal/payment"
	"github.com/ajaySingh2615/devices/internal/storage/postgres"
	"github.com/ajaySingh2615/devices/pkg/health"
	"github.com/ajaySingh2615/devices/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	shippingRate, err := decimal.NewFromString(cfg.Shipping.FlatRate)
	if err != nil {
		return errors.Wrap(err, "parse shipping flat rate")
	}
	freeThreshold, err := decimal.NewFromString(cfg.Shipping.FreeThreshold)
	if err != nil {
		return errors.Wrap(err, "parse shipping free threshold")
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	variantRepo := postgres.NewVariantRepository(pool)
	addressRepo := postgres.NewAddressRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	// Order events are optional; without a broker URL the service runs
	// standalone.
	var publisher order.Publisher
	if cfg.AMQPURL != "" {
		p, err := events.NewPublisher(cfg.AMQPURL)
		if err != nil {
			return errors.Wrap(err, "connect event broker")
		}
		defer func() { _ = p.Close() }()
		publisher = p
	}

	// Domain services.
	couponSvc := coupon.NewService(couponRepo)
	cartSvc := cart.NewService(cartRepo, variantRepo, couponSvc)
	checkoutSvc := checkout.NewService(cartSvc, checkout.Config{
		FlatRate:      shippingRate,
		FreeThreshold: freeThreshold,
	})
	verifier := payment.NewVerifier([]byte(cfg.Payment.GatewaySecret))
	orderSvc := order.NewService(
		orderRepo, cartSvc, checkoutSvc, addressRepo, variantRepo,
		verifier, publisher, cfg.Currency,
	)

	// HTTP handlers: health endpoints + API routes on one server.
	h := handler.NewHandler(cartSvc, checkoutSvc, couponSvc, orderSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-User-ID", "X-Session-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("shop-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
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
