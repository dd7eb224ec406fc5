package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quickbite/delivery-core/internal/domain/analytics"
	"github.com/quickbite/delivery-core/internal/domain/coupon"
	"github.com/quickbite/delivery-core/internal/domain/order"
	"github.com/quickbite/delivery-core/internal/domain/user"
	"github.com/quickbite/delivery-core/internal/handler"
	"github.com/quickbite/delivery-core/internal/metrics"
	"github.com/quickbite/delivery-core/internal/realtime"
	"github.com/quickbite/delivery-core/internal/storage/postgres"
	"github.com/quickbite/delivery-core/pkg/health"
	"github.com/quickbite/delivery-core/pkg/httpmiddleware"
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

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	analyticsStore := postgres.NewAnalyticsStore(pool)

	// Realtime fan-out: registry + hub, handed around explicitly.
	svcMetrics := metrics.New(prometheus.DefaultRegisterer)
	registry := realtime.NewRegistry()
	hub := realtime.NewHub(registry, svcMetrics, lg.Named("realtime"))
	notifier := realtime.NewNotifier(hub, svcMetrics)

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	if err := couponValidator.Warm(ctx); err != nil {
		// The validator falls back to plain lookups without the filter.
		lg.Warn("coupon filter warmup failed", zap.Error(err))
	}

	reconciler := analytics.New(analyticsStore, lg.Named("analytics"))
	orderService := order.NewService(
		orderRepo, productRepo, couponValidator, notifier, reconciler,
		order.Pricing{
			TaxRate:     decimal.NewFromFloat(cfg.Pricing.TaxRate),
			DeliveryFee: decimal.NewFromFloat(cfg.Pricing.DeliveryFee),
		},
		lg.Named("orders"),
	)
	userService := user.NewService(userRepo, notifier)

	// HTTP surface.
	h := handler.New(orderService, userService, productRepo)
	apiHandler := httpmiddleware.Wrap(h.Routes(),
		httpmiddleware.Timeout(cfg.RequestTimeout),
		handler.APIKeyAuth(apikeyRepo, []byte(cfg.APIKeyPepper)),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/metrics", metrics.Handler())
	// The WebSocket endpoint sits outside the request timeout: connections
	// are long-lived and clients announce identity in-band.
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.Handle("/api/", http.StripPrefix("/api",
		otelhttp.NewHandler(apiHandler, "api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	))

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      0, // /ws needs unbounded writes; REST is bounded by the Timeout middleware
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.LogRequests(),
		),
	}

	healthSvc.SetReady(true)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown: stop advertising readiness, drain, then stop.
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		hub.Close()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	return g.Wait()
}
