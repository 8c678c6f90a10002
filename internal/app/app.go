package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/notify"
	"github.com/xenking/storefront/internal/seed"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// stores groups the repositories selected by Config.Storage.
type stores struct {
	catalog catalog.Repository
	orders  order.Repository
	close   func()
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application. m is usually
// the *app.Telemetry handed over by the sdk runner.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.TelemetryProvider, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	st, err := openStores(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer st.close()

	var notifier order.Notifier = notify.LogNotifier{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		defer func() { _ = client.Close() }()
		healthSvc.AddReadinessCheck("redis", 2*time.Second, notify.PingCheck(client))
		notifier = notify.NewRedisPublisher(client, cfg.Redis.Channel)
		lg.Info("Publishing order confirmations", zap.String("channel", cfg.Redis.Channel))
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	orderService, err := order.NewService(st.orders, notifier, order.Options{
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	reviewService, err := review.NewService(st.catalog, review.Options{
		MaxAttempts:    cfg.Reviews.MaxAttempts,
		RetryInterval:  cfg.Reviews.RetryInterval,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create review service")
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.JWTSecret))
	if err != nil {
		return errors.Wrap(err, "create token verifier")
	}

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(
		handler.Config{MaxBodyBytes: cfg.HTTP.MaxBodyBytes, MaxListLimit: cfg.HTTP.MaxListLimit},
		st.catalog,
		orderService,
		reviewService,
		verifier,
	).Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

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
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.PrincipalKey(verifiedPrincipal(verifier)),
				Skip:    httpmiddleware.SkipPaths("/livez", "/readyz"),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
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

func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, healthSvc *health.Health) (*stores, error) {
	if cfg.Storage == StorageMemory {
		entries := memory.NewCatalogStore()
		if cfg.CatalogFile != "" {
			seeded, err := seed.LoadCatalog(cfg.CatalogFile, time.Now())
			if err != nil {
				return nil, errors.Wrap(err, "load catalog")
			}
			for _, e := range seeded {
				entries.Save(e)
			}
			lg.Info("Catalog loaded", zap.Int("entries", len(seeded)))
		}
		return &stores{catalog: entries, orders: memory.NewOrderStore(), close: func() {}}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))

	return &stores{
		catalog: postgres.NewCatalogRepository(pool),
		orders:  postgres.NewOrderRepository(pool),
		close:   pool.Close,
	}, nil
}

// verifiedPrincipal resolves the rate-limit identity of a request. Only
// tokens that pass verification yield a principal id.
func verifiedPrincipal(v *auth.JWTVerifier) func(*http.Request) (string, bool) {
	return func(r *http.Request) (string, bool) {
		token, ok := httpmiddleware.BearerToken(r)
		if !ok {
			return "", false
		}
		p, err := v.Verify(r.Context(), token)
		if err != nil {
			return "", false
		}
		return p.ID, true
	}
}
