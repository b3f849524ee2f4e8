package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/prefab-storefront/internal/domain/auth"
	"github.com/xenking/prefab-storefront/internal/domain/consent"
	"github.com/xenking/prefab-storefront/internal/domain/order"
	"github.com/xenking/prefab-storefront/internal/domain/product"
	"github.com/xenking/prefab-storefront/internal/domain/relay"
	"github.com/xenking/prefab-storefront/internal/domain/upload"
	"github.com/xenking/prefab-storefront/internal/handler"
	"github.com/xenking/prefab-storefront/internal/session"
	"github.com/xenking/prefab-storefront/internal/storage/gotrue"
	"github.com/xenking/prefab-storefront/internal/storage/kafka"
	"github.com/xenking/prefab-storefront/internal/storage/postgres"
	"github.com/xenking/prefab-storefront/pkg/health"
	"github.com/xenking/prefab-storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("feed", cfg.Feed.Kind),
	)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
		TracerProvider:    m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	profileRepo := postgres.NewProfileRepository(pool)
	var orderRepo order.Repository = postgres.NewOrderRepository(pool)

	// Order insert feed shared by every session.
	var feed relay.Feed
	switch cfg.Feed.Kind {
	case FeedKafka:
		publishing := kafka.NewPublishingOrders(orderRepo, cfg.Feed.Brokers, cfg.Feed.Topic, lg.Named("kafka"))
		defer func() { _ = publishing.Close() }()
		orderRepo = publishing

		kf := kafka.NewFeed(cfg.Feed.Brokers, cfg.Feed.Topic, cfg.Feed.Group)
		defer func() { _ = kf.Close() }()
		feed = kf
	default:
		listener := postgres.NewListener(pool, cfg.Feed.Channel, cfg.Feed.RetryDelay, lg.Named("listener"))
		defer listener.Close()
		healthSvc.AddReadinessCheck("listener", time.Second,
			health.StateCheck("order feed listener", listener.Connected), health.StartUnhealthy())
		feed = listener
	}
	fanout := relay.NewFanout(feed, lg.Named("relay"))
	healthSvc.AddReadinessCheck("order_feed", time.Second,
		health.StateCheck("order feed", fanout.Running), health.StartUnhealthy())

	st, err := openStores(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer st.Close()

	// Identity.
	gt := gotrue.NewClient(cfg.Auth.URL, cfg.Auth.AnonKey, cfg.Auth.JWTSecret, cfg.Auth.Timeout)
	var restorer session.Restorer
	if cfg.Auth.JWTSecret != "" {
		restorer = gt
	}

	// Domain services.
	orderService := order.NewService(productRepo, orderRepo)
	var uploads *upload.Service
	if st.objects != nil {
		uploads = upload.NewService(st.objects, cfg.Upload.MaxSize)
	}

	sessions, err := session.NewManager(session.Config{
		Cookie:          cfg.Session.Cookie,
		Secure:          cfg.Session.Secure,
		IdleTTL:         cfg.Session.TTL,
		JanitorInterval: cfg.Session.Janitor,
		FeedBuffer:      cfg.Session.FeedBuffer,
	}, session.Deps{
		Orders:    orderService,
		Profiles:  profileRepo,
		Snapshots: st.snapshots,
		NewProvider: func() auth.Provider {
			return gotrue.NewProvider(gt, lg.Named("auth"))
		},
		Restorer:       restorer,
		OrderFeed:      fanout,
		Admission:      st.admission,
		Logger:         lg.Named("session"),
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create session manager")
	}

	h := handler.New(handler.Config{
		ImageBaseURL:  cfg.ImageBaseURL,
		MaxUploadSize: cfg.Upload.MaxSize,
		ConsentCookie: cfg.Consent.Cookie,
		SecureCookies: cfg.Session.Secure,
		LoginGuard: []func(http.Handler) http.Handler{
			httpmiddleware.RateLimit(st.login, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Login,
				Window: cfg.RateLimit.Window,
			}),
		},
	}, product.NewCatalog(productRepo), orderService, consent.NewService(st.consent, cfg.Consent.Retention), uploads, sessions)

	// Router: health endpoints + session-scoped API on one server.
	r := chi.NewRouter()
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)
	r.Route("/api", func(r chi.Router) {
		r.Use(sessions.Middleware())
		h.Routes(r)
	})
	routeFinder := httpmiddleware.MakeRouteFinder(r)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RateLimit(st.limiter, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.CookieOrIP(cfg.Session.Cookie, sessions.Live),
			}),
			httpmiddleware.Instrument("storefront", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := fanout.Run(gctx); err != nil {
			return errors.Wrap(err, "order feed")
		}
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx)
		return nil
	})
	for _, sweep := range st.sweeps {
		g.Go(func() error {
			sweep(gctx)
			return nil
		})
	}

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		if ctx.Err() != nil {
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
