package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"shopnest-backend/internal/api"
	"shopnest-backend/internal/auth"
	"shopnest-backend/internal/config"
	"shopnest-backend/internal/logging"
	"shopnest-backend/internal/mailer"
	"shopnest-backend/internal/media"
	"shopnest-backend/internal/orders"
	"shopnest-backend/internal/payment"
	"shopnest-backend/internal/products"
	"shopnest-backend/internal/ratelimit"
	"shopnest-backend/internal/store"
	"shopnest-backend/internal/store/memstore"
	"shopnest-backend/internal/store/mongostore"
	"shopnest-backend/internal/telemetry"
	"shopnest-backend/internal/users"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New("server", cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", map[string]interface{}{"error": err})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.JSONLogger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", map[string]interface{}{"error": err})
		}
	}()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	limiter, closeLimiter, err := openLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	images, err := openImages(cfg, logger)
	if err != nil {
		return err
	}

	tokens := auth.NewTokens(cfg.Auth)
	gateway := payment.NewStripe(cfg.Payment)

	var orderOpts []orders.Option
	if cfg.Payment.VerifyOrders && cfg.Payment.StripeSecretKey != "" {
		orderOpts = append(orderOpts, orders.WithPaymentVerifier(gateway))
	}

	engine := api.NewRouter(api.Deps{
		Config: cfg,
		Store:  st,
		Log:    logger.With("api"),
		Tokens: tokens,
		Users: users.NewService(users.Deps{
			Store:     st,
			Tokens:    tokens,
			Images:    images,
			Limiter:   limiter,
			Mail:      mailer.New(cfg.SMTP, logger.With("mailer")),
			Log:       logger.With("users"),
			ClientURL: cfg.ClientURL,
			ResetTTL:  cfg.Auth.ResetTTL,
		}),
		Products: products.NewService(st, images, logger.With("products")),
		Orders:   orders.NewService(st, logger.With("orders"), orderOpts...),
		Payments: gateway,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           telemetry.Handler(engine, cfg.Telemetry.ServiceName, "/healthz"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", map[string]interface{}{"addr": srv.Addr, "store": cfg.Store.Driver, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down", nil)
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}

func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (store.Store, error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart", nil)
		return memstore.New(), nil
	}
	return mongostore.Open(ctx, mongostore.Options{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
		Transactions:   cfg.Mongo.Transactions,
	})
}

func openLimiter(ctx context.Context, cfg *config.Config, logger logging.Logger) (ratelimit.Limiter, func(), error) {
	rl := cfg.RateLimit
	switch {
	case !rl.Enabled:
		return ratelimit.Disabled{}, func() {}, nil
	case rl.RedisURL != "":
		r, err := ratelimit.OpenRedis(ctx, rl.RedisURL, rl.MaxAttempts, rl.Window, logger)
		if err != nil {
			return nil, nil, err
		}
		return r, func() { _ = r.Close() }, nil
	default:
		return ratelimit.NewMemory(rl.MaxAttempts, rl.Window), func() {}, nil
	}
}

func openImages(cfg *config.Config, logger *logging.JSONLogger) (products.ImageStore, error) {
	if cfg.Cloud.CloudName == "" {
		if cfg.IsProduction() {
			return nil, errors.New("cloudinary credentials are required in production")
		}
		logger.Warn("cloudinary not configured, uploads are not stored", nil)
		return media.NewLocal(logger.With("media")), nil
	}
	return media.NewCloudinary(cfg.Cloud, cfg.Upload.TempDir, logger.With("media"))
}
