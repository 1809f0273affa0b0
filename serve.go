package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tutortoise/rice-leaf-service/api"
	"github.com/Tutortoise/rice-leaf-service/auth"
	"github.com/Tutortoise/rice-leaf-service/config"
	"github.com/Tutortoise/rice-leaf-service/ensemble"
	"github.com/Tutortoise/rice-leaf-service/metrics"
	"github.com/Tutortoise/rice-leaf-service/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP prediction API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	cfg, logger, level, err := setup(flags)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := config.Watch(flags.configPath, level, logger); err != nil {
		return err
	}
	if err := auth.ValidateSecurity(cfg.Auth); err != nil {
		return err
	}

	collector := metrics.New()
	predictor, model, err := buildPredictor(cfg, logger, ensemble.WithRecorder(collector))
	if err != nil {
		return err
	}
	defer model.Close()
	collector.RegisterPool(model)

	var rdb *redis.Client
	if cfg.UsesRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	authService := auth.NewService(
		auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL),
		refreshStore(cfg, rdb),
		cfg.Auth.Username,
		cfg.Auth.Password,
		logger,
	)

	opts := api.Options{
		Predictor:      predictor,
		Auth:           authService,
		Metrics:        collector,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ProtectPredict: cfg.Auth.ProtectPredict,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	}
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.NewLimiter(rateLimitStore(cfg, rdb), ratelimit.Config{
			Window:            cfg.RateLimit.Window,
			MaxRequests:       cfg.RateLimit.MaxRequests,
			TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
			Paths:             cfg.RateLimit.Paths,
		}, collector, logger)
		opts.RateLimit = limiter.Middleware
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewHandler(opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Addr),
			zap.Int("classes", predictor.Classes().Len()),
			zap.Bool("lazy_load", cfg.Model.LazyLoad),
			zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}

func refreshStore(cfg *config.Config, rdb *redis.Client) auth.RefreshStore {
	if cfg.Auth.RefreshStore == config.BackendRedis {
		return auth.NewRedisRefreshStore(rdb, cfg.Redis.KeyPrefix)
	}
	return auth.NewMemoryRefreshStore()
}

func rateLimitStore(cfg *config.Config, rdb *redis.Client) ratelimit.Store {
	if cfg.RateLimit.Backend == config.BackendRedis {
		return ratelimit.NewRedisStore(rdb, cfg.Redis.KeyPrefix)
	}
	return ratelimit.NewMemoryStore()
}
