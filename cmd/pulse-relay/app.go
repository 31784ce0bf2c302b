package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"pulse/internal/analytics"
	"pulse/internal/config"
	"pulse/internal/constants"
	"pulse/internal/kv"
	"pulse/internal/logger"
	"pulse/internal/relay"
	"pulse/internal/storage"
	"pulse/pkg/bootstrap"
	"pulse/pkg/health"
	"pulse/pkg/metrics"
	"pulse/pkg/middleware"
	"pulse/pkg/ratelimit"
	"pulse/pkg/tracing"
)

const serviceName = "pulse-relay"

type App struct {
	*bootstrap.Base
	registry       *analytics.Registry
	client         *analytics.Client
	tracerProvider *tracing.TracerProvider
	router         *gin.Engine
	server         *http.Server
	cancel         context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok && cfg.Pipeline.Tag != "" {
		sugaredLogger.SetInstanceTag(cfg.Pipeline.Tag)
	}
	return &App{
		Base:     bootstrap.NewBase(cfg, log),
		registry: analytics.NewRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, serviceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterRelayMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.InitStorage(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.InitKafka()
	if a.Kafka != nil {
		metrics.RegisterKafkaMetrics()
	}

	client, err := a.registry.Create(ctx, *a.Config, analytics.Deps{
		Logger:    a.Logger,
		Store:     a.Store,
		Log:       a.UploadLog,
		Factories: a.Factories(),
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	a.client = client

	a.initRouter(ctx)
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}

	return nil
}

func (a *App) initRouter(ctx context.Context) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))

	if a.Config.Server.RateLimit.Enabled {
		rateLimitConfig := ratelimit.ConfigFrom(a.Config.Server.RateLimit)
		limiterCtx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		router.Use(ratelimit.RateLimitMiddleware(limiterCtx, rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	relay.NewHandler(a.client, a.Logger.Named("relay")).RegisterRoutes(router)

	healthRegistry := a.healthChecks()
	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
}

func (a *App) healthChecks() *health.CheckerRegistry {
	r := health.NewCheckerRegistry()
	r.Register(health.NewPipelineChecker(a.client))
	if a.Redis != nil {
		r.Register(health.NewRedisChecker(a.Redis))
	}
	if breaker, ok := a.Store.(*kv.CircuitBreakerStore); ok {
		r.Register(health.NewBreakerChecker("kv_breaker", breaker.IsOpen))
	}
	if sqlite, ok := a.UploadLog.(*storage.SQLiteLog); ok {
		r.Register(health.NewSQLiteChecker(sqlite))
	}
	return r
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(context.Background())
	})

	return g.Wait()
}

// Shutdown stops accepting requests before the pipeline drains.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down relay")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer cancel()

		if a.server != nil {
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.cancel != nil {
			a.cancel()
		}

		if a.client != nil {
			if err := a.client.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("pipeline shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
