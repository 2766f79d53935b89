package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/cache"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/logger"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/policies"
	"github.com/Ramsey-B/clover/pkg/reference"
	"github.com/Ramsey-B/clover/pkg/routes/dedup"
	"github.com/Ramsey-B/clover/pkg/routes/health"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLogs).With(zap.String("app", cfg.AppName))
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, tracing.ExporterConfig{
		ServiceName: cfg.AppName,
		Protocol:    cfg.TraceProtocol,
		Endpoint:    cfg.TraceEndpoint,
		Insecure:    cfg.TraceInsecure,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("error creating tracer provider: %w", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	catalog, err := policies.Load(cfg.PolicyFile,
		matching.WithLogger(log),
		matching.WithRecorder(m),
		matching.WithWorkers(cfg.MatchWorkers),
		matching.WithLimits(cfg.MatchMaxCandidates, cfg.MatchMaxReferences),
	)
	if err != nil {
		return fmt.Errorf("error loading policies: %w", err)
	}
	log.Info("Policies loaded", zap.Strings("policies", catalog.Names()))

	checker := health.NewChecker(version, catalog.Names(), 2*time.Second)
	handler := &dedup.Handler{Catalog: catalog, ReferenceLimit: cfg.MatchMaxReferences}

	deps := startup.New(log, cfg.StartupMaxAttempts, time.Second)
	deps.Add(startup.Func{
		ID: "tracing",
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})

	if cfg.DatabaseEnabled() {
		var db *sqlx.DB
		deps.Add(startup.Func{
			ID: "database",
			OnStart: func(ctx context.Context) error {
				conn, err := database.Open(cfg.DatabaseDriver, cfg.DSN(), database.PoolConfig{
					MaxOpenConns:    cfg.DatabaseMaxOpenConns,
					MaxIdleConns:    cfg.DatabaseMaxIdleConns,
					ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
				})
				if err != nil {
					return err
				}
				if err := conn.PingContext(ctx); err != nil {
					_ = conn.Close()
					return err
				}
				if cfg.DatabaseMigrate {
					if err := database.Migrate(conn.DB, log); err != nil {
						_ = conn.Close()
						return err
					}
				}
				db = conn
				handler.References = reference.NewStore(db, log, m.ObserveReferenceLoad)
				checker.AddCheck("database", db.PingContext, true)
				return nil
			},
			OnStop: func(context.Context) error {
				return db.Close()
			},
		})
	}

	if cfg.CacheEnabled {
		var rdb *redis.Client
		deps.Add(startup.Func{
			ID: "cache",
			OnStart: func(ctx context.Context) error {
				client := cache.NewClient(cache.Config{Addr: cfg.RedisAddr(), Password: cfg.RedisPassword, DB: cfg.RedisDB})
				preview := cache.NewPreviewCache(client, cfg.PreviewCacheTTL, log, m.ObserveCacheLookup)
				if err := preview.Ping(ctx); err != nil {
					_ = client.Close()
					return err
				}
				rdb = client
				handler.Cache = preview
				checker.AddCheck("redis", preview.Ping, false)
				return nil
			},
			OnStop: func(context.Context) error {
				return rdb.Close()
			},
		})
	}

	if err := deps.Start(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := deps.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping dependencies", zap.Error(err))
		}
	}()

	e := newServer(cfg, log, handler, checker)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	checker.SetReady(true)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	log.Info("Shutting down HTTP server")
	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newServer(cfg *config.Config, log *zap.Logger, handler *dedup.Handler, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error()

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context(log))
	e.Use(middleware.Logger())
	e.Use(echomw.BodyLimit(cfg.MaxBodyBytes))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderXRequestID, middleware.HeaderTenantID, middleware.HeaderUserID},
	}))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	handler.Register(e.Group("/api/v1/dedup"))

	return e
}
