package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"procurement/internal/config"
	"procurement/internal/identity"
	"procurement/internal/logging"
	"procurement/internal/middleware"
	"procurement/internal/service"
	"procurement/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "auto-migrate the postgres schema on start")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set; using the development secret")
	}

	shutdownTracing, err := setupTracing(ctx, cfg.Tracing)
	if err != nil {
		return err
	}

	st, err := openStores(cfg, logger, migrate)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.WithError(err).Warn("failed to close store")
		}
	}()

	files, err := newFileStore(cfg)
	if err != nil {
		return err
	}
	rdb, err := openRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	registry := newRegistry()
	metrics := service.NewMetrics(registry)
	runner := service.NewAdvisoryRunner(cfg.AI.Timeout, logger, metrics)
	resolver := identity.NewJWTResolver(cfg.Secret())

	hub := websocket.NewHub(resolver, logger, cfg.CORSOrigins)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	extractor, validator := collaborators(cfg.AI, rdb, cfg.Redis.CacheTTL, logger)
	requestHandler, documentHandler := newHandlers(service.Deps{
		Tx:        st.tx,
		Requests:  st.requests,
		Approvals: st.approvals,
		Audit:     st.audit,
		Files:     files,
		Extractor: extractor,
		Validator: validator,
		Advisory:  runner,
		Notifier:  hub,
		Metrics:   metrics,
		Logger:    logger,
	}, logger)

	var limiter gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		store, err := middleware.NewRateLimitStore(rdb)
		if err != nil {
			return err
		}
		if limiter, err = middleware.RateLimit(cfg.RateLimit.Rate, store, logger); err != nil {
			return err
		}
	}

	router := newRouter(routes{
		cfg:       cfg,
		logger:    logger,
		resolver:  resolver,
		hub:       hub,
		registry:  registry,
		limiter:   limiter,
		requests:  requestHandler,
		documents: documentHandler,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           compress(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return gracefulShutdown(shutdownCtx, logger, srv, runner, stopHub, shutdownTracing)
}

// gracefulShutdown stops accepting requests, lets in-flight advisory jobs finish, then closes
// subscriptions and flushes traces.
func gracefulShutdown(ctx context.Context, logger *logrus.Logger, srv *http.Server, runner *service.AdvisoryRunner, stopHub func(), shutdownTracing func(context.Context) error) error {
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := runner.Drain(ctx); err != nil {
		logger.WithError(err).Warn("advisory jobs did not finish before the shutdown deadline")
		errs = append(errs, fmt.Errorf("advisory drain: %w", err))
	}
	stopHub()
	if err := shutdownTracing(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}
	return errors.Join(errs...)
}

func setupTracing(ctx context.Context, opts config.TracingOptions) (func(context.Context) error, error) {
	if !opts.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
