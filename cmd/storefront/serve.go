package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aircare/otpauth"
	"github.com/aircare/otpauth/backend"
	"github.com/aircare/otpauth/backend/rest"
	"github.com/aircare/otpauth/internal/storefront"
	otelexport "github.com/aircare/otpauth/metrics/export/otel"
	"github.com/aircare/otpauth/metrics/export/prometheus"
	"github.com/aircare/otpauth/otp/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storefront BFF",
	Long: `Run the storefront backend-for-frontend.

With STOREFRONT_API_URL set, challenges go to that OTP API. Otherwise the OTP
service runs in process against the same Redis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var otpAPICmd = &cobra.Command{
	Use:   "otp-api",
	Short: "Run the OTP challenge API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOTPAPI(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	rdb, closeRedis, err := openRedis(ctx)
	if err != nil {
		return err
	}
	defer closeRedis()

	engineCfg := otpauth.DefaultConfig()
	engineCfg.Session.RedisPrefix = cfg.RedisPrefix
	engineCfg.Session.CookieSecure = cfg.CookieSecure
	engineCfg.Flow.ResendCooldown = cfg.ResendCooldown
	engineCfg.Flow.IdleTimeout = cfg.FlowIdle
	engineCfg.Audit.Enabled = cfg.AuditLog
	engineCfg.Metrics.EnableLatencyHistograms = true

	builder := otpauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(logger.Named("auth"))
	if cfg.AuditLog {
		builder = builder.WithAuditSink(otpauth.NewZapSink(logger.Named("audit")))
	}

	var be backend.Backend
	if cfg.APIURL != "" {
		be = rest.New(cfg.APIURL)
		logger.Info("using remote otp api", zap.String("url", cfg.APIURL))
	} else {
		svc, tokens, closeSvc, err := newOTPService(ctx, rdb)
		if err != nil {
			return err
		}
		defer closeSvc()
		be = svc
		builder = builder.WithTokenCheck(tokens.Check)
	}

	engine, err := builder.WithBackend(be).Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if cfg.OTLPEndpoint != "" {
		stop, err := startOTLP(ctx, engine)
		if err != nil {
			return err
		}
		defer stop()
	}

	srv := storefront.New(engine, logger.Named("http"),
		storefront.WithMetricsHandler(prometheus.NewPrometheusExporter(engine).Handler()),
	)
	go srv.Registry().Run(ctx, cfg.SweepInterval)

	return listen(ctx, cfg.Addr, srv.Handler())
}

// startOTLP pushes the engine's metrics to cfg.OTLPEndpoint until the returned func runs.
func startOTLP(ctx context.Context, engine *otpauth.Engine) (func(), error) {
	mp, err := newMeterProvider(ctx, cfg.OTLPEndpoint, cfg.OTLPInsecure, cfg.OTLPInterval)
	if err != nil {
		return nil, err
	}
	exp, err := otelexport.NewOTelExporter(mp.Meter("github.com/aircare/otpauth"), engine)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	logger.Info("exporting metrics over otlp", zap.String("endpoint", cfg.OTLPEndpoint))

	return func() {
		_ = exp.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("meter provider shutdown", zap.Error(err))
		}
	}, nil
}

func runOTPAPI(ctx context.Context) error {
	rdb, closeRedis, err := openRedis(ctx)
	if err != nil {
		return err
	}
	defer closeRedis()

	svc, _, closeSvc, err := newOTPService(ctx, rdb)
	if err != nil {
		return err
	}
	defer closeSvc()

	return listen(ctx, cfg.APIAddr, httpapi.New(svc, logger.Named("api")).Routes())
}

func listen(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("stopped", zap.String("addr", addr))
	return nil
}
